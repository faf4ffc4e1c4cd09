// Package trace records CU decisions as a zstd-compressed stream so that
// encodes can be compared offline.
//
// A stream starts with Magic and holds one record per frame. Integers are
// varints.
package trace

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/deepteams/hevcenc/internal/frame"
	"github.com/deepteams/hevcenc/internal/types"
)

// Magic starts every trace stream.
const Magic = "HEVCCUT1"

// ErrFormat reports a malformed trace.
var ErrFormat = errors.New("trace: malformed stream")

// CU is one decided CU in picture coordinates.
type CU struct {
	X, Y  int
	Size  int
	Mode  types.PredMode
	Part  types.PartMode
	Intra [4]uint8
	Merge int
	MV    [2]types.MV
	Cbf   bool
	Cost  int64
	Dist  int64
	Bits  uint64 // Q15
}

// Frame is the record of one encoded frame.
type Frame struct {
	Index    int
	Instance int
	Slice    types.SliceType
	QP       int
	CUs      []CU
}

// FromResult collects the CUs of res in CTB raster order.
func FromResult(index, instance int, cfg *frame.Config, res *frame.Result) *Frame {
	f := &Frame{Index: index, Instance: instance, Slice: cfg.Slice, QP: cfg.QP}
	for i := range res.CTBs {
		ctb := &res.CTBs[i]
		x0, y0 := ctb.X*cfg.CTBSize, ctb.Y*cfg.CTBSize
		for j := range ctb.CUs {
			r := &ctb.CUs[j].Result
			f.CUs = append(f.CUs, CU{
				X:     x0 + r.X,
				Y:     y0 + r.Y,
				Size:  r.Size,
				Mode:  r.Mode,
				Part:  r.Part,
				Intra: r.Intra,
				Merge: r.Merge,
				MV:    r.MV,
				Cbf:   r.Cbf,
				Cost:  r.Cost,
				Dist:  r.Dist,
				Bits:  r.Bits,
			})
		}
	}
	return f
}

var encPool = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		return enc
	},
}

var decPool = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return dec
	},
}

// Writer writes a trace stream. It is not safe for concurrent use.
type Writer struct {
	enc *zstd.Encoder
	buf []byte
}

// NewWriter starts a trace stream on w.
func NewWriter(w io.Writer) (*Writer, error) {
	enc := encPool.Get().(*zstd.Encoder)
	enc.Reset(w)
	tw := &Writer{enc: enc}
	if _, err := enc.Write([]byte(Magic)); err != nil {
		tw.release()
		return nil, fmt.Errorf("trace: write header: %w", err)
	}
	return tw, nil
}

func (w *Writer) uvarint(v uint64) { w.buf = binary.AppendUvarint(w.buf, v) }
func (w *Writer) varint(v int64)   { w.buf = binary.AppendVarint(w.buf, v) }

// WriteFrame appends the record of f.
func (w *Writer) WriteFrame(f *Frame) error {
	if w.enc == nil {
		return fmt.Errorf("trace: write after close")
	}
	w.buf = w.buf[:0]
	w.uvarint(uint64(f.Index))
	w.uvarint(uint64(f.Instance))
	w.uvarint(uint64(f.Slice))
	w.uvarint(uint64(f.QP))
	w.uvarint(uint64(len(f.CUs)))
	for i := range f.CUs {
		cu := &f.CUs[i]
		w.uvarint(uint64(cu.X))
		w.uvarint(uint64(cu.Y))
		w.uvarint(uint64(cu.Size))
		w.buf = append(w.buf, byte(cu.Mode), byte(cu.Part))
		w.buf = append(w.buf, cu.Intra[:]...)
		w.uvarint(uint64(cu.Merge))
		for _, mv := range cu.MV {
			w.varint(int64(mv.X))
			w.varint(int64(mv.Y))
		}
		cbf := byte(0)
		if cu.Cbf {
			cbf = 1
		}
		w.buf = append(w.buf, cbf)
		w.varint(cu.Cost)
		w.varint(cu.Dist)
		w.uvarint(cu.Bits)
	}
	if _, err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("trace: write frame %d: %w", f.Index, err)
	}
	return nil
}

// Close flushes the stream. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.enc == nil {
		return nil
	}
	err := w.enc.Close()
	w.release()
	return err
}

func (w *Writer) release() {
	encPool.Put(w.enc)
	w.enc = nil
}

// Reader reads a trace stream.
type Reader struct {
	dec *zstd.Decoder
	r   *bufio.Reader
}

// NewReader opens a trace stream and checks its header.
func NewReader(r io.Reader) (*Reader, error) {
	dec := decPool.Get().(*zstd.Decoder)
	if err := dec.Reset(r); err != nil {
		decPool.Put(dec)
		return nil, fmt.Errorf("trace: %w", err)
	}
	tr := &Reader{dec: dec, r: bufio.NewReader(dec)}
	var magic [len(Magic)]byte
	if _, err := io.ReadFull(tr.r, magic[:]); err != nil || string(magic[:]) != Magic {
		tr.Close()
		return nil, fmt.Errorf("%w: bad header", ErrFormat)
	}
	return tr, nil
}

// Next returns the next frame record, or io.EOF after the last one.
func (r *Reader) Next() (*Frame, error) {
	if _, err := r.r.Peek(1); err == io.EOF {
		return nil, io.EOF
	}
	var err error
	u := func() uint64 {
		if err != nil {
			return 0
		}
		var v uint64
		v, err = binary.ReadUvarint(r.r)
		return v
	}
	s := func() int64 {
		if err != nil {
			return 0
		}
		var v int64
		v, err = binary.ReadVarint(r.r)
		return v
	}
	b := func() byte {
		if err != nil {
			return 0
		}
		var v byte
		v, err = r.r.ReadByte()
		return v
	}

	f := &Frame{
		Index:    int(u()),
		Instance: int(u()),
		Slice:    types.SliceType(u()),
		QP:       int(u()),
	}
	n := u()
	if err == nil && n > 1<<24 {
		return nil, fmt.Errorf("%w: %d CUs in frame %d", ErrFormat, n, f.Index)
	}
	f.CUs = make([]CU, 0, n)
	for i := uint64(0); i < n && err == nil; i++ {
		var cu CU
		cu.X, cu.Y, cu.Size = int(u()), int(u()), int(u())
		cu.Mode, cu.Part = types.PredMode(b()), types.PartMode(b())
		for k := range cu.Intra {
			cu.Intra[k] = b()
		}
		cu.Merge = int(u())
		for k := range cu.MV {
			cu.MV[k] = types.MV{X: int16(s()), Y: int16(s())}
		}
		cu.Cbf = b() == 1
		cu.Cost, cu.Dist, cu.Bits = s(), s(), u()
		f.CUs = append(f.CUs, cu)
	}
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: frame %d: %v", ErrFormat, f.Index, err)
	}
	return f, nil
}

// Close returns the decoder to the pool.
func (r *Reader) Close() {
	if r.dec == nil {
		return
	}
	r.dec.Reset(nil)
	decPool.Put(r.dec)
	r.dec = nil
}
