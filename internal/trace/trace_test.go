package trace

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/frame"
	"github.com/deepteams/hevcenc/internal/types"
)

func sampleFrames() []*Frame {
	return []*Frame{
		{Index: 0, Slice: types.SliceI, QP: 30, CUs: []CU{
			{X: 0, Y: 0, Size: 32, Mode: types.PredIntra, Intra: [4]uint8{26, 26, 26, 26}, Cost: 12345, Dist: 40, Bits: 9 << 15},
			{X: 32, Y: 0, Size: 8, Mode: types.PredIntra, Part: types.PartNxN, Intra: [4]uint8{0, 1, 10, 34}, Cbf: true, Cost: 99},
		}},
		{Index: 1, Instance: 2, Slice: types.SliceP, QP: 33, CUs: []CU{
			{X: 64, Y: 64, Size: 16, Mode: types.PredInter, Part: types.Part2NxN, MV: [2]types.MV{{X: -13, Y: 7}, {X: 4, Y: -200}}, Cbf: true, Cost: 1 << 40, Dist: -1},
			{X: 80, Y: 64, Size: 16, Mode: types.PredSkip, Merge: 3},
		}},
		{Index: 2},
	}
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	frames := sampleFrames()
	for _, f := range frames {
		if err := w.WriteFrame(f); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFrame(frames[0]); err == nil {
		t.Error("write after close succeeded")
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	for i, want := range frames {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if want.CUs == nil {
			want.CUs = []CU{}
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("frame %d:\n got %+v\nwant %+v", i, got, want)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("after last frame: %v", err)
	}
}

func TestBadHeader(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte("not zstd at all"))); err == nil {
		t.Error("garbage accepted")
	}
}

func TestTruncated(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf)
	w.WriteFrame(sampleFrames()[1])
	w.Close()

	// Re-compress a cut version of the payload so the zstd layer is intact.
	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := io.ReadAll(r.r)
	r.Close()

	var cut bytes.Buffer
	w2, _ := NewWriter(&cut)
	w2.enc.Write(raw[:len(raw)-3])
	w2.Close()
	r2, err := NewReader(&cut)
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()
	if _, err := r2.Next(); !errors.Is(err, ErrFormat) {
		t.Errorf("truncated frame: %v", err)
	}
}

func TestFromResult(t *testing.T) {
	cfg := &frame.Config{
		Width:      64,
		Height:     32,
		CTBSize:    32,
		MinCU:      8,
		QP:         30,
		Lambda:     40 << 8,
		SATDLambda: 40 << 8,
		Preset:     1,
		TileCols:   1,
	}
	src := types.NewPlane(64, 32, frame.RefPad)
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 7)
	}
	ws, err := frame.NewWorkers(1, dsp.Generic())
	if err != nil {
		t.Fatal(err)
	}
	res, err := frame.Encode(cfg, src, nil, ws)
	if err != nil {
		t.Fatal(err)
	}
	f := FromResult(5, 1, cfg, res)
	if f.Index != 5 || f.Instance != 1 || f.QP != 30 {
		t.Errorf("header %+v", f)
	}
	area := 0
	for _, cu := range f.CUs {
		area += cu.Size * cu.Size
		if cu.X+cu.Size > 64 || cu.Y+cu.Size > 32 {
			t.Errorf("CU at (%d,%d) size %d outside the picture", cu.X, cu.Y, cu.Size)
		}
	}
	if area != 64*32 {
		t.Errorf("CUs cover %d samples", area)
	}
}
