package hevcenc

import (
	"fmt"

	"github.com/deepteams/hevcenc/internal/cabac"
	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/frame"
	"github.com/deepteams/hevcenc/internal/sched"
	"github.com/deepteams/hevcenc/internal/types"
)

// Re-exported decision types.
type (
	// PredMode is the prediction mode of a CU.
	PredMode = types.PredMode
	// PartMode is the prediction unit partitioning of a CU.
	PartMode = types.PartMode
	// MV is a quarter-sample motion vector.
	MV = types.MV
)

// Prediction modes.
const (
	PredIntra = types.PredIntra
	PredInter = types.PredInter
	PredSkip  = types.PredSkip
)

// Picture is one 8-bit luma picture.
type Picture struct {
	Width, Height int
	Y             []uint8
	// Stride is the distance between rows of Y. Zero means Width.
	Stride int
}

// CU is one committed coding unit in picture coordinates.
type CU struct {
	X, Y int
	Size int
	Mode PredMode
	Part PartMode
	// IntraModes holds the luma intra mode of each prediction unit.
	IntraModes [4]uint8
	// Merge is the merge candidate index of merged and skipped CUs.
	Merge int
	MV    [2]MV
	Cbf   bool
	Cost  int64
	Dist  int64
	Bits  float64
}

// Stats summarises one encoded frame.
type Stats struct {
	CTBs     int
	CUs      int
	IntraCUs int
	InterCUs int
	SkipCUs  int
	SAOCTBs  int // CTBs with SAO applied

	// SAD is measured between the source and the reconstruction before
	// in-loop filtering.
	SAD int64
	// Distortion is the squared error of the decided CUs.
	Distortion int64
	// Bits is the CABAC estimate of the coded size.
	Bits float64
	// Cost is the rate-distortion cost the decision minimised.
	Cost int64

	// PSNR and SSIM compare the final reconstruction with the source.
	PSNR float64
	SSIM float64
}

// FrameResult is the outcome of one picture for one bitrate instance.
type FrameResult struct {
	Index    int // picture number, from 0
	Instance int // index into Options.QPs
	QP       int
	Intra    bool // coded as an I slice
	// Recon is the luma reconstruction after deblocking and SAO, Width
	// samples per row. The encoder predicts the next picture of the same
	// instance from it and it must not be modified.
	Recon []uint8
	CUs   []CU
	Stats Stats

	cfg *frame.Config
	res *frame.Result
}

// instance is one bitrate instance and its reference chain.
type instance struct {
	ref *types.Plane // previous reconstruction
}

// Encoder encodes a sequence of pictures at one or more quantizers. It is
// not safe for concurrent use.
type Encoder struct {
	opts    Options
	k       dsp.Kernels
	workers []*frame.WorkerState
	inst    []instance
	n       int // pictures encoded
}

// NewEncoder returns an encoder for opts.
func NewEncoder(opts *Options) (*Encoder, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	r := opts.resolve()
	k := dsp.Select()
	ws, err := frame.NewWorkers(r.Threads, k)
	if err != nil {
		return nil, fmt.Errorf("hevcenc: creating workers: %w", err)
	}
	return &Encoder{
		opts:    r,
		k:       k,
		workers: ws,
		inst:    make([]instance, len(r.QPs)),
	}, nil
}

// Kernels returns the name of the pixel kernel set in use.
func (e *Encoder) Kernels() string { return e.k.Name() }

// Encode encodes pic once per bitrate instance and returns the results in
// instance order. Rows of all instances are spread over the same workers.
func (e *Encoder) Encode(pic *Picture) ([]FrameResult, error) {
	src, err := e.load(pic)
	if err != nil {
		return nil, err
	}

	frames := make([]*frame.Frame, len(e.inst))
	cfgs := make([]*frame.Config, len(e.inst))
	finish := func() {
		for _, f := range frames {
			if f != nil {
				f.Finish()
			}
		}
	}
	for i := range e.inst {
		cfgs[i] = e.opts.frameConfig(i, e.sliceType(i))
		frames[i], err = frame.New(cfgs[i], src, e.inst[i].ref)
		if err != nil {
			finish()
			return nil, fmt.Errorf("hevcenc: picture %d instance %d: %w", e.n, i, err)
		}
	}

	q := sched.NewJobQueue(len(frames), frames[0].Rows(), frames[0].Tiles())
	err = sched.RunWorkers(len(e.workers), q, func(w int, j sched.Job) error {
		return frames[j.Instance].EncodeRow(e.workers[w], j.Row, j.Tile)
	}, func() {
		for _, f := range frames {
			f.Abort()
		}
	})
	if err != nil {
		finish()
		return nil, fmt.Errorf("hevcenc: picture %d: %w", e.n, err)
	}

	out := make([]FrameResult, len(frames))
	for i, f := range frames {
		res := f.Finish()
		e.inst[i].ref = res.Recon
		out[i] = e.result(i, cfgs[i], src, res)
	}
	e.n++
	return out, nil
}

// sliceType returns the slice type of the next picture of instance i.
func (e *Encoder) sliceType(i int) types.SliceType {
	if e.inst[i].ref == nil {
		return types.SliceI
	}
	if p := e.opts.IntraPeriod; p > 0 && e.n%p == 0 {
		return types.SliceI
	}
	return types.SliceP
}

// load copies pic into a padded source plane.
func (e *Encoder) load(pic *Picture) (*types.Plane, error) {
	if pic == nil {
		return nil, ErrNilPicture
	}
	w, h := e.opts.Width, e.opts.Height
	if pic.Width != w || pic.Height != h {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrPictureSize, pic.Width, pic.Height, w, h)
	}
	stride := pic.Stride
	if stride == 0 {
		stride = w
	}
	if stride < w || len(pic.Y) < (h-1)*stride+w {
		return nil, fmt.Errorf("%w: %d samples with stride %d", ErrPictureSize, len(pic.Y), stride)
	}
	p := types.NewPlane(w, h, frame.RefPad)
	for y := 0; y < h; y++ {
		copy(p.Pix[p.Offset(0, y):], pic.Y[y*stride:y*stride+w])
	}
	p.PadRows(0, h)
	return p, nil
}

// result converts the frame result of instance i.
func (e *Encoder) result(i int, cfg *frame.Config, src *types.Plane, res *frame.Result) FrameResult {
	w, h := cfg.Width, cfg.Height
	r := FrameResult{
		Index:    e.n,
		Instance: i,
		QP:       cfg.QP,
		Intra:    cfg.Slice == types.SliceI,
		Recon:    make([]uint8, w*h),
		cfg:      cfg,
		res:      res,
	}
	rec := res.Recon
	for y := 0; y < h; y++ {
		copy(r.Recon[y*w:(y+1)*w], rec.Pix[rec.Offset(0, y):])
	}
	for c := range res.CTBs {
		ctb := &res.CTBs[c]
		x0, y0 := ctb.X*cfg.CTBSize, ctb.Y*cfg.CTBSize
		for j := range ctb.CUs {
			d := &ctb.CUs[j].Result
			r.CUs = append(r.CUs, CU{
				X:          x0 + d.X,
				Y:          y0 + d.Y,
				Size:       d.Size,
				Mode:       d.Mode,
				Part:       d.Part,
				IntraModes: d.Intra,
				Merge:      d.Merge,
				MV:         d.MV,
				Cbf:        d.Cbf,
				Cost:       d.Cost,
				Dist:       d.Dist,
				Bits:       float64(d.Bits) / cabac.BitScale,
			})
		}
	}
	s := &res.Stats
	so := src.Offset(0, 0)
	sse := e.k.SSE(src.Pix[so:], src.Stride, rec.Pix[rec.Offset(0, 0):], rec.Stride, w, h)
	r.Stats = Stats{
		CTBs:       s.CTBs,
		CUs:        s.CUs,
		IntraCUs:   s.Intra,
		InterCUs:   s.Inter,
		SkipCUs:    s.Skip,
		SAOCTBs:    s.SAOCTBs,
		SAD:        s.SAD,
		Distortion: s.Dist,
		Bits:       s.EstimatedBits(),
		Cost:       s.Cost,
		PSNR:       dsp.PSNR(sse, w*h),
		SSIM:       dsp.SSIM(src, rec),
	}
	return r
}
