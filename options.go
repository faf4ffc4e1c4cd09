package hevcenc

import (
	"fmt"
	"math"
	"runtime"

	"github.com/deepteams/hevcenc/internal/frame"
	"github.com/deepteams/hevcenc/internal/sched"
	"github.com/deepteams/hevcenc/internal/sift"
	"github.com/deepteams/hevcenc/internal/types"
)

// Preset selects the speed/quality trade-off of the CU decision.
type Preset int

const (
	// PresetFastest decides every CTB as a single CU at the largest size
	// that fits, without recursing over the quad-tree.
	PresetFastest Preset = iota
	// PresetFast recurses over the pre-analysis tree and skips the intra
	// search when a skip candidate wins on a quiet CU.
	PresetFast
	// PresetThorough recurses like PresetFast, keeps longer candidate lists
	// and always searches intra.
	PresetThorough
)

// String returns the preset name.
func (p Preset) String() string {
	switch p {
	case PresetFastest:
		return "fastest"
	case PresetFast:
		return "fast"
	case PresetThorough:
		return "thorough"
	}
	return fmt.Sprintf("Preset(%d)", int(p))
}

// Options configures an Encoder.
type Options struct {
	// Width and Height are the luma picture size in samples. Both must be
	// positive multiples of 8.
	Width, Height int

	// CTBSize is the coding tree block size: 16, 32 or 64.
	// Zero is treated as 64.
	CTBSize int

	// MinCUSize is the smallest CU size the recursion may reach: 8 or 16,
	// at most CTBSize. Zero is treated as 8.
	MinCUSize int

	// Preset selects the decision effort (default PresetFast).
	Preset Preset

	// QPs lists the quantizer (0-51) of every bitrate instance. Each
	// instance encodes the same pictures with its own reference chain; all
	// instances share the worker pool. Empty is treated as a single
	// instance at QP 32.
	QPs []int

	// IntraPeriod forces an I slice on every IntraPeriod-th picture.
	// Zero codes only the first picture as an I slice.
	IntraPeriod int

	// Threads is the number of workers. Zero or negative uses
	// runtime.GOMAXPROCS(0).
	Threads int

	// TileColumns splits the picture into this many uniform tile columns,
	// decided without reference to each other. Zero is treated as 1.
	TileColumns int

	// Spin makes workers poll with runtime.Gosched instead of blocking on a
	// condition variable while waiting for the row above.
	Spin bool

	// DisableZeroCbf stops evaluating every winning inter candidate a
	// second time with its residual dropped.
	DisableZeroCbf bool

	// FastMetric orders inter candidates by motion search SAD instead of
	// predicting every candidate and measuring SATD.
	FastMetric bool

	// DisableDeblock turns the deblocking filter off.
	DisableDeblock bool

	// DisableSAO turns sample adaptive offset off.
	DisableSAO bool
}

// DefaultOptions returns options for a 64x64 CTB, PresetFast encode at QP 32.
// Width and Height must still be set.
func DefaultOptions() *Options {
	return &Options{
		CTBSize:   64,
		MinCUSize: 8,
		Preset:    PresetFast,
		QPs:       []int{32},
	}
}

// resolve returns a copy of o with zero values replaced by defaults.
func (o *Options) resolve() Options {
	r := *o
	if r.CTBSize == 0 {
		r.CTBSize = 64
	}
	if r.MinCUSize == 0 {
		r.MinCUSize = 8
	}
	if len(r.QPs) == 0 {
		r.QPs = []int{32}
	} else {
		r.QPs = append([]int(nil), r.QPs...)
	}
	if r.Threads <= 0 {
		r.Threads = runtime.GOMAXPROCS(0)
	}
	if r.TileColumns == 0 {
		r.TileColumns = 1
	}
	return r
}

// Validate reports the first option out of range, or nil.
func (o *Options) Validate() error {
	r := o.resolve()
	if r.Preset < PresetFastest || r.Preset > PresetThorough {
		return fmt.Errorf("%w: preset %d", ErrInvalidOptions, r.Preset)
	}
	if r.IntraPeriod < 0 {
		return fmt.Errorf("%w: intra period %d", ErrInvalidOptions, r.IntraPeriod)
	}
	for i := range r.QPs {
		cfg := r.frameConfig(i, types.SliceI)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: instance %d: %w", ErrInvalidOptions, i, err)
		}
	}
	return nil
}

// frameConfig returns the frame configuration of instance i. o must be
// resolved.
func (o *Options) frameConfig(i int, slice types.SliceType) *frame.Config {
	qp := o.QPs[i]
	lambda, satd := LambdaForQP(qp)
	cfg := &frame.Config{
		Width:      o.Width,
		Height:     o.Height,
		CTBSize:    o.CTBSize,
		MinCU:      o.MinCUSize,
		QP:         qp,
		Lambda:     lambda,
		SATDLambda: satd,
		Slice:      slice,
		Preset:     int(o.Preset),
		Wait:       sched.WaitBlock,
		TileCols:   o.TileColumns,
		ZeroCbf:    !o.DisableZeroCbf,
		Deblock:    !o.DisableDeblock,
		SAO:        !o.DisableSAO,
		Metric:     sift.MetricSATD,
	}
	if o.Spin {
		cfg.Wait = sched.WaitSpin
	}
	if o.FastMetric {
		cfg.Metric = sift.MetricMESAD
	}
	return cfg
}

// LambdaForQP returns the Q8 Lagrange multipliers used at quantizer qp: the
// first weighs bits against squared error, the second bits against SATD or
// SAD. Out of range values are clamped to 0-51.
func LambdaForQP(qp int) (lambda int64, satd int) {
	qp = min(max(qp, 0), 51)
	l := 0.57 * math.Pow(2, float64(qp-12)/3)
	return int64(math.Round(l * 256)), int(math.Round(math.Sqrt(l) * 256))
}
