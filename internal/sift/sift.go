// Package sift turns the raw pre-analysis results of a CU into the short,
// ordered candidate lists the mode decision engine evaluates in full.
package sift

import (
	"errors"

	"github.com/deepteams/hevcenc/internal/assert"
	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/types"
)

// ErrNoCandidates is returned when a CU ends up with nothing to evaluate.
var ErrNoCandidates = errors.New("sift: CU has no inter or intra candidates")

// Metric orders inter candidates before truncation.
type Metric uint8

const (
	// MetricSATD predicts every candidate and measures SATD.
	MetricSATD Metric = iota
	// MetricMESAD reuses motion search SAD where available and SAD
	// elsewhere.
	MetricMESAD
)

func (m Metric) String() string {
	if m == MetricMESAD {
		return "sad"
	}
	return "satd"
}

// CU is the geometry of the CU being sifted. X and Y are CTB-relative, PX
// and PY the picture position.
type CU struct {
	X, Y   int
	PX, PY int
	Size   int
	Depth  int
}

// Config holds the sifting policy.
type Config struct {
	Preset     int
	Metric     Metric
	SATDLambda int // Q8
	MinCU      int
	MPM        MPMFilter // nil selects MPMPrefilter
}

// maxInterEval and maxIntraEval bound the candidates marked for full RD
// evaluation, by preset.
var (
	maxInterEval = [3]int{2, 4, 6}
	maxIntraEval = [3]int{2, 3, 6}
)

// Sifter builds candidate lists. It holds per-worker scratch and is not safe
// for concurrent use.
type Sifter struct {
	k    dsp.Kernels
	cfg  Config
	pred [64 * 64]uint8
}

// New returns a sifter using kernels k.
func New(k dsp.Kernels, cfg Config) *Sifter {
	if cfg.MPM == nil {
		cfg.MPM = MPMPrefilter{Preset: cfg.Preset}
	}
	if cfg.MinCU == 0 {
		cfg.MinCU = 8
	}
	return &Sifter{k: k, cfg: cfg}
}

func (s *Sifter) preset() int { return min(max(s.cfg.Preset, 0), 2) }

// Check reports ErrNoCandidates when neither list has a candidate marked
// for evaluation.
func Check(inter *InterList, intra *IntraList) error {
	if inter.Evaluated() == 0 && intra.Evaluated() == 0 {
		assert.That(false, "sift: zero candidates")
		return ErrNoCandidates
	}
	return nil
}

func (s *Sifter) bitCost(bits int) int {
	return s.cfg.SATDLambda * bits >> 8
}

// blockCost measures a prediction in s.pred against the source.
func (s *Sifter) blockCost(src *types.Plane, px, py, w, h int) int {
	off := src.Offset(px, py)
	if s.cfg.Metric == MetricMESAD {
		return s.k.SAD(src.Pix[off:], src.Stride, s.pred[:], 64, w, h)
	}
	return s.k.SATD(src.Pix[off:], src.Stride, s.pred[:], 64, w, h)
}
