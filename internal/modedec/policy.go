package modedec

import (
	"github.com/deepteams/hevcenc/internal/sift"
	"github.com/deepteams/hevcenc/internal/types"
)

// IntraGate decides whether intra candidates are evaluated after the inter
// candidates. Gating only trades compression efficiency for speed.
type IntraGate interface {
	SkipIntra(winner *FinalParams, noisy bool) bool
}

// SkipGate skips intra evaluation when the inter winner is a skip and the
// CTB is not noisy. The slowest preset never gates.
type SkipGate struct {
	Preset int
}

func (g SkipGate) SkipIntra(winner *FinalParams, noisy bool) bool {
	return g.Preset < 2 && !noisy && winner.Mode == types.PredSkip
}

// NoGate always evaluates intra candidates.
type NoGate struct{}

func (NoGate) SkipIntra(*FinalParams, bool) bool { return false }

// Event describes one evaluated trial.
type Event struct {
	Mode      types.PredMode
	Kind      sift.Kind
	Class     sift.SizeClass
	IntraMode int
	Cost      int64
	// Best is the best cost after this trial.
	Best int64
	// Swapped reports whether this trial became the best.
	Swapped bool
}

// Observer receives every evaluated trial. It is meant for tests and
// tracing and must not retain the engine.
type Observer func(Event)
