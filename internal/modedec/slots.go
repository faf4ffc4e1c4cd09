package modedec

import (
	"github.com/deepteams/hevcenc/internal/sift"
	"github.com/deepteams/hevcenc/internal/types"
)

// MaxTUs is the largest number of transform blocks in one CU.
const MaxTUs = 4

// FinalParams is the RD state of one trial: what was tried, what it cost,
// and where its samples and levels live.
type FinalParams struct {
	Cost int64
	Dist int64
	Bits uint64 // Q15

	Mode       types.PredMode
	Part       types.PartMode
	Kind       sift.Kind      // inter only
	Class      sift.SizeClass // intra only
	IntraModes [4]uint8       // one per PU, NxN uses all four
	MergeIdx   int
	MV         [2]types.MV
	MVPIdx     [2]int

	PredSlot  int
	ReconSlot int

	TUSize int
	NumTU  int
	TUCbf  [MaxTUs]bool
	Cbf    bool
	// Levels holds NumTU blocks of TUSize*TUSize levels in z-order.
	Levels [64 * 64]int16

	// CtxSlot is the snapshot store slot holding the context state after
	// this trial.
	CtxSlot int
}

// Role names one of the two trial slots.
type Role uint8

const (
	Current Role = iota
	Best
)

func (r Role) String() string {
	if r == Best {
		return "best"
	}
	return "current"
}

// Slots is the ping-pong pair of trial states. A winning trial is adopted
// by swapping roles; the states themselves are never copied.
type Slots struct {
	p   [2]FinalParams
	cur uint8
}

// Reset makes slot 0 current and slot 1 best.
func (s *Slots) Reset() { s.cur = 0 }

// Index returns the array index playing role r.
func (s *Slots) Index(r Role) int {
	if r == Current {
		return int(s.cur)
	}
	return int(s.cur ^ 1)
}

// Get returns the slot playing role r.
func (s *Slots) Get(r Role) *FinalParams { return &s.p[s.Index(r)] }

// Swap exchanges the roles.
func (s *Slots) Swap() { s.cur ^= 1 }
