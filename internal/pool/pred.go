package pool

import (
	"errors"
	"math/bits"

	"github.com/deepteams/hevcenc/internal/assert"
)

// MaxSlots is the largest PredPool capacity; the used set is a uint32.
const MaxSlots = 32

var (
	// ErrCapacity is returned by NewPredPool for a capacity outside 1..32.
	ErrCapacity = errors.New("pool: prediction pool capacity must be 1..32")
	// ErrExhausted is returned by Acquire when every slot is in use.
	ErrExhausted = errors.New("pool: prediction pool exhausted")
)

// PredPool is a fixed set of equally sized scratch buffers tracked by a used
// bitmask. It belongs to one worker and is not safe for concurrent use.
//
// Slots borrowed while a CU is decided must be released before the CU ends,
// except slots promoted into the committed result; those stay in use until
// the next BeginCU.
type PredPool struct {
	bufs     [][]uint8
	used     uint32
	promoted uint32

	borrowedN int
	returnedN int
	promotedN int
}

// Counters are the per-CU slot accounting figures.
type Counters struct {
	Borrowed, Returned, Promoted int
}

// Balanced reports whether every borrowed slot was returned or promoted.
func (c Counters) Balanced() bool {
	return c.Borrowed-c.Returned-c.Promoted == 0
}

// NewPredPool allocates capacity slots of slotSize bytes each.
func NewPredPool(capacity, slotSize int) (*PredPool, error) {
	if capacity < 1 || capacity > MaxSlots {
		return nil, ErrCapacity
	}
	p := &PredPool{bufs: make([][]uint8, capacity)}
	backing := make([]uint8, capacity*slotSize)
	for i := range p.bufs {
		p.bufs[i] = backing[i*slotSize : (i+1)*slotSize : (i+1)*slotSize]
	}
	return p, nil
}

// Capacity returns the number of slots.
func (p *PredPool) Capacity() int { return len(p.bufs) }

// InUse returns the number of slots currently handed out.
func (p *PredPool) InUse() int { return bits.OnesCount32(p.used) }

// Acquire hands out a free slot. Running out of slots means the caller asked
// for more concurrent slots than the pool was sized for.
func (p *PredPool) Acquire() (int, error) {
	free := ^p.used
	if len(p.bufs) < MaxSlots {
		free &= 1<<len(p.bufs) - 1
	}
	if free == 0 {
		assert.That(false, "pool: all %d prediction slots in use", len(p.bufs))
		return -1, ErrExhausted
	}
	slot := bits.TrailingZeros32(free)
	p.used |= 1 << slot
	p.borrowedN++
	return slot, nil
}

// Release returns a borrowed slot.
func (p *PredPool) Release(slot int) {
	if !p.valid(slot) {
		return
	}
	p.used &^= 1 << slot
	p.returnedN++
}

// Promote keeps a borrowed slot alive past the end of the CU.
func (p *PredPool) Promote(slot int) {
	if !p.valid(slot) {
		return
	}
	p.promoted |= 1 << slot
	p.promotedN++
}

func (p *PredPool) valid(slot int) bool {
	ok := slot >= 0 && slot < len(p.bufs) && p.used&(1<<slot) != 0 && p.promoted&(1<<slot) == 0
	assert.That(ok, "pool: slot %d is not borrowed", slot)
	return ok
}

// BeginCU frees the slots promoted by the previous CU and zeroes the
// counters.
func (p *PredPool) BeginCU() {
	p.used &^= p.promoted
	p.promoted = 0
	p.borrowedN, p.returnedN, p.promotedN = 0, 0, 0
}

// EndCU returns the counters of the CU that just finished.
func (p *PredPool) EndCU() Counters {
	c := p.Counters()
	assert.That(c.Balanced(), "pool: CU leaked slots: %+v", c)
	assert.That(p.used == p.promoted, "pool: used %#x, promoted %#x", p.used, p.promoted)
	return c
}

// Counters returns the counters of the current CU.
func (p *PredPool) Counters() Counters {
	return Counters{Borrowed: p.borrowedN, Returned: p.returnedN, Promoted: p.promotedN}
}

// Buf returns the storage of a slot.
func (p *PredPool) Buf(slot int) []uint8 { return p.bufs[slot] }
