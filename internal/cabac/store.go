package cabac

import "github.com/deepteams/hevcenc/internal/assert"

// Store keeps a fixed number of context snapshots, one per RD trial slot.
// Snapshots are copied in and out by value so trials cannot alias each
// other's state or the committed state.
type Store struct {
	slots []Contexts
}

// NewStore returns a store with n snapshot slots.
func NewStore(n int) *Store {
	return &Store{slots: make([]Contexts, n)}
}

// Len returns the number of slots.
func (s *Store) Len() int { return len(s.slots) }

// Save copies c into slot i.
func (s *Store) Save(i int, c *Contexts) {
	assert.That(i >= 0 && i < len(s.slots), "cabac: slot %d out of range", i)
	s.slots[i] = *c
}

// Load copies slot i into c.
func (s *Store) Load(i int, c *Contexts) {
	assert.That(i >= 0 && i < len(s.slots), "cabac: slot %d out of range", i)
	*c = s.slots[i]
}

// Snapshot returns a copy of slot i.
func (s *Store) Snapshot(i int) Contexts {
	return s.slots[i]
}
