package pool

import (
	"errors"
	"testing"

	"github.com/deepteams/hevcenc/internal/assert"
)

func TestNewPredPool_Capacity(t *testing.T) {
	tests := []struct {
		capacity int
		wantErr  bool
	}{
		{0, true},
		{-1, true},
		{1, false},
		{4, false},
		{32, false},
		{33, true},
	}
	for _, tt := range tests {
		p, err := NewPredPool(tt.capacity, 16)
		if tt.wantErr {
			if !errors.Is(err, ErrCapacity) {
				t.Errorf("NewPredPool(%d): err = %v, want ErrCapacity", tt.capacity, err)
			}
			continue
		}
		if err != nil || p.Capacity() != tt.capacity {
			t.Errorf("NewPredPool(%d) = %v, %v", tt.capacity, p, err)
		}
	}
}

// A fifth concurrent slot from a pool of four is refused and the data of the
// four outstanding slots is left alone.
func TestPredPool_ExhaustionIsRejected(t *testing.T) {
	p, err := NewPredPool(4, 64)
	if err != nil {
		t.Fatal(err)
	}
	p.BeginCU()
	var slots []int
	for i := 0; i < 4; i++ {
		s, err := p.Acquire()
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		buf := p.Buf(s)
		for j := range buf {
			buf[j] = uint8(s + 1)
		}
		slots = append(slots, s)
	}

	func() {
		if assert.Enabled {
			defer func() {
				if recover() == nil {
					t.Error("fifth Acquire did not assert")
				}
			}()
		}
		s, err := p.Acquire()
		if !errors.Is(err, ErrExhausted) || s != -1 {
			t.Errorf("fifth Acquire = %d, %v; want -1, ErrExhausted", s, err)
		}
	}()

	for _, s := range slots {
		for j, v := range p.Buf(s) {
			if v != uint8(s+1) {
				t.Fatalf("slot %d byte %d = %d, corrupted", s, j, v)
			}
		}
	}
	if p.InUse() != 4 {
		t.Errorf("InUse = %d, want 4", p.InUse())
	}
}

func TestPredPool_SlotsAreDistinct(t *testing.T) {
	p, _ := NewPredPool(32, 8)
	seen := map[int]bool{}
	for i := 0; i < 32; i++ {
		s, err := p.Acquire()
		if err != nil {
			t.Fatal(err)
		}
		if seen[s] {
			t.Fatalf("slot %d handed out twice", s)
		}
		seen[s] = true
	}
	p.Buf(0)[0] = 1
	if p.Buf(1)[0] != 0 {
		t.Error("slots share storage")
	}
}

func TestPredPool_Conservation(t *testing.T) {
	p, _ := NewPredPool(8, 64)
	for cu := 0; cu < 5; cu++ {
		p.BeginCU()
		if p.InUse() != 0 {
			t.Fatalf("CU %d starts with %d slots in use", cu, p.InUse())
		}
		var held []int
		for i := 0; i < 6; i++ {
			s, err := p.Acquire()
			if err != nil {
				t.Fatal(err)
			}
			held = append(held, s)
		}
		for _, s := range held[:4] {
			p.Release(s)
		}
		p.Promote(held[4])
		p.Promote(held[5])
		c := p.EndCU()
		if c != (Counters{Borrowed: 6, Returned: 4, Promoted: 2}) || !c.Balanced() {
			t.Errorf("CU %d counters = %+v", cu, c)
		}
		if p.InUse() != 2 {
			t.Errorf("CU %d: promoted slots not held, InUse = %d", cu, p.InUse())
		}
	}
}

func TestCounters_Unbalanced(t *testing.T) {
	if (Counters{Borrowed: 3, Returned: 1, Promoted: 1}).Balanced() {
		t.Error("leak reported as balanced")
	}
}

func BenchmarkPredPool_AcquireRelease(b *testing.B) {
	p, _ := NewPredPool(8, 64*64)
	for i := 0; i < b.N; i++ {
		s, _ := p.Acquire()
		p.Release(s)
	}
}
