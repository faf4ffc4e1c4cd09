// Package sched holds the synchronisation of the row-parallel encoder:
// monotonic progress counters per (CTB row, tile column), the shared job
// queue and the worker pool that drains it.
package sched

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
)

// WaitMode selects how a waiter blocks on a counter.
type WaitMode uint8

const (
	// WaitBlock parks the goroutine on a condition variable.
	WaitBlock WaitMode = iota
	// WaitSpin yields in a loop. It has lower wake-up latency and burns a
	// core while waiting.
	WaitSpin
)

func (m WaitMode) String() string {
	if m == WaitSpin {
		return "spin"
	}
	return "block"
}

// Done is the value every counter jumps to on Abort.
const Done = math.MaxInt32

// Counter is a monotonic progress value with blocking waits. Waiters take
// an atomic fast path and only lock when the value is not reached yet.
// Counters are padded to a cache line.
type Counter struct {
	v       atomic.Int32
	waiters atomic.Int32
	mu      sync.Mutex
	cond    *sync.Cond
	mode    WaitMode
	_       [39]byte
}

func (c *Counter) init(mode WaitMode) {
	c.mode = mode
	c.cond = sync.NewCond(&c.mu)
}

// Value returns the current progress.
func (c *Counter) Value() int { return int(c.v.Load()) }

// Advance raises the counter to v. Lower values are ignored, so the counter
// never decreases.
func (c *Counter) Advance(v int) {
	nv := int32(min(v, Done))
	for {
		old := c.v.Load()
		if nv <= old {
			return
		}
		if c.v.CompareAndSwap(old, nv) {
			break
		}
	}
	if c.waiters.Load() > 0 {
		c.mu.Lock()
		c.mu.Unlock()
		c.cond.Broadcast()
	}
}

// WaitAtLeast blocks until the counter reaches v.
func (c *Counter) WaitAtLeast(v int) {
	target := int32(min(v, Done))
	if c.v.Load() >= target {
		return
	}
	if c.mode == WaitSpin {
		for c.v.Load() < target {
			runtime.Gosched()
		}
		return
	}
	c.waiters.Add(1)
	c.mu.Lock()
	for c.v.Load() < target {
		c.cond.Wait()
	}
	c.mu.Unlock()
	c.waiters.Add(-1)
}

// Reset sets the counter back to zero. It must not race with waiters.
func (c *Counter) Reset() { c.v.Store(0) }
