package sched

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"
)

func within(t *testing.T, d time.Duration, what string, f func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		f()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not finish within %v", what, d)
	}
}

func TestCounterSize(t *testing.T) {
	if s := unsafe.Sizeof(Counter{}); s != 64 {
		t.Errorf("Counter is %d bytes, want 64", s)
	}
}

func TestCounterMonotonic(t *testing.T) {
	m := NewManager(1, 1, WaitBlock)
	m.Advance(0, 0, 5)
	m.Advance(0, 0, 3)
	if got := m.Value(0, 0); got != 5 {
		t.Errorf("value after lower advance = %d, want 5", got)
	}
	m.Reset()
	if got := m.Value(0, 0); got != 0 {
		t.Errorf("value after reset = %d", got)
	}
}

func TestWaitUntilNoWait(t *testing.T) {
	m := NewManager(2, 1, WaitBlock)
	within(t, time.Second, "negative offset wait", func() {
		m.WaitUntil(0, 1000, -1, 0)
		m.WaitUntil(0, 1000, 0, -1)
	})
}

// Row 4 advancing its deblock counter to 6 CTBs releases a
// row 5 waiter for position 5 CTBs plus 2.
func TestAdvanceReleasesRowBelow(t *testing.T) {
	const ctb = 64
	for _, mode := range []WaitMode{WaitBlock, WaitSpin} {
		t.Run(mode.String(), func(t *testing.T) {
			fs := NewFrameSync(8, 1, mode)
			fs.Reset()
			released := make(chan struct{})
			go func() {
				fs.Deblock.WaitUntil(0, 5*ctb, 2, 4)
				close(released)
			}()
			fs.Deblock.Advance(4, 0, 5*ctb)
			select {
			case <-released:
				t.Fatal("released before the counter reached the target")
			case <-time.After(20 * time.Millisecond):
			}
			fs.Deblock.Advance(4, 0, 6*ctb)
			select {
			case <-released:
			case <-time.After(2 * time.Second):
				t.Fatal("waiter not released")
			}
		})
	}
}

func TestManyWaiters(t *testing.T) {
	m := NewManager(1, 1, WaitBlock)
	var wg sync.WaitGroup
	var woke atomic.Int32
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func(target int) {
			defer wg.Done()
			m.WaitUntil(0, target, 0, 0)
			woke.Add(1)
		}(i * 10)
	}
	within(t, 2*time.Second, "waiters", func() {
		for v := 0; v <= 160; v += 5 {
			m.Advance(0, 0, v)
		}
		wg.Wait()
	})
	if woke.Load() != 16 {
		t.Errorf("%d waiters woke", woke.Load())
	}
}

// TestLiveness drives a scripted wavefront: every row waits for the row
// above to cover its top-right CTB before advancing itself.
func TestLiveness(t *testing.T) {
	const rows, cols, ctb = 12, 9, 16
	for _, mode := range []WaitMode{WaitBlock, WaitSpin} {
		t.Run(mode.String(), func(t *testing.T) {
			fs := NewFrameSync(rows, 2, mode)
			q := NewJobQueue(1, rows, 2)
			var order [rows][2][]int
			within(t, 5*time.Second, "wavefront", func() {
				err := RunWorkers(4, q, func(_ int, j Job) error {
					for x := 0; x < cols; x++ {
						offset := 0
						if j.Row == 0 {
							offset = -1
						}
						fs.CU.WaitUntil(j.Tile, min((x+2)*ctb, cols*ctb), offset, j.Row-1)
						order[j.Row][j.Tile] = append(order[j.Row][j.Tile], fs.CU.Value(max(j.Row-1, 0), j.Tile))
						fs.CU.Advance(j.Row, j.Tile, (x+1)*ctb)
					}
					return nil
				}, fs.Abort)
				if err != nil {
					t.Error(err)
				}
			})
			for r := 1; r < rows; r++ {
				for tile := 0; tile < 2; tile++ {
					for x, seen := range order[r][tile] {
						if seen < min((x+2)*ctb, cols*ctb) {
							t.Fatalf("row %d tile %d CTB %d ran with row above at %d", r, tile, x, seen)
						}
					}
				}
			}
		})
	}
}

func TestJobQueueOrder(t *testing.T) {
	q := NewJobQueue(2, 3, 2)
	var got []Job
	for {
		j, ok := q.Next()
		if !ok {
			break
		}
		got = append(got, j)
	}
	if len(got) != q.Len() || q.Len() != 12 {
		t.Fatalf("%d jobs, want 12", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Row < got[i-1].Row {
			t.Errorf("job %d (%+v) goes back a row", i, got[i])
		}
	}
	if got[0] != (Job{}) || got[3] != (Job{Instance: 1, Row: 0, Tile: 1}) || got[4] != (Job{Row: 1}) {
		t.Errorf("unexpected order %+v", got[:5])
	}
	q.Reset()
	if j, ok := q.Next(); !ok || j != (Job{}) {
		t.Error("reset did not restart the queue")
	}
}

func TestRunWorkersError(t *testing.T) {
	fs := NewFrameSync(4, 1, WaitBlock)
	boom := errors.New("boom")
	within(t, 2*time.Second, "aborted frame", func() {
		err := RunWorkers(4, NewJobQueue(1, 4, 1), func(_ int, j Job) error {
			if j.Row == 1 {
				return boom
			}
			// Rows below the failing one would wait forever without Abort.
			fs.CU.WaitUntil(0, 64, 0, j.Row-1)
			fs.CU.Advance(j.Row, 0, 64)
			return nil
		}, fs.Abort)
		if !errors.Is(err, boom) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestRunWorkersSingle(t *testing.T) {
	var n int
	err := RunWorkers(0, NewJobQueue(3, 5, 1), func(w int, _ Job) error {
		if w != 0 {
			t.Errorf("worker %d ran", w)
		}
		n++
		return nil
	}, nil)
	if err != nil || n != 15 {
		t.Errorf("ran %d jobs, err %v", n, err)
	}
}

func BenchmarkCounterAdvance(b *testing.B) {
	m := NewManager(1, 1, WaitBlock)
	for i := 0; i < b.N; i++ {
		m.Advance(0, 0, i)
	}
}
