package sched

import (
	"sync"
	"sync/atomic"
)

// Job is one CTB row of one tile column of one bitrate instance.
type Job struct {
	Instance int
	Row      int
	Tile     int
}

// JobSource hands out jobs until it runs dry.
type JobSource interface {
	Next() (Job, bool)
}

// JobQueue hands out the jobs of a frame row by row. Within a row every
// instance and tile column comes before the next row, so a job only ever
// waits on jobs that were claimed before it.
type JobQueue struct {
	instances, rows, tiles int
	next                   atomic.Int32
}

// NewJobQueue returns a queue over instances x rows x tiles jobs.
func NewJobQueue(instances, rows, tiles int) *JobQueue {
	return &JobQueue{instances: instances, rows: rows, tiles: tiles}
}

// Len returns the total number of jobs.
func (q *JobQueue) Len() int { return q.instances * q.rows * q.tiles }

// Next claims the next job.
func (q *JobQueue) Next() (Job, bool) {
	i := int(q.next.Add(1) - 1)
	if i >= q.Len() {
		return Job{}, false
	}
	perRow := q.instances * q.tiles
	return Job{
		Row:      i / perRow,
		Instance: i % perRow / q.tiles,
		Tile:     i % q.tiles,
	}, true
}

// Reset makes every job available again.
func (q *JobQueue) Reset() { q.next.Store(0) }

// RunWorkers drains src with n goroutines. fn runs with the worker index,
// so callers can keep per-worker state in a slice. The first error is
// returned once every worker has stopped; onErr, when not nil, runs once on
// that first error so blocked workers can be released.
func RunWorkers(n int, src JobSource, fn func(worker int, j Job) error, onErr func()) error {
	n = max(n, 1)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		failed   atomic.Bool
	)
	for w := 0; w < n; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for !failed.Load() {
				j, ok := src.Next()
				if !ok {
					return
				}
				if err := fn(w, j); err != nil {
					once.Do(func() {
						firstErr = err
						failed.Store(true)
						if onErr != nil {
							onErr()
						}
					})
					return
				}
			}
		}(w)
	}
	wg.Wait()
	return firstErr
}
