// Package pool provides the two kinds of buffer reuse the encoder needs:
// bucketed sync.Pool instances for per-frame sample planes, and PredPool,
// the fixed-capacity per-worker pool of prediction/reconstruction slots used
// during CU mode decision.
package pool

import "sync"

// Size classes for plane buffers.
const (
	Size64K  = 64 << 10
	Size256K = 256 << 10
	Size1M   = 1 << 20
	Size4M   = 4 << 20
	Size16M  = 16 << 20
)

var sizes = [5]int{Size64K, Size256K, Size1M, Size4M, Size16M}

var pools [len(sizes)]sync.Pool

func init() {
	for i := range pools {
		sz := sizes[i]
		pools[i] = sync.Pool{
			New: func() any {
				b := make([]byte, sz)
				return &b
			},
		}
	}
}

// bucketIndex returns the pool index for a given size.
func bucketIndex(size int) int {
	for i, s := range sizes {
		if size <= s {
			return i
		}
	}
	return len(sizes) - 1
}

// Get returns a zeroed byte slice of the requested length. The caller
// should call Put when done.
func Get(size int) []byte {
	bp := pools[bucketIndex(size)].Get().(*[]byte)
	b := *bp
	if cap(b) < size {
		return make([]byte, size)
	}
	b = b[:size]
	clear(b)
	return b
}

// Put returns a slice obtained from Get. Slices below the smallest class
// are dropped.
func Put(b []byte) {
	c := cap(b)
	if c < Size64K {
		return
	}
	// A slice must land in a bucket whose class it can serve.
	idx := bucketIndex(c)
	if sizes[idx] > c {
		idx--
		if idx < 0 {
			return
		}
	}
	b = b[:c]
	pools[idx].Put(&b)
}
