// Package cutree holds the CU quad-tree of one CTB as a flat arena. Node
// (d, i) is the i-th node of depth d in z-order and lives at Base(d)+i;
// parents and children are found by index arithmetic.
package cutree

import "github.com/deepteams/hevcenc/internal/types"

// MaxDepth is the deepest level of a 64x64 CTB with 8x8 minimum CUs.
const MaxDepth = 3

// Capacity limits of the analysis data attached to a node.
const (
	MaxME    = 4
	MaxIntra = 8
)

// MECand is one motion estimation result for a node.
type MECand struct {
	MV  types.MV
	SAD int
}

// Node is one CU candidate of the quad-tree. Geometry is CTB-relative.
type Node struct {
	Depth int
	X, Y  int
	Size  int

	// Valid is false for nodes whose origin lies outside the picture.
	Valid bool
	// Inside is true when the whole node lies inside the picture.
	Inside bool
	// Split is the analysis decision. Nodes that are not Inside are always
	// split.
	Split bool

	ME    [MaxME]MECand
	NumME int

	IntraModes [MaxIntra]uint8 // best first
	IntraSATD  [MaxIntra]int
	NumIntra   int

	// Cost is the analysis estimate used for the split decision.
	Cost int64
}

// Base returns the arena index of the first node of depth d.
func Base(d int) int {
	return ((1 << (2 * d)) - 1) / 3
}

// Index returns the arena index of node (d, i).
func Index(d, i int) int { return Base(d) + i }

// Parent returns the arena index of the parent of node (d, i), d > 0.
func Parent(d, i int) int { return Index(d-1, i>>2) }

// Child returns the arena index of child k (0..3, z-order) of node (d, i).
func Child(d, i, k int) int { return Index(d+1, i<<2|k) }

// zPos converts a z-order index at depth d into a position in units of the
// node size.
func zPos(i, d int) (x, y int) {
	for b := 0; b < d; b++ {
		x |= (i >> (2 * b) & 1) << b
		y |= (i >> (2*b + 1) & 1) << b
	}
	return x, y
}

// Tree is the arena of one CTB.
type Tree struct {
	CTBSize  int
	MinCU    int
	MaxDepth int
	Nodes    []Node
}

// New allocates a tree for the given CTB and minimum CU sizes.
func New(ctbSize, minCU int) *Tree {
	depth := 0
	for ctbSize>>depth > minCU {
		depth++
	}
	return &Tree{
		CTBSize:  ctbSize,
		MinCU:    minCU,
		MaxDepth: depth,
		Nodes:    make([]Node, Base(depth+1)),
	}
}

// Reset lays the tree out for a CTB whose valid region is w x h samples and
// clears all analysis data.
func (t *Tree) Reset(w, h int) {
	for d := 0; d <= t.MaxDepth; d++ {
		size := t.CTBSize >> d
		for i := 0; i < 1<<(2*d); i++ {
			zx, zy := zPos(i, d)
			x, y := zx*size, zy*size
			inside := x+size <= w && y+size <= h
			t.Nodes[Index(d, i)] = Node{
				Depth:  d,
				X:      x,
				Y:      y,
				Size:   size,
				Valid:  x < w && y < h,
				Inside: inside,
				Split:  !inside && d < t.MaxDepth,
			}
		}
	}
}

// At returns node (d, i).
func (t *Tree) At(d, i int) *Node { return &t.Nodes[Index(d, i)] }

// Root returns the depth-0 node.
func (t *Tree) Root() *Node { return &t.Nodes[0] }
