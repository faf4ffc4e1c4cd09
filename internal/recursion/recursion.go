// Package recursion walks the CU quad-tree of one CTB top-down and asks the
// mode decision engine for a decision at every leaf the pre-analysis pass
// left unsplit. Split decisions are taken from the tree; the controller
// itself compares no costs across depths.
package recursion

import (
	"fmt"

	"github.com/deepteams/hevcenc/internal/analysis"
	"github.com/deepteams/hevcenc/internal/cabac"
	"github.com/deepteams/hevcenc/internal/cutree"
	"github.com/deepteams/hevcenc/internal/modedec"
	"github.com/deepteams/hevcenc/internal/nbr"
	"github.com/deepteams/hevcenc/internal/sift"
	"github.com/deepteams/hevcenc/internal/types"
)

// State is the progress of one tree node.
type State uint8

const (
	Unvisited State = iota
	Split
	Leaf
	Decided
)

func (s State) String() string {
	switch s {
	case Split:
		return "split"
	case Leaf:
		return "leaf"
	case Decided:
		return "decided"
	default:
		return "unvisited"
	}
}

// Config holds the controller policy.
type Config struct {
	Preset int
	Lambda int64 // Q8, prices split flags
}

// CTB is everything the controller needs about the CTB being coded.
type CTB struct {
	Map   *nbr.Map
	Src   *types.Plane
	Ref   *types.Plane // nil for intra-only frames
	Slice types.SliceType
	Info  analysis.CTBInfo
	// Ctx is the running context state. Split flags and the winners of
	// every CU are coded into it.
	Ctx *cabac.Contexts
}

// CU is one committed leaf.
type CU struct {
	modedec.Result
	// Levels holds the quantised levels of every transform block, nil when
	// the CU has no residual.
	Levels []int16
}

// CTBResult is the final partition of a CTB in z-order.
type CTBResult struct {
	CUs       []CU
	SplitBits uint64 // Q15
	Bits      uint64 // Q15, split flags included
	Dist      int64
	Cost      int64
}

// Controller decides CTBs. It belongs to one worker.
type Controller struct {
	cfg    Config
	sifter *sift.Sifter
	eng    *modedec.Engine
	states []State
	est    cabac.Estimator

	tree *cutree.Tree
	ctb  *CTB
	nctx modedec.NbrContext
	res  CTBResult
	seq  uint16
}

// New returns a controller driving eng with candidates from sifter.
func New(cfg Config, sifter *sift.Sifter, eng *modedec.Engine) *Controller {
	return &Controller{cfg: cfg, sifter: sifter, eng: eng}
}

// States returns the node states of the last Run, indexed like the tree
// arena.
func (c *Controller) States() []State { return c.states }

// Run decides every CU of the CTB described by tree, which must have been
// analysed. The decisions are committed into ctb.Map as they are made.
func (c *Controller) Run(tree *cutree.Tree, ctb *CTB) (CTBResult, error) {
	if cap(c.states) < len(tree.Nodes) {
		c.states = make([]State, len(tree.Nodes))
	}
	c.states = c.states[:len(tree.Nodes)]
	clear(c.states)
	c.tree, c.ctb = tree, ctb
	c.res = CTBResult{}
	c.seq = 0
	c.nctx = modedec.NbrContext{Map: ctb.Map, Src: ctb.Src, Ref: ctb.Ref}
	if ctb.Slice == types.SliceI {
		c.nctx.Ref = nil
	}

	if err := c.visit(0, 0); err != nil {
		x, y := ctb.Map.Origin()
		return CTBResult{}, fmt.Errorf("recursion: CTB at (%d,%d): %w", x, y, err)
	}
	c.res.Bits += c.res.SplitBits
	c.res.Cost += modedec.RDCost(0, c.res.SplitBits, c.cfg.Lambda)
	return c.res, nil
}

func (c *Controller) visit(d, i int) error {
	idx := cutree.Index(d, i)
	n := &c.tree.Nodes[idx]
	if !n.Valid {
		return nil
	}
	split := c.split(n)
	if n.Inside && d < c.tree.MaxDepth {
		c.codeSplit(n, split)
	}
	if split {
		c.states[idx] = Split
		for k := 0; k < 4; k++ {
			if err := c.visit(d+1, i<<2|k); err != nil {
				return err
			}
		}
		c.states[idx] = Decided
		return nil
	}
	c.states[idx] = Leaf
	if err := c.decide(n); err != nil {
		return err
	}
	c.states[idx] = Decided
	return nil
}

// split applies the preset policy to the analysed decision. The fastest
// preset codes whole super-blocks and splits only where the CTB is clipped.
func (c *Controller) split(n *cutree.Node) bool {
	if n.Depth >= c.tree.MaxDepth {
		return false
	}
	if !n.Inside {
		return true
	}
	if c.cfg.Preset == 0 {
		return false
	}
	return n.Split
}

func (c *Controller) codeSplit(n *cutree.Node, split bool) {
	m := c.ctb.Map
	x4, y4 := n.X/4, n.Y/4
	inc := 0
	if info, ok := m.At(x4-1, y4); ok && int(info.Depth) > n.Depth {
		inc++
	}
	if info, ok := m.At(x4, y4-1); ok && int(info.Depth) > n.Depth {
		inc++
	}
	c.est.Reset(c.ctb.Ctx)
	c.est.SplitFlag(split, inc)
	*c.ctb.Ctx = c.est.Ctx
	c.res.SplitBits += c.est.Bits
}

func (c *Controller) decide(n *cutree.Node) error {
	x0, y0 := c.ctb.Map.Origin()
	cu := sift.CU{X: n.X, Y: n.Y, PX: x0 + n.X, PY: y0 + n.Y, Size: n.Size, Depth: n.Depth}

	var inter sift.InterList
	if c.nctx.Ref != nil {
		inter = c.sifter.Inter(cu, n, c.ctb.Map, c.ctb.Src, c.nctx.Ref)
	}
	intra := c.sifter.Intra(cu, n, c.ctb.Map, c.ctb.Slice)

	c.seq++
	c.nctx.Seq = c.seq
	c.nctx.Noisy = c.noisy(n)
	res, _, err := c.eng.Decide(cu, &inter, &intra, &c.nctx, c.ctb.Ctx)
	if err != nil {
		return err
	}
	out := CU{Result: res}
	if res.Cbf {
		out.Levels = append([]int16(nil), c.eng.BestLevels()...)
	}
	c.res.CUs = append(c.res.CUs, out)
	c.res.Bits += res.Bits
	c.res.Dist += res.Dist
	c.res.Cost += res.Cost
	return nil
}

// noisy reports whether any 8x8 block covered by n is noisy.
func (c *Controller) noisy(n *cutree.Node) bool {
	info := &c.ctb.Info
	for y := n.Y / 8; y < (n.Y+n.Size)/8; y++ {
		for x := n.X / 8; x < (n.X+n.Size)/8; x++ {
			if info.NoiseMap[y*8+x] {
				return true
			}
		}
	}
	return false
}
