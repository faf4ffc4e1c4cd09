// Package analysis is the pre-analysis pass run on every CTB before mode
// decision. It works on source samples only, so it never waits on other
// rows: it ranks intra modes by SATD, runs a small-window motion search
// against the reference picture, flags noisy 8x8 blocks and decides the CU
// quad-tree split bottom-up.
package analysis

import (
	"math"

	"github.com/deepteams/hevcenc/internal/cutree"
	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/types"
)

// Config controls the analysis effort.
type Config struct {
	Preset int
	// SATDLambda weighs estimated side-information bits against SATD/SAD,
	// in Q8.
	SATDLambda int
	// SearchRange is the integer motion search range in samples. Zero
	// selects a preset-dependent default.
	SearchRange int
	// NoiseVariance is the per-8x8 variance above which a block is noisy.
	NoiseVariance int
}

// DefaultNoiseVariance is used when Config.NoiseVariance is zero.
const DefaultNoiseVariance = 400

// CTBInfo is the per-CTB output besides the tree.
type CTBInfo struct {
	Noisy    bool
	NoiseMap [64]bool // 8x8 blocks in raster order, stride 8
}

// Analyzer holds per-worker scratch for the pass.
type Analyzer struct {
	k    dsp.Kernels
	cfg  Config
	ref  dsp.IntraRef
	pred [64 * 64]uint8
	src  *types.Plane
	x0   int
	y0   int

	// Intra references do not cross tile columns.
	tileX0, tileX1 int
}

// New returns an analyzer using kernels k.
func New(k dsp.Kernels, cfg Config) *Analyzer {
	if cfg.SearchRange == 0 {
		cfg.SearchRange = [...]int{4, 8, 16}[min(max(cfg.Preset, 0), 2)]
	}
	if cfg.NoiseVariance == 0 {
		cfg.NoiseVariance = DefaultNoiseVariance
	}
	return &Analyzer{k: k, cfg: cfg, tileX1: math.MaxInt}
}

// SetTile limits intra references to luma columns [x0, x1).
func (a *Analyzer) SetTile(x0, x1 int) {
	a.tileX0, a.tileX1 = x0, x1
}

// Run analyses the CTB whose top-left luma sample is (x0, y0). tree must
// already be Reset to the CTB's valid region. ref is nil for intra-only
// frames.
func (a *Analyzer) Run(tree *cutree.Tree, src, ref *types.Plane, x0, y0 int) CTBInfo {
	a.src, a.x0, a.y0 = src, x0, y0
	info := a.noise(tree)

	for d := 0; d <= tree.MaxDepth; d++ {
		for i := 0; i < 1<<(2*d); i++ {
			n := tree.At(d, i)
			if !n.Inside {
				continue
			}
			a.intra(n)
			if ref != nil {
				var seed types.MV
				if d > 0 {
					if p := &tree.Nodes[cutree.Parent(d, i)]; p.NumME > 0 {
						seed = p.ME[0].MV
					}
				}
				a.motion(n, ref, seed)
			}
		}
	}
	a.split(tree, 0, 0)
	return info
}

func (a *Analyzer) noise(tree *cutree.Tree) CTBInfo {
	var info CTBInfo
	valid, noisy := 0, 0
	for by := 0; by < tree.CTBSize/8; by++ {
		for bx := 0; bx < tree.CTBSize/8; bx++ {
			x, y := a.x0+bx*8, a.y0+by*8
			if x+8 > a.src.Width || y+8 > a.src.Height {
				continue
			}
			valid++
			if variance8(a.src, x, y) > a.cfg.NoiseVariance {
				info.NoiseMap[by*8+bx] = true
				noisy++
			}
		}
	}
	info.Noisy = valid > 0 && 2*noisy >= valid
	return info
}

func variance8(p *types.Plane, x, y int) int {
	sum, sq := 0, 0
	for j := 0; j < 8; j++ {
		row := p.Pix[p.Offset(x, y+j):]
		for i := 0; i < 8; i++ {
			v := int(row[i])
			sum += v
			sq += v * v
		}
	}
	return (sq - sum*sum/64) / 64
}

// split decides splits bottom-up and leaves the cheaper of the node and its
// children in Cost.
func (a *Analyzer) split(tree *cutree.Tree, d, i int) int64 {
	n := tree.At(d, i)
	if !n.Valid {
		return 0
	}
	own := int64(-1)
	if n.Inside {
		own = nodeCost(n)
	}
	if d == tree.MaxDepth {
		n.Cost = own
		return own
	}
	var children int64
	for k := 0; k < 4; k++ {
		children += a.split(tree, d+1, i<<2|k)
	}
	switch {
	case !n.Inside:
		n.Split = true
		n.Cost = children
	case a.cfg.Preset == 0:
		n.Split = false
		n.Cost = own
	default:
		// Four split flags and the extra CU headers.
		children += int64(a.cfg.SATDLambda) * 4 >> 8
		n.Split = children < own
		n.Cost = min(own, children)
	}
	return n.Cost
}

func nodeCost(n *cutree.Node) int64 {
	c := int64(n.IntraSATD[0])
	if n.NumME > 0 && int64(n.ME[0].SAD) < c {
		c = int64(n.ME[0].SAD)
	}
	return c
}
