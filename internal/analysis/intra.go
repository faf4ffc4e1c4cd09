package analysis

import (
	"github.com/deepteams/hevcenc/internal/cutree"
	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/types"
)

// fastModes is the reduced mode set searched by the fastest preset.
var fastModes = []int{0, 1, 2, 6, 10, 14, 18, 22, 26, 30, 34}

var allModes = func() []int {
	m := make([]int, types.NumIntraModes)
	for i := range m {
		m[i] = i
	}
	return m
}()

// intra ranks intra modes for n by SATD against source-sample references.
// Nodes larger than the largest transform are scored per quadrant.
func (a *Analyzer) intra(n *cutree.Node) {
	modes := allModes
	if a.cfg.Preset == 0 {
		modes = fastModes
	}
	tu := min(n.Size, dsp.MaxTU)
	n.NumIntra = 0
	for _, mode := range modes {
		cost := 0
		for ty := 0; ty < n.Size; ty += tu {
			for tx := 0; tx < n.Size; tx += tu {
				x, y := a.x0+n.X+tx, a.y0+n.Y+ty
				a.sourceRef(x, y, tu)
				a.k.IntraPredict(mode, &a.ref, a.pred[:], 64, tu)
				off := a.src.Offset(x, y)
				cost += a.k.SATD(a.src.Pix[off:], a.src.Stride, a.pred[:], 64, tu, tu)
			}
		}
		bits := 5
		if mode <= types.DCMode {
			bits = 3
		}
		cost += a.cfg.SATDLambda * bits >> 8
		insertIntra(n, uint8(mode), cost)
	}
}

func insertIntra(n *cutree.Node, mode uint8, cost int) {
	pos := n.NumIntra
	for pos > 0 && n.IntraSATD[pos-1] > cost {
		pos--
	}
	if pos >= cutree.MaxIntra {
		return
	}
	last := min(n.NumIntra, cutree.MaxIntra-1)
	copy(n.IntraModes[pos+1:last+1], n.IntraModes[pos:last])
	copy(n.IntraSATD[pos+1:last+1], n.IntraSATD[pos:last])
	n.IntraModes[pos], n.IntraSATD[pos] = mode, cost
	if n.NumIntra < cutree.MaxIntra {
		n.NumIntra++
	}
}

// sourceRef fills a.ref with source samples around the n x n block at (x, y).
func (a *Analyzer) sourceRef(x, y, n int) {
	r := &a.ref
	r.Reset()
	p := a.src
	if y > 0 {
		row := p.Pix[p.Offset(0, y-1):]
		for u := 0; u < 2*n/4; u++ {
			if x+4*u >= min(p.Width, a.tileX1) {
				break
			}
			for j := 0; j < 4; j++ {
				r.Top[4*u+j] = row[x+4*u+j]
			}
			r.TopAvail |= 1 << u
		}
	}
	if x > a.tileX0 {
		for u := 0; u < 2*n/4; u++ {
			if y+4*u >= p.Height {
				break
			}
			for j := 0; j < 4; j++ {
				r.Left[4*u+j] = p.At(x-1, y+4*u+j)
			}
			r.LeftAvail |= 1 << u
		}
	}
	if x > a.tileX0 && y > 0 {
		r.Corner = p.At(x-1, y-1)
		r.CornerAvail = true
	}
	r.Substitute(n)
}
