package frame

import (
	"image"

	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/nbr"
	"github.com/deepteams/hevcenc/internal/types"
)

// edges holds the boundary strengths of one CTB. v[i][s] is the vertical
// edge at column 8i, segment of rows [4s, 4s+4); h[i][s] the horizontal
// edge at row 8i, segment of columns [4s, 4s+4).
type edges struct {
	v [8][16]uint8
	h [8][16]uint8
}

// strength returns the boundary strength between the 4x4 blocks p and q.
// border is true when the edge is a CU boundary by position; pos is the
// CTB-relative coordinate of the edge.
func strength(p, q nbr.Info, border bool, pos int) uint8 {
	tu := border || p.CU != q.CU || pos&(1<<q.TULog2-1) == 0
	pu := p.MV != q.MV || p.RefIdx != q.RefIdx
	switch {
	case !tu && !pu:
		return 0
	case p.Intra || q.Intra:
		return 2
	case tu && (p.Cbf || q.Cbf):
		return 1
	case p.RefIdx != q.RefIdx:
		return 1
	case abs(int(p.MV.X)-int(q.MV.X)) >= 4 || abs(int(p.MV.Y)-int(q.MV.Y)) >= 4:
		return 1
	}
	return 0
}

// strengths derives the boundary strengths of the CTB just decided in m.
// It must run before FinishCTB replaces the left band. Edges on the picture
// border and on tile column boundaries are not filtered.
func strengths(m *nbr.Map, e *edges, cw, ch int) {
	*e = edges{}
	for ex := 0; ex < cw; ex += 8 {
		for s := 0; s < ch/4; s++ {
			p, okp := m.At(ex/4-1, s)
			q, okq := m.At(ex/4, s)
			if okp && okq {
				e.v[ex/8][s] = strength(p, q, ex == 0, ex)
			}
		}
	}
	for ey := 0; ey < ch; ey += 8 {
		for s := 0; s < cw/4; s++ {
			p, okp := m.At(s, ey/4-1)
			q, okq := m.At(s, ey/4)
			if okp && okq {
				e.h[ey/8][s] = strength(p, q, ey == 0, ey)
			}
		}
	}
}

// deblockVertical filters the vertical edges of the CTB at (px, py).
func deblockVertical(p *types.Plane, e *edges, px, py, cw, ch, qp int) {
	for ex := 0; ex < cw; ex += 8 {
		for s := 0; s < ch/4; s++ {
			dsp.DeblockLuma(p, px+ex, py+4*s, true, int(e.v[ex/8][s]), qp)
		}
	}
}

// deblockHorizontal filters the horizontal edges of the CTB at (px, py).
// The vertical edges of the CTB and of its right neighbour must already be
// filtered.
func deblockHorizontal(p *types.Plane, e *edges, px, py, cw, ch, qp int) {
	for ey := 0; ey < ch; ey += 8 {
		for s := 0; s < cw/4; s++ {
			dsp.DeblockLuma(p, px+4*s, py+ey, false, int(e.h[ey/8][s]), qp)
		}
	}
}

// sao applies sample adaptive offset to CTB (cx, cy) of tile column t,
// reading the deblocked picture and writing the output picture.
func (f *Frame) sao(cx, cy, t int) {
	cfg := f.cfg
	ctb := cfg.CTBSize
	lx0, lx1 := cfg.tileLuma(t)
	block := image.Rect(cx*ctb, cy*ctb, min((cx+1)*ctb, cfg.Width), min((cy+1)*ctb, cfg.Height))
	valid := image.Rect(lx0, 0, lx1, cfg.Height)

	// SAO rows complete top to bottom.
	f.st.sync.SAO.WaitUntil(t, block.Max.X, waitOffset(cy), cy-1)
	var p dsp.SAOParams
	if cfg.SAO {
		p = dsp.EstimateSAO(f.src, f.recon, block, valid, int(cfg.Lambda))
	}
	dsp.ApplySAO(f.recon, f.out, block, valid, p)
	f.ctbs[cy*cfg.CTBCols()+cx].SAO = p
	f.st.sync.SAO.Advance(cy, t, block.Max.X)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
