package analysis

import (
	"github.com/deepteams/hevcenc/internal/cutree"
	"github.com/deepteams/hevcenc/internal/types"
)

// motion runs an integer full search around seed and zero, then refines the
// best vector to quarter-sample precision. The best few integer vectors are
// kept as additional candidates.
func (a *Analyzer) motion(n *cutree.Node, ref *types.Plane, seed types.MV) {
	x, y := a.x0+n.X, a.y0+n.Y
	size := n.Size
	r := a.cfg.SearchRange
	n.NumME = 0

	// Keep the block and the 8-tap support inside the padded reference.
	loX, hiX := -ref.Pad+4-x, ref.Width+ref.Pad-size-5-x
	loY, hiY := -ref.Pad+4-y, ref.Height+ref.Pad-size-5-y
	src := a.src.Pix[a.src.Offset(x, y):]

	search := func(cx, cy int) {
		for my := max(cy-r, loY); my <= min(cy+r, hiY); my++ {
			for mx := max(cx-r, loX); mx <= min(cx+r, hiX); mx++ {
				mv := types.MV{X: int16(mx * 4), Y: int16(my * 4)}
				if contains(n, mv) {
					continue
				}
				off := ref.Offset(x+mx, y+my)
				sad := a.k.SAD(src, a.src.Stride, ref.Pix[off:], ref.Stride, size, size)
				insertME(n, mv, sad+a.mvCost(mv))
			}
		}
	}
	search(0, 0)
	if sx, sy := int(seed.X)>>2, int(seed.Y)>>2; max(abs(sx), abs(sy)) > r {
		search(sx, sy)
	}
	if n.NumME == 0 {
		return
	}

	best := n.ME[0]
	for _, step := range [2]int16{2, 1} {
		center := best.MV
		for dy := int16(-1); dy <= 1; dy++ {
			for dx := int16(-1); dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				mv := types.MV{X: center.X + dx*step, Y: center.Y + dy*step}
				a.k.MotionCompensate(ref, x, y, size, size, mv, a.pred[:], 64)
				sad := a.k.SAD(src, a.src.Stride, a.pred[:], 64, size, size) + a.mvCost(mv)
				if sad < best.SAD {
					best = cutree.MECand{MV: mv, SAD: sad}
				}
			}
		}
	}
	if !contains(n, best.MV) {
		insertME(n, best.MV, best.SAD)
	}
}

func (a *Analyzer) mvCost(mv types.MV) int {
	return a.cfg.SATDLambda * (mvBits(int(mv.X)) + mvBits(int(mv.Y))) >> 8
}

// mvBits approximates the exp-Golomb length of one MV component.
func mvBits(v int) int {
	v = abs(v)
	n := 1
	for v > 0 {
		v >>= 1
		n += 2
	}
	return n
}

func contains(n *cutree.Node, mv types.MV) bool {
	for i := 0; i < n.NumME; i++ {
		if n.ME[i].MV == mv {
			return true
		}
	}
	return false
}

func insertME(n *cutree.Node, mv types.MV, sad int) {
	pos := n.NumME
	for pos > 0 && n.ME[pos-1].SAD > sad {
		pos--
	}
	if pos >= cutree.MaxME {
		return
	}
	last := min(n.NumME, cutree.MaxME-1)
	copy(n.ME[pos+1:last+1], n.ME[pos:last])
	n.ME[pos] = cutree.MECand{MV: mv, SAD: sad}
	if n.NumME < cutree.MaxME {
		n.NumME++
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
