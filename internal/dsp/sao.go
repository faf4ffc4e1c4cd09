package dsp

import (
	"image"

	"github.com/deepteams/hevcenc/internal/types"
)

// SAO edge-offset classes.
const (
	SAOHorizontal = iota
	SAOVertical
	SAODiag135
	SAODiag45
	numSAOClasses
)

const saoMaxOffset = 7

var saoNeighbour = [numSAOClasses][2]image.Point{
	{{-1, 0}, {1, 0}},
	{{0, -1}, {0, 1}},
	{{-1, -1}, {1, 1}},
	{{1, -1}, {-1, 1}},
}

// SAOParams describes the edge offset chosen for one CTB. Enabled false means
// SAO is off for the CTB.
type SAOParams struct {
	Enabled bool
	Class   int
	Offsets [4]int
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// edgeCategory maps sign(c-a)+sign(c-b) to category 0..4 (0 = none).
var edgeCategory = [5]int{1, 2, 0, 3, 4}

func category(p *types.Plane, x, y int, class int) int {
	n := saoNeighbour[class]
	c := int(p.At(x, y))
	a := int(p.At(x+n[0].X, y+n[0].Y))
	b := int(p.At(x+n[1].X, y+n[1].Y))
	return edgeCategory[2+sign(c-a)+sign(c-b)]
}

// saoInside reports whether both neighbours of (x, y) for class lie inside
// valid.
func saoInside(valid image.Rectangle, x, y, class int) bool {
	n := saoNeighbour[class]
	return image.Pt(x+n[0].X, y+n[0].Y).In(valid) && image.Pt(x+n[1].X, y+n[1].Y).In(valid)
}

// EstimateSAO picks the edge-offset class minimising
// 256*delta_distortion + lambda*bits over block, reading deblocked samples
// from rec and the source from orig. valid bounds the neighbour reads
// (picture or tile). lambda is in Q8.
func EstimateSAO(orig, rec *types.Plane, block, valid image.Rectangle, lambda int) SAOParams {
	best := SAOParams{}
	var bestCost int64
	for class := 0; class < numSAOClasses; class++ {
		var sum, count [5]int64
		for y := block.Min.Y; y < block.Max.Y; y++ {
			for x := block.Min.X; x < block.Max.X; x++ {
				if !saoInside(valid, x, y, class) {
					continue
				}
				c := category(rec, x, y, class)
				if c == 0 {
					continue
				}
				sum[c] += int64(orig.At(x, y)) - int64(rec.At(x, y))
				count[c]++
			}
		}
		var p SAOParams
		p.Enabled, p.Class = true, class
		var dist int64
		bits := 2
		for c := 1; c <= 4; c++ {
			if count[c] == 0 {
				continue
			}
			off := roundDiv(sum[c], count[c])
			if c <= 2 {
				off = min(max(off, 0), saoMaxOffset)
			} else {
				off = min(max(off, -saoMaxOffset), 0)
			}
			p.Offsets[c-1] = int(off)
			dist += count[c]*off*off - 2*off*sum[c]
			bits += int(abs(int(off))) + 1
		}
		cost := 256*dist + int64(lambda*bits)
		if cost < bestCost {
			best, bestCost = p, cost
		}
	}
	return best
}

func roundDiv(a, b int64) int64 {
	if a >= 0 {
		return (a + b/2) / b
	}
	return -((-a + b/2) / b)
}

// ApplySAO writes block of src with the edge offsets applied into dst.
// Samples whose neighbours fall outside valid are copied unchanged.
func ApplySAO(src, dst *types.Plane, block, valid image.Rectangle, p SAOParams) {
	for y := block.Min.Y; y < block.Max.Y; y++ {
		so, do := src.Offset(block.Min.X, y), dst.Offset(block.Min.X, y)
		copy(dst.Pix[do:do+block.Dx()], src.Pix[so:so+block.Dx()])
		if !p.Enabled {
			continue
		}
		for x := block.Min.X; x < block.Max.X; x++ {
			if !saoInside(valid, x, y, p.Class) {
				continue
			}
			if c := category(src, x, y, p.Class); c != 0 {
				dst.Pix[dst.Offset(x, y)] = Clip8(int(src.At(x, y)) + p.Offsets[c-1])
			}
		}
	}
}
