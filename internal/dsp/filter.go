package dsp

import "github.com/deepteams/hevcenc/internal/types"

var betaTable = [52]int{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 20, 22, 24,
	26, 28, 30, 32, 34, 36, 38, 40, 42, 44, 46, 48, 50, 52, 54, 56,
	58, 60, 62, 64,
}

var tcTable = [54]int{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3,
	3, 4, 4, 4, 5, 5, 6, 6, 7, 8, 9, 10, 11, 13, 14, 16,
	18, 20, 22, 24,
}

// DeblockLuma filters one 4-sample segment of a luma edge. (x, y) is the
// first sample on the q side; vertical selects a vertical edge (filtering
// across columns). bs is the boundary strength (0 disables filtering).
func DeblockLuma(p *types.Plane, x, y int, vertical bool, bs, qp int) {
	if bs <= 0 {
		return
	}
	beta := betaTable[min(max(qp, 0), 51)]
	tc := tcTable[min(max(qp+2*(bs-1), 0), 53)]
	if tc == 0 || beta == 0 {
		return
	}
	// step walks across the edge, along walks down the segment.
	step, along := p.Stride, 1
	if vertical {
		step, along = 1, p.Stride
	}
	origin := p.Offset(x, y)
	s := p.Pix
	at := func(line, k int) int { return int(s[origin+line*along+k*step]) }

	dp0 := abs(at(0, -3) - 2*at(0, -2) + at(0, -1))
	dp3 := abs(at(3, -3) - 2*at(3, -2) + at(3, -1))
	dq0 := abs(at(0, 2) - 2*at(0, 1) + at(0, 0))
	dq3 := abs(at(3, 2) - 2*at(3, 1) + at(3, 0))
	d := dp0 + dq0 + dp3 + dq3
	if d >= beta {
		return
	}
	strong := func(line, dpq int) bool {
		return 2*dpq < beta>>2 &&
			abs(at(line, -4)-at(line, -1))+abs(at(line, 0)-at(line, 3)) < beta>>3 &&
			abs(at(line, -1)-at(line, 0)) < (5*tc+1)>>1
	}
	if strong(0, dp0+dq0) && strong(3, dp3+dq3) {
		for line := 0; line < 4; line++ {
			p3, p2, p1, p0 := at(line, -4), at(line, -3), at(line, -2), at(line, -1)
			q0, q1, q2, q3 := at(line, 0), at(line, 1), at(line, 2), at(line, 3)
			o := origin + line*along
			s[o-step] = clipTC((p2+2*p1+2*p0+2*q0+q1+4)>>3, p0, 2*tc)
			s[o-2*step] = clipTC((p2+p1+p0+q0+2)>>2, p1, 2*tc)
			s[o-3*step] = clipTC((2*p3+3*p2+p1+p0+q0+4)>>3, p2, 2*tc)
			s[o] = clipTC((p1+2*p0+2*q0+2*q1+q2+4)>>3, q0, 2*tc)
			s[o+step] = clipTC((p0+q0+q1+q2+2)>>2, q1, 2*tc)
			s[o+2*step] = clipTC((p0+q0+q1+3*q2+2*q3+4)>>3, q2, 2*tc)
		}
		return
	}
	sideThresh := (beta + beta>>1) >> 3
	filterP := dp0+dp3 < sideThresh
	filterQ := dq0+dq3 < sideThresh
	for line := 0; line < 4; line++ {
		p2, p1, p0 := at(line, -3), at(line, -2), at(line, -1)
		q0, q1, q2 := at(line, 0), at(line, 1), at(line, 2)
		delta := (9*(q0-p0) - 3*(q1-p1) + 8) >> 4
		if abs(delta) >= tc*10 {
			continue
		}
		delta = min(max(delta, -tc), tc)
		o := origin + line*along
		s[o-step] = Clip8(p0 + delta)
		s[o] = Clip8(q0 - delta)
		if filterP {
			dp := min(max((((p2+p0+1)>>1)-p1+delta)>>1, -(tc>>1)), tc>>1)
			s[o-2*step] = Clip8(p1 + dp)
		}
		if filterQ {
			dq := min(max((((q2+q0+1)>>1)-q1-delta)>>1, -(tc>>1)), tc>>1)
			s[o+step] = Clip8(q1 + dq)
		}
	}
}

func clipTC(v, ref, tc int) uint8 {
	return Clip8(min(max(v, ref-tc), ref+tc))
}
