package sift

import (
	"github.com/deepteams/hevcenc/internal/cabac"
	"github.com/deepteams/hevcenc/internal/cutree"
	"github.com/deepteams/hevcenc/internal/nbr"
	"github.com/deepteams/hevcenc/internal/types"
)

// MaxInterCands is the capacity of an inter candidate list.
const MaxInterCands = 8

// Kind is the inter candidate variant.
type Kind uint8

const (
	KindSkip  Kind = iota // merge without residual
	KindMerge             // merge with residual
	KindME                // motion search vector coded as MVD
	KindMixed             // two PUs, each from the best merge or ME vector
)

func (k Kind) String() string {
	return [...]string{"skip", "merge", "me", "mixed"}[k]
}

// InterCand is one inter candidate.
type InterCand struct {
	Kind     Kind
	Part     types.PartMode
	MergeIdx int
	MV       [2]types.MV // one per PU
	MVPIdx   [2]int
	Eval     bool
	Cost     int // sifting metric, not RD cost
}

// MergeList is the spatial merge candidate list of a 2Nx2N CU.
type MergeList struct {
	MV [cabac.MaxMergeCands]types.MV
	N  int // candidates before zero fill
}

// InterList is the sifted inter candidate list of a CU.
type InterList struct {
	Cands [MaxInterCands]InterCand
	N     int
	Merge MergeList
	MVP   [2]types.MV
}

// Evaluated returns the number of candidates marked for evaluation.
func (l *InterList) Evaluated() int {
	n := 0
	for i := 0; i < l.N; i++ {
		if l.Cands[i].Eval {
			n++
		}
	}
	return n
}

// interMV returns the motion vector of an available inter neighbour.
func interMV(m *nbr.Map, x4, y4 int) (types.MV, bool) {
	info, ok := m.At(x4, y4)
	if !ok || info.Intra {
		return types.MV{}, false
	}
	return info.MV, true
}

// BuildMerge derives the spatial merge list of the CU at CTB-relative
// (x, y) from neighbours A1, B1, B0, A0 and B2, pruning duplicates the way
// the standard does and filling with zero vectors.
func BuildMerge(m *nbr.Map, x, y, size int) MergeList {
	var ml MergeList
	x4, y4, n4 := x/4, y/4, size/4
	a1, okA1 := interMV(m, x4-1, y4+n4-1)
	b1, okB1 := interMV(m, x4+n4-1, y4-1)
	b0, okB0 := interMV(m, x4+n4, y4-1)
	a0, okA0 := interMV(m, x4-1, y4+n4)
	b2, okB2 := interMV(m, x4-1, y4-1)

	add := func(mv types.MV) { ml.MV[ml.N] = mv; ml.N++ }
	if okA1 {
		add(a1)
	}
	if okB1 && !(okA1 && a1 == b1) {
		add(b1)
	}
	if okB0 && !(okB1 && b0 == b1) {
		add(b0)
	}
	if okA0 && !(okA1 && a0 == a1) {
		add(a0)
	}
	if ml.N < 4 && okB2 && !(okA1 && b2 == a1) && !(okB1 && b2 == b1) {
		add(b2)
	}
	for i := ml.N; i < cabac.MaxMergeCands; i++ {
		ml.MV[i] = types.MV{}
	}
	return ml
}

// BuildMVP derives the two AMVP predictors of the CU.
func BuildMVP(m *nbr.Map, x, y, size int) [2]types.MV {
	x4, y4, n4 := x/4, y/4, size/4
	var list [2]types.MV
	n := 0
	for _, p := range [][2]int{{x4 - 1, y4 + n4}, {x4 - 1, y4 + n4 - 1}} {
		if mv, ok := interMV(m, p[0], p[1]); ok {
			list[n] = mv
			n++
			break
		}
	}
	for _, p := range [][2]int{{x4 + n4, y4 - 1}, {x4 + n4 - 1, y4 - 1}, {x4 - 1, y4 - 1}} {
		if mv, ok := interMV(m, p[0], p[1]); ok {
			if n == 0 || list[0] != mv {
				list[n] = mv
				n++
			}
			break
		}
	}
	return list
}

// MVDBits estimates the bits of coding mv against predictor p.
func MVDBits(mv, p types.MV) int {
	return expGolomb(int(mv.X)-int(p.X)) + expGolomb(int(mv.Y)-int(p.Y))
}

func expGolomb(v int) int {
	if v < 0 {
		v = -v
	}
	n := 1
	for v > 0 {
		v >>= 1
		n += 2
	}
	return n
}

// bestMVP returns the cheaper predictor index for mv.
func bestMVP(mvp [2]types.MV, mv types.MV) (int, int) {
	b0, b1 := MVDBits(mv, mvp[0]), MVDBits(mv, mvp[1])
	if b1 < b0 {
		return 1, b1 + 1
	}
	return 0, b0 + 1
}

// Inter sifts the inter candidates of cu. node carries the motion search
// results; ref is the reference picture.
func (s *Sifter) Inter(cu CU, node *cutree.Node, m *nbr.Map, src, ref *types.Plane) InterList {
	var l InterList
	l.Merge = BuildMerge(m, cu.X, cu.Y, cu.Size)
	l.MVP = BuildMVP(m, cu.X, cu.Y, cu.Size)

	var all [16]InterCand
	n := 0
	push := func(c InterCand) {
		pos := n
		for pos > 0 && all[pos-1].Cost > c.Cost {
			pos--
		}
		copy(all[pos+1:n+1], all[pos:n])
		all[pos] = c
		n++
	}

	// Merge candidates; duplicated vectors are measured once.
	for i := 0; i < cabac.MaxMergeCands; i++ {
		mv := l.Merge.MV[i]
		dup := false
		for j := 0; j < i; j++ {
			if l.Merge.MV[j] == mv {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		c := s.measure(cu, src, ref, types.Part2Nx2N, [2]types.MV{mv, mv}) + s.bitCost(i+1)
		push(InterCand{Kind: KindMerge, MergeIdx: i, MV: [2]types.MV{mv, mv}, Cost: c})
	}
	// The cheapest merge also tried without residual.
	for i := 0; i < n; i++ {
		if all[i].Kind == KindMerge {
			c := all[i]
			c.Kind = KindSkip
			push(c)
			break
		}
	}

	// Motion search vectors.
	for i := 0; i < node.NumME; i++ {
		mv := node.ME[i].MV
		idx, bits := bestMVP(l.MVP, mv)
		var c int
		if s.cfg.Metric == MetricMESAD {
			c = node.ME[i].SAD
		} else {
			c = s.measure(cu, src, ref, types.Part2Nx2N, [2]types.MV{mv, mv})
		}
		push(InterCand{Kind: KindME, MV: [2]types.MV{mv, mv}, MVPIdx: [2]int{idx, idx}, Cost: c + s.bitCost(bits+2)})
	}

	// Mixed candidates per rectangular partition.
	if s.preset() > 0 {
		for _, part := range [2]types.PartMode{types.Part2NxN, types.PartNx2N} {
			if c, ok := s.mixed(cu, node, &l, src, ref, part); ok {
				push(c)
			}
		}
	}

	limit := maxInterEval[s.preset()]
	l.N = min(n, MaxInterCands)
	copy(l.Cands[:], all[:l.N])
	for i := 0; i < l.N; i++ {
		l.Cands[i].Eval = i < limit
	}
	return l
}

// mixed builds the candidate for part from the best merge or motion search
// vector of each PU.
func (s *Sifter) mixed(cu CU, node *cutree.Node, l *InterList, src, ref *types.Plane, part types.PartMode) (InterCand, bool) {
	var pool [cabac.MaxMergeCands + cutree.MaxME]types.MV
	np := 0
	for i := 0; i < cabac.MaxMergeCands; i++ {
		pool[np] = l.Merge.MV[i]
		np++
	}
	for i := 0; i < node.NumME; i++ {
		pool[np] = node.ME[i].MV
		np++
	}
	c := InterCand{Kind: KindMixed, Part: part}
	total := 0
	for pu := 0; pu < 2; pu++ {
		ox, oy, w, h := part.PURect(cu.Size, pu)
		best := -1
		for i := 0; i < np; i++ {
			mv := pool[i]
			s.k.MotionCompensate(ref, cu.PX+ox, cu.PY+oy, w, h, mv, s.pred[:], 64)
			_, bits := bestMVP(l.MVP, mv)
			cost := s.blockCost(src, cu.PX+ox, cu.PY+oy, w, h) + s.bitCost(bits)
			if best < 0 || cost < best {
				best = cost
				c.MV[pu] = mv
			}
		}
		c.MVPIdx[pu], _ = bestMVP(l.MVP, c.MV[pu])
		total += best
	}
	if c.MV[0] == c.MV[1] {
		return c, false
	}
	c.Cost = total + s.bitCost(3)
	return c, true
}

// measure predicts the whole CU with one vector per PU and returns the
// metric cost.
func (s *Sifter) measure(cu CU, src, ref *types.Plane, part types.PartMode, mv [2]types.MV) int {
	total := 0
	for pu := 0; pu < part.NumParts(); pu++ {
		ox, oy, w, h := part.PURect(cu.Size, pu)
		s.k.MotionCompensate(ref, cu.PX+ox, cu.PY+oy, w, h, mv[pu], s.pred[:], 64)
		total += s.blockCost(src, cu.PX+ox, cu.PY+oy, w, h)
	}
	return total
}
