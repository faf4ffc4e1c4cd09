package sift

import (
	"errors"
	"testing"

	"github.com/deepteams/hevcenc/internal/assert"
	"github.com/deepteams/hevcenc/internal/cutree"
	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/nbr"
	"github.com/deepteams/hevcenc/internal/types"
)

// newMap returns a map positioned on CTB (1, 1) of a 256x256 picture with
// 64x64 CTBs, so every spatial neighbour can be made available.
func newMap() *nbr.Map {
	m := &nbr.Map{}
	m.StartRow(nbr.Geometry{CTBSize: 64, CTBY: 1, Width: 256, Height: 256, TileX1: 256}, nbr.NewBands(256))
	m.StartCTB(1)
	return m
}

func inter(mv types.MV) nbr.Info { return nbr.Info{MV: mv} }

func TestBuildMerge_Pruning(t *testing.T) {
	m := newMap()
	// CU of 16x16 at (16, 16): A1 (3,7), B1 (7,3), B0 (8,3), A0 (3,8), B2 (3,3).
	a := types.MV{X: 4, Y: 0}
	b := types.MV{X: -8, Y: 4}
	m.Set(0, 0, 4, 8, inter(a)) // covers A1, B2 and A0's column up to y4=7
	m.Set(4, 0, 4, 4, inter(b)) // covers B1
	m.Set(8, 0, 4, 4, inter(b)) // B0 equals B1
	ml := BuildMerge(m, 16, 16, 16)
	// A1 = a, B1 = b, B0 pruned against B1, A0 unavailable, B2 pruned
	// against A1.
	if ml.N != 2 || ml.MV[0] != a || ml.MV[1] != b {
		t.Fatalf("merge list = %+v", ml)
	}
	for i := ml.N; i < len(ml.MV); i++ {
		if !ml.MV[i].IsZero() {
			t.Errorf("fill %d = %+v, want zero", i, ml.MV[i])
		}
	}
}

func TestBuildMerge_SkipsIntra(t *testing.T) {
	m := newMap()
	m.Set(0, 0, 16, 16, nbr.Info{Intra: true, IntraMode: 5})
	m.Clear(4, 4, 4, 4)
	ml := BuildMerge(m, 16, 16, 16)
	if ml.N != 0 {
		t.Errorf("intra neighbours produced %d merge candidates", ml.N)
	}
}

func TestBuildMerge_TopBand(t *testing.T) {
	m := &nbr.Map{}
	bands := nbr.NewBands(256)
	above := types.MV{X: 12, Y: -4}
	for i := range bands.ForRow(0).Info {
		bands.ForRow(0).Info[i] = inter(above)
	}
	m.StartRow(nbr.Geometry{CTBSize: 64, CTBY: 1, Width: 256, Height: 256, TileX1: 256}, bands)
	m.StartCTB(0)
	ml := BuildMerge(m, 0, 0, 32)
	if ml.N != 1 || ml.MV[0] != above {
		t.Errorf("merge list = %+v, want one candidate from the top band", ml)
	}
}

func TestBuildMVP(t *testing.T) {
	m := newMap()
	a := types.MV{X: 4}
	m.Set(0, 0, 4, 8, inter(a))
	mvp := BuildMVP(m, 16, 16, 16)
	if mvp[0] != a || !mvp[1].IsZero() {
		t.Errorf("mvp = %+v", mvp)
	}
	if idx, _ := bestMVP(mvp, types.MV{X: 5}); idx != 0 {
		t.Errorf("bestMVP picked %d", idx)
	}
	if idx, _ := bestMVP(mvp, types.MV{X: -1}); idx != 1 {
		t.Errorf("bestMVP picked %d for a vector near zero", idx)
	}
}

func TestMPM(t *testing.T) {
	tests := []struct {
		name string
		a, b int // -1 marks an inter neighbour
		want [3]int
	}{
		{"both unavailable", -1, -1, [3]int{0, 1, 26}},
		{"equal angular", 10, 10, [3]int{10, 9, 11}},
		{"equal 2", 2, 2, [3]int{2, 33, 3}},
		{"equal 34", 34, 34, [3]int{34, 33, 3}},
		{"planar and dc", 0, 1, [3]int{0, 1, 26}},
		{"angular pair", 18, 26, [3]int{18, 26, 0}},
		{"planar and angular", 0, 26, [3]int{0, 26, 1}},
		{"dc and inter", 1, -1, [3]int{0, 1, 26}},
		{"angular and inter", 7, -1, [3]int{7, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMap()
			set := func(x4, y4, mode int) {
				if mode < 0 {
					m.Set(x4, y4, 1, 1, nbr.Info{})
					return
				}
				m.Set(x4, y4, 1, 1, nbr.Info{Intra: true, IntraMode: uint8(mode)})
			}
			set(1, 2, tt.a) // left of (2,2)
			set(2, 1, tt.b) // above (2,2)
			if got := MPM(m, 2, 2); got != tt.want {
				t.Errorf("MPM = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMPM_AboveCTBIsDC(t *testing.T) {
	bands := nbr.NewBands(256)
	for i := range bands.ForRow(0).Info {
		bands.ForRow(0).Info[i] = nbr.Info{Intra: true, IntraMode: 18}
	}
	m := &nbr.Map{}
	m.StartRow(nbr.Geometry{CTBSize: 64, CTBY: 1, Width: 256, Height: 256, TileX1: 256}, bands)
	m.StartCTB(0)
	if got := MPM(m, 0, 0); got != [3]int{0, 1, 26} {
		t.Errorf("MPM = %v, want the all-DC default", got)
	}
}

func planes(w, h int) (src, ref *types.Plane) {
	src = types.NewPlane(w, h, 32)
	ref = types.NewPlane(w, h, 32)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*5 + y*3 + x*y/7) & 0xFF)
			ref.Pix[ref.Offset(x, y)] = v
		}
	}
	ref.PadRows(0, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.Pix[src.Offset(x, y)] = ref.At(min(x+2, w-1), y)
		}
	}
	src.PadRows(0, h)
	return src, ref
}

func TestInter_OrderingAndMarks(t *testing.T) {
	src, ref := planes(256, 256)
	m := newMap()
	node := &cutree.Node{Size: 16, NumME: 2}
	node.ME[0] = cutree.MECand{MV: types.MV{X: 8}, SAD: 10}
	node.ME[1] = cutree.MECand{MV: types.MV{X: 4, Y: 4}, SAD: 900}
	for preset, want := range maxInterEval {
		s := New(dsp.Generic(), Config{Preset: preset, SATDLambda: 256})
		l := s.Inter(CU{X: 16, Y: 16, PX: 80, PY: 80, Size: 16, Depth: 2}, node, m, src, ref)
		if l.N == 0 || l.N > MaxInterCands {
			t.Fatalf("preset %d: N = %d", preset, l.N)
		}
		for i := 1; i < l.N; i++ {
			if l.Cands[i].Cost < l.Cands[i-1].Cost {
				t.Fatalf("preset %d: not ordered at %d", preset, i)
			}
		}
		if got := l.Evaluated(); got != min(want, l.N) {
			t.Errorf("preset %d: %d marked, want %d", preset, got, min(want, l.N))
		}
		// The exact vector has zero SATD and must lead.
		if c := l.Cands[0]; c.Kind != KindME || c.MV[0] != (types.MV{X: 8}) {
			t.Errorf("preset %d: first candidate %+v", preset, c)
		}
		var skip, mixed bool
		for i := 0; i < l.N; i++ {
			skip = skip || l.Cands[i].Kind == KindSkip
			mixed = mixed || l.Cands[i].Kind == KindMixed
		}
		if !skip {
			t.Errorf("preset %d: no skip candidate", preset)
		}
		if preset == 0 && mixed {
			t.Error("fastest preset produced mixed candidates")
		}
	}
}

func TestInter_MESADMetric(t *testing.T) {
	src, ref := planes(256, 256)
	node := &cutree.Node{Size: 16, NumME: 1}
	node.ME[0] = cutree.MECand{MV: types.MV{X: -100}, SAD: 0}
	s := New(dsp.Generic(), Config{Preset: 1, Metric: MetricMESAD})
	l := s.Inter(CU{X: 16, Y: 16, PX: 80, PY: 80, Size: 16}, node, newMap(), src, ref)
	// The reused SAD of zero wins even though the vector is wrong.
	if c := l.Cands[0]; c.Kind != KindME || c.Cost != 0 {
		t.Errorf("first candidate %+v", c)
	}
}

func TestIntra_Classes(t *testing.T) {
	node := &cutree.Node{NumIntra: 4}
	copy(node.IntraModes[:], []uint8{26, 10, 0, 1})
	tests := []struct {
		size    int
		allowed [NumClasses]bool
	}{
		{8, [NumClasses]bool{true, true, false}},
		{16, [NumClasses]bool{true, false, true}},
		{32, [NumClasses]bool{true, false, true}},
		{64, [NumClasses]bool{false, false, true}},
	}
	s := New(dsp.Generic(), Config{Preset: 1, MinCU: 8, MPM: NoMPMFilter{}})
	for _, tt := range tests {
		l := s.Intra(CU{Size: tt.size}, node, newMap(), types.SliceI)
		for ci := range l.Classes {
			if l.Classes[ci].Allowed != tt.allowed[ci] {
				t.Errorf("size %d class %v allowed = %v", tt.size, SizeClass(ci), l.Classes[ci].Allowed)
			}
		}
		c := &l.Classes[ClassDiv2TU]
		if tt.size == 64 && (c.N != 4 || !c.Cands[0].Eval || c.Cands[1].Eval) {
			t.Errorf("size 64 div2 list = %+v", c.Cands[:c.N])
		}
	}
	l := s.Intra(CU{Size: 16}, node, newMap(), types.SliceI)
	if got := l.Classes[ClassCUEqTU].Evaluated(); got != 3 {
		t.Errorf("cu=tu marked %d, want 3", got)
	}
}

func TestMPMPrefilter(t *testing.T) {
	mpm := [3]int{0, 1, 26}
	var c ClassList
	c.Add(18, ClassCUEqTU, true)
	c.Add(26, ClassCUEqTU, true)
	c.Add(10, ClassCUEqTU, true)

	slow := c
	MPMPrefilter{Preset: 2}.Filter(&slow, ClassCUEqTU, mpm, types.SliceP)
	if slow.N != 5 || !slow.Has(0) || !slow.Has(1) {
		t.Errorf("slow preset list = %+v", slow.Cands[:slow.N])
	}

	fast := c
	MPMPrefilter{Preset: 0}.Filter(&fast, ClassCUEqTU, mpm, types.SliceP)
	if !fast.Cands[0].Eval || !fast.Cands[1].Eval || fast.Cands[2].Eval {
		t.Errorf("fast preset marks = %+v", fast.Cands[:fast.N])
	}

	intraOnly := c
	MPMPrefilter{Preset: 0}.Filter(&intraOnly, ClassCUEqTU, mpm, types.SliceI)
	if intraOnly != c {
		t.Error("fast preset filtered an I slice")
	}
}

func TestCheck(t *testing.T) {
	var inter InterList
	var intra IntraList
	if assert.Enabled {
		defer func() {
			if recover() == nil {
				t.Error("Check did not assert")
			}
		}()
	}
	if err := Check(&inter, &intra); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("Check = %v, want ErrNoCandidates", err)
	}
}

func TestCheck_Passes(t *testing.T) {
	var inter InterList
	var intra IntraList
	intra.Classes[0].Allowed = true
	intra.Classes[0].Add(0, ClassCUEqTU, true)
	if err := Check(&inter, &intra); err != nil {
		t.Error(err)
	}
}
