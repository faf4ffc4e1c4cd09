package modedec

import (
	"errors"
	"math"
	"testing"

	"github.com/deepteams/hevcenc/internal/assert"
	"github.com/deepteams/hevcenc/internal/cabac"
	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/nbr"
	"github.com/deepteams/hevcenc/internal/pool"
	"github.com/deepteams/hevcenc/internal/sift"
	"github.com/deepteams/hevcenc/internal/types"
)

// scripted kernels predict constant blocks and report a fixed distortion
// per predictor, so trial costs are known in advance.
type scripted struct {
	dsp.Kernels
	interDist int64
	intraDist int64
}

const (
	interMark = 10
	intraMark = 20
)

func (s scripted) MotionCompensate(_ *types.Plane, _, _, w, h int, _ types.MV, dst []uint8, stride int) {
	fill(dst, stride, w, h, interMark)
}

func (s scripted) IntraPredict(_ int, _ *dsp.IntraRef, dst []uint8, stride, n int) {
	fill(dst, stride, n, n, intraMark)
}

func (s scripted) Quantize(_ []int32, levels []int16, n, _ int, _ bool) int {
	clear(levels[:n*n])
	return 0
}

func (s scripted) SSE(_ []uint8, _ int, b []uint8, _ int, _, _ int) int64 {
	if b[0] == interMark {
		return s.interDist
	}
	return s.intraDist
}

func fill(dst []uint8, stride, w, h int, v uint8) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst[y*stride+x] = v
		}
	}
}

type fixture struct {
	eng  *Engine
	pool *pool.PredPool
	m    *nbr.Map
	ctx  *NbrContext
	init cabac.Contexts
}

func newFixture(t *testing.T, k dsp.Kernels, p Params, cfg Config) *fixture {
	t.Helper()
	pl, err := pool.NewPredPool(8, SlotSize)
	if err != nil {
		t.Fatal(err)
	}
	m := &nbr.Map{}
	m.StartRow(nbr.Geometry{CTBSize: 64, Width: 128, Height: 64, TileX1: 128}, nbr.NewBands(128))
	m.StartCTB(0)
	src, ref := texture(128, 64)
	f := &fixture{
		eng:  NewEngine(k, pl, cfg),
		pool: pl,
		m:    m,
		ctx:  &NbrContext{Map: m, Src: src, Ref: ref, Seq: 1},
	}
	if p.Slice == types.SliceI {
		f.ctx.Ref = nil
	}
	f.eng.SetParams(p)
	f.init.Init(p.Slice, p.QP)
	return f
}

// texture returns a source picture and a reference equal to it shifted two
// samples to the right.
func texture(w, h int) (src, ref *types.Plane) {
	src = types.NewPlane(w, h, 16)
	ref = types.NewPlane(w, h, 16)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.Pix[src.Offset(x, y)] = uint8((x*7 + y*13 + (x*y)>>3) & 0xFF)
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ref.Pix[ref.Offset(x, y)] = src.At(max(x-2, 0), y)
		}
	}
	src.PadRows(0, h)
	ref.PadRows(0, h)
	return src, ref
}

func interList(cands ...sift.InterCand) *sift.InterList {
	l := &sift.InterList{}
	for _, c := range cands {
		c.Eval = true
		l.Cands[l.N] = c
		l.N++
	}
	return l
}

func intraList(class sift.SizeClass, modes ...int) *sift.IntraList {
	l := &sift.IntraList{MPM: [3]int{0, 1, 26}}
	c := &l.Classes[class]
	c.Allowed = true
	for _, m := range modes {
		c.Add(m, class, true)
	}
	return l
}

var cu16 = sift.CU{X: 16, Y: 16, PX: 16, PY: 16, Size: 16, Depth: 2}

func TestDecide_IntraBeatsInter(t *testing.T) {
	k := scripted{Kernels: dsp.Generic(), interDist: 120, intraDist: 95}
	f := newFixture(t, k, Params{QP: 30, Slice: types.SliceP, ZeroCbf: true}, Config{Gate: NoGate{}})
	res, cost, err := f.eng.Decide(cu16,
		interList(sift.InterCand{Kind: sift.KindME, MV: [2]types.MV{{X: 4}, {X: 4}}}),
		intraList(sift.ClassCUEqTU, types.VerMode),
		f.ctx, &f.init)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != types.PredIntra || res.Intra[0] != types.VerMode {
		t.Errorf("mode = %v/%d, want intra %d", res.Mode, res.Intra[0], types.VerMode)
	}
	if want := int64(95 * DistScale); cost != want || res.Cost != want {
		t.Errorf("cost = %d (result %d), want %d", cost, res.Cost, want)
	}
}

func TestDecide_TieKeepsFirst(t *testing.T) {
	k := scripted{Kernels: dsp.Generic(), interDist: 50, intraDist: 50}
	var events []Event
	f := newFixture(t, k, Params{QP: 30, Slice: types.SliceI}, Config{
		Observer: func(ev Event) { events = append(events, ev) },
	})
	res, _, err := f.eng.Decide(cu16, &sift.InterList{}, intraList(sift.ClassCUEqTU, types.HorMode, types.HorMode+1),
		f.ctx, &f.init)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || !events[0].Swapped || events[1].Swapped {
		t.Fatalf("events = %+v", events)
	}
	if res.Intra[0] != types.HorMode {
		t.Errorf("tie went to mode %d", res.Intra[0])
	}
}

func TestDecide_NoWinner(t *testing.T) {
	huge := int64(math.MaxInt64 / (2 * DistScale))
	k := scripted{Kernels: dsp.Generic(), interDist: huge, intraDist: huge}
	f := newFixture(t, k, Params{QP: 30, Slice: types.SliceI}, Config{})
	if assert.Enabled {
		defer func() {
			if recover() == nil {
				t.Error("no assertion")
			}
		}()
	}
	_, cost, err := f.eng.Decide(cu16, &sift.InterList{}, intraList(sift.ClassCUEqTU, 0), f.ctx, &f.init)
	if !errors.Is(err, ErrNoWinner) || cost != MaxCost {
		t.Errorf("Decide = %d, %v; want MaxCost, ErrNoWinner", cost, err)
	}
	if f.pool.InUse() != 0 {
		t.Errorf("%d slots leaked", f.pool.InUse())
	}
}

func TestDecide_NoCandidates(t *testing.T) {
	f := newFixture(t, dsp.Generic(), Params{QP: 30, Slice: types.SliceI}, Config{})
	if assert.Enabled {
		defer func() { recover() }()
	}
	_, _, err := f.eng.Decide(cu16, &sift.InterList{}, &sift.IntraList{}, f.ctx, &f.init)
	if !errors.Is(err, sift.ErrNoCandidates) {
		t.Errorf("err = %v", err)
	}
}

func TestDecide_SkipGate(t *testing.T) {
	k := scripted{Kernels: dsp.Generic(), interDist: 100, intraDist: 1}
	f := newFixture(t, k, Params{QP: 30, Slice: types.SliceP, ZeroCbf: true}, Config{Gate: SkipGate{Preset: 1}})
	res, _, err := f.eng.Decide(cu16,
		interList(sift.InterCand{Kind: sift.KindSkip}),
		intraList(sift.ClassCUEqTU, types.DCMode),
		f.ctx, &f.init)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != types.PredSkip {
		t.Errorf("gated CU decided %v", res.Mode)
	}

	f = newFixture(t, k, Params{QP: 30, Slice: types.SliceP, ZeroCbf: true}, Config{Gate: SkipGate{Preset: 1}})
	f.ctx.Noisy = true
	res, _, _ = f.eng.Decide(cu16,
		interList(sift.InterCand{Kind: sift.KindSkip}),
		intraList(sift.ClassCUEqTU, types.DCMode),
		f.ctx, &f.init)
	if res.Mode != types.PredIntra {
		t.Errorf("noisy CU decided %v, want intra", res.Mode)
	}
}

func TestDecide_ZeroCbfTurnsMergeIntoSkip(t *testing.T) {
	k := scripted{Kernels: dsp.Generic(), interDist: 10, intraDist: 1000}
	for _, zero := range []bool{false, true} {
		f := newFixture(t, k, Params{QP: 30, Slice: types.SliceP, ZeroCbf: zero}, Config{Gate: NoGate{}})
		res, _, err := f.eng.Decide(cu16, interList(sift.InterCand{Kind: sift.KindMerge}),
			intraList(sift.ClassCUEqTU, 0), f.ctx, &f.init)
		if err != nil {
			t.Fatal(err)
		}
		want := types.PredInter
		if zero {
			want = types.PredSkip
		}
		if res.Mode != want {
			t.Errorf("ZeroCbf=%v: mode %v, want %v", zero, res.Mode, want)
		}
	}
}

func realCandidates() (*sift.InterList, *sift.IntraList) {
	inter := interList(
		sift.InterCand{Kind: sift.KindMerge},
		sift.InterCand{Kind: sift.KindSkip},
		sift.InterCand{Kind: sift.KindME, MV: [2]types.MV{{X: 8}, {X: 8}}},
		sift.InterCand{Kind: sift.KindME, MV: [2]types.MV{{X: 6, Y: 2}, {X: 6, Y: 2}}},
		sift.InterCand{Kind: sift.KindMixed, Part: types.Part2NxN, MV: [2]types.MV{{X: 8}, {X: 4}}},
	)
	intra := intraList(sift.ClassCUEqTU, 0, 1, 10, 26, 34)
	div2 := &intra.Classes[sift.ClassDiv2TU]
	div2.Allowed = true
	div2.Add(26, sift.ClassDiv2TU, true)
	div2.Add(2, sift.ClassDiv2TU, true)
	return inter, intra
}

func TestDecide_MonotonicAndPingPong(t *testing.T) {
	for _, slice := range []types.SliceType{types.SliceI, types.SliceP} {
		var events []Event
		f := newFixture(t, dsp.Generic(), Params{QP: 32, Lambda: 60 << 8, Slice: slice, ZeroCbf: true},
			Config{Gate: NoGate{}, Observer: func(ev Event) { events = append(events, ev) }})
		inter, intra := realCandidates()
		res, cost, err := f.eng.Decide(cu16, inter, intra, f.ctx, &f.init)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) == 0 {
			t.Fatal("no trials observed")
		}
		prev := MaxCost
		for i, ev := range events {
			if ev.Best > prev {
				t.Fatalf("%v: best cost rose at trial %d: %d > %d", slice, i, ev.Best, prev)
			}
			if cost > ev.Cost {
				t.Errorf("%v: final cost %d above trial %d cost %d", slice, cost, i, ev.Cost)
			}
			prev = ev.Best
		}
		if prev != cost {
			t.Errorf("%v: last best %d != returned %d", slice, prev, cost)
		}
		s := f.eng.Slots()
		if s.Index(Current) == s.Index(Best) {
			t.Error("current and best share a slot")
		}
		if s.Get(Best).Cost != cost {
			t.Errorf("best slot cost %d != %d", s.Get(Best).Cost, cost)
		}
		if slice == types.SliceP && res.Mode == types.PredIntra {
			t.Errorf("exact motion lost to intra: %+v", res)
		}
	}
}

func TestDecide_PoolConservation(t *testing.T) {
	f := newFixture(t, dsp.Generic(), Params{QP: 27, Lambda: 30 << 8, Slice: types.SliceP, ZeroCbf: true}, Config{Gate: NoGate{}})
	inter, intra := realCandidates()
	for i, c := range []sift.CU{cu16, {X: 32, Y: 16, PX: 32, PY: 16, Size: 16, Depth: 2}, {X: 0, Y: 32, PX: 0, PY: 32, Size: 32, Depth: 1}} {
		res, _, err := f.eng.Decide(c, inter, intra, f.ctx, &f.init)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Pool.Balanced() || res.Pool.Promoted != 2 {
			t.Errorf("CU %d: counters %+v", i, res.Pool)
		}
		if f.pool.InUse() != 2 {
			t.Errorf("CU %d: %d slots in use after commit", i, f.pool.InUse())
		}
	}
}

func TestDecide_Deterministic(t *testing.T) {
	run := func() (Result, cabac.Contexts, [64 * 64]uint8) {
		f := newFixture(t, dsp.Generic(), Params{QP: 30, Lambda: 40 << 8, Slice: types.SliceP, ZeroCbf: true}, Config{Gate: NoGate{}})
		inter, intra := realCandidates()
		res, _, err := f.eng.Decide(cu16, inter, intra, f.ctx, &f.init)
		if err != nil {
			t.Fatal(err)
		}
		return res, f.init, f.m.Recon
	}
	r1, c1, p1 := run()
	r2, c2, p2 := run()
	if r1 != r2 || c1 != c2 || p1 != p2 {
		t.Errorf("decisions differ:\n%+v\n%+v", r1, r2)
	}
}

func TestDecide_CommitPublishes(t *testing.T) {
	f := newFixture(t, dsp.Generic(), Params{QP: 30, Lambda: 40 << 8, Slice: types.SliceI}, Config{})
	before := f.init
	_, intra := realCandidates()
	res, _, err := f.eng.Decide(cu16, &sift.InterList{}, intra, f.ctx, &f.init)
	if err != nil {
		t.Fatal(err)
	}
	for y4 := 4; y4 < 8; y4++ {
		for x4 := 4; x4 < 8; x4++ {
			info, ok := f.m.At(x4, y4)
			if !ok || !info.Intra || info.CU != 1 || info.Depth != 2 {
				t.Fatalf("At(%d,%d) = %+v, %v", x4, y4, info, ok)
			}
		}
	}
	if f.m.Coded(3, 4) || f.m.Coded(8, 8) {
		t.Error("commit marked blocks outside the CU")
	}
	if f.init == before {
		t.Error("running contexts not advanced")
	}
	var fresh cabac.Contexts
	f.eng.store.Load(f.eng.slots.Get(Best).CtxSlot, &fresh)
	if fresh != f.init {
		t.Error("running contexts differ from the winning snapshot")
	}
	if res.Dist < 0 || res.Bits == 0 {
		t.Errorf("result %+v", res)
	}
}

func TestDecide_NxN(t *testing.T) {
	f := newFixture(t, dsp.Generic(), Params{QP: 22, Lambda: 10 << 8, Slice: types.SliceI, MinCU: 8}, Config{})
	cu := sift.CU{X: 8, Y: 8, PX: 8, PY: 8, Size: 8, Depth: 3}
	intra := intraList(sift.ClassNxN, 0, 1, 10, 26, 18)
	res, _, err := f.eng.Decide(cu, &sift.InterList{}, intra, f.ctx, &f.init)
	if err != nil {
		t.Fatal(err)
	}
	if res.Part != types.PartNxN || res.NumTU != 4 || res.TUSize != 4 {
		t.Fatalf("result %+v", res)
	}
	for b := 0; b < 4; b++ {
		ox, oy, _, _ := types.PartNxN.PURect(8, b)
		info, ok := f.m.At((8+ox)/4, (8+oy)/4)
		if !ok || info.IntraMode != res.Intra[b] {
			t.Errorf("PU %d: map %+v, result mode %d", b, info, res.Intra[b])
		}
	}
}

func TestSlotsSwap(t *testing.T) {
	var s Slots
	s.Reset()
	if s.Index(Current) != 0 || s.Index(Best) != 1 {
		t.Fatal("initial roles")
	}
	s.Get(Current).Cost = 7
	s.Swap()
	if s.Get(Best).Cost != 7 || s.Index(Current) != 1 {
		t.Error("swap did not exchange roles")
	}
}

func TestRDCost(t *testing.T) {
	if got := RDCost(10, 3*cabac.BitScale, 2<<8); got != 10*256+3*2*256 {
		t.Errorf("RDCost = %d", got)
	}
}
