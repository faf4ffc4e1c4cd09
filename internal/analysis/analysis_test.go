package analysis

import (
	"testing"

	"github.com/deepteams/hevcenc/internal/cutree"
	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/types"
)

// shifted returns a copy of p whose content moved by (dx, dy) samples.
func shifted(p *types.Plane, dx, dy int) *types.Plane {
	q := types.NewPlane(p.Width, p.Height, p.Pad)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			sx := min(max(x-dx, 0), p.Width-1)
			sy := min(max(y-dy, 0), p.Height-1)
			q.Pix[q.Offset(x, y)] = p.At(sx, sy)
		}
	}
	q.PadRows(0, q.Height)
	return q
}

func TestIntraRankingFlatBlock(t *testing.T) {
	src := types.NewPlane(64, 64, 0)
	for i := range src.Pix {
		src.Pix[i] = 90
	}
	tree := cutree.New(64, 8)
	tree.Reset(64, 64)
	a := New(dsp.Generic(), Config{Preset: 2, SATDLambda: 256})
	info := a.Run(tree, src, nil, 0, 0)
	if info.Noisy {
		t.Error("flat CTB flagged noisy")
	}
	n := tree.At(2, 5)
	if n.NumIntra != cutree.MaxIntra {
		t.Fatalf("NumIntra = %d", n.NumIntra)
	}
	for i := 1; i < n.NumIntra; i++ {
		if n.IntraSATD[i] < n.IntraSATD[i-1] {
			t.Fatalf("modes not sorted: %v", n.IntraSATD)
		}
	}
	// Every mode predicts a flat block exactly; the cheaper signalling wins.
	if m := n.IntraModes[0]; m > types.DCMode {
		t.Errorf("best mode %d, want planar or DC", m)
	}
	if n.NumME != 0 {
		t.Error("motion search ran without a reference")
	}
}

func TestMotionFindsShift(t *testing.T) {
	ref := texturedPlane(128, 128, 32)
	src := shifted(ref, 3, -2)
	tree := cutree.New(32, 8)
	tree.Reset(32, 32)
	a := New(dsp.Generic(), Config{Preset: 1, SATDLambda: 64})
	a.Run(tree, src, ref, 32, 32)
	root := tree.Root()
	if root.NumME == 0 {
		t.Fatal("no motion candidates")
	}
	want := types.MV{X: -12, Y: 8}
	if root.ME[0].MV != want {
		t.Errorf("best MV = %+v (SAD %d), want %+v", root.ME[0].MV, root.ME[0].SAD, want)
	}
	if root.ME[0].SAD > a.mvCost(want) {
		t.Errorf("best SAD %d above its MV cost", root.ME[0].SAD)
	}
}

func TestNoiseMap(t *testing.T) {
	src := types.NewPlane(64, 64, 0)
	seed := uint32(1)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(100)
			if x < 32 {
				seed = seed*1664525 + 1013904223
				v = uint8(seed >> 24)
			}
			src.Pix[src.Offset(x, y)] = v
		}
	}
	tree := cutree.New(64, 8)
	tree.Reset(64, 64)
	info := New(dsp.Generic(), Config{Preset: 1}).Run(tree, src, nil, 0, 0)
	if !info.NoiseMap[0] || info.NoiseMap[7] {
		t.Errorf("noise map row 0 = %v", info.NoiseMap[:8])
	}
	if !info.Noisy {
		t.Error("half-noisy CTB not flagged")
	}
}

func texturedPlane(w, h, pad int) *types.Plane {
	p := types.NewPlane(w, h, pad)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p.Pix[p.Offset(x, y)] = uint8((x*x + 3*y*y + x*y) >> 3)
		}
	}
	p.PadRows(0, h)
	return p
}

func TestSplitFollowsMotion(t *testing.T) {
	// Each 32x32 quadrant of the CTB moves differently, so no single vector
	// serves the 64x64 CU while every quadrant is matched exactly.
	ref := texturedPlane(128, 128, 32)
	src := types.NewPlane(128, 128, 32)
	shifts := [4][2]int{{2, 0}, {0, 3}, {-2, -1}, {1, 1}}
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			q := 0
			if x >= 64 {
				q++
			}
			if y >= 64 {
				q += 2
			}
			s := shifts[q]
			src.Pix[src.Offset(x, y)] = ref.At(min(max(x-s[0], 0), 127), min(max(y-s[1], 0), 127))
		}
	}
	tree := cutree.New(64, 8)
	tree.Reset(64, 64)
	New(dsp.Generic(), Config{Preset: 1, SATDLambda: 64}).Run(tree, src, ref, 32, 32)
	if !tree.Root().Split {
		t.Error("root not split")
	}
	n := tree.At(1, 0)
	if n.Split {
		t.Error("uniformly moving quadrant split")
	}
	if want := (types.MV{X: -8, Y: 0}); n.ME[0].MV != want {
		t.Errorf("quadrant MV = %+v, want %+v", n.ME[0].MV, want)
	}
}

func TestFlatCTBStaysWhole(t *testing.T) {
	src := types.NewPlane(128, 64, 0)
	for i := range src.Pix {
		src.Pix[i] = 77
	}
	tree := cutree.New(64, 8)
	tree.Reset(64, 64)
	New(dsp.Generic(), Config{Preset: 2, SATDLambda: 256}).Run(tree, src, nil, 64, 0)
	if tree.Root().Split {
		t.Error("flat CTB split")
	}
}

func TestSplitForcedAtEdge(t *testing.T) {
	src := types.NewPlane(40, 24, 0)
	tree := cutree.New(64, 8)
	tree.Reset(40, 24)
	New(dsp.Generic(), Config{Preset: 0}).Run(tree, src, nil, 0, 0)
	if !tree.Root().Split {
		t.Error("clipped root not split")
	}
	if n := tree.At(2, 0); n.Split || n.NumIntra == 0 {
		t.Errorf("inside 16x16 split=%v intra=%d", n.Split, n.NumIntra)
	}
}

func TestMVBits(t *testing.T) {
	tests := []struct{ v, want int }{{0, 1}, {1, 3}, {-1, 3}, {4, 7}, {255, 17}}
	for _, tt := range tests {
		if got := mvBits(tt.v); got != tt.want {
			t.Errorf("mvBits(%d) = %d, want %d", tt.v, got, tt.want)
		}
	}
}
