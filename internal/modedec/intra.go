package modedec

import (
	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/nbr"
	"github.com/deepteams/hevcenc/internal/sift"
	"github.com/deepteams/hevcenc/internal/types"
)

// buildRef gathers the reference samples of the n x n block at CTB-relative
// (x, y). Samples outside the CTB come from the left and top bands.
func buildRef(m *nbr.Map, x, y, n int, r *dsp.IntraRef) {
	r.Reset()
	x4, y4 := x/4, y/4
	for u := 0; u < n/2; u++ {
		if m.Available(x4+u, y4-1) {
			for j := 0; j < 4; j++ {
				r.Top[4*u+j] = m.Pixel(x+4*u+j, y-1)
			}
			r.TopAvail |= 1 << u
		}
		if m.Available(x4-1, y4+u) {
			for j := 0; j < 4; j++ {
				r.Left[4*u+j] = m.Pixel(x-1, y+4*u+j)
			}
			r.LeftAvail |= 1 << u
		}
	}
	if m.Available(x4-1, y4-1) {
		r.Corner = m.Pixel(x-1, y-1)
		r.CornerAvail = true
	}
	r.Substitute(n)
}

// speculate publishes a reconstructed block to the neighbour map so later
// blocks of the same trial can predict from it.
func (e *Engine) speculate(recon []uint8, x, y, n int, mode int) {
	m := e.ctx.Map
	for j := 0; j < n; j++ {
		copy(m.Recon[(y+j)*nbr.ReconStride+x:], recon[j*slotStride:j*slotStride+n])
	}
	m.Set(x/4, y/4, max(n/4, 1), max(n/4, 1), nbr.Info{Intra: true, IntraMode: uint8(mode), RefIdx: -1})
}

// unspeculate drops everything a trial published for the CU area.
func (e *Engine) unspeculate() {
	n4 := e.cu.Size / 4
	e.ctx.Map.Clear(e.cu.X/4, e.cu.Y/4, n4, n4)
}

func (e *Engine) intraHeader(part types.PartMode) {
	if e.p.Slice == types.SliceP {
		e.est.SkipFlag(false, e.neighbourCount(func(i nbr.Info) bool { return i.Skip }))
		e.est.PredMode(true)
	}
	if e.cu.Size == e.p.MinCU {
		e.est.PartMode(part, true)
	}
}

// tryIntra runs one mode with one prediction block and one or four
// transform blocks.
func (e *Engine) tryIntra(mode int, class sift.SizeClass, mpm [3]int) error {
	fp, err := e.begin()
	if err != nil {
		return err
	}
	cu := e.cu
	src := e.ctx.Src
	pred := e.pool.Buf(fp.PredSlot)
	recon := e.pool.Buf(fp.ReconSlot)
	fp.Mode = types.PredIntra
	fp.Part = types.Part2Nx2N
	fp.Class = class
	fp.IntraModes = [4]uint8{uint8(mode), uint8(mode), uint8(mode), uint8(mode)}

	tu, count := tuLayout(cu.Size, class == sift.ClassDiv2TU)
	fp.TUSize, fp.NumTU = tu, count
	for t := 0; t < count; t++ {
		ox, oy := tuOrigin(t, tu)
		buildRef(e.ctx.Map, cu.X+ox, cu.Y+oy, tu, &e.ref)
		p := pred[oy*slotStride+ox:]
		r := recon[oy*slotStride+ox:]
		e.k.IntraPredict(mode, &e.ref, p, slotStride, tu)
		nz := e.codeTU(src.Pix[e.srcOff+oy*src.Stride+ox:], src.Stride, p, r, slotStride,
			fp.Levels[t*tu*tu:(t+1)*tu*tu], tu, true)
		fp.TUCbf[t] = nz > 0
		fp.Cbf = fp.Cbf || nz > 0
		if count > 1 {
			e.speculate(r, cu.X+ox, cu.Y+oy, tu, mode)
		}
	}
	if count > 1 {
		e.unspeculate()
	}
	fp.Dist = e.distortion(recon)

	e.intraHeader(types.Part2Nx2N)
	e.est.IntraMode(mode, mpm)
	e.est.ChromaMode()
	e.codeResidualBits(fp)
	e.finish(fp, Event{Mode: types.PredIntra, Class: class, IntraMode: mode})
	return nil
}

// tryNxN runs the four-PU intra arrangement of a minimum-size CU. Each PU
// picks its own mode from the class list by RD cost, in z-order, so later
// PUs predict from the chosen reconstruction of earlier ones.
func (e *Engine) tryNxN(cl *sift.ClassList) error {
	fp, err := e.begin()
	if err != nil {
		return err
	}
	cu := e.cu
	src := e.ctx.Src
	pred := e.pool.Buf(fp.PredSlot)
	recon := e.pool.Buf(fp.ReconSlot)
	fp.Mode = types.PredIntra
	fp.Part = types.PartNxN
	fp.Class = sift.ClassNxN
	n := cu.Size / 2
	fp.TUSize, fp.NumTU = n, 4

	e.intraHeader(types.PartNxN)
	for b := 0; b < 4; b++ {
		ox, oy := tuOrigin(b, n)
		bx, by := cu.X+ox, cu.Y+oy
		mpm := sift.MPM(e.ctx.Map, bx/4, by/4)
		buildRef(e.ctx.Map, bx, by, n, &e.ref)
		srcB := src.Pix[e.srcOff+oy*src.Stride+ox:]

		bestCost := MaxCost
		var bestEst = e.est
		best, cur := 0, 1
		var bestNZ int
		var bestDist int64
		for i := 0; i < cl.N; i++ {
			if !cl.Cands[i].Eval {
				continue
			}
			mode := cl.Cands[i].Mode
			e.k.IntraPredict(mode, &e.ref, e.subPred[cur][:], n, n)
			nz := e.codeSub(srcB, src.Stride, cur, n)
			dist := e.k.SSE(srcB, src.Stride, e.subRecon[cur][:], n, n, n)
			trial := e.est
			trial.IntraMode(mode, mpm)
			trial.CbfLuma(nz > 0, 1)
			if nz > 0 {
				trial.Residual(e.subLv[cur][:n*n], n)
			}
			cost := RDCost(dist, trial.Bits, e.p.Lambda)
			if cost < bestCost {
				bestCost, bestEst = cost, trial
				bestNZ, bestDist = nz, dist
				fp.IntraModes[b] = uint8(mode)
				best, cur = cur, best
			}
		}
		e.est = bestEst
		fp.Dist += bestDist
		fp.TUCbf[b] = bestNZ > 0
		fp.Cbf = fp.Cbf || bestNZ > 0
		copy(fp.Levels[b*n*n:(b+1)*n*n], e.subLv[best][:n*n])
		for j := 0; j < n; j++ {
			copy(pred[(oy+j)*slotStride+ox:], e.subPred[best][j*n:j*n+n])
			copy(recon[(oy+j)*slotStride+ox:], e.subRecon[best][j*n:j*n+n])
		}
		e.speculate(recon[oy*slotStride+ox:], bx, by, n, int(fp.IntraModes[b]))
	}
	e.unspeculate()
	e.est.ChromaMode()
	e.finish(fp, Event{Mode: types.PredIntra, Class: sift.ClassNxN, IntraMode: int(fp.IntraModes[0])})
	return nil
}

// codeSub codes one NxN sub-block held in the scratch set s. Scratch
// blocks use stride n.
func (e *Engine) codeSub(src []uint8, srcStride int, s int, n int) int {
	k := e.k
	k.Residual(src, srcStride, e.subPred[s][:], n, e.res[:], n)
	k.ForwardTransform(e.res[:], e.coef[:], n)
	nz := k.Quantize(e.coef[:], e.subLv[s][:], n, e.p.QP, true)
	if nz == 0 && e.p.ZeroCbf {
		for y := 0; y < n; y++ {
			copy(e.subRecon[s][y*n:y*n+n], e.subPred[s][y*n:y*n+n])
		}
		return 0
	}
	k.Dequantize(e.subLv[s][:], e.coef[:], n, e.p.QP)
	k.InverseTransform(e.coef[:], e.res[:], n)
	k.Reconstruct(e.subPred[s][:], n, e.res[:], e.subRecon[s][:], n, n)
	return nz
}
