package modedec

import (
	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/nbr"
	"github.com/deepteams/hevcenc/internal/sift"
	"github.com/deepteams/hevcenc/internal/types"
)

// tryInter runs one inter candidate.
func (e *Engine) tryInter(c *sift.InterCand, l *sift.InterList) error {
	fp, err := e.begin()
	if err != nil {
		return err
	}
	cu := e.cu
	ref := e.ctx.Ref
	pred := e.pool.Buf(fp.PredSlot)
	recon := e.pool.Buf(fp.ReconSlot)

	fp.Mode = types.PredInter
	fp.Kind = c.Kind
	fp.Part = c.Part
	fp.MergeIdx = c.MergeIdx
	fp.MVPIdx = c.MVPIdx
	fp.IntraModes = [4]uint8{types.DCMode, types.DCMode, types.DCMode, types.DCMode}
	for pu := 0; pu < c.Part.NumParts(); pu++ {
		ox, oy, w, h := c.Part.PURect(cu.Size, pu)
		mv := dsp.ClampMV(ref, cu.PX+ox, cu.PY+oy, w, h, c.MV[pu])
		fp.MV[pu] = mv
		e.k.MotionCompensate(ref, cu.PX+ox, cu.PY+oy, w, h, mv, pred[oy*slotStride+ox:], slotStride)
	}
	if c.Part == types.Part2Nx2N {
		fp.MV[1] = fp.MV[0]
	}

	merge := c.Kind == sift.KindSkip || c.Kind == sift.KindMerge
	if c.Kind == sift.KindSkip {
		// No residual: the prediction is the reconstruction.
		for y := 0; y < cu.Size; y++ {
			copy(recon[y*slotStride:y*slotStride+cu.Size], pred[y*slotStride:y*slotStride+cu.Size])
		}
		fp.TUSize, fp.NumTU = tuLayout(cu.Size, false)
	} else {
		e.interResidual(fp, pred, recon)
		if !fp.Cbf && merge && e.p.ZeroCbf {
			fp.Kind = sift.KindSkip
		}
	}
	if fp.Kind == sift.KindSkip {
		fp.Mode = types.PredSkip
	}
	fp.Dist = e.distortion(recon)

	skipCtx := e.neighbourCount(func(i nbr.Info) bool { return i.Skip })
	est := &e.est
	est.SkipFlag(fp.Mode == types.PredSkip, skipCtx)
	if fp.Mode == types.PredSkip {
		est.MergeIdx(fp.MergeIdx)
	} else {
		est.PredMode(false)
		est.PartMode(fp.Part, false)
		for pu := 0; pu < fp.Part.NumParts(); pu++ {
			est.MergeFlag(merge)
			if merge {
				est.MergeIdx(fp.MergeIdx)
				continue
			}
			est.MVD(types.MV{
				X: fp.MV[pu].X - l.MVP[fp.MVPIdx[pu]].X,
				Y: fp.MV[pu].Y - l.MVP[fp.MVPIdx[pu]].Y,
			})
			est.MvpIdx(fp.MVPIdx[pu])
		}
		est.RootCbf(fp.Cbf)
		if fp.Cbf {
			e.codeResidualBits(fp)
		}
	}
	e.finish(fp, Event{Mode: fp.Mode, Kind: fp.Kind})
	return nil
}

// interResidual codes the residual of the whole CU in transform blocks.
func (e *Engine) interResidual(fp *FinalParams, pred, recon []uint8) {
	cu := e.cu
	src := e.ctx.Src
	tu, count := tuLayout(cu.Size, false)
	fp.TUSize, fp.NumTU = tu, count
	for t := 0; t < count; t++ {
		ox, oy := tuOrigin(t, tu)
		lv := fp.Levels[t*tu*tu : (t+1)*tu*tu]
		nz := e.codeTU(src.Pix[e.srcOff+oy*src.Stride+ox:], src.Stride,
			pred[oy*slotStride+ox:], recon[oy*slotStride+ox:], slotStride, lv, tu, false)
		fp.TUCbf[t] = nz > 0
		fp.Cbf = fp.Cbf || nz > 0
	}
}

// codeResidualBits prices cbf flags and levels of every transform block.
func (e *Engine) codeResidualBits(fp *FinalParams) {
	depth := 0
	if fp.TUSize < e.cu.Size {
		depth = 1
	}
	n := fp.TUSize
	for t := 0; t < fp.NumTU; t++ {
		e.est.CbfLuma(fp.TUCbf[t], depth)
		if fp.TUCbf[t] {
			e.est.Residual(fp.Levels[t*n*n:(t+1)*n*n], n)
		}
	}
}
