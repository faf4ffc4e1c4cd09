package modedec

import (
	"github.com/deepteams/hevcenc/internal/nbr"
	"github.com/deepteams/hevcenc/internal/types"
)

// commit publishes the best slot: reconstruction into the CTB buffer,
// metadata into the neighbour map, context state into the running state.
func (e *Engine) commit() Result {
	bi := e.slots.Index(Best)
	b := &e.slots.p[bi]
	cu := e.cu
	m := e.ctx.Map

	recon := e.pool.Buf(b.ReconSlot)
	for y := 0; y < cu.Size; y++ {
		copy(m.Recon[(cu.Y+y)*nbr.ReconStride+cu.X:], recon[y*slotStride:y*slotStride+cu.Size])
	}

	info := nbr.Info{
		Skip:   b.Mode == types.PredSkip,
		Intra:  b.Mode == types.PredIntra,
		Cbf:    b.Cbf,
		QP:     int8(e.p.QP),
		Depth:  uint8(cu.Depth),
		TULog2: uint8(log2(b.TUSize)),
		RefIdx: 0,
		CU:     e.ctx.Seq,
	}
	if info.Intra {
		info.RefIdx = -1
	}
	for pu := 0; pu < b.Part.NumParts(); pu++ {
		ox, oy, w, h := b.Part.PURect(cu.Size, pu)
		pi := info
		if info.Intra {
			pi.IntraMode = b.IntraModes[pu]
		} else {
			pi.IntraMode = types.DCMode
			pi.MV = b.MV[pu]
		}
		m.Set((cu.X+ox)/4, (cu.Y+oy)/4, max(w/4, 1), max(h/4, 1), pi)
	}

	e.store.Load(b.CtxSlot, e.init)
	e.pool.Promote(b.PredSlot)
	e.pool.Promote(b.ReconSlot)
	counters := e.pool.EndCU()

	return Result{
		X:      cu.X,
		Y:      cu.Y,
		Size:   cu.Size,
		Depth:  cu.Depth,
		Mode:   b.Mode,
		Part:   b.Part,
		Kind:   b.Kind,
		Class:  b.Class,
		Intra:  b.IntraModes,
		Merge:  b.MergeIdx,
		MV:     b.MV,
		MVPIdx: b.MVPIdx,
		Cbf:    b.Cbf,
		TUSize: b.TUSize,
		NumTU:  b.NumTU,
		Cost:   b.Cost,
		Dist:   b.Dist,
		Bits:   b.Bits,
		Pool:   counters,
	}
}

func log2(n int) int {
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}
