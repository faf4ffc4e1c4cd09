package cabac

import "github.com/deepteams/hevcenc/internal/types"

// Estimator accumulates the fractional bit cost of a sequence of syntax
// elements while evolving its own copy of the context state.
type Estimator struct {
	Ctx  Contexts
	Bits uint64 // Q15
}

// Reset starts a new estimate from init.
func (e *Estimator) Reset(init *Contexts) {
	e.Ctx = *init
	e.Bits = 0
}

// Bin codes one context-coded bin.
func (e *Estimator) Bin(ctx Ctx, bin int) {
	e.Bits += uint64(e.Ctx.BinCost(ctx, bin))
	e.Ctx.update(ctx, bin)
}

// Bypass codes n equiprobable bins.
func (e *Estimator) Bypass(n int) {
	e.Bits += uint64(n) * BitScale
}

// SplitFlag codes split_cu_flag. ctxInc counts the left/top neighbours
// that are deeper than the current depth.
func (e *Estimator) SplitFlag(split bool, ctxInc int) {
	e.Bin(CtxSplitCU+Ctx(min(ctxInc, 2)), b2i(split))
}

// SkipFlag codes cu_skip_flag. ctxInc counts skipped left/top neighbours.
func (e *Estimator) SkipFlag(skip bool, ctxInc int) {
	e.Bin(CtxSkip+Ctx(min(ctxInc, 2)), b2i(skip))
}

// MaxMergeCands is the merge list length.
const MaxMergeCands = 5

// MergeIdx codes merge_idx with truncated unary binarisation.
func (e *Estimator) MergeIdx(idx int) {
	for i := 0; i < MaxMergeCands-1; i++ {
		bin := b2i(i < idx)
		if i == 0 {
			e.Bin(CtxMergeIdx, bin)
		} else {
			e.Bypass(1)
		}
		if bin == 0 {
			return
		}
	}
}

// MergeFlag codes merge_flag.
func (e *Estimator) MergeFlag(merge bool) { e.Bin(CtxMergeFlag, b2i(merge)) }

// PredMode codes pred_mode_flag (P slices only).
func (e *Estimator) PredMode(intra bool) { e.Bin(CtxPredMode, b2i(intra)) }

// PartMode codes part_mode for the partitions supported by the core.
func (e *Estimator) PartMode(part types.PartMode, intra bool) {
	if intra {
		e.Bin(CtxPartMode, b2i(part == types.Part2Nx2N))
		return
	}
	switch part {
	case types.Part2Nx2N:
		e.Bin(CtxPartMode, 1)
	case types.Part2NxN:
		e.Bin(CtxPartMode, 0)
		e.Bin(CtxPartMode+1, 1)
	default:
		e.Bin(CtxPartMode, 0)
		e.Bin(CtxPartMode+1, 0)
	}
}

// IntraMode codes prev_intra_luma_pred_flag, then mpm_idx or the 5-bit
// rem_intra_luma_pred_mode.
func (e *Estimator) IntraMode(mode int, mpm [3]int) {
	for i, m := range mpm {
		if m == mode {
			e.Bin(CtxPrevIntra, 1)
			e.Bypass(min(i+1, 2))
			return
		}
	}
	e.Bin(CtxPrevIntra, 0)
	e.Bypass(5)
}

// ChromaMode codes intra_chroma_pred_mode as derived (DM) mode.
func (e *Estimator) ChromaMode() { e.Bin(CtxChromaMode, 0) }

// RootCbf codes rqt_root_cbf.
func (e *Estimator) RootCbf(cbf bool) { e.Bin(CtxRootCbf, b2i(cbf)) }

// CbfLuma codes cbf_luma; ctxInc is 1 at transform depth 0.
func (e *Estimator) CbfLuma(cbf bool, trDepth int) {
	e.Bin(CtxCbfLuma+Ctx(b2i(trDepth == 0)), b2i(cbf))
}

// MvpIdx codes mvp_lx_flag.
func (e *Estimator) MvpIdx(idx int) { e.Bin(CtxMvpIdx, idx) }

// MVD codes one motion vector difference.
func (e *Estimator) MVD(d types.MV) {
	ax, ay := absInt(int(d.X)), absInt(int(d.Y))
	e.Bin(CtxMvdGt0, b2i(ax > 0))
	e.Bin(CtxMvdGt0, b2i(ay > 0))
	if ax > 0 {
		e.Bin(CtxMvdGt1, b2i(ax > 1))
	}
	if ay > 0 {
		e.Bin(CtxMvdGt1, b2i(ay > 1))
	}
	for _, a := range [2]int{ax, ay} {
		if a > 0 {
			if a > 1 {
				e.Bypass(expGolombLen(a-2, 1))
			}
			e.Bypass(1) // sign
		}
	}
}

// Residual codes one luma transform block of levels in diagonal scan order.
// The binarisation follows the real syntax closely enough for rate
// estimation without sub-block grouping.
func (e *Estimator) Residual(levels []int16, n int) {
	scan := DiagScan(n)
	last := -1
	for i := len(scan) - 1; i >= 0; i-- {
		if levels[scan[i]] != 0 {
			last = i
			break
		}
	}
	if last < 0 {
		return
	}
	pos := int(scan[last])
	lx, ly := pos%n, pos/n
	e.lastPrefix(lx, n)
	e.lastPrefix(ly, n)

	greater1Ctx := 1
	g1Count := 0
	for i := last; i >= 0; i-- {
		lv := absInt(int(levels[scan[i]]))
		if i != last {
			e.Bin(CtxSigCoeff+Ctx(sigCtx(int(scan[i]), n)), b2i(lv != 0))
		}
		if lv == 0 {
			continue
		}
		e.Bypass(1) // sign
		if g1Count < 8 {
			e.Bin(CtxGreater1+Ctx(min(greater1Ctx, 3)), b2i(lv > 1))
			g1Count++
			if lv > 1 {
				greater1Ctx = 0
				e.Bin(CtxGreater2, b2i(lv > 2))
				if lv > 2 {
					e.Bypass(riceLen(lv-3, 0))
				}
			} else if greater1Ctx > 0 {
				greater1Ctx++
			}
			continue
		}
		e.Bypass(riceLen(lv-1, 1))
	}
}

func (e *Estimator) lastPrefix(v, n int) {
	offset, shift := lastCtxOffset(n)
	maxPrefix := 2*log2(n) - 1
	prefix := lastGroup(v)
	for i := 0; i < prefix; i++ {
		e.Bin(CtxLastPrefix+Ctx(min(offset+(i>>shift), 14)), 1)
	}
	if prefix < maxPrefix {
		e.Bin(CtxLastPrefix+Ctx(min(offset+(prefix>>shift), 14)), 0)
	}
	if prefix > 3 {
		e.Bypass((prefix >> 1) - 1)
	}
}

func lastCtxOffset(n int) (offset, shift int) {
	l := log2(n)
	return 3*(l-2) + ((l - 1) >> 2), (l + 1) >> 2
}

// lastGroup maps a last position coordinate to its prefix group index.
func lastGroup(v int) int {
	if v < 4 {
		return v
	}
	l := log2(v)
	return 2*l + ((v >> (l - 1)) & 1)
}

func sigCtx(pos, n int) int {
	x, y := pos%n, pos/n
	switch {
	case x+y == 0:
		return 0
	case x+y < 3:
		return 1
	case x+y < 2*n/4:
		return 2
	}
	return 3
}

func riceLen(v, k int) int {
	prefix := v >> k
	if prefix < 4 {
		return prefix + 1 + k
	}
	return 4 + expGolombLen((v>>k)-4, k+1) + k
}

func expGolombLen(v, k int) int {
	n := 0
	for v >= 1<<k {
		v -= 1 << k
		k++
		n++
	}
	return n + 1 + k
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func log2(n int) int {
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}
