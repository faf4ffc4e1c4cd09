// Package cabac models CABAC context state for rate estimation during RD
// trials. It never writes a bitstream: it tracks probability state and the
// fractional number of bits a sequence of bins would cost.
package cabac

import "github.com/deepteams/hevcenc/internal/types"

// Ctx indexes a context model.
type Ctx uint8

// Context model layout. Groups with more than one model are contiguous.
const (
	CtxSplitCU    Ctx = 0  // 3
	CtxSkip       Ctx = 3  // 3
	CtxMergeFlag  Ctx = 6  // 1
	CtxMergeIdx   Ctx = 7  // 1
	CtxPredMode   Ctx = 8  // 1
	CtxPartMode   Ctx = 9  // 4
	CtxPrevIntra  Ctx = 13 // 1
	CtxChromaMode Ctx = 14 // 1
	CtxRootCbf    Ctx = 15 // 1
	CtxMvdGt0     Ctx = 16 // 1
	CtxMvdGt1     Ctx = 17 // 1
	CtxMvpIdx     Ctx = 18 // 1
	CtxCbfLuma    Ctx = 19 // 2
	CtxLastPrefix Ctx = 21 // 15
	CtxSigCoeff   Ctx = 36 // 4
	CtxGreater1   Ctx = 40 // 4
	CtxGreater2   Ctx = 44 // 1
	NumContexts       = 45
)

// initValues[initType][ctx]; initType 0 is I slices, 1 is P slices.
var initValues = [2][NumContexts]uint8{
	{
		// split_cu_flag
		139, 141, 157,
		// cu_skip_flag, unused in I slices
		154, 154, 154,
		// merge_flag, merge_idx, pred_mode_flag
		154, 154, 154,
		// part_mode
		184, 154, 154, 154,
		// prev_intra_luma_pred_flag, intra_chroma_pred_mode, rqt_root_cbf
		184, 63, 154,
		// abs_mvd_greater0/1, mvp_idx
		154, 154, 154,
		// cbf_luma
		111, 141,
		// last_sig_coeff prefix
		110, 110, 124, 125, 140, 153, 125, 127, 140, 109, 111, 143, 127, 111, 79,
		// sig_coeff_flag
		111, 111, 125, 110,
		// coeff_abs_level_greater1_flag, greater2
		140, 92, 137, 138,
		138,
	},
	{
		107, 139, 126,
		197, 185, 201,
		110, 122, 149,
		154, 139, 154, 154,
		154, 152, 79,
		140, 198, 168,
		153, 111,
		125, 110, 94, 110, 95, 79, 125, 111, 110, 78, 110, 111, 111, 95, 94,
		155, 154, 139, 153,
		154, 196, 196, 167,
		107,
	},
}

// Contexts is the full probability state, one byte per model holding
// state<<1 | mps. It is a value type: assigning it takes a snapshot.
type Contexts [NumContexts]uint8

// Init sets every model from its init value for the slice type and QP.
func (c *Contexts) Init(slice types.SliceType, qp int) {
	initType := 0
	if slice == types.SliceP {
		initType = 1
	}
	qp = min(max(qp, 0), 51)
	for i, v := range initValues[initType] {
		slope := int(v>>4)*5 - 45
		offset := int(v&15)<<3 - 16
		pre := min(max(((slope*qp)>>4)+offset, 1), 126)
		if pre <= 63 {
			c[i] = uint8((63 - pre) << 1)
		} else {
			c[i] = uint8((pre-64)<<1 | 1)
		}
	}
}

// State returns the probability state index and MPS of model ctx.
func (c *Contexts) State(ctx Ctx) (state int, mps int) {
	v := c[ctx]
	return int(v >> 1), int(v & 1)
}

var transIdxLPS = [64]uint8{
	0, 0, 1, 2, 2, 4, 4, 5, 6, 7, 8, 9, 9, 11, 11, 12,
	13, 13, 15, 15, 16, 16, 18, 18, 19, 19, 21, 21, 22, 22, 23, 24,
	24, 25, 26, 26, 27, 27, 28, 29, 29, 30, 30, 30, 31, 32, 32, 33,
	33, 33, 34, 34, 35, 35, 35, 36, 36, 36, 37, 37, 37, 38, 38, 63,
}

// update advances model ctx after coding bin.
func (c *Contexts) update(ctx Ctx, bin int) {
	state, mps := c.State(ctx)
	if bin == mps {
		state = min(state+1, 62)
	} else {
		if state == 0 {
			mps = 1 - mps
		}
		state = int(transIdxLPS[state])
	}
	c[ctx] = uint8(state<<1 | mps)
}
