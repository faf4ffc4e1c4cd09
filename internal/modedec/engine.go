// Package modedec is the CU mode-decision engine. For one CU it runs every
// sifted candidate through prediction, transform and reconstruction,
// prices it with the CABAC rate estimator and keeps the cheapest trial in a
// ping-pong pair of slots.
package modedec

import (
	"errors"
	"fmt"

	"github.com/deepteams/hevcenc/internal/assert"
	"github.com/deepteams/hevcenc/internal/cabac"
	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/nbr"
	"github.com/deepteams/hevcenc/internal/pool"
	"github.com/deepteams/hevcenc/internal/sift"
	"github.com/deepteams/hevcenc/internal/types"
)

// ErrNoWinner is returned when no candidate beat MaxCost.
var ErrNoWinner = errors.New("modedec: no candidate beat the maximum cost")

// SlotSize is the size of a prediction pool slot: one 64x64 block.
const SlotSize = 64 * 64

// slotStride is the row stride of pool slots.
const slotStride = 64

// Params are the per-frame inputs of the engine.
type Params struct {
	QP      int
	Lambda  int64 // Q8
	Slice   types.SliceType
	ZeroCbf bool
	MinCU   int
}

// Config holds the pluggable policies.
type Config struct {
	Gate     IntraGate // nil selects SkipGate at preset 1
	Observer Observer
}

// NbrContext is what the engine may read around the CU.
type NbrContext struct {
	Map   *nbr.Map
	Src   *types.Plane
	Ref   *types.Plane // nil for intra-only frames
	Noisy bool
	// Seq numbers the CU within its CTB, starting at 1.
	Seq uint16
}

// Result is the committed decision for one CU.
type Result struct {
	X, Y   int // CTB-relative
	Size   int
	Depth  int
	Mode   types.PredMode
	Part   types.PartMode
	Kind   sift.Kind
	Class  sift.SizeClass
	Intra  [4]uint8
	Merge  int
	MV     [2]types.MV
	MVPIdx [2]int
	Cbf    bool
	TUSize int
	NumTU  int
	Cost   int64
	Dist   int64
	Bits   uint64
	Pool   pool.Counters
}

// Engine decides single CUs. It belongs to one worker.
type Engine struct {
	k     dsp.Kernels
	pool  *pool.PredPool
	store *cabac.Store
	slots Slots
	gate  IntraGate
	obs   Observer
	p     Params

	// per-Decide state
	cu       sift.CU
	ctx      *NbrContext
	init     *cabac.Contexts
	est      cabac.Estimator
	bestCost int64
	haveBest bool
	srcOff   int

	res  [dsp.MaxTU * dsp.MaxTU]int16
	coef [dsp.MaxTU * dsp.MaxTU]int32
	ref  dsp.IntraRef

	// NxN sub-block scratch
	subPred  [2][16]uint8
	subRecon [2][16]uint8
	subLv    [2][16]int16
}

// NewEngine returns an engine drawing trial buffers from pl, which needs at
// least four slots of SlotSize bytes.
func NewEngine(k dsp.Kernels, pl *pool.PredPool, cfg Config) *Engine {
	gate := cfg.Gate
	if gate == nil {
		gate = SkipGate{Preset: 1}
	}
	assert.That(pl.Capacity() >= 4, "modedec: pool of %d slots is too small", pl.Capacity())
	return &Engine{
		k:     k,
		pool:  pl,
		store: cabac.NewStore(2),
		gate:  gate,
		obs:   cfg.Observer,
	}
}

// SetParams sets the frame parameters.
func (e *Engine) SetParams(p Params) {
	if p.MinCU == 0 {
		p.MinCU = 8
	}
	e.p = p
}

// Slots exposes the ping-pong pair for inspection.
func (e *Engine) Slots() *Slots { return &e.slots }

// BestLevels returns the levels of the last committed CU. They stay valid
// until the next Decide.
func (e *Engine) BestLevels() []int16 {
	b := e.slots.Get(Best)
	return b.Levels[:b.NumTU*b.TUSize*b.TUSize]
}

// Decide evaluates the marked candidates of the CU and commits the cheapest
// into the neighbour map. init is the running context state; on return it
// holds the state after coding the winner.
func (e *Engine) Decide(cu sift.CU, inter *sift.InterList, intra *sift.IntraList, ctx *NbrContext, init *cabac.Contexts) (Result, int64, error) {
	if err := sift.Check(inter, intra); err != nil {
		return Result{}, MaxCost, err
	}
	e.pool.BeginCU()
	e.slots.Reset()
	e.cu, e.ctx, e.init = cu, ctx, init
	e.bestCost, e.haveBest = MaxCost, false
	e.srcOff = ctx.Src.Offset(cu.PX, cu.PY)

	if ctx.Ref != nil {
		for i := 0; i < inter.N; i++ {
			c := &inter.Cands[i]
			if !c.Eval {
				continue
			}
			if err := e.tryInter(c, inter); err != nil {
				return e.abort(err)
			}
		}
	}

	if !e.haveBest || !e.gate.SkipIntra(e.slots.Get(Best), ctx.Noisy) {
		for ci := range intra.Classes {
			cl := &intra.Classes[ci]
			if !cl.Allowed {
				continue
			}
			if sift.SizeClass(ci) == sift.ClassNxN {
				if cl.Evaluated() > 0 {
					if err := e.tryNxN(cl); err != nil {
						return e.abort(err)
					}
				}
				continue
			}
			for i := 0; i < cl.N; i++ {
				if !cl.Cands[i].Eval {
					continue
				}
				if err := e.tryIntra(cl.Cands[i].Mode, sift.SizeClass(ci), intra.MPM); err != nil {
					return e.abort(err)
				}
			}
		}
	}

	if !e.haveBest {
		assert.That(false, "modedec: no candidate beat MaxCost")
		return e.abort(ErrNoWinner)
	}
	res := e.commit()
	return res, res.Cost, nil
}

func (e *Engine) abort(err error) (Result, int64, error) {
	if e.haveBest {
		b := e.slots.Get(Best)
		e.pool.Release(b.PredSlot)
		e.pool.Release(b.ReconSlot)
		e.haveBest = false
	}
	e.pool.EndCU()
	return Result{}, MaxCost, fmt.Errorf("modedec: CU at (%d,%d): %w", e.cu.PX, e.cu.PY, err)
}

// begin prepares the current slot for a trial: snapshot of the running
// context state, fresh pred/recon slots.
func (e *Engine) begin() (*FinalParams, error) {
	idx := e.slots.Index(Current)
	fp := &e.slots.p[idx]
	e.store.Save(idx, e.init)
	e.store.Load(idx, &e.est.Ctx)
	e.est.Bits = 0

	pred, err := e.pool.Acquire()
	if err != nil {
		return nil, err
	}
	recon, err := e.pool.Acquire()
	if err != nil {
		e.pool.Release(pred)
		return nil, err
	}
	*fp = FinalParams{PredSlot: pred, ReconSlot: recon, CtxSlot: idx}
	return fp, nil
}

// finish prices the trial in fp and adopts it when strictly cheaper.
func (e *Engine) finish(fp *FinalParams, ev Event) {
	fp.Bits = e.est.Bits
	fp.Cost = RDCost(fp.Dist, fp.Bits, e.p.Lambda)
	e.store.Save(fp.CtxSlot, &e.est.Ctx)

	swapped := fp.Cost < e.bestCost
	if swapped {
		if e.haveBest {
			old := e.slots.Get(Best)
			e.pool.Release(old.PredSlot)
			e.pool.Release(old.ReconSlot)
		}
		e.slots.Swap()
		e.bestCost = fp.Cost
		e.haveBest = true
	} else {
		e.pool.Release(fp.PredSlot)
		e.pool.Release(fp.ReconSlot)
	}
	if e.obs != nil {
		ev.Cost, ev.Best, ev.Swapped = fp.Cost, e.bestCost, swapped
		e.obs(ev)
	}
}

// codeTU transforms, quantises and reconstructs one n x n block. It returns
// the number of non-zero levels.
func (e *Engine) codeTU(src []uint8, srcStride int, pred []uint8, recon []uint8, reconStride int, levels []int16, n int, intra bool) int {
	k := e.k
	k.Residual(src, srcStride, pred, slotStride, e.res[:], n)
	k.ForwardTransform(e.res[:], e.coef[:], n)
	nz := k.Quantize(e.coef[:], levels, n, e.p.QP, intra)
	if nz == 0 && e.p.ZeroCbf {
		for y := 0; y < n; y++ {
			copy(recon[y*reconStride:y*reconStride+n], pred[y*slotStride:y*slotStride+n])
		}
		return 0
	}
	k.Dequantize(levels, e.coef[:], n, e.p.QP)
	k.InverseTransform(e.coef[:], e.res[:], n)
	k.Reconstruct(pred, slotStride, e.res[:], recon, reconStride, n)
	return nz
}

// neighbourCount counts available left/top neighbours of the CU satisfying
// f, for context selection.
func (e *Engine) neighbourCount(f func(nbr.Info) bool) int {
	x4, y4 := e.cu.X/4, e.cu.Y/4
	n := 0
	if info, ok := e.ctx.Map.At(x4-1, y4); ok && f(info) {
		n++
	}
	if info, ok := e.ctx.Map.At(x4, y4-1); ok && f(info) {
		n++
	}
	return n
}

func (e *Engine) distortion(recon []uint8) int64 {
	src := e.ctx.Src
	return e.k.SSE(src.Pix[e.srcOff:], src.Stride, recon, slotStride, e.cu.Size, e.cu.Size)
}

// tuLayout returns the transform size and count for a CU.
func tuLayout(size int, split bool) (int, int) {
	if split || size > dsp.MaxTU {
		return size / 2, 4
	}
	return size, 1
}

// tuOrigin returns the offset of transform t of size tu in z-order.
func tuOrigin(t, tu int) (int, int) {
	return (t & 1) * tu, (t >> 1) * tu
}
