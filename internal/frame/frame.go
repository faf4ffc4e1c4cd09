package frame

import (
	"fmt"
	"sync"

	"github.com/deepteams/hevcenc/internal/analysis"
	"github.com/deepteams/hevcenc/internal/cabac"
	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/nbr"
	"github.com/deepteams/hevcenc/internal/pool"
	"github.com/deepteams/hevcenc/internal/recursion"
	"github.com/deepteams/hevcenc/internal/sched"
	"github.com/deepteams/hevcenc/internal/types"
)

// CTB is the outcome of one CTB.
type CTB struct {
	X, Y int // in CTB units
	analysis.CTBInfo
	recursion.CTBResult
	SAO dsp.SAOParams
}

// Result is the outcome of a frame.
type Result struct {
	// Recon is the reconstruction after deblocking and SAO, padded by
	// RefPad samples.
	Recon *types.Plane
	CTBs  []CTB
	Stats Stats
}

// state is the per-frame scratch reused across frames.
type state struct {
	sync  *sched.FrameSync
	bands *nbr.Bands
	wpp   []cabac.Contexts // per (row, tile)
	stats []Stats          // per (row, tile)
	width int
}

var statePool sync.Pool

func getState(cfg *Config) *state {
	rows, tiles := cfg.CTBRows(), cfg.TileCols
	if v := statePool.Get(); v != nil {
		st := v.(*state)
		if st.sync.Fits(rows, tiles, cfg.Wait) && st.width >= cfg.Width {
			st.sync.Reset()
			clear(st.stats)
			return st
		}
	}
	return &state{
		sync:  sched.NewFrameSync(rows, tiles, cfg.Wait),
		bands: nbr.NewBands(cfg.Width),
		wpp:   make([]cabac.Contexts, rows*tiles),
		stats: make([]Stats, rows*tiles),
		width: cfg.Width,
	}
}

// Frame is one picture being encoded.
type Frame struct {
	cfg   *Config
	src   *types.Plane
	ref   *types.Plane
	recon *types.Plane // deblocked in place
	out   *types.Plane
	ctbs  []CTB
	st    *state
}

// New prepares the encode of src. ref is the previous reconstruction and
// must be set for P slices. cfg must not change until Finish.
func New(cfg *Config, src, ref *types.Plane) (*Frame, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src.Width != cfg.Width || src.Height != cfg.Height {
		return nil, fmt.Errorf("%w: source is %dx%d, want %dx%d", ErrConfig, src.Width, src.Height, cfg.Width, cfg.Height)
	}
	if cfg.Slice == types.SliceP {
		if ref == nil || ref.Width != cfg.Width || ref.Height != cfg.Height {
			return nil, fmt.Errorf("%w: P slice without a matching reference", ErrConfig)
		}
	} else {
		ref = nil
	}
	f := &Frame{
		cfg:   cfg,
		src:   src,
		ref:   ref,
		recon: types.WrapPlane(pool.Get(types.PlaneLen(cfg.Width, cfg.Height, 0)), cfg.Width, cfg.Height, 0),
		out:   types.NewPlane(cfg.Width, cfg.Height, RefPad),
		ctbs:  make([]CTB, cfg.CTBCols()*cfg.CTBRows()),
		st:    getState(cfg),
	}
	return f, nil
}

// Rows returns the number of CTB rows.
func (f *Frame) Rows() int { return f.cfg.CTBRows() }

// Tiles returns the number of tile columns.
func (f *Frame) Tiles() int { return f.cfg.TileCols }

// Abort releases every worker blocked on this frame.
func (f *Frame) Abort() { f.st.sync.Abort() }

// waitOffset is the offset for a wait on the row above row: none for the
// first row.
func waitOffset(row int) int {
	if row == 0 {
		return -1
	}
	return 0
}

// EncodeRow encodes CTB row of tile column t. Rows of one tile column may
// run concurrently on different workers as long as row r-1 was started
// before row r.
func (f *Frame) EncodeRow(ws *WorkerState, row, t int) error {
	cfg := f.cfg
	ctb := cfg.CTBSize
	cols := cfg.CTBCols()
	tx0, tx1 := cfg.Tile(t)
	lx0, lx1 := cfg.tileLuma(t)
	fs := f.st.sync
	off := waitOffset(row)
	last := row == f.Rows()-1
	py := row * ctb
	ch := min(ctb, cfg.Height-py)

	ws.bind(cfg)
	ws.analyzer.SetTile(lx0, lx1)
	m := &ws.m
	m.StartRow(nbr.Geometry{
		CTBSize: ctb,
		CTBY:    row,
		Width:   cfg.Width,
		Height:  cfg.Height,
		TileX0:  lx0,
		TileX1:  lx1,
	}, f.st.bands)

	var stats Stats
	for x := tx0; x < tx1; x++ {
		px := x * ctb
		cw := min(ctb, cfg.Width-px)
		end := x == tx1-1

		// Top-right CTB decided.
		fs.CU.WaitUntil(t, min(px+2*ctb, lx1), off, row-1)
		if x == tx0 {
			if row == 0 {
				ws.ctx.Init(cfg.Slice, cfg.QP)
			} else {
				ws.ctx = f.st.wpp[(row-1)*cfg.TileCols+t]
			}
		}

		ws.tree.Reset(cw, ch)
		info := ws.analyzer.Run(ws.tree, f.src, f.ref, px, py)
		m.StartCTB(x)
		res, err := ws.ctrl.Run(ws.tree, &recursion.CTB{
			Map:   m,
			Src:   f.src,
			Ref:   f.ref,
			Slice: cfg.Slice,
			Info:  info,
			Ctx:   &ws.ctx,
		})
		if err != nil {
			return fmt.Errorf("frame: row %d tile %d: %w", row, t, err)
		}
		if x == min(tx0+1, tx1-1) {
			f.st.wpp[row*cfg.TileCols+t] = ws.ctx
		}
		strengths(m, &ws.bs[x&1], cw, ch)
		m.FinishCTB(cw, ch)
		for y := 0; y < ch; y++ {
			o := f.recon.Offset(px, py+y)
			copy(f.recon.Pix[o:o+cw], m.Recon[y*nbr.ReconStride:y*nbr.ReconStride+cw])
		}
		so := f.src.Offset(px, py)
		stats.addCTB(&res, ws.k.SAD(f.src.Pix[so:], f.src.Stride, m.Recon[:], nbr.ReconStride, cw, ch))
		f.ctbs[row*cols+x] = CTB{X: x, Y: row, CTBInfo: info, CTBResult: res}
		fs.CU.Advance(row, t, px+cw)

		// Vertical edges of this CTB, then horizontal edges of the previous
		// one, whose samples no longer change.
		if cfg.Deblock {
			deblockVertical(f.recon, &ws.bs[x&1], px, py, cw, ch, cfg.QP)
		}
		if x > tx0 {
			fs.Deblock.WaitUntil(t, px, off, row-1)
			if cfg.Deblock {
				deblockHorizontal(f.recon, &ws.bs[(x-1)&1], px-ctb, py, ctb, ch, cfg.QP)
			}
			fs.Deblock.Advance(row, t, px)
		}
		if end {
			fs.Deblock.WaitUntil(t, lx1, off, row-1)
			if cfg.Deblock {
				deblockHorizontal(f.recon, &ws.bs[x&1], px, py, cw, ch, cfg.QP)
			}
			fs.Deblock.Advance(row, t, lx1)
		}

		// SAO of the row above trails by two CTBs: its ring reaches into
		// samples the horizontal pass of this row touches last.
		if row > 0 {
			if x-2 >= tx0 {
				f.sao(x-2, row-1, t)
			}
			if end {
				for c := max(x-1, tx0); c <= x; c++ {
					f.sao(c, row-1, t)
				}
			}
		}
	}
	if row > 0 {
		f.out.PadEdges(py-ctb, py, lx0 == 0, lx1 == cfg.Width)
	}
	if last {
		for c := tx0; c < tx1; c++ {
			f.sao(c, row, t)
		}
		f.out.PadEdges(py, py+ch, lx0 == 0, lx1 == cfg.Width)
	}
	f.st.stats[row*cfg.TileCols+t] = stats
	return nil
}

// Finish completes the frame once every row job has returned. The frame
// must not be used afterwards.
func (f *Frame) Finish() *Result {
	f.out.PadVertical()
	var st Stats
	for i := range f.st.stats {
		st.Add(&f.st.stats[i])
	}
	for i := range f.ctbs {
		if f.ctbs[i].SAO.Enabled {
			st.SAOCTBs++
		}
	}
	pool.Put(f.recon.Pix)
	statePool.Put(f.st)
	r := &Result{Recon: f.out, CTBs: f.ctbs, Stats: st}
	f.recon, f.st, f.out, f.ctbs = nil, nil, nil, nil
	return r
}

// Encode encodes one frame with the given workers.
func Encode(cfg *Config, src, ref *types.Plane, workers []*WorkerState) (*Result, error) {
	f, err := New(cfg, src, ref)
	if err != nil {
		return nil, err
	}
	q := sched.NewJobQueue(1, f.Rows(), f.Tiles())
	err = sched.RunWorkers(len(workers), q, func(w int, j sched.Job) error {
		return f.EncodeRow(workers[w], j.Row, j.Tile)
	}, f.Abort)
	if err != nil {
		f.Finish()
		return nil, err
	}
	return f.Finish(), nil
}
