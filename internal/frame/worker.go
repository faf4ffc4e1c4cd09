package frame

import (
	"github.com/deepteams/hevcenc/internal/analysis"
	"github.com/deepteams/hevcenc/internal/cabac"
	"github.com/deepteams/hevcenc/internal/cutree"
	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/modedec"
	"github.com/deepteams/hevcenc/internal/nbr"
	"github.com/deepteams/hevcenc/internal/pool"
	"github.com/deepteams/hevcenc/internal/recursion"
	"github.com/deepteams/hevcenc/internal/sift"
)

// predSlots is the prediction pool capacity of a worker. A CU decision
// holds at most four slots at a time.
const predSlots = 8

// maxBindings bounds the component sets a worker keeps. Jobs of several
// instances interleave, each with an I and a P configuration.
const maxBindings = 8

// binding is the set of decision components built for one Config.
type binding struct {
	cfg      Config
	engine   *modedec.Engine
	sifter   *sift.Sifter
	analyzer *analysis.Analyzer
	ctrl     *recursion.Controller
}

// WorkerState is everything one worker owns. It is never shared between
// goroutines; a worker may serve jobs of different frames and bitrate
// instances and rebinds itself to the job's Config.
type WorkerState struct {
	k    dsp.Kernels
	pool *pool.PredPool

	bound    []*binding // most recently used last
	cfg      *Config
	engine   *modedec.Engine
	sifter   *sift.Sifter
	analyzer *analysis.Analyzer
	ctrl     *recursion.Controller
	tree     *cutree.Tree

	m   nbr.Map
	ctx cabac.Contexts
	bs  [2]edges
}

// NewWorkerState returns a worker using kernels k.
func NewWorkerState(k dsp.Kernels) (*WorkerState, error) {
	pl, err := pool.NewPredPool(predSlots, modedec.SlotSize)
	if err != nil {
		return nil, err
	}
	return &WorkerState{k: k, pool: pl}, nil
}

// NewWorkers returns n workers using kernels k.
func NewWorkers(n int, k dsp.Kernels) ([]*WorkerState, error) {
	ws := make([]*WorkerState, max(n, 1))
	for i := range ws {
		w, err := NewWorkerState(k)
		if err != nil {
			return nil, err
		}
		ws[i] = w
	}
	return ws, nil
}

// bind prepares the worker for jobs of cfg. Components built for an equal
// configuration are reused; the least recently used set is dropped once
// maxBindings are kept.
func (ws *WorkerState) bind(cfg *Config) {
	if ws.cfg != nil && *ws.cfg == *cfg {
		return
	}
	b := ws.lookup(cfg)
	if b == nil {
		b = ws.build(cfg)
		if len(ws.bound) == maxBindings {
			copy(ws.bound, ws.bound[1:])
			ws.bound = ws.bound[:maxBindings-1]
		}
		ws.bound = append(ws.bound, b)
	}
	ws.cfg = &b.cfg
	ws.engine, ws.sifter, ws.analyzer, ws.ctrl = b.engine, b.sifter, b.analyzer, b.ctrl
	if ws.tree == nil || ws.tree.CTBSize != cfg.CTBSize || ws.tree.MinCU != cfg.MinCU {
		ws.tree = cutree.New(cfg.CTBSize, cfg.MinCU)
	}
}

// lookup returns the binding for cfg and marks it most recently used.
func (ws *WorkerState) lookup(cfg *Config) *binding {
	for i, b := range ws.bound {
		if b.cfg == *cfg {
			copy(ws.bound[i:], ws.bound[i+1:])
			ws.bound[len(ws.bound)-1] = b
			return b
		}
	}
	return nil
}

func (ws *WorkerState) build(cfg *Config) *binding {
	b := &binding{cfg: *cfg}
	b.engine = modedec.NewEngine(ws.k, ws.pool, modedec.Config{Gate: modedec.SkipGate{Preset: cfg.Preset}})
	b.engine.SetParams(modedec.Params{
		QP:      cfg.QP,
		Lambda:  cfg.Lambda,
		Slice:   cfg.Slice,
		ZeroCbf: cfg.ZeroCbf,
		MinCU:   cfg.MinCU,
	})
	b.sifter = sift.New(ws.k, sift.Config{
		Preset:     cfg.Preset,
		Metric:     cfg.Metric,
		SATDLambda: cfg.SATDLambda,
		MinCU:      cfg.MinCU,
	})
	b.analyzer = analysis.New(ws.k, analysis.Config{Preset: cfg.Preset, SATDLambda: cfg.SATDLambda})
	b.ctrl = recursion.New(recursion.Config{Preset: cfg.Preset, Lambda: cfg.Lambda}, b.sifter, b.engine)
	return b
}
