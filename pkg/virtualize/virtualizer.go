package virtualize

import (
	"context"
	"sync"
	"time"

	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/metrics"
	"github.com/ritzau/deps-viz/pkg/model"
)

// Virtualizer owns the active scheduler. It prefers the background worker and
// switches to the frame scheduler for good the first time the worker fails.
type Virtualizer struct {
	mu sync.Mutex

	cfg   Config
	hints DeviceHints

	active      Scheduler
	usingWorker bool
	fellBack    bool

	graph *Snapshot
	last  *Request

	onResult   func(Result)
	onFallback func(error)
	newWorker  func(ctx context.Context, cfg Config, hints DeviceHints) (Scheduler, error)
}

// Option configures a Virtualizer.
type Option func(*Virtualizer)

// WithResultHandler registers fn to receive every accepted result. It is called
// from Frame, outside the Virtualizer's lock.
func WithResultHandler(fn func(Result)) Option {
	return func(v *Virtualizer) { v.onResult = fn }
}

// WithFallbackHandler registers fn to be told, once, that the worker failed
// and the frame scheduler took over.
func WithFallbackHandler(fn func(error)) Option {
	return func(v *Virtualizer) { v.onFallback = fn }
}

func withWorkerFactory(f func(ctx context.Context, cfg Config, hints DeviceHints) (Scheduler, error)) Option {
	return func(v *Virtualizer) { v.newWorker = f }
}

func defaultWorkerFactory(ctx context.Context, cfg Config, hints DeviceHints) (Scheduler, error) {
	return NewWorkerScheduler(ctx, cfg, hints)
}

// New creates a Virtualizer. With cfg.UseWorker it tries to start the worker
// and falls back immediately if that fails.
func New(ctx context.Context, cfg Config, hints DeviceHints, opts ...Option) *Virtualizer {
	v := &Virtualizer{
		cfg:       cfg,
		hints:     hints,
		newWorker: defaultWorkerFactory,
	}
	for _, opt := range opts {
		opt(v)
	}

	if !cfg.UseWorker {
		v.active = NewFrameScheduler(cfg, hints)
		return v
	}

	w, err := v.newWorker(ctx, cfg, hints)
	if err != nil {
		if notify := v.fallbackLocked(err); notify != nil {
			notify()
		}
		return v
	}
	v.active = w
	v.usingWorker = true
	return v
}

// SetGraph replaces the graph snapshot and rebuilds the edge priority order.
func (v *Virtualizer) SetGraph(nodes []model.Node, edges []model.Edge) {
	snap := NewSnapshot(nodes, edges)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.graph = &snap
	v.active.SetGraph(snap)
}

// Request schedules a recalculation for the given viewport.
func (v *Virtualizer) Request(req Request) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = &req
	v.active.Request(req)
}

// Frame drives the active scheduler and returns the newest accepted result.
func (v *Virtualizer) Frame(now time.Time) *Result {
	v.mu.Lock()
	res, err := v.active.Frame(now)
	var notify func()
	if err != nil {
		notify = v.fallbackLocked(err)
		res, _ = v.active.Frame(now)
	}
	onResult := v.onResult
	v.mu.Unlock()

	if notify != nil {
		notify()
	}
	if res != nil {
		metrics.VisibleEdges.Set(float64(res.FinalVisibleCount))
		if onResult != nil {
			onResult(*res)
		}
	}
	return res
}

// UsingWorker reports whether the background worker is still active.
func (v *Virtualizer) UsingWorker() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.usingWorker
}

func (v *Virtualizer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active != nil {
		v.active.Close()
	}
}

// fallbackLocked swaps in the frame scheduler, replaying the current graph and
// request. It returns the notification to run after the lock is released, or
// nil if the switch already happened.
func (v *Virtualizer) fallbackLocked(cause error) func() {
	if v.fellBack {
		return nil
	}
	v.fellBack = true
	v.usingWorker = false

	if v.active != nil {
		v.active.Close()
	}
	fs := NewFrameScheduler(v.cfg, v.hints)
	if v.graph != nil {
		fs.SetGraph(*v.graph)
	}
	if v.last != nil {
		fs.Request(*v.last)
	}
	v.active = fs

	metrics.WorkerFallbacks.Inc()
	logging.Warn("virtualization worker disabled, using frame scheduler", "error", cause)

	fn := v.onFallback
	if fn == nil {
		return nil
	}
	return func() { fn(cause) }
}
