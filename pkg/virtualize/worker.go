package virtualize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/metrics"
)

var (
	// ErrWorkerUnavailable is returned when the background worker cannot start
	// or has already been shut down.
	ErrWorkerUnavailable = errors.New("virtualization worker unavailable")
	// ErrWorkerFailed wraps an error reported by a running worker.
	ErrWorkerFailed = errors.New("virtualization worker failed")
)

const (
	msgInit   = "init"
	msgGraph  = "graph"
	msgRecalc = "recalc"
)

// workerMessage is the only thing that crosses into the worker goroutine. It
// travels as JSON so the worker never shares memory with the caller.
type workerMessage struct {
	Kind          string       `json:"kind"`
	GraphVersion  int64        `json:"graphVersion"`
	RecalcVersion int64        `json:"recalcVersion,omitempty"`
	Graph         *Snapshot    `json:"graph,omitempty"`
	Request       *Request     `json:"request,omitempty"`
	Config        *Config      `json:"config,omitempty"`
	Hints         *DeviceHints `json:"hints,omitempty"`
}

type workerResponse struct {
	GraphVersion  int64   `json:"graphVersion"`
	RecalcVersion int64   `json:"recalcVersion"`
	Result        *Result `json:"result,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// WorkerScheduler runs Compute on a background goroutine. Recalculation
// requests are debounced with the same frame gap as FrameScheduler, and
// responses whose echoed versions are no longer current are dropped.
//
// SetGraph, Request, Frame and Close must be called from a single goroutine.
type WorkerScheduler struct {
	cfg   Config
	hints DeviceHints

	inbox   chan []byte
	outbox  chan []byte
	done    chan struct{}
	stopped chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	graphVersion  int64
	recalcVersion int64
	hasGraph      bool
	pending       *Request
	dirty         bool
	lastPost      time.Time
	err           error
}

// NewWorkerScheduler starts the worker goroutine. It stops when ctx is done or
// Close is called.
func NewWorkerScheduler(ctx context.Context, cfg Config, hints DeviceHints) (*WorkerScheduler, error) {
	return newWorkerScheduler(ctx, cfg, hints, Compute)
}

func newWorkerScheduler(ctx context.Context, cfg Config, hints DeviceHints, compute func(Input) Result) (*WorkerScheduler, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
	}

	w := &WorkerScheduler{
		cfg:     cfg,
		hints:   hints,
		inbox:   make(chan []byte, 16),
		outbox:  make(chan []byte, 16),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run(ctx, compute)

	if err := w.post(workerMessage{Kind: msgInit, Config: &cfg, Hints: &hints}); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *WorkerScheduler) SetGraph(g Snapshot) {
	w.graphVersion++
	if err := w.post(workerMessage{Kind: msgGraph, GraphVersion: w.graphVersion, Graph: &g}); err != nil {
		w.fail(err)
		return
	}
	w.hasGraph = true
	w.dirty = w.pending != nil
}

func (w *WorkerScheduler) Request(req Request) {
	w.pending = &req
	w.dirty = true
}

// Frame posts a debounced recalculation and drains responses. The returned
// error is sticky: once the worker failed every later Frame reports it.
func (w *WorkerScheduler) Frame(now time.Time) (*Result, error) {
	if w.err != nil {
		return nil, w.err
	}
	select {
	case <-w.stopped:
		w.fail(ErrWorkerUnavailable)
		return nil, w.err
	default:
	}

	if w.dirty && w.hasGraph && w.pending != nil &&
		(w.lastPost.IsZero() || now.Sub(w.lastPost) >= w.cfg.MinFrameGap) {
		w.recalcVersion++
		msg := workerMessage{
			Kind:          msgRecalc,
			GraphVersion:  w.graphVersion,
			RecalcVersion: w.recalcVersion,
			Request:       w.pending,
		}
		if err := w.post(msg); err != nil {
			w.fail(err)
			return nil, w.err
		}
		w.dirty = false
		w.lastPost = now
	}

	var latest *Result
	for {
		select {
		case raw := <-w.outbox:
			var resp workerResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				w.fail(fmt.Errorf("decoding worker response: %w", err))
				return nil, w.err
			}
			if resp.Error != "" {
				w.fail(errors.New(resp.Error))
				return nil, w.err
			}
			if resp.GraphVersion != w.graphVersion || resp.RecalcVersion != w.recalcVersion {
				metrics.StaleResultsDropped.WithLabelValues(metrics.SourceVirtualization).Inc()
				logging.Trace("dropping stale virtualization result",
					"graphVersion", resp.GraphVersion, "recalcVersion", resp.RecalcVersion,
					"currentGraph", w.graphVersion, "currentRecalc", w.recalcVersion)
				continue
			}
			latest = resp.Result
		default:
			return latest, nil
		}
	}
}

// Close stops the worker goroutine and waits for it to exit.
func (w *WorkerScheduler) Close() {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *WorkerScheduler) fail(err error) {
	if w.err == nil {
		w.err = fmt.Errorf("%w: %w", ErrWorkerFailed, err)
	}
}

func (w *WorkerScheduler) post(msg workerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", msg.Kind, err)
	}
	// A worker that exited on its own never drains the inbox again
	select {
	case <-w.stopped:
		return ErrWorkerUnavailable
	default:
	}
	select {
	case w.inbox <- payload:
		return nil
	case <-w.done:
		return ErrWorkerUnavailable
	case <-w.stopped:
		return ErrWorkerUnavailable
	}
}

// workerState lives entirely on the worker goroutine.
type workerState struct {
	compute      func(Input) Result
	cfg          Config
	hints        DeviceHints
	graph        Snapshot
	graphVersion int64
}

func (w *WorkerScheduler) run(ctx context.Context, compute func(Input) Result) {
	defer w.wg.Done()
	defer close(w.stopped)

	st := &workerState{compute: compute, cfg: DefaultConfig()}
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case raw := <-w.inbox:
			resp := st.handle(raw)
			if resp == nil {
				continue
			}
			payload, err := json.Marshal(resp)
			if err != nil {
				payload, _ = json.Marshal(workerResponse{Error: err.Error()})
			}
			select {
			case w.outbox <- payload:
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// handle processes one message. Panics are turned into error responses.
func (st *workerState) handle(raw []byte) (resp *workerResponse) {
	var msg workerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return &workerResponse{Error: fmt.Sprintf("decoding message: %v", err)}
	}

	defer func() {
		if r := recover(); r != nil {
			resp = &workerResponse{
				GraphVersion:  msg.GraphVersion,
				RecalcVersion: msg.RecalcVersion,
				Error:         fmt.Sprintf("panic in %s: %v", msg.Kind, r),
			}
		}
	}()

	switch msg.Kind {
	case msgInit:
		if msg.Config != nil {
			st.cfg = *msg.Config
		}
		if msg.Hints != nil {
			st.hints = *msg.Hints
		}
		return nil
	case msgGraph:
		if msg.Graph != nil {
			st.graph = *msg.Graph
		}
		st.graphVersion = msg.GraphVersion
		return nil
	case msgRecalc:
		if msg.Request == nil {
			return nil
		}
		res := st.compute(st.graph.input(*msg.Request, st.cfg, st.hints))
		return &workerResponse{
			GraphVersion:  st.graphVersion,
			RecalcVersion: msg.RecalcVersion,
			Result:        &res,
		}
	}
	return &workerResponse{Error: fmt.Sprintf("unknown message kind %q", msg.Kind)}
}
