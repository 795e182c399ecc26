package virtualize

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ritzau/deps-viz/pkg/model"
)

func centeredRequest() Request {
	return Request{
		Viewport:      Viewport{X: 450, Y: 300, Zoom: 1},
		ContainerSize: model.Size{Width: 900, Height: 600},
	}
}

// waitForResult keeps driving frames until the scheduler produces a result.
func waitForResult(t *testing.T, s Scheduler, start time.Time) *Result {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	now := start
	for time.Now().Before(deadline) {
		res, err := s.Frame(now)
		if err != nil {
			t.Fatalf("Frame failed: %v", err)
		}
		if res != nil {
			return res
		}
		time.Sleep(time.Millisecond)
		now = now.Add(time.Second)
	}
	t.Fatalf("No result before deadline")
	return nil
}

func TestFrameSchedulerCoalescesWithinFrameGap(t *testing.T) {
	nodes, edges := nearFarGraph()
	cfg := DefaultConfig()
	cfg.MinFrameGap = 32 * time.Millisecond
	s := NewFrameScheduler(cfg, DeviceHints{})
	s.SetGraph(NewSnapshot(nodes, edges))

	t0 := time.Unix(1000, 0)
	if res, _ := s.Frame(t0); res != nil {
		t.Fatalf("Expected no result without a request")
	}

	s.Request(centeredRequest())
	if res, _ := s.Frame(t0); res == nil {
		t.Fatalf("Expected first request to compute immediately")
	}

	s.Request(centeredRequest())
	s.Request(centeredRequest())
	if res, _ := s.Frame(t0.Add(10 * time.Millisecond)); res != nil {
		t.Errorf("Expected request inside the frame gap to wait")
	}
	if res, _ := s.Frame(t0.Add(40 * time.Millisecond)); res == nil {
		t.Errorf("Expected coalesced request to run after the frame gap")
	}
	if res, _ := s.Frame(t0.Add(100 * time.Millisecond)); res != nil {
		t.Errorf("Expected nothing left to compute")
	}
}

func TestFrameSchedulerRecomputesOnGraphChange(t *testing.T) {
	nodes, edges := nearFarGraph()
	s := NewFrameScheduler(DefaultConfig(), DeviceHints{})
	s.SetGraph(NewSnapshot(nodes, edges))
	s.Request(centeredRequest())

	t0 := time.Unix(1000, 0)
	if res, _ := s.Frame(t0); res == nil || res.FinalVisibleCount != 1 {
		t.Fatalf("Unexpected first result: %+v", res)
	}

	s.SetGraph(NewSnapshot(nodes, edges[:1]))
	res, _ := s.Frame(t0.Add(time.Second))
	if res == nil {
		t.Fatalf("Expected recompute after graph change")
	}
	if len(res.HiddenEdgeIDs) != 0 {
		t.Errorf("Expected only the near edge left, got %+v", res)
	}
}

func TestWorkerMatchesFrameScheduler(t *testing.T) {
	nodes, edges := nearFarGraph()
	cfg := DefaultConfig()
	req := centeredRequest()
	req.UserHiddenEdgeIDs = []string{"missing"}

	fs := NewFrameScheduler(cfg, DeviceHints{})
	fs.SetGraph(NewSnapshot(nodes, edges))
	fs.Request(req)
	want, _ := fs.Frame(time.Unix(1000, 0))

	ws, err := NewWorkerScheduler(context.Background(), cfg, DeviceHints{})
	if err != nil {
		t.Fatalf("NewWorkerScheduler failed: %v", err)
	}
	defer ws.Close()
	ws.SetGraph(NewSnapshot(nodes, edges))
	ws.Request(req)
	got := waitForResult(t, ws, time.Unix(1000, 0))

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Worker and frame scheduler disagree:\nworker: %+v\nframe:  %+v", got, want)
	}
}

func TestWorkerDropsStaleResponses(t *testing.T) {
	nodes, edges := nearFarGraph()
	cfg := DefaultConfig()
	cfg.MinFrameGap = time.Hour

	ws, err := NewWorkerScheduler(context.Background(), cfg, DeviceHints{})
	if err != nil {
		t.Fatalf("NewWorkerScheduler failed: %v", err)
	}
	defer ws.Close()

	ws.SetGraph(NewSnapshot(nodes, edges))
	ws.Request(centeredRequest())

	t0 := time.Unix(1000, 0)
	if _, err := ws.Frame(t0); err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if ws.recalcVersion != 1 {
		t.Fatalf("Expected a recalc to be posted, version %d", ws.recalcVersion)
	}

	// Wait for the response to the first graph to be queued, then supersede it.
	deadline := time.Now().Add(2 * time.Second)
	for len(ws.outbox) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Worker never answered")
		}
		time.Sleep(time.Millisecond)
	}
	ws.SetGraph(NewSnapshot(nodes, edges[:1]))

	res, err := ws.Frame(t0.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if res != nil {
		t.Errorf("Stale response was applied: %+v", res)
	}

	res = waitForResult(t, ws, t0.Add(2*time.Hour))
	if res.FinalVisibleCount != 1 || len(res.HiddenEdgeIDs) != 0 {
		t.Errorf("Expected result for the new graph, got %+v", res)
	}
}

func TestWorkerReportsPanics(t *testing.T) {
	nodes, edges := nearFarGraph()
	ws, err := newWorkerScheduler(context.Background(), DefaultConfig(), DeviceHints{},
		func(Input) Result { panic("boom") })
	if err != nil {
		t.Fatalf("newWorkerScheduler failed: %v", err)
	}
	defer ws.Close()

	ws.SetGraph(NewSnapshot(nodes, edges))
	ws.Request(centeredRequest())

	deadline := time.Now().Add(2 * time.Second)
	now := time.Unix(1000, 0)
	for {
		_, err := ws.Frame(now)
		if err != nil {
			if !errors.Is(err, ErrWorkerFailed) {
				t.Errorf("Expected ErrWorkerFailed, got %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Worker panic was never reported")
		}
		time.Sleep(time.Millisecond)
		now = now.Add(time.Second)
	}

	// The failure is sticky.
	if _, err := ws.Frame(now.Add(time.Hour)); err == nil {
		t.Errorf("Expected the error to persist")
	}
}

func TestWorkerUnavailableWithCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewWorkerScheduler(ctx, DefaultConfig(), DeviceHints{}); !errors.Is(err, ErrWorkerUnavailable) {
		t.Errorf("Expected ErrWorkerUnavailable, got %v", err)
	}
}

func TestWorkerReportsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ws, err := NewWorkerScheduler(ctx, DefaultConfig(), DeviceHints{})
	if err != nil {
		t.Fatalf("NewWorkerScheduler failed: %v", err)
	}
	defer ws.Close()

	nodes, edges := nearFarGraph()
	ws.SetGraph(NewSnapshot(nodes, edges))
	cancel()

	done := make(chan error, 1)
	go func() {
		now := time.Unix(1000, 0)
		var err error
		// Far more posts than the inbox holds
		for i := 0; i < 40; i++ {
			ws.SetGraph(NewSnapshot(nodes, edges))
			ws.Request(centeredRequest())
			if _, err = ws.Frame(now); err != nil {
				break
			}
			now = now.Add(time.Second)
			time.Sleep(time.Millisecond)
		}
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrWorkerUnavailable) {
			t.Errorf("Expected ErrWorkerUnavailable, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Frame blocked after the worker context was cancelled")
	}
}

func TestVirtualizerFallsBackWhenWorkerContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	nodes, edges := nearFarGraph()
	var fallbacks atomic.Int32

	v := New(ctx, DefaultConfig(), DeviceHints{},
		WithFallbackHandler(func(error) { fallbacks.Add(1) }))
	defer v.Close()

	if !v.UsingWorker() {
		t.Fatalf("Expected the worker to start")
	}
	v.SetGraph(nodes, edges)
	cancel()

	done := make(chan *Result, 1)
	go func() {
		now := time.Unix(1000, 0)
		var last *Result
		for i := 0; i < 40; i++ {
			v.Request(centeredRequest())
			if res := v.Frame(now); res != nil {
				last = res
			}
			now = now.Add(time.Second)
			time.Sleep(time.Millisecond)
		}
		done <- last
	}()

	select {
	case res := <-done:
		if res == nil || res.FinalVisibleCount != 1 {
			t.Errorf("Expected the frame scheduler to keep computing, got %+v", res)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Virtualizer blocked after the worker context was cancelled")
	}

	if v.UsingWorker() {
		t.Errorf("Expected the frame scheduler to take over")
	}
	if got := fallbacks.Load(); got != 1 {
		t.Errorf("Expected exactly one fallback notification, got %d", got)
	}
}

func TestVirtualizerFallsBackOnceOnWorkerFailure(t *testing.T) {
	nodes, edges := nearFarGraph()
	var fallbacks atomic.Int32
	var results atomic.Int32

	v := New(context.Background(), DefaultConfig(), DeviceHints{},
		WithFallbackHandler(func(error) { fallbacks.Add(1) }),
		WithResultHandler(func(Result) { results.Add(1) }),
		withWorkerFactory(func(ctx context.Context, cfg Config, hints DeviceHints) (Scheduler, error) {
			return newWorkerScheduler(ctx, cfg, hints, func(Input) Result { panic("boom") })
		}),
	)
	defer v.Close()

	if !v.UsingWorker() {
		t.Fatalf("Expected the worker to start")
	}

	v.SetGraph(nodes, edges)
	v.Request(centeredRequest())

	deadline := time.Now().Add(2 * time.Second)
	now := time.Unix(1000, 0)
	var res *Result
	for res == nil {
		if time.Now().After(deadline) {
			t.Fatalf("No result after fallback")
		}
		res = v.Frame(now)
		time.Sleep(time.Millisecond)
		now = now.Add(time.Second)
	}

	if v.UsingWorker() {
		t.Errorf("Expected the frame scheduler to take over")
	}
	if res.FinalVisibleCount != 1 {
		t.Errorf("Unexpected result after fallback: %+v", res)
	}

	v.Request(centeredRequest())
	for i := 0; i < 5; i++ {
		v.Frame(now.Add(time.Duration(i) * time.Second))
	}
	if got := fallbacks.Load(); got != 1 {
		t.Errorf("Expected exactly one fallback notification, got %d", got)
	}
	if results.Load() < 2 {
		t.Errorf("Expected results to keep flowing, got %d", results.Load())
	}
	if v.UsingWorker() {
		t.Errorf("Worker must not be resumed")
	}
}

func TestVirtualizerFallsBackOnInitFailure(t *testing.T) {
	nodes, edges := nearFarGraph()
	var fallbacks atomic.Int32

	v := New(context.Background(), DefaultConfig(), DeviceHints{},
		WithFallbackHandler(func(error) { fallbacks.Add(1) }),
		withWorkerFactory(func(context.Context, Config, DeviceHints) (Scheduler, error) {
			return nil, ErrWorkerUnavailable
		}),
	)
	defer v.Close()

	if v.UsingWorker() || fallbacks.Load() != 1 {
		t.Fatalf("Expected immediate fallback, worker=%v fallbacks=%d", v.UsingWorker(), fallbacks.Load())
	}

	v.SetGraph(nodes, edges)
	v.Request(centeredRequest())
	if res := v.Frame(time.Unix(1000, 0)); res == nil || res.FinalVisibleCount != 1 {
		t.Errorf("Expected the frame scheduler to compute, got %+v", res)
	}
}

func TestVirtualizerWithoutWorker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseWorker = false
	v := New(context.Background(), cfg, DeviceHints{},
		withWorkerFactory(func(context.Context, Config, DeviceHints) (Scheduler, error) {
			t.Fatalf("Worker should not be started")
			return nil, nil
		}),
	)
	defer v.Close()

	if v.UsingWorker() {
		t.Errorf("Expected the frame scheduler")
	}
}
