package virtualize

import (
	"time"

	"github.com/ritzau/deps-viz/pkg/model"
)

// Snapshot is the graph state a scheduler computes against.
type Snapshot struct {
	Nodes             []model.Node `json:"nodes"`
	Edges             []model.Edge `json:"edges"`
	EdgePriorityOrder []string     `json:"edgePriorityOrder"`
}

// NewSnapshot captures nodes and edges together with their priority order.
func NewSnapshot(nodes []model.Node, edges []model.Edge) Snapshot {
	return Snapshot{
		Nodes:             nodes,
		Edges:             edges,
		EdgePriorityOrder: BuildEdgePriorityOrder(nodes, edges),
	}
}

// Request is a recalculation trigger: the viewport moved, the container was
// resized or the user's hidden set changed.
type Request struct {
	Viewport          Viewport   `json:"viewport"`
	ContainerSize     model.Size `json:"containerSize"`
	UserHiddenEdgeIDs []string   `json:"userHiddenEdgeIds,omitempty"`
}

func (s Snapshot) input(req Request, cfg Config, hints DeviceHints) Input {
	return Input{
		Nodes:             s.Nodes,
		Edges:             s.Edges,
		Viewport:          req.Viewport,
		ContainerSize:     req.ContainerSize,
		UserHiddenEdgeIDs: req.UserHiddenEdgeIDs,
		EdgePriorityOrder: s.EdgePriorityOrder,
		Config:            cfg,
		Hints:             hints,
	}
}

// Scheduler decides when Compute runs. Frame is called once per display frame
// and returns the newest result that became available, if any.
type Scheduler interface {
	SetGraph(Snapshot)
	Request(Request)
	Frame(now time.Time) (*Result, error)
	Close()
}

// FrameScheduler runs Compute inline, at most once per Config.MinFrameGap.
// Requests arriving in between are coalesced into the latest one. It is not
// safe for concurrent use.
type FrameScheduler struct {
	cfg   Config
	hints DeviceHints

	graph    Snapshot
	hasGraph bool
	pending  *Request
	dirty    bool
	lastRun  time.Time
}

func NewFrameScheduler(cfg Config, hints DeviceHints) *FrameScheduler {
	return &FrameScheduler{cfg: cfg, hints: hints}
}

func (s *FrameScheduler) SetGraph(g Snapshot) {
	s.graph = g
	s.hasGraph = true
	s.dirty = s.pending != nil
}

func (s *FrameScheduler) Request(req Request) {
	s.pending = &req
	s.dirty = true
}

func (s *FrameScheduler) Frame(now time.Time) (*Result, error) {
	if !s.dirty || !s.hasGraph || s.pending == nil {
		return nil, nil
	}
	if !s.lastRun.IsZero() && now.Sub(s.lastRun) < s.cfg.MinFrameGap {
		return nil, nil
	}
	res := Compute(s.graph.input(*s.pending, s.cfg, s.hints))
	s.dirty = false
	s.lastRun = now
	return &res, nil
}

func (s *FrameScheduler) Close() {}
