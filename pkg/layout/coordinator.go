package layout

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ritzau/deps-viz/pkg/collision"
	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/metrics"
	"github.com/ritzau/deps-viz/pkg/model"
)

// Config holds the layout settings
type Config struct {
	Engine           string  `json:"engine" koanf:"engine"`
	Direction        string  `json:"direction" koanf:"direction"`
	NodeSpacing      float64 `json:"nodeSpacing" koanf:"nodespacing"`
	RankSpacing      float64 `json:"rankSpacing" koanf:"rankspacing"`
	TwoPassThreshold int     `json:"twoPassThreshold" koanf:"twopassthreshold"` // Measure and relayout below this many nodes
	Settle           bool    `json:"settle" koanf:"settle"`                     // Run the collision resolver after layout
}

// DefaultConfig returns the layout defaults
func DefaultConfig() Config {
	return Config{
		Engine:           EngineGrid,
		Direction:        DirectionTopBottom,
		NodeSpacing:      40,
		RankSpacing:      80,
		TwoPassThreshold: 400,
		Settle:           true,
	}
}

// Outcome is the result of one coordinated layout. A stale outcome was
// superseded by a newer request while it ran and carries no graph.
type Outcome struct {
	Version   uint64            `json:"version"`
	Stale     bool              `json:"stale"`
	Graph     *model.Graph      `json:"graph,omitempty"`
	Passes    int               `json:"passes"`
	Collision *collision.Result `json:"collision,omitempty"`
}

// Coordinator runs layout requests against an engine. Every request bumps a
// version counter; a request that finds the counter moved on when its engine
// returns is dropped.
type Coordinator struct {
	engine    Engine
	measurer  Measurer
	cfg       Config
	collision collision.Config
	version   atomic.Uint64
}

// NewCoordinator creates a coordinator. measurer may be nil to always run a
// single pass.
func NewCoordinator(engine Engine, measurer Measurer, cfg Config, collisionCfg collision.Config) *Coordinator {
	return &Coordinator{
		engine:    engine,
		measurer:  measurer,
		cfg:       cfg,
		collision: collisionCfg,
	}
}

// Version returns the version of the latest request
func (c *Coordinator) Version() uint64 {
	return c.version.Load()
}

// Invalidate supersedes every in-flight request
func (c *Coordinator) Invalidate() uint64 {
	return c.version.Add(1)
}

func (c *Coordinator) stale(v uint64) bool {
	if c.version.Load() == v {
		return false
	}
	metrics.StaleResultsDropped.WithLabelValues(metrics.SourceLayout).Inc()
	logging.Debug("dropping stale layout", "version", v, "current", c.version.Load())
	return true
}

// Run lays out g and returns a copy with positions and sizes applied. The
// input graph is not modified.
func (c *Coordinator) Run(ctx context.Context, g *model.Graph) (*Outcome, error) {
	if c.engine == nil {
		return nil, ErrNoEngine
	}

	v := c.version.Add(1)
	start := time.Now()
	out := g.Clone()

	// 1. First pass with the sizes the graph already carries
	if err := c.pass(ctx, out); err != nil {
		return nil, err
	}
	if c.stale(v) {
		return &Outcome{Version: v, Stale: true}, nil
	}
	passes := 1

	// 2. Measure and run again while the graph is small enough to afford it
	if c.measurer != nil && len(out.Nodes) < c.cfg.TwoPassThreshold {
		measured, err := c.measurer.Measure(ctx, out.Nodes)
		if err != nil {
			return nil, fmt.Errorf("measure nodes: %w", err)
		}
		c.applyMeasurements(out, measured)
		if err := c.pass(ctx, out); err != nil {
			return nil, err
		}
		if c.stale(v) {
			return &Outcome{Version: v, Stale: true}, nil
		}
		passes++
	}

	outcome := &Outcome{Version: v, Graph: out, Passes: passes}

	// 3. Settle whatever overlap the engine left behind
	if c.cfg.Settle {
		boxes := collision.BoxesFromNodes(out.Nodes, model.Size{})
		res := collision.Resolve(out.Nodes, boxes, c.collision, collision.Options{})
		metrics.ObserveResolve(res.CyclesUsed, res.Converged)
		applyCollision(out, res)
		outcome.Collision = &res
	}

	logging.Debug("layout complete",
		"engine", c.engine.Name(),
		"version", v,
		"nodes", len(out.Nodes),
		"passes", passes,
		"duration", time.Since(start))
	return outcome, nil
}

func (c *Coordinator) pass(ctx context.Context, g *model.Graph) error {
	res, err := c.engine.Layout(ctx, Request{
		Nodes: g.Nodes,
		Edges: g.Edges,
		Options: Options{
			Direction:     c.cfg.Direction,
			NodeSpacing:   c.cfg.NodeSpacing,
			RankSpacing:   c.cfg.RankSpacing,
			ModulePadding: c.collision.ModulePadding,
			GroupPadding:  c.collision.GroupPadding,
		},
	})
	if err != nil {
		return fmt.Errorf("%s layout: %w", c.engine.Name(), err)
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if p, ok := res.Positions[n.ID]; ok {
			n.Position = &model.Point{X: p.X, Y: p.Y}
		}
		if s, ok := res.Sizes[n.ID]; ok {
			n.Style = &model.NodeStyle{Width: s.Width, Height: s.Height}
		}
	}
	return nil
}

// applyMeasurements stores measured leaf sizes and raises group top insets to
// clear the measured header
func (c *Coordinator) applyMeasurements(g *model.Graph, measured map[string]Measurement) {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		m, ok := measured[n.ID]
		if !ok {
			continue
		}
		if m.Size.Width > 0 && m.Size.Height > 0 {
			size := m.Size
			n.Measured = &size
		}
		if m.HeaderHeight > 0 && n.Type.IsGroup() {
			top := m.HeaderHeight + c.collision.GroupPadding.Horizontal
			if n.Data.LayoutInsets == nil {
				n.Data.LayoutInsets = &model.Insets{}
			}
			if top > n.Data.LayoutInsets.Top {
				n.Data.LayoutInsets.Top = top
			}
		}
	}
}

func applyCollision(g *model.Graph, res collision.Result) {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if p, ok := res.UpdatedPositions[n.ID]; ok {
			n.Position = &model.Point{X: p.X, Y: p.Y}
		}
		if s, ok := res.UpdatedSizes[n.ID]; ok {
			n.Style = &model.NodeStyle{Width: s.Width, Height: s.Height}
		}
	}
}
