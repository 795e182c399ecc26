// Package virtualize decides which edges are worth rendering for the current
// viewport.
//
// Compute is the single pure implementation. FrameScheduler and WorkerScheduler
// only differ in how and when they call it, and the Virtualizer picks between
// them at runtime.
package virtualize

import (
	"math"
	"time"

	"github.com/ritzau/deps-viz/pkg/geometry"
	"github.com/ritzau/deps-viz/pkg/model"
)

// Viewport is the current pan and zoom. Screen = graph*Zoom + (X, Y).
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Config tunes culling and the low-zoom budget.
type Config struct {
	// ViewportPadding is in screen pixels and stays visually constant across zoom levels.
	ViewportPadding      float64       `json:"viewportPadding" koanf:"padding"`
	LowZoomThreshold     float64       `json:"lowZoomThreshold" koanf:"lowzoom"`
	VeryLowZoomThreshold float64       `json:"veryLowZoomThreshold" koanf:"verylowzoom"`
	VeryLowZoomScale     float64       `json:"veryLowZoomScale" koanf:"verylowzoomscale"`
	BaseBudget           int           `json:"baseBudget" koanf:"basebudget"`
	PerCoreBudget        int           `json:"perCoreBudget" koanf:"percorebudget"`
	PerGBBudget          int           `json:"perGBBudget" koanf:"pergbbudget"`
	MinBudget            int           `json:"minBudget" koanf:"minbudget"`
	MaxBudget            int           `json:"maxBudget" koanf:"maxbudget"`
	MinFrameGap          time.Duration `json:"minFrameGap" koanf:"framegap"`
	UseWorker            bool          `json:"useWorker" koanf:"worker"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ViewportPadding:      200,
		LowZoomThreshold:     0.5,
		VeryLowZoomThreshold: 0.25,
		VeryLowZoomScale:     0.5,
		BaseBudget:           300,
		PerCoreBudget:        40,
		PerGBBudget:          30,
		MinBudget:            100,
		MaxBudget:            1500,
		MinFrameGap:          32 * time.Millisecond,
		UseWorker:            true,
	}
}

// DeviceHints describes the capabilities the budget scales with.
type DeviceHints struct {
	HardwareConcurrency int     `json:"hardwareConcurrency"`
	DeviceMemoryGB      float64 `json:"deviceMemoryGB"`
}

// Conservative values for hints a host does not report.
const (
	DefaultHardwareConcurrency = 8
	DefaultDeviceMemoryGB      = 8
)

func (h DeviceHints) normalized() DeviceHints {
	if h.HardwareConcurrency <= 0 {
		h.HardwareConcurrency = DefaultHardwareConcurrency
	}
	if h.DeviceMemoryGB <= 0 || math.IsNaN(h.DeviceMemoryGB) || math.IsInf(h.DeviceMemoryGB, 0) {
		h.DeviceMemoryGB = DefaultDeviceMemoryGB
	}
	return h
}

// Input is everything a virtualization pass depends on. It is the payload that
// crosses the worker message boundary, so it must stay JSON-serialisable.
type Input struct {
	Nodes             []model.Node `json:"nodes"`
	Edges             []model.Edge `json:"edges"`
	Viewport          Viewport     `json:"viewport"`
	ContainerSize     model.Size   `json:"containerSize"`
	UserHiddenEdgeIDs []string     `json:"userHiddenEdgeIds,omitempty"`
	EdgePriorityOrder []string     `json:"edgePriorityOrder,omitempty"`
	Config            Config       `json:"config"`
	Hints             DeviceHints  `json:"hints"`
}

// Result lists edge ids in edge input order.
type Result struct {
	// HiddenEdgeIDs holds every edge that should not be rendered, including the
	// ones the user hid.
	HiddenEdgeIDs        []string `json:"hiddenEdgeIds"`
	FinalVisibleEdgeIDs  []string `json:"finalVisibleEdgeIds"`
	ViewportVisibleCount int      `json:"viewportVisibleCount"`
	FinalVisibleCount    int      `json:"finalVisibleCount"`
	LowZoomApplied       bool     `json:"lowZoomApplied"`
	LowZoomBudget        *int     `json:"lowZoomBudget,omitempty"`
}

// ViewportBounds returns the padded viewport rectangle in graph space.
func ViewportBounds(vp Viewport, container model.Size, paddingPx float64) model.Rect {
	zoom := vp.Zoom
	if zoom <= 0 || math.IsNaN(zoom) || math.IsInf(zoom, 0) {
		zoom = 1
	}
	visible := model.Rect{
		X:      -vp.X / zoom,
		Y:      -vp.Y / zoom,
		Width:  container.Width / zoom,
		Height: container.Height / zoom,
	}
	return visible.Expand(paddingPx / zoom)
}

// LowZoomBudget is the number of edges kept when zoomed out below the low-zoom
// threshold, before clamping to the viewport-visible count.
func LowZoomBudget(zoom float64, hints DeviceHints, cfg Config) int {
	h := hints.normalized()
	budget := float64(cfg.BaseBudget) +
		float64(cfg.PerCoreBudget*h.HardwareConcurrency) +
		float64(cfg.PerGBBudget)*h.DeviceMemoryGB
	if zoom < cfg.VeryLowZoomThreshold && cfg.VeryLowZoomScale > 0 {
		budget *= cfg.VeryLowZoomScale
	}
	b := int(math.Floor(budget))
	if cfg.MaxBudget > 0 && b > cfg.MaxBudget {
		b = cfg.MaxBudget
	}
	if b < cfg.MinBudget {
		b = cfg.MinBudget
	}
	if b < 0 {
		b = 0
	}
	return b
}

// Compute runs one virtualization pass. It never fails: edges whose endpoints
// cannot be located stay visible.
func Compute(in Input) Result {
	cfg := in.Config
	bounds := ViewportBounds(in.Viewport, in.ContainerSize, cfg.ViewportPadding)
	nodeBounds := geometry.BuildAbsoluteNodeBoundsMap(in.Nodes, model.Size{})

	userHidden := make(map[string]bool, len(in.UserHiddenEdgeIDs))
	for _, id := range in.UserHiddenEdgeIDs {
		userHidden[id] = true
	}

	inViewport := make(map[string]bool, len(in.Edges))
	viewportCount := 0
	for i := range in.Edges {
		e := &in.Edges[i]
		if userHidden[e.ID] || inViewport[e.ID] {
			continue
		}
		if edgeInViewport(e, nodeBounds, bounds) {
			inViewport[e.ID] = true
			viewportCount++
		}
	}

	result := Result{ViewportVisibleCount: viewportCount}
	keep := inViewport

	zoom := in.Viewport.Zoom
	if zoom > 0 && zoom < cfg.LowZoomThreshold {
		budget := LowZoomBudget(zoom, in.Hints, cfg)
		if budget > viewportCount {
			budget = viewportCount
		}
		result.LowZoomApplied = true
		result.LowZoomBudget = &budget
		keep = thin(in.Edges, inViewport, in.EdgePriorityOrder, budget)
	}

	emitted := make(map[string]bool, len(in.Edges))
	for i := range in.Edges {
		id := in.Edges[i].ID
		if emitted[id] {
			continue
		}
		emitted[id] = true
		if keep[id] {
			result.FinalVisibleEdgeIDs = append(result.FinalVisibleEdgeIDs, id)
		} else {
			result.HiddenEdgeIDs = append(result.HiddenEdgeIDs, id)
		}
	}
	result.FinalVisibleCount = len(result.FinalVisibleEdgeIDs)
	return result
}

// edgeInViewport prefers precomputed anchors, then node centers, and keeps the
// edge when either endpoint is unknown.
func edgeInViewport(e *model.Edge, nodeBounds map[string]model.Rect, vb model.Rect) bool {
	if e.Data.SourceAnchor != nil && e.Data.TargetAnchor != nil {
		a, b := *e.Data.SourceAnchor, *e.Data.TargetAnchor
		return vb.ContainsPoint(a) || vb.ContainsPoint(b) || geometry.SegmentIntersectsRect(a, b, vb)
	}
	sb, okS := nodeBounds[e.Source]
	tb, okT := nodeBounds[e.Target]
	if !okS || !okT {
		return true
	}
	return geometry.SegmentIntersectsRect(sb.Center(), tb.Center(), vb)
}

// thin keeps up to budget viewport-visible edges, walking the priority order
// first and filling from input order if the order does not cover enough edges.
func thin(edges []model.Edge, visible map[string]bool, priority []string, budget int) map[string]bool {
	keep := make(map[string]bool, budget)
	for _, id := range priority {
		if len(keep) >= budget {
			return keep
		}
		if visible[id] {
			keep[id] = true
		}
	}
	for i := range edges {
		if len(keep) >= budget {
			break
		}
		if visible[edges[i].ID] {
			keep[edges[i].ID] = true
		}
	}
	return keep
}
