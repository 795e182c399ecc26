// Package layout assigns initial coordinates to a view graph. Engines are
// black boxes that return parent-relative positions and container sizes; the
// Coordinator versions requests, runs the two-pass measurement scheme and
// settles the result with the collision resolver.
package layout

import (
	"context"
	"errors"
	"fmt"

	"github.com/ritzau/deps-viz/pkg/collision"
	"github.com/ritzau/deps-viz/pkg/model"
)

// ErrNoEngine is returned when no layout engine is available for a request
var ErrNoEngine = errors.New("no layout engine")

// Engine names accepted by NewEngine
const (
	EngineGrid = "grid"
	EngineDot  = "dot"
)

// Directions accepted by the engines
const (
	DirectionTopBottom = "TB"
	DirectionLeftRight = "LR"
)

// Options are the per-request algorithm settings
type Options struct {
	Direction     string            `json:"direction"`
	NodeSpacing   float64           `json:"nodeSpacing"`
	RankSpacing   float64           `json:"rankSpacing"`
	ModulePadding collision.Padding `json:"modulePadding"`
	GroupPadding  collision.Padding `json:"groupPadding"`
}

// Request is the input of one engine invocation
type Request struct {
	Nodes   []model.Node `json:"nodes"`
	Edges   []model.Edge `json:"edges"`
	Options Options      `json:"options"`
}

// Result holds parent-relative positions for every node and sizes for the
// containers the engine sized
type Result struct {
	Positions map[string]model.Point `json:"positions"`
	Sizes     map[string]model.Size  `json:"sizes"`
}

// Engine computes initial coordinates for a graph
type Engine interface {
	Name() string
	Layout(ctx context.Context, req Request) (*Result, error)
}

// NewEngine returns the engine registered under name
func NewEngine(name string) (Engine, error) {
	switch name {
	case EngineGrid, "":
		return GridEngine{}, nil
	case EngineDot:
		return DotEngine{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoEngine, name)
}

// hierarchy is the containment tree of a request, tolerant of missing and
// cyclic parent references
type hierarchy struct {
	order    []string
	nodes    map[string]*model.Node
	parent   map[string]string
	children map[string][]string // "" holds the top level
	depth    map[string]int
}

func newHierarchy(nodes []model.Node) *hierarchy {
	h := &hierarchy{
		nodes:    make(map[string]*model.Node, len(nodes)),
		parent:   make(map[string]string, len(nodes)),
		children: make(map[string][]string),
		depth:    make(map[string]int, len(nodes)),
	}
	for i := range nodes {
		id := nodes[i].ID
		if _, dup := h.nodes[id]; dup {
			continue
		}
		h.nodes[id] = &nodes[i]
		h.order = append(h.order, id)
	}

	for _, id := range h.order {
		p := h.nodes[id].ParentNode
		if _, ok := h.nodes[p]; !ok || p == id {
			p = ""
		}
		h.parent[id] = p
	}

	// Break parent cycles by lifting the node that closes them to the top level
	for _, id := range h.order {
		seen := map[string]bool{id: true}
		for p := h.parent[id]; p != ""; p = h.parent[p] {
			if seen[p] {
				h.parent[id] = ""
				break
			}
			seen[p] = true
		}
	}

	for _, id := range h.order {
		p := h.parent[id]
		h.children[p] = append(h.children[p], id)
	}
	for _, id := range h.order {
		d := 0
		for p := h.parent[id]; p != ""; p = h.parent[p] {
			d++
		}
		h.depth[id] = d
	}
	return h
}

func (h *hierarchy) isContainer(id string) bool {
	return len(h.children[id]) > 0
}

// containersDeepestFirst lists containers so that children are sized before
// their parents, ties in input order
func (h *hierarchy) containersDeepestFirst() []string {
	maxDepth := 0
	for _, d := range h.depth {
		maxDepth = max(maxDepth, d)
	}
	var out []string
	for d := maxDepth; d >= 0; d-- {
		for _, id := range h.order {
			if h.depth[id] == d && h.isContainer(id) {
				out = append(out, id)
			}
		}
	}
	return out
}

// siblingEdges lifts every edge to the pair of siblings under the lowest
// common parent of its endpoints, keyed by that parent
func (h *hierarchy) siblingEdges(edges []model.Edge) map[string][][2]string {
	out := make(map[string][][2]string)
	seen := make(map[[3]string]bool)
	for _, e := range edges {
		u, v := e.Source, e.Target
		if _, ok := h.nodes[u]; !ok {
			continue
		}
		if _, ok := h.nodes[v]; !ok {
			continue
		}
		for h.depth[u] > h.depth[v] {
			u = h.parent[u]
		}
		for h.depth[v] > h.depth[u] {
			v = h.parent[v]
		}
		for h.parent[u] != h.parent[v] {
			u, v = h.parent[u], h.parent[v]
		}
		if u == v {
			continue
		}
		key := [3]string{h.parent[u], u, v}
		if seen[key] {
			continue
		}
		seen[key] = true
		out[h.parent[u]] = append(out[h.parent[u]], [2]string{u, v})
	}
	return out
}

func (h *hierarchy) padding(id string, opts Options) (collision.Padding, float64) {
	n := h.nodes[id]
	if n.Type.IsGroup() {
		top := opts.GroupPadding.Top
		if n.Data.LayoutInsets != nil && n.Data.LayoutInsets.Top > top {
			top = n.Data.LayoutInsets.Top
		}
		return opts.GroupPadding, top
	}
	return opts.ModulePadding, opts.ModulePadding.Top
}
