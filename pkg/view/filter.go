package view

import (
	"github.com/ritzau/deps-viz/pkg/model"
)

// FilterEdgeVisibility applies the relationship filter. Edges are never
// removed: an edge whose type is not enabled is marked hidden, structural
// edges (uses, contains) and untyped edges always stay visible.
func FilterEdgeVisibility(edges []model.Edge, enabled []model.EdgeType) []model.Edge {
	allowed := make(map[model.EdgeType]bool, len(enabled))
	for _, t := range enabled {
		allowed[t] = true
	}

	out := make([]model.Edge, len(edges))
	for i, e := range edges {
		t := e.Data.Type
		e.Hidden = t != "" && !t.IsStructural() && !allowed[t]
		out[i] = e
	}
	return out
}

// VisibleEdges returns the edges not marked hidden, in input order
func VisibleEdges(edges []model.Edge) []model.Edge {
	out := make([]model.Edge, 0, len(edges))
	for _, e := range edges {
		if !e.Hidden {
			out = append(out, e)
		}
	}
	return out
}

// DropTestFiles removes nodes flagged as test files together with their
// descendants. Edges touching removed nodes are dropped.
func DropTestFiles(g *model.Graph) int {
	removed := make(map[string]bool)
	for _, n := range g.Nodes {
		if n.Data.Diagnostics != nil && n.Data.Diagnostics.IsTestFile {
			removed[n.ID] = true
		}
	}
	if len(removed) == 0 {
		return 0
	}

	// Children are listed after their parent by the base builder, so one pass
	// catches nested descendants.
	kept := g.Nodes[:0]
	for _, n := range g.Nodes {
		if removed[n.ID] || removed[n.ParentNode] {
			removed[n.ID] = true
			continue
		}
		kept = append(kept, n)
	}
	g.Nodes = kept
	g.DropDanglingEdges()
	return len(removed)
}
