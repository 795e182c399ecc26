package view

import (
	"fmt"

	"github.com/ritzau/deps-viz/pkg/model"
)

// HubID returns the id of the hub aggregating the incoming edges of target
func HubID(target string) string {
	return "hub:" + target
}

// AggregateHubs routes the incoming edges of every high fan-in target through
// a synthetic hub node placed next to it. A target qualifies when it has at
// least threshold visible, non-structural incoming edges. The original edges
// keep their ids and are retargeted to the hub, and one summary edge connects
// the hub to the target. Hubs from a previous run are dissolved first, so
// aggregation is rebuilt from scratch on every call.
func AggregateHubs(g *model.Graph, threshold int) (*model.Graph, int) {
	base := dissolveHubs(g)
	if threshold <= 0 {
		return base, 0
	}

	// 1. Count fan-in per target, in edge order
	incoming := make(map[string][]int)
	var targets []string
	for i, e := range base.Edges {
		if e.Hidden || e.Data.Type.IsStructural() {
			continue
		}
		if _, seen := incoming[e.Target]; !seen {
			targets = append(targets, e.Target)
		}
		incoming[e.Target] = append(incoming[e.Target], i)
	}

	hubs := make(map[string]*model.HubMeta)
	summary := make(map[string]model.Edge)
	for _, target := range targets {
		edgeIdx := incoming[target]
		if len(edgeIdx) < threshold {
			continue
		}

		meta := &model.HubMeta{TargetID: target, OriginalEdgeCount: len(edgeIdx)}
		seen := make(map[string]bool)
		best := base.Edges[edgeIdx[0]].Data.Type
		for _, i := range edgeIdx {
			e := &base.Edges[i]
			if !seen[e.Source] {
				seen[e.Source] = true
				meta.SourceIDs = append(meta.SourceIDs, e.Source)
			}
			if model.EdgeTypePriority(e.Data.Type) > model.EdgeTypePriority(best) {
				best = e.Data.Type
			}
			e.Target = HubID(target)
		}
		hubs[target] = meta
		summary[target] = model.Edge{
			ID:     HubID(target) + "->" + target,
			Source: HubID(target),
			Target: target,
			Data:   model.EdgeData{Type: best, BundledCount: len(edgeIdx)},
		}
	}

	if len(hubs) == 0 {
		return base, 0
	}

	// 2. Hub nodes follow their target and share its parent
	out := &model.Graph{Edges: base.Edges}
	for _, n := range base.Nodes {
		out.Nodes = append(out.Nodes, n)
		meta, ok := hubs[n.ID]
		if !ok {
			continue
		}
		out.Nodes = append(out.Nodes, model.Node{
			ID:         HubID(n.ID),
			Type:       model.NodeTypeHub,
			ParentNode: n.ParentNode,
			Data: model.NodeData{
				Label:   fmt.Sprintf("%d", meta.OriginalEdgeCount),
				Package: n.Data.Package,
				Hub:     meta,
			},
		})
	}
	for _, target := range targets {
		if e, ok := summary[target]; ok {
			out.Edges = append(out.Edges, e)
		}
	}

	return out, len(hubs)
}

// dissolveHubs removes hub nodes and their summary edges and points the
// aggregated edges back at the original targets
func dissolveHubs(g *model.Graph) *model.Graph {
	hubTarget := make(map[string]string)
	for _, n := range g.Nodes {
		if n.Type == model.NodeTypeHub && n.Data.Hub != nil {
			hubTarget[n.ID] = n.Data.Hub.TargetID
		}
	}

	out := &model.Graph{
		Nodes: make([]model.Node, 0, len(g.Nodes)),
		Edges: make([]model.Edge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		if _, hub := hubTarget[n.ID]; !hub {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range g.Edges {
		if _, fromHub := hubTarget[e.Source]; fromHub {
			continue
		}
		if target, toHub := hubTarget[e.Target]; toHub {
			e.Target = target
		}
		out.Edges = append(out.Edges, e)
	}
	return out
}
