package view

import (
	"fmt"

	"github.com/ritzau/deps-viz/pkg/cycles"
	"github.com/ritzau/deps-viz/pkg/graph"
	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/model"
)

// SCCGroupID returns the id of the group standing in for a cycle
func SCCGroupID(firstMember string) string {
	return "scc:" + firstMember
}

// isCycleEdge reports whether an edge takes part in cycle detection
func isCycleEdge(e model.Edge) bool {
	switch e.Data.Type {
	case model.EdgeTypeImport, model.EdgeTypeExport, model.EdgeTypeDependency:
		return true
	}
	return false
}

// CollapseSCCs replaces every strongly connected component of two or more
// nodes with one synthetic group node. Intra-component edges are dropped,
// edges crossing the component boundary are redirected to the group and
// de-duplicated by (source, target, type). A merged edge is hidden only when
// every edge merged into it was hidden.
func CollapseSCCs(g *model.Graph) (*model.Graph, []cycles.ModuleCycle) {
	mg := graph.FromGraph(g, isCycleEdge)
	found := cycles.FindModuleCycles(mg)
	if len(found) == 0 {
		return g, nil
	}

	groupOf := make(map[string]string)
	firstOf := make(map[string]cycles.ModuleCycle)
	for _, c := range found {
		id := SCCGroupID(c.Members[0])
		for _, m := range c.Members {
			groupOf[m] = id
		}
		firstOf[c.Members[0]] = c
	}

	nodeByID := make(map[string]model.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodeByID[n.ID] = n
	}

	// 1. Nodes: each component is emitted where its first member was
	out := model.NewGraph()
	for _, n := range g.Nodes {
		if c, ok := firstOf[n.ID]; ok {
			out.Nodes = append(out.Nodes, sccGroupNode(c, nodeByID))
			continue
		}
		if _, member := groupOf[n.ID]; member {
			continue
		}
		if group, ok := groupOf[n.ParentNode]; ok {
			n.ParentNode = group
		}
		out.Nodes = append(out.Nodes, n)
	}

	// 2. Edges redirected to the groups
	index := make(map[string]int)
	for _, e := range g.Edges {
		source, target := e.Source, e.Target
		if group, ok := groupOf[source]; ok {
			source = group
		}
		if group, ok := groupOf[target]; ok {
			target = group
		}
		if source == target {
			continue
		}

		key := source + "|" + target + "|" + string(e.Data.Type)
		if i, seen := index[key]; seen {
			out.Edges[i].Hidden = out.Edges[i].Hidden && e.Hidden
			continue
		}
		if source != e.Source || target != e.Target {
			e.ID = EdgeID(source, target, e.Data.Type)
			e.Source = source
			e.Target = target
		}
		index[key] = len(out.Edges)
		out.Edges = append(out.Edges, e)
	}

	logging.Debug("Collapsed strongly connected components",
		"components", len(found),
		"nodesBefore", len(g.Nodes),
		"nodesAfter", len(out.Nodes),
		"edgesAfter", len(out.Edges))

	return out, found
}

func sccGroupNode(c cycles.ModuleCycle, nodeByID map[string]model.Node) model.Node {
	first := nodeByID[c.Members[0]]

	// Keep the package when every member shares it
	pkg := first.Data.Package
	for _, m := range c.Members[1:] {
		if nodeByID[m].Data.Package != pkg {
			pkg = ""
			break
		}
	}

	return model.Node{
		ID:         SCCGroupID(c.Members[0]),
		Type:       model.NodeTypeGroup,
		ParentNode: first.ParentNode,
		Data: model.NodeData{
			Label:   fmt.Sprintf("cycle (%d)", len(c.Members)),
			Package: pkg,
			Members: append([]string(nil), c.Members...),
		},
	}
}
