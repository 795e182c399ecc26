package graph

import (
	"sort"

	"github.com/ritzau/deps-viz/pkg/model"
	gograph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// ModuleGraph represents a node-level dependency graph keyed by string ids.
// Graph ids are handed out in insertion order, and every accessor returns
// results in that order so callers stay deterministic.
type ModuleGraph struct {
	graph *simple.DirectedGraph
	ids   map[string]int64 // Map from node id to graph ID
	names []string         // Graph ID to node id
}

// NewModuleGraph creates an empty module graph
func NewModuleGraph() *ModuleGraph {
	return &ModuleGraph{
		graph: simple.NewDirectedGraph(),
		ids:   make(map[string]int64),
	}
}

// AddNode adds a node and returns its graph ID. Adding an existing node is a no-op.
func (mg *ModuleGraph) AddNode(id string) int64 {
	if gid, exists := mg.ids[id]; exists {
		return gid
	}

	gid := int64(len(mg.names))
	mg.ids[id] = gid
	mg.names = append(mg.names, id)
	mg.graph.AddNode(simple.Node(gid))
	return gid
}

// AddEdge adds a dependency edge from source to target, adding missing nodes.
// Self-loops are ignored since they never form a multi-node cycle.
func (mg *ModuleGraph) AddEdge(source, target string) {
	sourceID := mg.AddNode(source)
	targetID := mg.AddNode(target)
	if sourceID == targetID {
		return
	}

	if !mg.graph.HasEdgeFromTo(sourceID, targetID) {
		mg.graph.SetEdge(mg.graph.NewEdge(simple.Node(sourceID), simple.Node(targetID)))
	}
}

// HasNode reports whether id is part of the graph
func (mg *ModuleGraph) HasNode(id string) bool {
	_, exists := mg.ids[id]
	return exists
}

// ID returns the graph ID for a node id
func (mg *ModuleGraph) ID(id string) (int64, bool) {
	gid, exists := mg.ids[id]
	return gid, exists
}

// Name returns the node id for a graph ID, or "" if unknown
func (mg *ModuleGraph) Name(gid int64) string {
	if gid < 0 || gid >= int64(len(mg.names)) {
		return ""
	}
	return mg.names[gid]
}

// Graph returns the underlying directed graph
func (mg *ModuleGraph) Graph() *simple.DirectedGraph {
	return mg.graph
}

// Len returns the number of nodes
func (mg *ModuleGraph) Len() int {
	return len(mg.names)
}

// Nodes returns all node ids in insertion order
func (mg *ModuleGraph) Nodes() []string {
	return append([]string(nil), mg.names...)
}

// Edges returns all edges as [source, target] pairs, ordered by source then target
func (mg *ModuleGraph) Edges() [][2]string {
	var edges [][2]string
	for gid, name := range mg.names {
		for _, target := range mg.sortedIDs(mg.graph.From(int64(gid))) {
			edges = append(edges, [2]string{name, mg.names[target]})
		}
	}
	return edges
}

// Successors returns the nodes id depends on
func (mg *ModuleGraph) Successors(id string) []string {
	gid, exists := mg.ids[id]
	if !exists {
		return nil
	}
	return mg.namesOf(mg.sortedIDs(mg.graph.From(gid)))
}

// Predecessors returns the nodes that depend on id
func (mg *ModuleGraph) Predecessors(id string) []string {
	gid, exists := mg.ids[id]
	if !exists {
		return nil
	}
	return mg.namesOf(mg.sortedIDs(mg.graph.To(gid)))
}

// Neighbors returns successors followed by predecessors not already listed
func (mg *ModuleGraph) Neighbors(id string) []string {
	out := mg.Successors(id)
	seen := make(map[string]bool, len(out))
	for _, n := range out {
		seen[n] = true
	}
	for _, n := range mg.Predecessors(id) {
		if !seen[n] {
			out = append(out, n)
		}
	}
	return out
}

// sortedIDs drains a gonum node iterator into ascending graph IDs, undoing the
// map ordering of simple.DirectedGraph.
func (mg *ModuleGraph) sortedIDs(it gograph.Nodes) []int64 {
	var ids []int64
	for it.Next() {
		ids = append(ids, it.Node().ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (mg *ModuleGraph) namesOf(ids []int64) []string {
	names := make([]string, len(ids))
	for i, gid := range ids {
		names[i] = mg.names[gid]
	}
	return names
}

// FromGraph builds a module graph from a view graph. Every node is added in
// input order; edges are included when include returns true (nil includes all)
// and both endpoints exist.
func FromGraph(g *model.Graph, include func(model.Edge) bool) *ModuleGraph {
	mg := NewModuleGraph()
	for i := range g.Nodes {
		mg.AddNode(g.Nodes[i].ID)
	}
	for _, e := range g.Edges {
		if include != nil && !include(e) {
			continue
		}
		if !mg.HasNode(e.Source) || !mg.HasNode(e.Target) {
			continue
		}
		mg.AddEdge(e.Source, e.Target)
	}
	return mg
}
