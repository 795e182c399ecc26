package view

import (
	"strings"

	"github.com/ritzau/deps-viz/pkg/graph"
	"github.com/ritzau/deps-viz/pkg/model"
)

// Highlight is the answer to a search over a rendered view
type Highlight struct {
	Matches   []string       `json:"matches"`   // Semantic node ids whose id or label matched
	Distances map[string]int `json:"distances"` // Semantic node id -> hops from the nearest match
	Rendered  []string       `json:"rendered"`  // Rendered node ids to highlight, in render order
}

type searchQueueNode struct {
	nodeID   string
	distance int
}

// SearchHighlight finds the semantic nodes matching query (case-insensitive substring
// of id or label) and their neighbourhood up to depth hops over visible
// edges, then maps the hits onto the rendered graph: collapsed cycle members
// map to their group and every hit highlights its rendered ancestors.
func SearchHighlight(r *Result, query string, depth int) Highlight {
	h := Highlight{Distances: make(map[string]int)}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || r == nil || r.Semantic == nil {
		return h
	}

	// 1. Seed the BFS with matches
	var queue []searchQueueNode
	for _, n := range r.Semantic.Nodes {
		if strings.Contains(strings.ToLower(n.ID), q) || strings.Contains(strings.ToLower(n.Data.Label), q) {
			h.Matches = append(h.Matches, n.ID)
			h.Distances[n.ID] = 0
			queue = append(queue, searchQueueNode{nodeID: n.ID})
		}
	}

	// 2. Expand over visible edges, ignoring direction
	adjacency := graph.FromGraph(r.Semantic, func(e model.Edge) bool { return !e.Hidden })
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.distance >= depth {
			continue
		}
		for _, neighbor := range adjacency.Neighbors(current.nodeID) {
			if _, seen := h.Distances[neighbor]; !seen {
				h.Distances[neighbor] = current.distance + 1
				queue = append(queue, searchQueueNode{nodeID: neighbor, distance: current.distance + 1})
			}
		}
	}

	// 3. Map semantic hits onto rendered nodes
	if r.Graph == nil {
		return h
	}
	stand := make(map[string]string)
	parent := make(map[string]string)
	for _, n := range r.Graph.Nodes {
		stand[n.ID] = n.ID
		parent[n.ID] = n.ParentNode
		for _, m := range n.Data.Members {
			stand[m] = n.ID
		}
	}
	marked := make(map[string]bool)
	for id := range h.Distances {
		rendered, ok := stand[id]
		for ok && rendered != "" && !marked[rendered] {
			marked[rendered] = true
			rendered, ok = parent[rendered]
		}
	}
	for _, n := range r.Graph.Nodes {
		if marked[n.ID] {
			h.Rendered = append(h.Rendered, n.ID)
		}
	}
	return h
}
