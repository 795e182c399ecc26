package view

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/ritzau/deps-viz/pkg/model"
)

// positionEpsilon is the smallest movement reported as a position change
const positionEpsilon = 0.01

// GraphDiff represents the structural difference between two views
type GraphDiff struct {
	AddedNodes    []model.Node `json:"addedNodes"`
	RemovedNodes  []string     `json:"removedNodes"`  // Node IDs
	ModifiedNodes []model.Node `json:"modifiedNodes"` // Nodes with a changed type, parent or label
	AddedEdges    []model.Edge `json:"addedEdges"`
	RemovedEdges  []string     `json:"removedEdges"` // Edge IDs
	FullGraph     bool         `json:"fullGraph"`    // True if this is a full graph, not a diff
}

// Empty reports whether the diff carries no change
func (d *GraphDiff) Empty() bool {
	return !d.FullGraph &&
		len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 && len(d.ModifiedNodes) == 0 &&
		len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

// DocumentRevision fingerprints a document so view hashes change when it does
func DocumentRevision(doc *model.Document) string {
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash[:8])
}

// ComputeHash identifies a view request for caching and request coalescing.
// revision is normally DocumentRevision of the rendered document.
func ComputeHash(revision string, opts Options) string {
	data := struct {
		Revision string
		Options  Options
	}{
		Revision: revision,
		Options:  opts,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash)
}

// ComputeDiff computes the difference between two graphs. A nil old graph
// yields the full new graph. Output follows the order of the new graph, with
// removals in the order of the old one.
func ComputeDiff(old, cur *model.Graph) *GraphDiff {
	if old == nil {
		return &GraphDiff{
			AddedNodes: cur.Nodes,
			AddedEdges: cur.Edges,
			FullGraph:  true,
		}
	}

	diff := &GraphDiff{
		AddedNodes:    make([]model.Node, 0),
		RemovedNodes:  make([]string, 0),
		ModifiedNodes: make([]model.Node, 0),
		AddedEdges:    make([]model.Edge, 0),
		RemovedEdges:  make([]string, 0),
	}

	oldNodes := make(map[string]model.Node, len(old.Nodes))
	for _, n := range old.Nodes {
		oldNodes[n.ID] = n
	}
	oldEdges := make(map[string]bool, len(old.Edges))
	for _, e := range old.Edges {
		oldEdges[e.ID] = true
	}

	// Find added and modified nodes
	newNodes := make(map[string]bool, len(cur.Nodes))
	for _, n := range cur.Nodes {
		newNodes[n.ID] = true
		if o, exists := oldNodes[n.ID]; exists {
			if !nodesEqual(o, n) {
				diff.ModifiedNodes = append(diff.ModifiedNodes, n)
			}
		} else {
			diff.AddedNodes = append(diff.AddedNodes, n)
		}
	}

	// Find removed nodes
	for _, n := range old.Nodes {
		if !newNodes[n.ID] {
			diff.RemovedNodes = append(diff.RemovedNodes, n.ID)
		}
	}

	newEdges := make(map[string]bool, len(cur.Edges))
	for _, e := range cur.Edges {
		newEdges[e.ID] = true
		if !oldEdges[e.ID] {
			diff.AddedEdges = append(diff.AddedEdges, e)
		}
	}
	for _, e := range old.Edges {
		if !newEdges[e.ID] {
			diff.RemovedEdges = append(diff.RemovedEdges, e.ID)
		}
	}

	return diff
}

// nodesEqual compares the structural fields of two nodes, ignoring geometry
func nodesEqual(a, b model.Node) bool {
	return a.ID == b.ID &&
		a.Type == b.Type &&
		a.ParentNode == b.ParentNode &&
		a.Data.Label == b.Data.Label
}

// VisibilityDelta returns edge id -> hidden for every edge of cur that is new
// or whose hidden flag differs from old
func VisibilityDelta(old, cur []model.Edge) map[string]bool {
	before := make(map[string]bool, len(old))
	for _, e := range old {
		before[e.ID] = e.Hidden
	}

	delta := make(map[string]bool)
	for _, e := range cur {
		if hidden, exists := before[e.ID]; !exists || hidden != e.Hidden {
			delta[e.ID] = e.Hidden
		}
	}
	return delta
}

// PositionDelta returns node id -> position for every positioned node of cur
// that is new or moved by more than positionEpsilon on either axis
func PositionDelta(old, cur []model.Node) map[string]model.Point {
	before := make(map[string]*model.Point, len(old))
	for _, n := range old {
		before[n.ID] = n.Position
	}

	delta := make(map[string]model.Point)
	for _, n := range cur {
		if n.Position == nil {
			continue
		}
		p, exists := before[n.ID]
		if !exists || p == nil ||
			math.Abs(p.X-n.Position.X) > positionEpsilon ||
			math.Abs(p.Y-n.Position.Y) > positionEpsilon {
			delta[n.ID] = *n.Position
		}
	}
	return delta
}

// SortedKeys returns the keys of a delta map in ascending order
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
