package view

import (
	"github.com/ritzau/deps-viz/pkg/model"
)

// BundleID returns the id of the bundle for a source/target pair
func BundleID(source, target string) string {
	return "bundle:" + source + "->" + target
}

// BundleEdges merges parallel edges between the same ordered node pair once
// the graph has at least threshold edges. The bundle takes the type of its
// highest priority member (first wins on ties), lists the member types in
// first-seen order and is hidden only when every member is hidden. Pairs with
// a single edge pass through unchanged. A threshold of zero or less disables
// bundling.
func BundleEdges(edges []model.Edge, threshold int) ([]model.Edge, int) {
	if threshold <= 0 || len(edges) < threshold {
		return append([]model.Edge(nil), edges...), 0
	}

	type pair struct{ source, target string }
	members := make(map[pair][]int)
	var order []pair
	for i, e := range edges {
		p := pair{e.Source, e.Target}
		if _, seen := members[p]; !seen {
			order = append(order, p)
		}
		members[p] = append(members[p], i)
	}

	out := make([]model.Edge, 0, len(order))
	bundles := 0
	for _, p := range order {
		idx := members[p]
		if len(idx) == 1 {
			out = append(out, edges[idx[0]])
			continue
		}
		out = append(out, bundle(edges, idx))
		bundles++
	}
	return out, bundles
}

func bundle(edges []model.Edge, idx []int) model.Edge {
	rep := edges[idx[0]]
	hidden := true
	seenType := make(map[model.EdgeType]bool)
	var types []model.EdgeType
	ids := make([]string, 0, len(idx))

	for _, i := range idx {
		e := edges[i]
		if model.EdgeTypePriority(e.Data.Type) > model.EdgeTypePriority(rep.Data.Type) {
			rep = e
		}
		if !seenType[e.Data.Type] {
			seenType[e.Data.Type] = true
			types = append(types, e.Data.Type)
		}
		hidden = hidden && e.Hidden
		ids = append(ids, e.ID)
	}

	return model.Edge{
		ID:     BundleID(rep.Source, rep.Target),
		Source: rep.Source,
		Target: rep.Target,
		Hidden: hidden,
		Data: model.EdgeData{
			Type:         rep.Data.Type,
			UsageKind:    rep.Data.UsageKind,
			BundledCount: len(idx),
			BundledTypes: types,
			BundledIDs:   ids,
		},
	}
}
