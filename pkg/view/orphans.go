package view

import (
	"github.com/ritzau/deps-viz/pkg/model"
)

// ComputeOrphanDiagnostics flags nodes without any relationship. current holds
// the edges visible under the active filter, global holds every edge of the
// unfiltered graph. The nodes slice is updated in place; the returned count is
// the number of current orphans.
func ComputeOrphanDiagnostics(nodes []model.Node, current, global []model.Edge) int {
	currentDegree := degrees(current)
	globalDegree := degrees(global)

	orphans := 0
	for i := range nodes {
		n := &nodes[i]
		if n.Data.Diagnostics == nil {
			n.Data.Diagnostics = &model.Diagnostics{}
		}
		n.Data.Diagnostics.OrphanCurrent = currentDegree[n.ID] == 0
		n.Data.Diagnostics.OrphanGlobal = globalDegree[n.ID] == 0
		if n.Data.Diagnostics.OrphanCurrent {
			orphans++
		}
	}
	return orphans
}

func degrees(edges []model.Edge) map[string]int {
	deg := make(map[string]int)
	for _, e := range edges {
		deg[e.Source]++
		deg[e.Target]++
	}
	return deg
}
