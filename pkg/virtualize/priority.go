package virtualize

import (
	"sort"

	"github.com/ritzau/deps-viz/pkg/model"
)

// BuildEdgePriorityOrder ranks edges for low-zoom thinning. The score is the
// edge type priority times 100 plus the degree of both endpoints; ties keep
// input order.
func BuildEdgePriorityOrder(nodes []model.Node, edges []model.Edge) []string {
	degree := make(map[string]int, len(nodes))
	for i := range edges {
		degree[edges[i].Source]++
		degree[edges[i].Target]++
	}

	type scored struct {
		id    string
		score int
	}
	ranked := make([]scored, 0, len(edges))
	seen := make(map[string]bool, len(edges))
	for i := range edges {
		e := &edges[i]
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		ranked = append(ranked, scored{
			id:    e.ID,
			score: model.EdgeTypePriority(e.Data.Type)*100 + degree[e.Source] + degree[e.Target],
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	order := make([]string, len(ranked))
	for i, r := range ranked {
		order[i] = r.id
	}
	return order
}
