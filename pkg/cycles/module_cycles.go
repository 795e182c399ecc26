package cycles

import (
	"github.com/ritzau/deps-viz/pkg/graph"
)

// ModuleCycle represents a circular dependency between graph nodes
type ModuleCycle struct {
	Members []string // Node ids in the cycle, in graph insertion order
}

// FindModuleCycles finds all circular dependencies in the module graph
func FindModuleCycles(mg *graph.ModuleGraph) []ModuleCycle {
	tarjan := NewTarjanSCC(mg.Graph())
	sccs := tarjan.FindSCCs()

	cycles := make([]ModuleCycle, 0, len(sccs))
	for _, scc := range sccs {
		// Convert graph IDs back to node ids
		members := make([]string, 0, len(scc))
		for _, gid := range scc {
			if name := mg.Name(gid); name != "" {
				members = append(members, name)
			}
		}

		if len(members) > 1 {
			cycles = append(cycles, ModuleCycle{Members: members})
		}
	}

	return cycles
}
