// Package view turns a dependency document into the node/edge list handed to
// the layout engine: base graph construction, relationship filtering, orphan
// diagnostics, SCC collapse, hub aggregation, folder clustering and bundling.
package view

import (
	"fmt"

	"github.com/ritzau/deps-viz/pkg/model"
)

// Level selects the granularity of the base graph
type Level string

const (
	LevelPackage Level = "package"
	LevelModule  Level = "module"
	LevelSymbol  Level = "symbol"
)

// ParseLevel returns the level named by s. Empty selects the module level.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelPackage, LevelModule, LevelSymbol:
		return Level(s), nil
	case "":
		return LevelModule, nil
	}
	return "", fmt.Errorf("unknown view level %q", s)
}

// Options control the view pipeline
type Options struct {
	Level            Level            `json:"level" koanf:"level"`
	EnabledEdgeTypes []model.EdgeType `json:"enabledEdgeTypes" koanf:"edgetypes"`
	IncludeTests     bool             `json:"includeTests" koanf:"includetests"`
	ClusterByFolder  bool             `json:"clusterByFolder" koanf:"cluster"`
	CollapseSCCs     bool             `json:"collapseSccs" koanf:"collapsesccs"`
	BundleThreshold  int              `json:"bundleThreshold" koanf:"bundlethreshold"` // Bundle only at or above this many edges, 0 disables
	HubThreshold     int              `json:"hubThreshold" koanf:"hubthreshold"`       // Minimum fan-in for a hub, 0 disables
}

// DefaultOptions returns the options used when a request does not specify any
func DefaultOptions() Options {
	return Options{
		Level: LevelModule,
		EnabledEdgeTypes: []model.EdgeType{
			model.EdgeTypeDependency,
			model.EdgeTypeImport,
			model.EdgeTypeExport,
			model.EdgeTypeInheritance,
			model.EdgeTypeImplements,
			model.EdgeTypeExtends,
		},
		IncludeTests:    true,
		ClusterByFolder: true,
		BundleThreshold: 200,
	}
}
