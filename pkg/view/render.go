package view

import (
	"time"

	"github.com/ritzau/deps-viz/pkg/cycles"
	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/metrics"
	"github.com/ritzau/deps-viz/pkg/model"
)

// Stats summarizes one pipeline run
type Stats struct {
	Nodes        int   `json:"nodes"`
	Edges        int   `json:"edges"`
	VisibleEdges int   `json:"visibleEdges"`
	FolderGroups int   `json:"folderGroups"`
	Cycles       int   `json:"cycles"`
	Hubs         int   `json:"hubs"`
	Bundles      int   `json:"bundles"`
	Orphans      int   `json:"orphans"`
	TestFiles    int   `json:"testFilesDropped"`
	DurationMs   int64 `json:"durationMs"`
}

// Result is the output of the view pipeline. Graph is what the layout engine
// receives; Semantic is the group-free graph before collapse, clustering,
// hub aggregation and bundling, used for search and diagnostics.
type Result struct {
	Graph    *model.Graph         `json:"graph"`
	Semantic *model.Graph         `json:"semantic"`
	Cycles   []cycles.ModuleCycle `json:"cycles,omitempty"`
	Stats    Stats                `json:"stats"`
}

// Render runs the full view pipeline over a document
func Render(doc *model.Document, opts Options) *Result {
	start := time.Now()
	stats := Stats{}

	// 1. Build the typed base graph for the requested level
	g := BuildBaseGraph(doc, opts)
	logging.Debug("built base graph", "level", opts.Level, "nodes", len(g.Nodes), "edges", len(g.Edges))

	// 2. Drop test files before anything counts them
	if !opts.IncludeTests {
		stats.TestFiles = DropTestFiles(g)
		logging.Debug("dropped test files", "count", stats.TestFiles)
	}
	global := append([]model.Edge(nil), g.Edges...)

	// 3. Relationship filter marks disabled types hidden
	g.Edges = FilterEdgeVisibility(g.Edges, opts.EnabledEdgeTypes)

	// 4. Orphans are judged against the filtered and the unfiltered edges
	stats.Orphans = ComputeOrphanDiagnostics(g.Nodes, VisibleEdges(g.Edges), global)
	semantic := g.Clone()

	// 5. Collapse cycles
	var found []cycles.ModuleCycle
	if opts.CollapseSCCs {
		g, found = CollapseSCCs(g)
		stats.Cycles = len(found)
	}

	// 6. Cluster modules by folder
	if opts.ClusterByFolder {
		g, stats.FolderGroups = ClusterByFolder(g)
		logging.Debug("clustered by folder", "groups", stats.FolderGroups)
	}

	// 7. Route high fan-in targets through hubs
	g, stats.Hubs = AggregateHubs(g, opts.HubThreshold)

	// 8. Bundle parallel edges on large graphs
	g.Edges, stats.Bundles = BundleEdges(g.Edges, opts.BundleThreshold)

	if dropped := g.DropDanglingEdges(); dropped > 0 {
		logging.Debug("dropped dangling edges", "count", dropped)
	}

	stats.Nodes = len(g.Nodes)
	stats.Edges = len(g.Edges)
	stats.VisibleEdges = len(VisibleEdges(g.Edges))
	elapsed := time.Since(start)
	stats.DurationMs = elapsed.Milliseconds()
	metrics.ViewDuration.Observe(float64(elapsed.Microseconds()) / 1000)

	logging.Debug("final view",
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"visibleEdges", stats.VisibleEdges,
		"cycles", stats.Cycles,
		"hubs", stats.Hubs,
		"bundles", stats.Bundles)

	return &Result{
		Graph:    g,
		Semantic: semantic,
		Cycles:   found,
		Stats:    stats,
	}
}
