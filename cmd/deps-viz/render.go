package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ritzau/deps-viz/pkg/edgepath"
	"github.com/ritzau/deps-viz/pkg/geometry"
	"github.com/ritzau/deps-viz/pkg/layout"
	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/model"
	"github.com/ritzau/deps-viz/pkg/output"
	"github.com/ritzau/deps-viz/pkg/view"
	"github.com/ritzau/deps-viz/pkg/virtualize"
)

// virtualizeTimeout bounds how long render waits for an edge visibility result
const virtualizeTimeout = 5 * time.Second

var (
	renderFormat    string
	renderNoLayout  bool
	renderViewport  string
	renderContainer string

	renderCmd = &cobra.Command{
		Use:   "render",
		Short: "Render one view of the document and print it",
		Long: `render runs the view pipeline and layout once. With --viewport it also
decides which edges a client would draw and routes them.`,
		RunE: runRender,
	}
)

func init() {
	f := renderCmd.Flags()
	f.StringVar(&renderFormat, "format", "summary", "Output format: summary or json")
	f.BoolVar(&renderNoLayout, "no-layout", false, "Skip layout, print the view graph only")
	f.StringVar(&renderViewport, "viewport", "", "Viewport as x,y,zoom")
	f.StringVar(&renderContainer, "container", "1600x1000", "Container size as WIDTHxHEIGHT")
}

// renderOutput is the JSON shape printed by render
type renderOutput struct {
	Document string               `json:"document"`
	Revision string               `json:"revision"`
	Hash     string               `json:"hash"`
	View     *view.Result         `json:"view"`
	Layout   *layout.Outcome      `json:"layout,omitempty"`
	Edges    *virtualize.Result   `json:"edges,omitempty"`
	Routes   []edgepath.EdgeRoute `json:"routes,omitempty"`
}

func runRender(cmd *cobra.Command, args []string) error {
	if renderFormat != "summary" && renderFormat != "json" {
		return fmt.Errorf("unknown format %q", renderFormat)
	}
	if renderNoLayout && renderViewport != "" {
		return errors.New("--viewport needs a layout")
	}

	path := cfg.Server.Document
	doc, err := model.LoadDocument(path)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	revision := view.DocumentRevision(doc)

	out := renderOutput{
		Document: path,
		Revision: revision,
		Hash:     view.ComputeHash(revision, cfg.View),
		View:     view.Render(doc, cfg.View),
	}

	ctx := cmd.Context()
	if !renderNoLayout {
		outcome, err := runLayout(ctx, out.View.Graph)
		if err != nil {
			return err
		}
		out.Layout = outcome
	}

	if renderViewport != "" {
		req, err := parseViewRequest(renderViewport, renderContainer)
		if err != nil {
			return err
		}
		g := out.Layout.Graph
		res, err := visibleEdges(ctx, g, req)
		if err != nil {
			return err
		}
		out.Edges = res
		out.Routes = routeEdges(g, res.FinalVisibleEdgeIDs)
	}

	if renderFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	output.PrintReport(os.Stdout, output.Report{
		Document: path,
		Revision: revision,
		Options:  cfg.View,
		View:     out.View,
		Layout:   out.Layout,
		Edges:    out.Edges,
		Routed:   len(out.Routes),
	})
	return nil
}

func runLayout(ctx context.Context, g *model.Graph) (*layout.Outcome, error) {
	engine, err := layout.NewEngine(cfg.Layout.Engine)
	if err != nil {
		return nil, err
	}
	collisionCfg, err := cfg.Collision.Resolve()
	if err != nil {
		return nil, err
	}
	coord := layout.NewCoordinator(engine, layout.DefaultEstimateMeasurer(), cfg.Layout, collisionCfg)
	outcome, err := coord.Run(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("layout failed: %w", err)
	}
	return outcome, nil
}

func parseViewRequest(viewport, container string) (virtualize.Request, error) {
	var req virtualize.Request
	vp := &req.Viewport
	if _, err := fmt.Sscanf(viewport, "%g,%g,%g", &vp.X, &vp.Y, &vp.Zoom); err != nil {
		return req, fmt.Errorf("invalid viewport %q: %w", viewport, err)
	}
	if _, err := fmt.Sscanf(container, "%gx%g", &req.ContainerSize.Width, &req.ContainerSize.Height); err != nil {
		return req, fmt.Errorf("invalid container size %q: %w", container, err)
	}
	return req, nil
}

// visibleEdges drives a virtualizer frame by frame, the way an interactive
// client would, until it produces a result
func visibleEdges(ctx context.Context, g *model.Graph, req virtualize.Request) (*virtualize.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, virtualizeTimeout)
	defer cancel()

	hints := virtualize.DeviceHints{HardwareConcurrency: runtime.NumCPU()}
	v := virtualize.New(ctx, cfg.Virtualization, hints,
		virtualize.WithFallbackHandler(func(err error) {
			logging.Warn("edge worker failed, computing inline", "error", err)
		}))
	defer v.Close()

	v.SetGraph(g.Nodes, g.Edges)
	v.Request(req)

	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()
	for {
		if res := v.Frame(time.Now()); res != nil {
			logging.Debug("edges virtualized",
				"inViewport", res.ViewportVisibleCount,
				"visible", res.FinalVisibleCount,
				"worker", v.UsingWorker())
			return res, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("edge visibility: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func routeEdges(g *model.Graph, visible []string) []edgepath.EdgeRoute {
	bounds := geometry.BuildAbsoluteNodeBoundsMap(g.Nodes, model.Size{})
	nodeTypes := make(map[string]model.NodeType, len(g.Nodes))
	for _, n := range g.Nodes {
		nodeTypes[n.ID] = n.Type
	}
	edges := make(map[string]model.Edge, len(g.Edges))
	for _, e := range g.Edges {
		edges[e.ID] = e
	}

	routes := make([]edgepath.EdgeRoute, 0, len(visible))
	for _, id := range visible {
		e, ok := edges[id]
		if !ok {
			continue
		}
		if r, ok := edgepath.Route(e, bounds, nodeTypes, edgepath.DefaultCornerRadius); ok {
			routes = append(routes, r)
		} else {
			logging.Debug("edge not routed", "edge", id)
		}
	}
	return routes
}
