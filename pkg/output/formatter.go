package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ritzau/deps-viz/pkg/layout"
	"github.com/ritzau/deps-viz/pkg/view"
	"github.com/ritzau/deps-viz/pkg/virtualize"
)

// maxListedCycles bounds the cycle listing in the console report
const maxListedCycles = 10

// Report is everything the render command knows about one run
type Report struct {
	Document string
	Revision string
	Options  view.Options
	View     *view.Result
	Layout   *layout.Outcome    // nil when layout was skipped
	Edges    *virtualize.Result // nil without a viewport
	Routed   int
}

// PrintReport prints a nicely formatted summary of a render with colors
func PrintReport(w io.Writer, r Report) {
	// Color definitions
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	// Header
	bold.Fprintln(w, "Dependency View Report")
	bold.Fprintln(w, "======================")
	fmt.Fprintf(w, "Document: %s (revision %s)\n", r.Document, r.Revision)
	fmt.Fprintf(w, "Level: %s\n", r.Options.Level)

	s := r.View.Stats
	fmt.Fprintf(w, "Nodes: %d, edges: %d (%d visible)\n", s.Nodes, s.Edges, s.VisibleEdges)
	if s.FolderGroups > 0 || s.Hubs > 0 || s.Bundles > 0 {
		cyan.Fprintf(w, "Groups: %d folders, %d hubs, %d bundles\n", s.FolderGroups, s.Hubs, s.Bundles)
	}
	if s.TestFiles > 0 {
		fmt.Fprintf(w, "Test files dropped: %d\n", s.TestFiles)
	}
	if s.Orphans > 0 {
		yellow.Fprintf(w, "Orphans: %d\n", s.Orphans)
	}
	fmt.Fprintln(w)

	// Cycles
	if len(r.View.Cycles) == 0 {
		green.Fprintln(w, "No circular dependencies")
	} else {
		red.Fprintf(w, "CIRCULAR DEPENDENCIES: %d\n", len(r.View.Cycles))
		for i, c := range r.View.Cycles {
			if i == maxListedCycles {
				fmt.Fprintf(w, "  ... and %d more\n", len(r.View.Cycles)-maxListedCycles)
				break
			}
			yellow.Fprintf(w, "  %s\n", strings.Join(c.Members, " -> "))
		}
	}
	fmt.Fprintln(w)

	if r.Layout != nil {
		fmt.Fprintf(w, "Layout: %d pass(es), version %d\n", r.Layout.Passes, r.Layout.Version)
		if c := r.Layout.Collision; c != nil {
			settleColor := green
			if !c.Converged {
				settleColor = yellow
			}
			settleColor.Fprintf(w, "Settle: %d cycle(s), %d moved, %d resized, converged=%v\n",
				c.CyclesUsed, len(c.UpdatedPositions), len(c.UpdatedSizes), c.Converged)
		}
	}

	if r.Edges != nil {
		fmt.Fprintf(w, "Viewport edges: %d in view, %d drawn, %d routed\n",
			r.Edges.ViewportVisibleCount, r.Edges.FinalVisibleCount, r.Routed)
		if r.Edges.LowZoomApplied && r.Edges.LowZoomBudget != nil {
			yellow.Fprintf(w, "Low zoom budget: %d edges\n", *r.Edges.LowZoomBudget)
		}
	}

	// Summary
	summaryColor := green
	if len(r.View.Cycles) > 0 {
		summaryColor = yellow
	}
	summaryColor.Fprintf(w, "Summary: %d nodes rendered in %dms\n", s.Nodes, s.DurationMs)
}
