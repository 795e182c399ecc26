package layout

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/ritzau/deps-viz/pkg/geometry"
	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/model"
)

// pointsPerInch converts between graphviz inches and pixels
const pointsPerInch = 72.0

// DotEngine lays the graph out with Graphviz dot. Containers become clusters,
// leaves become fixed-size boxes; edges touching a container are left out
// since dot cannot attach them to a cluster.
type DotEngine struct{}

// Name returns the engine name
func (DotEngine) Name() string { return EngineDot }

// Layout renders the request to DOT, runs dot and reads the positions back
func (DotEngine) Layout(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := newHierarchy(req.Nodes)
	if len(h.order) == 0 {
		return &Result{Positions: map[string]model.Point{}, Sizes: map[string]model.Size{}}, nil
	}
	src, index := toDOT(h, req)

	out, err := runDot(ctx, src)
	if err != nil {
		return nil, err
	}

	res, err := parseDotLayout(out, h, index)
	if err != nil {
		return nil, err
	}
	logging.Trace("dot layout complete", "nodes", len(h.order), "containers", len(res.Sizes))
	return res, nil
}

// toDOT converts the request to Graphviz DOT. Nodes are named by their index
// so arbitrary ids never need escaping; the returned index maps names back.
func toDOT(h *hierarchy, req Request) (string, map[int]string) {
	index := make(map[int]string, len(h.order))
	name := make(map[string]int, len(h.order))
	for i, id := range h.order {
		index[i] = id
		name[id] = i
	}

	rankdir := DirectionTopBottom
	if req.Options.Direction == DirectionLeftRight {
		rankdir = DirectionLeftRight
	}

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	fmt.Fprintf(&buf, "  graph [rankdir=%s, nodesep=%.3f, ranksep=%.3f];\n",
		rankdir, inches(req.Options.NodeSpacing), inches(req.Options.RankSpacing))
	buf.WriteString("  node [shape=box, fixedsize=true, label=\"\"];\n")

	var writeChildren func(parent string, indent string)
	writeChildren = func(parent string, indent string) {
		for _, id := range h.children[parent] {
			if h.isContainer(id) {
				pad, top := h.padding(id, req.Options)
				fmt.Fprintf(&buf, "%ssubgraph cluster_%d {\n", indent, name[id])
				// dot applies one margin to every side, the resolver fixes the top inset later
				fmt.Fprintf(&buf, "%s  graph [margin=%.1f];\n", indent, max(pad.Horizontal, pad.Bottom, top/2))
				writeChildren(id, indent+"  ")
				fmt.Fprintf(&buf, "%s}\n", indent)
				continue
			}
			n := h.nodes[id]
			s := geometry.ResolveNodeDimensions(n, geometry.DefaultNodeSize(n.Type))
			fmt.Fprintf(&buf, "%sn%d [width=%.4f, height=%.4f];\n", indent, name[id], inches(s.Width), inches(s.Height))
		}
	}
	writeChildren("", "  ")

	seen := make(map[[2]int]bool)
	for _, e := range req.Edges {
		s, okS := name[e.Source]
		t, okT := name[e.Target]
		if !okS || !okT || s == t || h.isContainer(e.Source) || h.isContainer(e.Target) {
			continue
		}
		if seen[[2]int{s, t}] {
			continue
		}
		seen[[2]int{s, t}] = true
		fmt.Fprintf(&buf, "  n%d -> n%d;\n", s, t)
	}

	buf.WriteString("}\n")
	return buf.String(), index
}

func inches(px float64) float64 {
	return px / pointsPerInch
}

func runDot(ctx context.Context, src string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(src))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.Format("dot"), &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	dotGraphRe   = regexp.MustCompile(`(?s)^\s*(?:strict\s+)?digraph[^{]*\{\s*graph\s*\[(.*?)\];`)
	dotClusterRe = regexp.MustCompile(`(?s)subgraph\s+cluster_(\d+)\s*\{\s*graph\s*\[(.*?)\];`)
	dotNodeRe    = regexp.MustCompile(`(?ms)^\s*n(\d+)\s+\[(.*?)\];`)
	dotAttrRe    = regexp.MustCompile(`(\w+)=(?:"([^"]*)"|([^,\s\]]+))`)
)

func dotAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range dotAttrRe.FindAllStringSubmatch(s, -1) {
		if m[2] != "" {
			attrs[m[1]] = m[2]
		} else {
			attrs[m[1]] = m[3]
		}
	}
	return attrs
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) < n {
		return nil, fmt.Errorf("expected %d numbers in %q", n, s)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", s, err)
		}
		out[i] = f
	}
	return out, nil
}

// parseDotLayout reads positions from dot output. Graphviz puts the origin at
// the bottom left with Y pointing up, so every Y is flipped against the
// height of the graph bounding box.
func parseDotLayout(out []byte, h *hierarchy, index map[int]string) (*Result, error) {
	text := strings.ReplaceAll(string(out), "\\\n", "")

	m := dotGraphRe.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("dot output has no graph attributes")
	}
	bb, err := parseFloats(dotAttrs(m[1])["bb"], 4)
	if err != nil {
		return nil, fmt.Errorf("graph bounding box: %w", err)
	}
	height := bb[3]

	abs := make(map[string]model.Rect, len(h.order))

	for _, m := range dotClusterRe.FindAllStringSubmatch(text, -1) {
		i, _ := strconv.Atoi(m[1])
		id, ok := index[i]
		if !ok {
			continue
		}
		r, err := parseFloats(dotAttrs(m[2])["bb"], 4)
		if err != nil {
			return nil, fmt.Errorf("cluster %s: %w", id, err)
		}
		abs[id] = model.Rect{X: r[0], Y: height - r[3], Width: r[2] - r[0], Height: r[3] - r[1]}
	}

	for _, m := range dotNodeRe.FindAllStringSubmatch(text, -1) {
		i, _ := strconv.Atoi(m[1])
		id, ok := index[i]
		if !ok {
			continue
		}
		attrs := dotAttrs(m[2])
		pos, err := parseFloats(attrs["pos"], 2)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", id, err)
		}
		n := h.nodes[id]
		size := geometry.ResolveNodeDimensions(n, geometry.DefaultNodeSize(n.Type))
		abs[id] = model.Rect{
			X:      pos[0] - size.Width/2,
			Y:      height - pos[1] - size.Height/2,
			Width:  size.Width,
			Height: size.Height,
		}
	}

	res := &Result{
		Positions: make(map[string]model.Point, len(h.order)),
		Sizes:     make(map[string]model.Size),
	}
	for _, id := range h.order {
		r, ok := abs[id]
		if !ok {
			return nil, fmt.Errorf("dot output is missing node %s", id)
		}
		p := model.Point{X: r.X, Y: r.Y}
		if parent := h.parent[id]; parent != "" {
			pr := abs[parent]
			p = p.Sub(model.Point{X: pr.X, Y: pr.Y})
		}
		res.Positions[id] = p
		if h.isContainer(id) {
			res.Sizes[id] = model.Size{Width: r.Width, Height: r.Height}
		}
	}
	return res, nil
}
