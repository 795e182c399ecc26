package layout

import (
	"context"

	"github.com/ritzau/deps-viz/pkg/geometry"
	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/model"
)

// GridEngine is the built-in layered engine. Siblings are ranked by the
// longest path over the edges lifted to their level, each rank becomes a row
// (or a column for LR), and containers are sized bottom-up to fit their rows.
// The output depends only on the input order.
type GridEngine struct{}

// Name returns the engine name
func (GridEngine) Name() string { return EngineGrid }

// Layout places every node
func (GridEngine) Layout(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := newHierarchy(req.Nodes)
	lifted := h.siblingEdges(req.Edges)
	res := &Result{
		Positions: make(map[string]model.Point, len(h.order)),
		Sizes:     make(map[string]model.Size),
	}

	sizeOf := func(id string) model.Size {
		if s, ok := res.Sizes[id]; ok {
			return s
		}
		n := h.nodes[id]
		return geometry.ResolveNodeDimensions(n, geometry.DefaultNodeSize(n.Type))
	}

	for _, id := range h.containersDeepestFirst() {
		pad, top := h.padding(id, req.Options)
		extent := placeRanks(h.children[id], lifted[id], sizeOf, req.Options, model.Point{X: pad.Horizontal, Y: top}, res.Positions)
		res.Sizes[id] = model.Size{
			Width:  extent.X + pad.Horizontal,
			Height: extent.Y + pad.Bottom,
		}
	}
	placeRanks(h.children[""], lifted[""], sizeOf, req.Options, model.Point{}, res.Positions)

	logging.Trace("grid layout complete", "nodes", len(h.order), "containers", len(res.Sizes))
	return res, nil
}

// placeRanks lays siblings out rank by rank starting at origin and returns the
// far corner of the occupied area
func placeRanks(ids []string, edges [][2]string, sizeOf func(string) model.Size, opts Options, origin model.Point, positions map[string]model.Point) model.Point {
	if len(ids) == 0 {
		return origin
	}

	rank := rankSiblings(ids, edges)
	maxRank := 0
	for _, r := range rank {
		maxRank = max(maxRank, r)
	}
	rows := make([][]string, maxRank+1)
	for _, id := range ids {
		rows[rank[id]] = append(rows[rank[id]], id)
	}

	horizontal := opts.Direction == DirectionLeftRight
	extent := origin
	// main runs along a rank, cross advances between ranks
	cross := origin.Y
	if horizontal {
		cross = origin.X
	}

	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		main := origin.X
		if horizontal {
			main = origin.Y
		}
		thickness := 0.0
		for _, id := range row {
			s := sizeOf(id)
			if horizontal {
				positions[id] = model.Point{X: cross, Y: main}
				main += s.Height + opts.NodeSpacing
				thickness = max(thickness, s.Width)
				extent.X = max(extent.X, cross+s.Width)
				extent.Y = max(extent.Y, main-opts.NodeSpacing)
			} else {
				positions[id] = model.Point{X: main, Y: cross}
				main += s.Width + opts.NodeSpacing
				thickness = max(thickness, s.Height)
				extent.X = max(extent.X, main-opts.NodeSpacing)
				extent.Y = max(extent.Y, cross+s.Height)
			}
		}
		cross += thickness + opts.RankSpacing
	}
	return extent
}

// rankSiblings assigns each sibling its longest-path depth. Ranks are capped
// at len(ids)-1 so cycles terminate.
func rankSiblings(ids []string, edges [][2]string) map[string]int {
	rank := make(map[string]int, len(ids))
	for _, id := range ids {
		rank[id] = 0
	}
	limit := len(ids) - 1
	for range ids {
		changed := false
		for _, e := range edges {
			next := rank[e[0]] + 1
			if next <= limit && rank[e[1]] < next {
				rank[e[1]] = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return rank
}
