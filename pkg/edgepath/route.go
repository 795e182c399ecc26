package edgepath

import (
	"github.com/ritzau/deps-viz/pkg/model"
)

// DefaultCornerRadius is used by Route when no radius is configured.
const DefaultCornerRadius = 8.0

// EdgeRoute is the computed geometry for one edge.
type EdgeRoute struct {
	EdgeID   string        `json:"edgeId"`
	Polyline []model.Point `json:"polyline"`
	Path     *RoundedPath  `json:"path"`
	SVG      string        `json:"svg"`
}

// Route computes the route of edge from absolute node bounds. Handle ids on the edge
// pick the sides when they parse; otherwise the sides are inferred from the node
// centers. It returns false when either endpoint has no bounds.
func Route(edge model.Edge, bounds map[string]model.Rect, nodeTypes map[string]model.NodeType, cornerRadius float64) (EdgeRoute, bool) {
	sourceRect, okSource := bounds[edge.Source]
	targetRect, okTarget := bounds[edge.Target]
	if !okSource || !okTarget {
		return EdgeRoute{}, false
	}

	sourceSide, ok := GetHandleSide(edge.Data.SourceHandle)
	if !ok {
		sourceSide = InferHandleSide(sourceRect.Center(), targetRect.Center())
	}
	targetSide, ok := GetHandleSide(edge.Data.TargetHandle)
	if !ok {
		targetSide = InferHandleSide(targetRect.Center(), sourceRect.Center())
	}

	source := anchorOnSide(sourceRect, sourceSide)
	if edge.Data.SourceAnchor != nil {
		source = *edge.Data.SourceAnchor
	}
	target := anchorOnSide(targetRect, targetSide)
	if edge.Data.TargetAnchor != nil {
		target = *edge.Data.TargetAnchor
	}

	polyline := BuildEdgePolyline(source, target, PolylineOptions{
		SourceSide: sourceSide,
		TargetSide: targetSide,
		SourceType: nodeTypes[edge.Source],
		TargetType: nodeTypes[edge.Target],
	})
	path := BuildRoundedPolylinePath(polyline, cornerRadius)

	return EdgeRoute{
		EdgeID:   edge.ID,
		Polyline: polyline,
		Path:     path,
		SVG:      path.SVG(),
	}, true
}

// anchorOnSide returns the midpoint of the given side of r.
func anchorOnSide(r model.Rect, side model.HandleSide) model.Point {
	c := r.Center()
	switch side {
	case model.SideTop:
		return model.Point{X: c.X, Y: r.Y}
	case model.SideBottom:
		return model.Point{X: c.X, Y: r.Bottom()}
	case model.SideLeft:
		return model.Point{X: r.X, Y: c.Y}
	default:
		return model.Point{X: r.Right(), Y: c.Y}
	}
}
