package edgepath

import (
	"math"

	"github.com/ritzau/deps-viz/pkg/model"
)

const (
	// GroupEntryStub is the standoff used at group containers, which only need to
	// clear their own border.
	GroupEntryStub = 12.0

	// PreApproachStub and FinalApproachStub add up to the standoff of plain nodes.
	// The final approach is the straight run that carries the arrowhead.
	PreApproachStub   = 16.0
	FinalApproachStub = 10.0

	// PointEpsilon is the tolerance for coincident points and axis alignment.
	PointEpsilon = 0.001
)

// PolylineOptions carries the optional handle and node-type hints for an edge.
// Empty sides are inferred from the endpoint positions.
type PolylineOptions struct {
	SourceSide model.HandleSide
	TargetSide model.HandleSide
	SourceType model.NodeType
	TargetType model.NodeType
}

// BuildEdgePolyline returns an orthogonal route from source to target. The first
// point is always source and the last is always target.
func BuildEdgePolyline(source, target model.Point, opts PolylineOptions) []model.Point {
	sourceSide := opts.SourceSide
	if _, ok := model.ParseHandleSide(string(sourceSide)); !ok {
		sourceSide = InferHandleSide(source, target)
	}
	targetSide := opts.TargetSide
	if _, ok := model.ParseHandleSide(string(targetSide)); !ok {
		targetSide = InferHandleSide(target, source)
	}

	points := []model.Point{source}

	sourceNormal := sourceSide.Normal()
	if opts.SourceType.IsGroup() {
		points = append(points, source.Add(sourceNormal.Scale(GroupEntryStub)))
	} else {
		points = append(points, source.Add(sourceNormal.Scale(PreApproachStub+FinalApproachStub)))
	}

	targetNormal := targetSide.Normal()
	if opts.TargetType.IsGroup() {
		points = append(points, target.Add(targetNormal.Scale(GroupEntryStub)))
	} else {
		points = append(points,
			target.Add(targetNormal.Scale(PreApproachStub+FinalApproachStub)),
			target.Add(targetNormal.Scale(FinalApproachStub)),
		)
	}

	points = append(points, target)
	points = insertOrthogonalMidpoints(points, sourceSide, targetSide)
	return dedupePoints(points)
}

// insertOrthogonalMidpoints finds the free segment between the source exit run and
// the target entry run and makes it axis-aligned: one corner when the two runs are
// perpendicular, an S-shaped dogleg through the midline when they share an axis.
func insertOrthogonalMidpoints(points []model.Point, sourceSide, targetSide model.HandleSide) []model.Point {
	if len(points) < 2 {
		return points
	}

	last := len(points) - 1

	start := 0
	for start < last && alignedAlong(points[start], points[start+1], sourceSide) {
		start++
	}
	end := last
	for end > start && alignedAlong(points[end-1], points[end], targetSide) {
		end--
	}
	if end-start != 1 {
		return points
	}

	a := points[start]
	b := points[end]
	if nearlyEqual(a.X, b.X) || nearlyEqual(a.Y, b.Y) {
		return points
	}

	var inserted []model.Point
	switch {
	case sourceSide.IsHorizontal() && !targetSide.IsHorizontal():
		inserted = []model.Point{{X: b.X, Y: a.Y}}
	case !sourceSide.IsHorizontal() && targetSide.IsHorizontal():
		inserted = []model.Point{{X: a.X, Y: b.Y}}
	case sourceSide.IsHorizontal():
		midX := (a.X + b.X) / 2
		inserted = []model.Point{{X: midX, Y: a.Y}, {X: midX, Y: b.Y}}
	default:
		midY := (a.Y + b.Y) / 2
		inserted = []model.Point{{X: a.X, Y: midY}, {X: b.X, Y: midY}}
	}

	out := make([]model.Point, 0, len(points)+len(inserted))
	out = append(out, points[:end]...)
	out = append(out, inserted...)
	out = append(out, points[end:]...)
	return out
}

// alignedAlong reports whether a-b runs along the axis a handle on side s exits through.
func alignedAlong(a, b model.Point, s model.HandleSide) bool {
	if s.IsHorizontal() {
		return nearlyEqual(a.Y, b.Y)
	}
	return nearlyEqual(a.X, b.X)
}

func dedupePoints(points []model.Point) []model.Point {
	if len(points) < 2 {
		return points
	}
	out := []model.Point{points[0]}
	for i := 1; i < len(points); i++ {
		p := points[i]
		prev := out[len(out)-1]
		if nearlyEqual(p.X, prev.X) && nearlyEqual(p.Y, prev.Y) {
			if i == len(points)-1 {
				// keep the exact target as the final point
				if len(out) == 1 {
					out = append(out, p)
				} else {
					out[len(out)-1] = p
				}
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= PointEpsilon
}
