package edgepath

import (
	"fmt"
	"math"
	"strings"

	"github.com/ritzau/deps-viz/pkg/model"
)

// SegmentKind distinguishes straight runs from rounded corners.
type SegmentKind string

const (
	SegmentLine      SegmentKind = "line"
	SegmentQuadratic SegmentKind = "quadratic"
)

// PathSegment is one drawing command. Control is only set for quadratic segments.
type PathSegment struct {
	Kind    SegmentKind  `json:"kind"`
	Control *model.Point `json:"control,omitempty"`
	To      model.Point  `json:"to"`
}

// RoundedPath is a polyline with its interior corners replaced by quadratic curves.
type RoundedPath struct {
	Start    model.Point   `json:"start"`
	Segments []PathSegment `json:"segments"`
}

// BuildRoundedPolylinePath converts each interior vertex of polyline into either a
// straight line or a quadratic corner of at most cornerRadius. It returns nil only
// for an empty polyline.
func BuildRoundedPolylinePath(polyline []model.Point, cornerRadius float64) *RoundedPath {
	if len(polyline) == 0 {
		return nil
	}

	path := &RoundedPath{
		Start:    polyline[0],
		Segments: make([]PathSegment, 0, len(polyline)),
	}
	if len(polyline) == 1 {
		return path
	}

	for i := 1; i < len(polyline)-1; i++ {
		prev, corner, next := polyline[i-1], polyline[i], polyline[i+1]

		inLen := distance(prev, corner)
		outLen := distance(corner, next)
		if cornerRadius <= PointEpsilon || inLen <= PointEpsilon || outLen <= PointEpsilon {
			path.lineTo(corner)
			continue
		}

		dirIn := corner.Sub(prev).Scale(1 / inLen)
		dirOut := next.Sub(corner).Scale(1 / outLen)
		cross := dirIn.X*dirOut.Y - dirIn.Y*dirOut.X
		if math.Abs(cross) <= PointEpsilon {
			// colinear, or a reversal that does not actually turn
			path.lineTo(corner)
			continue
		}

		radius := math.Min(cornerRadius, math.Min(inLen/2, outLen/2))
		if radius <= PointEpsilon {
			path.lineTo(corner)
			continue
		}

		entry := corner.Sub(dirIn.Scale(radius))
		exit := corner.Add(dirOut.Scale(radius))
		control := corner
		path.lineTo(entry)
		path.Segments = append(path.Segments, PathSegment{Kind: SegmentQuadratic, Control: &control, To: exit})
	}

	path.lineTo(polyline[len(polyline)-1])
	return path
}

func (p *RoundedPath) lineTo(to model.Point) {
	p.Segments = append(p.Segments, PathSegment{Kind: SegmentLine, To: to})
}

// SVG renders the path as an SVG "d" attribute.
func (p *RoundedPath) SVG() string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "M %s %s", fmtCoord(p.Start.X), fmtCoord(p.Start.Y))
	for _, seg := range p.Segments {
		switch seg.Kind {
		case SegmentQuadratic:
			fmt.Fprintf(&b, " Q %s %s %s %s",
				fmtCoord(seg.Control.X), fmtCoord(seg.Control.Y), fmtCoord(seg.To.X), fmtCoord(seg.To.Y))
		default:
			fmt.Fprintf(&b, " L %s %s", fmtCoord(seg.To.X), fmtCoord(seg.To.Y))
		}
	}
	return b.String()
}

func fmtCoord(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

func distance(a, b model.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
