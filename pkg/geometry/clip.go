package geometry

import "github.com/ritzau/deps-viz/pkg/model"

// SegmentIntersectsRect reports whether the segment a-b touches r, using
// Liang-Barsky clipping. Segments with an endpoint inside r always intersect.
func SegmentIntersectsRect(a, b model.Point, r model.Rect) bool {
	if r.ContainsPoint(a) || r.ContainsPoint(b) {
		return true
	}

	dx := b.X - a.X
	dy := b.Y - a.Y
	t0, t1 := 0.0, 1.0

	p := [4]float64{-dx, dx, -dy, dy}
	q := [4]float64{a.X - r.X, r.Right() - a.X, a.Y - r.Y, r.Bottom() - a.Y}

	for i := 0; i < 4; i++ {
		if p[i] == 0 {
			// Parallel to this boundary: reject if outside it.
			if q[i] < 0 {
				return false
			}
			continue
		}
		t := q[i] / p[i]
		if p[i] < 0 {
			if t > t1 {
				return false
			}
			if t > t0 {
				t0 = t
			}
		} else {
			if t < t0 {
				return false
			}
			if t < t1 {
				t1 = t
			}
		}
	}
	return t0 <= t1
}
