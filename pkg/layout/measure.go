package layout

import (
	"context"
	"math"
	"unicode/utf8"

	"github.com/ritzau/deps-viz/pkg/geometry"
	"github.com/ritzau/deps-viz/pkg/model"
)

// Measurement is the rendered size of a node. HeaderHeight is the height of
// the chrome drawn above a container's children, zero when unknown.
type Measurement struct {
	Size         model.Size `json:"size"`
	HeaderHeight float64    `json:"headerHeight,omitempty"`
}

// Measurer reports rendered node sizes between the two layout passes
type Measurer interface {
	Measure(ctx context.Context, nodes []model.Node) (map[string]Measurement, error)
}

// EstimateMeasurer approximates rendered sizes from label lengths. It stands
// in for real measurement when nothing renders the graph.
type EstimateMeasurer struct {
	CharWidth  float64
	LineHeight float64
	PaddingX   float64
	PaddingY   float64
}

// DefaultEstimateMeasurer returns an estimator tuned for a 13px UI font
func DefaultEstimateMeasurer() EstimateMeasurer {
	return EstimateMeasurer{CharWidth: 7.5, LineHeight: 18, PaddingX: 16, PaddingY: 12}
}

// Measure estimates every node. Leaves never shrink below their type default;
// containers only report a header height.
func (m EstimateMeasurer) Measure(ctx context.Context, nodes []model.Node) (map[string]Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parents := make(map[string]bool)
	for _, n := range nodes {
		if n.ParentNode != "" {
			parents[n.ParentNode] = true
		}
	}

	out := make(map[string]Measurement, len(nodes))
	for _, n := range nodes {
		label := n.Data.Label
		if label == "" {
			label = n.ID
		}
		header := m.LineHeight + 2*m.PaddingY

		if parents[n.ID] {
			out[n.ID] = Measurement{HeaderHeight: header}
			continue
		}

		def := geometry.DefaultNodeSize(n.Type)
		width := float64(utf8.RuneCountInString(label))*m.CharWidth + 2*m.PaddingX
		out[n.ID] = Measurement{
			Size: model.Size{
				Width:  math.Max(def.Width, math.Ceil(width)),
				Height: def.Height,
			},
		}
	}
	return out, nil
}
