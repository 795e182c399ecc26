package main

import (
	"testing"

	"github.com/ritzau/deps-viz/pkg/model"
)

func TestParseViewRequest(t *testing.T) {
	req, err := parseViewRequest("-120,40.5,0.25", "1280x720")
	if err != nil {
		t.Fatalf("parseViewRequest failed: %v", err)
	}
	if req.Viewport.X != -120 || req.Viewport.Y != 40.5 || req.Viewport.Zoom != 0.25 {
		t.Errorf("Unexpected viewport: %+v", req.Viewport)
	}
	if req.ContainerSize.Width != 1280 || req.ContainerSize.Height != 720 {
		t.Errorf("Unexpected container: %+v", req.ContainerSize)
	}

	if _, err := parseViewRequest("1,2", "1280x720"); err == nil {
		t.Errorf("Expected error for a short viewport")
	}
	if _, err := parseViewRequest("0,0,1", "wide"); err == nil {
		t.Errorf("Expected error for a bad container")
	}
}

func TestRouteEdgesSkipsUnknown(t *testing.T) {
	node := func(id string, x float64) model.Node {
		return model.Node{
			ID:       id,
			Type:     model.NodeTypeModule,
			Position: &model.Point{X: x},
			Style:    &model.NodeStyle{Width: 240.0, Height: 100.0},
		}
	}
	g := &model.Graph{
		Nodes: []model.Node{node("a", 0), node("b", 400)},
		Edges: []model.Edge{
			{ID: "a->b", Source: "a", Target: "b"},
			{ID: "a->x", Source: "a", Target: "x"},
		},
	}

	routes := routeEdges(g, []string{"a->b", "a->x", "gone"})
	if len(routes) != 1 || routes[0].EdgeID != "a->b" {
		t.Errorf("Expected only a->b routed, got %+v", routes)
	}
}
