package geometry

import (
	"testing"

	"github.com/ritzau/deps-viz/pkg/model"
)

func TestResolveNodeDimensionsPrecedence(t *testing.T) {
	defaults := model.Size{Width: 100, Height: 50}

	tests := []struct {
		name string
		node model.Node
		want model.Size
	}{
		{
			name: "defaults",
			node: model.Node{ID: "a"},
			want: model.Size{Width: 100, Height: 50},
		},
		{
			name: "measured beats defaults",
			node: model.Node{ID: "a", Measured: &model.Size{Width: 120, Height: 60}},
			want: model.Size{Width: 120, Height: 60},
		},
		{
			name: "style beats measured",
			node: model.Node{
				ID:       "a",
				Measured: &model.Size{Width: 120, Height: 60},
				Style:    &model.NodeStyle{Width: "240px", Height: 80.0},
			},
			want: model.Size{Width: 240, Height: 80},
		},
		{
			name: "unparseable style falls through",
			node: model.Node{
				ID:       "a",
				Measured: &model.Size{Width: 120, Height: 60},
				Style:    &model.NodeStyle{Width: "auto", Height: "NaNpx"},
			},
			want: model.Size{Width: 120, Height: 60},
		},
		{
			name: "clamped to one",
			node: model.Node{ID: "a", Style: &model.NodeStyle{Width: -5.0, Height: "0.2em"}},
			want: model.Size{Width: 1, Height: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveNodeDimensions(&tt.node, defaults)
			if got != tt.want {
				t.Errorf("ResolveNodeDimensions() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseDimension(t *testing.T) {
	tests := []struct {
		in   interface{}
		want float64
		ok   bool
	}{
		{12.5, 12.5, true},
		{7, 7, true},
		{"33px", 33, true},
		{" 4.5rem", 4.5, true},
		{"px", 0, false},
		{"", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseDimension(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseDimension(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestBuildAbsoluteNodeBoundsMapNested(t *testing.T) {
	nodes := []model.Node{
		{ID: "child", ParentNode: "group", Position: &model.Point{X: 10, Y: 20}},
		{ID: "group", Type: model.NodeTypeGroup, Position: &model.Point{X: 100, Y: 200}},
		{ID: "grandchild", ParentNode: "child", Position: &model.Point{X: 1, Y: 2}},
		{ID: "floating"},
	}

	bounds := BuildAbsoluteNodeBoundsMap(nodes, model.Size{Width: 50, Height: 30})

	if _, ok := bounds["floating"]; ok {
		t.Error("Node without position should be excluded")
	}
	if got := bounds["child"]; got.X != 110 || got.Y != 220 {
		t.Errorf("child bounds = %+v, want origin (110,220)", got)
	}
	if got := bounds["grandchild"]; got.X != 111 || got.Y != 222 {
		t.Errorf("grandchild bounds = %+v, want origin (111,222)", got)
	}
	if got := bounds["group"]; got.Width != 50 || got.Height != 30 {
		t.Errorf("group size = %+v, want 50x30", got)
	}
}

func TestBuildAbsoluteNodeBoundsMapCycle(t *testing.T) {
	nodes := []model.Node{
		{ID: "a", ParentNode: "b", Position: &model.Point{X: 10, Y: 10}},
		{ID: "b", ParentNode: "a", Position: &model.Point{X: 5, Y: 5}},
		{ID: "self", ParentNode: "self", Position: &model.Point{X: 3, Y: 4}},
	}

	bounds := BuildAbsoluteNodeBoundsMap(nodes, model.Size{Width: 10, Height: 10})

	a, okA := bounds["a"]
	if !okA {
		t.Fatal("First node of a cycle must still resolve")
	}
	if a.X != 15 || a.Y != 15 {
		t.Errorf("a = %+v, want origin (15,15) from partial chain", a)
	}
	if _, ok := bounds["b"]; !ok {
		t.Error("Expected b to resolve from its own position")
	}
	if s := bounds["self"]; s.X != 3 || s.Y != 4 {
		t.Errorf("self-parented node = %+v, want (3,4)", s)
	}
}

func TestSegmentIntersectsRect(t *testing.T) {
	r := model.Rect{X: 0, Y: 0, Width: 100, Height: 100}

	tests := []struct {
		name string
		a, b model.Point
		want bool
	}{
		{"inside", model.Point{X: 10, Y: 10}, model.Point{X: 20, Y: 20}, true},
		{"crossing", model.Point{X: -50, Y: 50}, model.Point{X: 150, Y: 50}, true},
		{"diagonal through", model.Point{X: -10, Y: -10}, model.Point{X: 110, Y: 110}, true},
		{"outside parallel", model.Point{X: -50, Y: 150}, model.Point{X: 150, Y: 150}, false},
		{"misses corner", model.Point{X: 90, Y: -50}, model.Point{X: 150, Y: 20}, false},
		{"entirely right", model.Point{X: 200, Y: 0}, model.Point{X: 300, Y: 100}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SegmentIntersectsRect(tt.a, tt.b, r); got != tt.want {
				t.Errorf("SegmentIntersectsRect() = %v, want %v", got, tt.want)
			}
		})
	}
}
