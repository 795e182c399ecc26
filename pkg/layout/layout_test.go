package layout

import (
	"context"
	"errors"
	"testing"

	"github.com/ritzau/deps-viz/pkg/collision"
	"github.com/ritzau/deps-viz/pkg/model"
)

func module(id, parent string) model.Node {
	return model.Node{ID: id, Type: model.NodeTypeModule, ParentNode: parent}
}

func link(source, target string) model.Edge {
	return model.Edge{ID: source + "->" + target, Source: source, Target: target, Data: model.EdgeData{Type: model.EdgeTypeImport}}
}

func testOptions() Options {
	cfg := collision.DefaultConfig()
	return Options{
		Direction:     DirectionTopBottom,
		NodeSpacing:   40,
		RankSpacing:   80,
		ModulePadding: cfg.ModulePadding,
		GroupPadding:  cfg.GroupPadding,
	}
}

func assertPoint(t *testing.T, res *Result, id string, want model.Point) {
	t.Helper()
	got, ok := res.Positions[id]
	if !ok {
		t.Errorf("No position for %s", id)
		return
	}
	if got != want {
		t.Errorf("Position of %s = %+v, want %+v", id, got, want)
	}
}

func TestGridEngineRanksChain(t *testing.T) {
	req := Request{
		Nodes:   []model.Node{module("a", ""), module("b", ""), module("c", "")},
		Edges:   []model.Edge{link("b", "c"), link("a", "b")},
		Options: testOptions(),
	}

	res, err := GridEngine{}.Layout(context.Background(), req)
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}

	assertPoint(t, res, "a", model.Point{X: 0, Y: 0})
	assertPoint(t, res, "b", model.Point{X: 0, Y: 180})
	assertPoint(t, res, "c", model.Point{X: 0, Y: 360})
}

func TestGridEngineLeftRight(t *testing.T) {
	opts := testOptions()
	opts.Direction = DirectionLeftRight
	req := Request{
		Nodes:   []model.Node{module("a", ""), module("b", "")},
		Edges:   []model.Edge{link("a", "b")},
		Options: opts,
	}

	res, err := GridEngine{}.Layout(context.Background(), req)
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}

	assertPoint(t, res, "a", model.Point{X: 0, Y: 0})
	assertPoint(t, res, "b", model.Point{X: 320, Y: 0})
}

func TestGridEngineSizesContainers(t *testing.T) {
	req := Request{
		Nodes: []model.Node{
			{ID: "g", Type: model.NodeTypeGroup},
			module("m1", "g"),
			module("m2", "g"),
			module("x", ""),
		},
		Edges:   []model.Edge{link("m1", "m2"), link("x", "m1")},
		Options: testOptions(),
	}

	res, err := GridEngine{}.Layout(context.Background(), req)
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}

	assertPoint(t, res, "m1", model.Point{X: 24, Y: 56})
	assertPoint(t, res, "m2", model.Point{X: 24, Y: 236})
	if got := res.Sizes["g"]; got != (model.Size{Width: 288, Height: 360}) {
		t.Errorf("Group size = %+v, want 288x360", got)
	}
	// x -> m1 is lifted to x -> g at the top level
	assertPoint(t, res, "x", model.Point{X: 0, Y: 0})
	assertPoint(t, res, "g", model.Point{X: 0, Y: 180})
}

func TestGridEngineHonoursLayoutInsets(t *testing.T) {
	g := model.Node{ID: "g", Type: model.NodeTypeGroup, Data: model.NodeData{LayoutInsets: &model.Insets{Top: 90}}}
	req := Request{
		Nodes:   []model.Node{g, module("m", "g")},
		Options: testOptions(),
	}

	res, err := GridEngine{}.Layout(context.Background(), req)
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}

	assertPoint(t, res, "m", model.Point{X: 24, Y: 90})
}

func TestGridEngineToleratesCycles(t *testing.T) {
	req := Request{
		Nodes: []model.Node{
			module("a", ""), module("b", ""),
			module("p1", "p2"), module("p2", "p1"),
		},
		Edges:   []model.Edge{link("a", "b"), link("b", "a")},
		Options: testOptions(),
	}

	res, err := GridEngine{}.Layout(context.Background(), req)
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}
	for _, id := range []string{"a", "b", "p1", "p2"} {
		if _, ok := res.Positions[id]; !ok {
			t.Errorf("No position for %s", id)
		}
	}
	if res.Positions["a"].Y == res.Positions["b"].Y {
		t.Errorf("Expected the cycle to still be split over two ranks, got %+v", res.Positions)
	}
	// p1 closes the parent cycle, so it is lifted to the top level and p2 nests in it
	if _, ok := res.Sizes["p1"]; !ok {
		t.Errorf("Expected p1 to be sized as the container of p2")
	}
}

func TestGridEngineHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (GridEngine{}).Layout(ctx, Request{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestNewEngine(t *testing.T) {
	for _, name := range []string{"", EngineGrid, EngineDot} {
		if _, err := NewEngine(name); err != nil {
			t.Errorf("NewEngine(%q) failed: %v", name, err)
		}
	}
	if _, err := NewEngine("elk"); !errors.Is(err, ErrNoEngine) {
		t.Errorf("Expected ErrNoEngine, got %v", err)
	}
}

const sampleDotOutput = `digraph G {
	graph [bb="0,0,300,400",
		rankdir=TB
	];
	node [fixedsize=true, label="", shape=box];
	subgraph cluster_0 {
		graph [bb="8,8,292,392",
			margin=24.0
		];
		n1	[height=1.3889,
			pos="150,300",
			width=3.3333];
	}
	n2	[height=1.3889, pos="150,50", width=3.3333];
	n1 -> n2	[pos="e,150,100 150,250 150,200"];
}
`

func TestParseDotLayout(t *testing.T) {
	h := newHierarchy([]model.Node{
		{ID: "g", Type: model.NodeTypeGroup},
		module("m", "g"),
		module("x", ""),
	})

	res, err := parseDotLayout([]byte(sampleDotOutput), h, map[int]string{0: "g", 1: "m", 2: "x"})
	if err != nil {
		t.Fatalf("parseDotLayout failed: %v", err)
	}

	assertPoint(t, res, "g", model.Point{X: 8, Y: 8})
	assertPoint(t, res, "m", model.Point{X: 22, Y: 42})
	assertPoint(t, res, "x", model.Point{X: 30, Y: 300})
	if got := res.Sizes["g"]; got != (model.Size{Width: 284, Height: 384}) {
		t.Errorf("Cluster size = %+v", got)
	}
}

func TestParseDotLayoutMissingNode(t *testing.T) {
	h := newHierarchy([]model.Node{module("a", ""), module("b", "")})

	if _, err := parseDotLayout([]byte(sampleDotOutput), h, map[int]string{0: "a"}); err == nil {
		t.Errorf("Expected an error for a node missing from the output")
	}
}

func TestDotEngineLayout(t *testing.T) {
	req := Request{
		Nodes: []model.Node{
			{ID: "folder:app:src", Type: model.NodeTypeGroup},
			module("app/a", "folder:app:src"),
			module("app/b", "folder:app:src"),
			module("lib/x", ""),
		},
		Edges:   []model.Edge{link("app/a", "app/b"), link("app/b", "lib/x")},
		Options: testOptions(),
	}

	res, err := DotEngine{}.Layout(context.Background(), req)
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}

	size, ok := res.Sizes["folder:app:src"]
	if !ok {
		t.Fatalf("Expected the cluster to be sized")
	}
	for _, id := range []string{"app/a", "app/b"} {
		p := res.Positions[id]
		if p.X < 0 || p.Y < 0 || p.X+240 > size.Width+0.5 || p.Y+100 > size.Height+0.5 {
			t.Errorf("%s at %+v is outside its cluster %+v", id, p, size)
		}
	}
	if res.Positions["app/a"].Y >= res.Positions["app/b"].Y {
		t.Errorf("Expected app/a above app/b, got %+v", res.Positions)
	}
}

type countingMeasurer struct {
	calls int
}

func (m *countingMeasurer) Measure(ctx context.Context, nodes []model.Node) (map[string]Measurement, error) {
	m.calls++
	return DefaultEstimateMeasurer().Measure(ctx, nodes)
}

func groupedGraph() *model.Graph {
	return &model.Graph{
		Nodes: []model.Node{
			{ID: "g", Type: model.NodeTypeGroup, Data: model.NodeData{Label: "src"}},
			{ID: "m1", Type: model.NodeTypeModule, ParentNode: "g", Data: model.NodeData{Label: "a-module-with-a-rather-long-file-name.ts"}},
			{ID: "m2", Type: model.NodeTypeModule, ParentNode: "g", Data: model.NodeData{Label: "b.ts"}},
		},
		Edges: []model.Edge{link("m1", "m2")},
	}
}

func TestCoordinatorTwoPass(t *testing.T) {
	m := &countingMeasurer{}
	c := NewCoordinator(GridEngine{}, m, DefaultConfig(), collision.DefaultConfig())
	in := groupedGraph()

	out, err := c.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if out.Stale || out.Passes != 2 || m.calls != 1 {
		t.Errorf("Expected two passes and one measurement, got %+v (calls %d)", out, m.calls)
	}
	for _, n := range out.Graph.Nodes {
		if n.Position == nil {
			t.Errorf("Node %s has no position", n.ID)
		}
	}

	m1 := out.Graph.Nodes[1]
	if m1.Measured == nil || m1.Measured.Width <= 240 {
		t.Errorf("Expected the long label to widen m1, got %+v", m1.Measured)
	}
	g := out.Graph.Nodes[0]
	if g.Data.LayoutInsets == nil || g.Data.LayoutInsets.Top != 42+24 {
		t.Errorf("Expected the header to raise the top inset, got %+v", g.Data.LayoutInsets)
	}
	if in.Nodes[0].Position != nil {
		t.Errorf("Input graph was modified")
	}
}

func TestCoordinatorSinglePassAboveThreshold(t *testing.T) {
	m := &countingMeasurer{}
	cfg := DefaultConfig()
	cfg.TwoPassThreshold = 3
	c := NewCoordinator(GridEngine{}, m, cfg, collision.DefaultConfig())

	out, err := c.Run(context.Background(), groupedGraph())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Passes != 1 || m.calls != 0 {
		t.Errorf("Expected a single pass without measurement, got %d passes, %d calls", out.Passes, m.calls)
	}
}

func TestCoordinatorWithoutEngine(t *testing.T) {
	c := NewCoordinator(nil, nil, DefaultConfig(), collision.DefaultConfig())

	if _, err := c.Run(context.Background(), model.NewGraph()); !errors.Is(err, ErrNoEngine) {
		t.Errorf("Expected ErrNoEngine, got %v", err)
	}
}

// blockingEngine waits for release before delegating to the grid engine
type blockingEngine struct {
	entered chan struct{}
	release chan struct{}
}

func (blockingEngine) Name() string { return "blocking" }

func (e blockingEngine) Layout(ctx context.Context, req Request) (*Result, error) {
	e.entered <- struct{}{}
	<-e.release
	return GridEngine{}.Layout(ctx, req)
}

func TestCoordinatorDropsStaleResults(t *testing.T) {
	engine := blockingEngine{entered: make(chan struct{}, 1), release: make(chan struct{})}
	c := NewCoordinator(engine, nil, DefaultConfig(), collision.DefaultConfig())

	done := make(chan *Outcome, 1)
	go func() {
		out, err := c.Run(context.Background(), groupedGraph())
		if err != nil {
			t.Errorf("Run failed: %v", err)
		}
		done <- out
	}()

	<-engine.entered
	c.Invalidate()
	close(engine.release)

	out := <-done
	if out == nil || !out.Stale || out.Graph != nil {
		t.Errorf("Expected a stale outcome, got %+v", out)
	}
	if out != nil && out.Version >= c.Version() {
		t.Errorf("Stale version %d should be older than %d", out.Version, c.Version())
	}
}

// stackingEngine puts every node at the origin
type stackingEngine struct{}

func (stackingEngine) Name() string { return "stacking" }

func (stackingEngine) Layout(_ context.Context, req Request) (*Result, error) {
	res := &Result{Positions: map[string]model.Point{}, Sizes: map[string]model.Size{}}
	for _, n := range req.Nodes {
		res.Positions[n.ID] = model.Point{}
	}
	return res, nil
}

func TestCoordinatorSettlesOverlaps(t *testing.T) {
	c := NewCoordinator(stackingEngine{}, nil, DefaultConfig(), collision.DefaultConfig())
	g := &model.Graph{Nodes: []model.Node{module("a", ""), module("b", "")}}

	out, err := c.Run(context.Background(), g)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Collision == nil || !out.Collision.Converged {
		t.Fatalf("Expected a converged settle, got %+v", out.Collision)
	}

	a, b := out.Graph.Nodes[0].Position, out.Graph.Nodes[1].Position
	ra := model.Rect{X: a.X, Y: a.Y, Width: 240, Height: 100}
	rb := model.Rect{X: b.X, Y: b.Y, Width: 240, Height: 100}
	if ra.X < rb.Right() && rb.X < ra.Right() && ra.Y < rb.Bottom() && rb.Y < ra.Bottom() {
		t.Errorf("Nodes still overlap: %+v %+v", ra, rb)
	}
}

func TestEstimateMeasurer(t *testing.T) {
	nodes := groupedGraph().Nodes

	got, err := DefaultEstimateMeasurer().Measure(context.Background(), nodes)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}

	if got["g"].HeaderHeight != 42 || got["g"].Size != (model.Size{}) {
		t.Errorf("Unexpected group measurement: %+v", got["g"])
	}
	if got["m2"].Size != (model.Size{Width: 240, Height: 100}) {
		t.Errorf("Short labels keep the default size, got %+v", got["m2"].Size)
	}
}
