package view

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/ritzau/deps-viz/pkg/model"
)

// testDocument has an import cycle between a and b, a test file, a module
// without relationships and a second package reusing the "src" directory.
func testDocument() *model.Document {
	return &model.Document{
		Packages: []model.Package{
			{
				ID:   "app",
				Name: "app",
				Modules: []model.Module{
					{
						ID:           "app/a",
						RelativePath: "src/a.ts",
						Imports: []model.Import{
							{Target: "app/b"},
							{Package: "lodash", External: true},
							{Package: "react", External: true},
							{Target: "app/missing"},
						},
					},
					{
						ID:           "app/b",
						RelativePath: "src/b.ts",
						Imports:      []model.Import{{Target: "app/a"}},
						Classes:      []model.Class{{ID: "C1", Name: "C1", Extends: []string{"C2"}}},
						SymbolReferences: []model.SymbolReference{
							{Source: "C1", Target: "C2", Kind: "method"},
						},
					},
					{
						ID:           "app/c",
						RelativePath: "lib/c.ts",
						Classes:      []model.Class{{ID: "C2", Name: "C2", Implements: []string{"I1"}}},
						Interfaces:   []model.Interface{{ID: "I1", Name: "I1"}},
					},
					{
						ID:           "app/t",
						RelativePath: "src/a.test.ts",
						Imports:      []model.Import{{Target: "app/a"}},
					},
					{
						ID:           "app/lonely",
						RelativePath: "index.ts",
					},
				},
			},
			{
				ID:   "lib",
				Name: "lib",
				Modules: []model.Module{
					{ID: "lib/x", RelativePath: "src/a.ts"},
				},
			},
		},
	}
}

func nodeIDs(nodes []model.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func edgeIDs(edges []model.Edge) []string {
	ids := make([]string, len(edges))
	for i, e := range edges {
		ids[i] = e.ID
	}
	return ids
}

func findNode(t *testing.T, g *model.Graph, id string) model.Node {
	t.Helper()
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("Node %s not found in %v", id, nodeIDs(g.Nodes))
	return model.Node{}
}

func TestBuildBaseGraphModuleLevel(t *testing.T) {
	g := BuildBaseGraph(testDocument(), Options{Level: LevelModule})

	wantNodes := []string{"app/a", "app/b", "app/c", "app/t", "app/lonely", "lib/x"}
	if !reflect.DeepEqual(nodeIDs(g.Nodes), wantNodes) {
		t.Errorf("Nodes = %v, want %v", nodeIDs(g.Nodes), wantNodes)
	}

	wantEdges := []string{
		"app/a->app/b:import",
		"app/b->app/a:import",
		"app/t->app/a:import",
		"app/b->app/c:inheritance",
	}
	if !reflect.DeepEqual(edgeIDs(g.Edges), wantEdges) {
		t.Errorf("Edges = %v, want %v", edgeIDs(g.Edges), wantEdges)
	}

	a := findNode(t, g, "app/a")
	if a.Data.Diagnostics.ExternalDependencyCount != 2 || a.Data.Diagnostics.ExternalDependencyPackageCount != 2 {
		t.Errorf("Unexpected external counts: %+v", a.Data.Diagnostics)
	}
	if a.Data.Label != "a.ts" {
		t.Errorf("Expected label from the file name, got %q", a.Data.Label)
	}
	if !findNode(t, g, "app/t").Data.Diagnostics.IsTestFile {
		t.Errorf("Expected app/t to be flagged as a test file")
	}
}

func TestBuildBaseGraphSymbolLevel(t *testing.T) {
	g := BuildBaseGraph(testDocument(), Options{Level: LevelSymbol})

	c1 := findNode(t, g, "C1")
	if c1.ParentNode != "app/b" || c1.Type != model.NodeTypeClass {
		t.Errorf("Unexpected class node: %+v", c1)
	}
	if i1 := findNode(t, g, "I1"); i1.ParentNode != "app/c" || i1.Type != model.NodeTypeInterface {
		t.Errorf("Unexpected interface node: %+v", i1)
	}

	ids := make(map[string]bool)
	for _, e := range g.Edges {
		ids[e.ID] = true
	}
	for _, want := range []string{"C1->C2:inheritance", "C2->I1:implements", "C1->C2:uses:method"} {
		if !ids[want] {
			t.Errorf("Missing edge %s in %v", want, edgeIDs(g.Edges))
		}
	}
}

func TestBuildBaseGraphPackageLevel(t *testing.T) {
	doc := &model.Document{Packages: []model.Package{
		{ID: "a", Dependencies: []model.PackageDependency{
			{Target: "b", Type: model.EdgeTypeDevDependency},
			{Target: "left-pad", Type: model.EdgeTypeDependency},
		}},
		{ID: "b"},
	}}

	g := BuildBaseGraph(doc, Options{Level: LevelPackage})

	if !reflect.DeepEqual(edgeIDs(g.Edges), []string{"a->b:devDependency"}) {
		t.Errorf("Unexpected edges: %v", edgeIDs(g.Edges))
	}
	if d := findNode(t, g, "a").Data.Diagnostics; d.ExternalDependencyCount != 1 {
		t.Errorf("Expected one external dependency, got %+v", d)
	}
}

func TestIsTestFile(t *testing.T) {
	tests := map[string]bool{
		"src/a.test.ts":        true,
		"src/a.spec.js":        true,
		"pkg/thing_test.go":    true,
		"test/helpers.ts":      true,
		"src/__tests__/x.ts":   true,
		"src/testing.ts":       false,
		"src/contest/entry.ts": false,
	}
	for path, want := range tests {
		if got := IsTestFile(path); got != want {
			t.Errorf("IsTestFile(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestFilterEdgeVisibility(t *testing.T) {
	edges := []model.Edge{
		{ID: "imp", Data: model.EdgeData{Type: model.EdgeTypeImport}},
		{ID: "inh", Data: model.EdgeData{Type: model.EdgeTypeInheritance}},
		{ID: "use", Data: model.EdgeData{Type: model.EdgeTypeUses}},
		{ID: "untyped"},
	}

	got := FilterEdgeVisibility(edges, []model.EdgeType{model.EdgeTypeInheritance})

	if len(got) != len(edges) {
		t.Fatalf("Filter must not remove edges, got %d", len(got))
	}
	want := map[string]bool{"imp": true, "inh": false, "use": false, "untyped": false}
	for _, e := range got {
		if e.Hidden != want[e.ID] {
			t.Errorf("Edge %s hidden = %v, want %v", e.ID, e.Hidden, want[e.ID])
		}
	}
	if edges[0].Hidden {
		t.Errorf("Input slice was modified")
	}
}

func TestDropTestFiles(t *testing.T) {
	g := BuildBaseGraph(testDocument(), Options{Level: LevelModule})

	if n := DropTestFiles(g); n != 1 {
		t.Errorf("Expected one test file dropped, got %d", n)
	}
	for _, e := range g.Edges {
		if e.Source == "app/t" {
			t.Errorf("Edge from the dropped test file survived: %s", e.ID)
		}
	}
}

func TestComputeOrphanDiagnostics(t *testing.T) {
	g := BuildBaseGraph(testDocument(), Options{Level: LevelModule})
	global := append([]model.Edge(nil), g.Edges...)
	g.Edges = FilterEdgeVisibility(g.Edges, []model.EdgeType{model.EdgeTypeInheritance})

	orphans := ComputeOrphanDiagnostics(g.Nodes, VisibleEdges(g.Edges), global)

	// Only b->c inheritance is visible
	if orphans != 4 {
		t.Errorf("Expected 4 current orphans, got %d", orphans)
	}

	a := findNode(t, g, "app/a").Data.Diagnostics
	if !a.OrphanCurrent || a.OrphanGlobal {
		t.Errorf("app/a should be orphaned only under the filter: %+v", a)
	}
	lonely := findNode(t, g, "app/lonely").Data.Diagnostics
	if !lonely.OrphanCurrent || !lonely.OrphanGlobal {
		t.Errorf("app/lonely should be orphaned globally: %+v", lonely)
	}
	if b := findNode(t, g, "app/b").Data.Diagnostics; b.OrphanCurrent {
		t.Errorf("app/b has a visible edge: %+v", b)
	}
}

func TestCollapseSCCs(t *testing.T) {
	g := BuildBaseGraph(testDocument(), Options{Level: LevelModule})

	out, found := CollapseSCCs(g)

	if len(found) != 1 || !reflect.DeepEqual(found[0].Members, []string{"app/a", "app/b"}) {
		t.Fatalf("Unexpected cycles: %+v", found)
	}

	wantNodes := []string{"scc:app/a", "app/c", "app/t", "app/lonely", "lib/x"}
	if !reflect.DeepEqual(nodeIDs(out.Nodes), wantNodes) {
		t.Errorf("Nodes = %v, want %v", nodeIDs(out.Nodes), wantNodes)
	}
	group := findNode(t, out, "scc:app/a")
	if group.Type != model.NodeTypeGroup || group.Data.Package != "app" || len(group.Data.Members) != 2 {
		t.Errorf("Unexpected group node: %+v", group)
	}

	wantEdges := []string{"app/t->scc:app/a:import", "scc:app/a->app/c:inheritance"}
	if !reflect.DeepEqual(edgeIDs(out.Edges), wantEdges) {
		t.Errorf("Edges = %v, want %v", edgeIDs(out.Edges), wantEdges)
	}
}

func TestCollapseSCCsMergesRedirectedEdges(t *testing.T) {
	g := &model.Graph{
		Nodes: []model.Node{{ID: "a"}, {ID: "b"}, {ID: "x"}},
		Edges: []model.Edge{
			{ID: "ab", Source: "a", Target: "b", Data: model.EdgeData{Type: model.EdgeTypeImport}},
			{ID: "ba", Source: "b", Target: "a", Data: model.EdgeData{Type: model.EdgeTypeImport}},
			{ID: "xa", Source: "x", Target: "a", Hidden: true, Data: model.EdgeData{Type: model.EdgeTypeImport}},
			{ID: "xb", Source: "x", Target: "b", Data: model.EdgeData{Type: model.EdgeTypeImport}},
		},
	}

	out, _ := CollapseSCCs(g)

	if len(out.Edges) != 1 {
		t.Fatalf("Expected the two x edges to merge, got %v", edgeIDs(out.Edges))
	}
	if out.Edges[0].Hidden {
		t.Errorf("Merged edge must be visible when any member is visible")
	}
}

func TestCollapseSCCsWithoutCycles(t *testing.T) {
	g := &model.Graph{
		Nodes: []model.Node{{ID: "a"}, {ID: "b"}},
		Edges: []model.Edge{{ID: "ab", Source: "a", Target: "b", Data: model.EdgeData{Type: model.EdgeTypeImport}}},
	}

	out, found := CollapseSCCs(g)

	if out != g || found != nil {
		t.Errorf("Expected the graph to be returned unchanged")
	}
}

func TestClusterByFolder(t *testing.T) {
	g := BuildBaseGraph(testDocument(), Options{Level: LevelModule})

	out, groups := ClusterByFolder(g)

	if groups != 4 {
		t.Errorf("Expected 4 folder groups, got %d", groups)
	}
	wantNodes := []string{
		"folder:app:src", "app/a", "app/b",
		"folder:app:lib", "app/c",
		"app/t",
		"folder:app:.", "app/lonely",
		"folder:lib:src", "lib/x",
	}
	if !reflect.DeepEqual(nodeIDs(out.Nodes), wantNodes) {
		t.Errorf("Nodes = %v, want %v", nodeIDs(out.Nodes), wantNodes)
	}

	if p := findNode(t, out, "lib/x").ParentNode; p != "folder:lib:src" {
		t.Errorf("Same relative path in another package must get its own group, got %q", p)
	}
	if p := findNode(t, out, "app/t").ParentNode; p != "folder:app:src" {
		t.Errorf("Expected app/t in folder:app:src, got %q", p)
	}
	if label := findNode(t, out, "folder:app:.").Data.Label; label != "app" {
		t.Errorf("Root folder should be labelled with the package, got %q", label)
	}
}

func TestClusterByFolderIsDeterministic(t *testing.T) {
	g := BuildBaseGraph(testDocument(), Options{Level: LevelModule})

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var roundTripped model.Graph
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	first, _ := ClusterByFolder(g)
	second, _ := ClusterByFolder(&roundTripped)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("Clustering differs after a round trip:\n%s\n%s", a, b)
	}

	again, groups := ClusterByFolder(first)
	c, _ := json.Marshal(again)
	if groups != 0 || string(a) != string(c) {
		t.Errorf("Clustering is not idempotent, %d new groups", groups)
	}
}

func parallelEdges() []model.Edge {
	return []model.Edge{
		{ID: "ab-imp", Source: "a", Target: "b", Data: model.EdgeData{Type: model.EdgeTypeImport}},
		{ID: "ac-imp", Source: "a", Target: "c", Data: model.EdgeData{Type: model.EdgeTypeImport}},
		{ID: "ab-inh", Source: "a", Target: "b", Hidden: true, Data: model.EdgeData{Type: model.EdgeTypeInheritance}},
	}
}

func TestBundleEdgesBelowThreshold(t *testing.T) {
	edges := parallelEdges()

	got, bundles := BundleEdges(edges, 4)

	if bundles != 0 || !reflect.DeepEqual(got, edges) {
		t.Errorf("Expected edges unchanged below the threshold, got %v", edgeIDs(got))
	}
	if got, _ := BundleEdges(edges, 0); len(got) != 3 {
		t.Errorf("Threshold 0 must disable bundling")
	}
}

func TestBundleEdgesAtThreshold(t *testing.T) {
	got, bundles := BundleEdges(parallelEdges(), 3)

	if bundles != 1 || len(got) != 2 {
		t.Fatalf("Expected one bundle and one plain edge, got %v", edgeIDs(got))
	}

	b := got[0]
	if b.ID != "bundle:a->b" || b.Data.Type != model.EdgeTypeInheritance {
		t.Errorf("Expected the inheritance member to represent the bundle, got %+v", b)
	}
	if b.Data.BundledCount != 2 {
		t.Errorf("Expected bundled count 2, got %d", b.Data.BundledCount)
	}
	if !reflect.DeepEqual(b.Data.BundledTypes, []model.EdgeType{model.EdgeTypeImport, model.EdgeTypeInheritance}) {
		t.Errorf("Unexpected bundled types: %v", b.Data.BundledTypes)
	}
	if !reflect.DeepEqual(b.Data.BundledIDs, []string{"ab-imp", "ab-inh"}) {
		t.Errorf("Unexpected bundled ids: %v", b.Data.BundledIDs)
	}
	if b.Hidden {
		t.Errorf("Bundle must stay visible while any member is visible")
	}
	if got[1].ID != "ac-imp" {
		t.Errorf("Expected the single edge to pass through, got %s", got[1].ID)
	}
}

func TestBundleEdgesHiddenWhenAllMembersHidden(t *testing.T) {
	edges := parallelEdges()
	edges[0].Hidden = true

	got, _ := BundleEdges(edges, 1)

	if !got[0].Hidden {
		t.Errorf("Bundle of hidden edges must be hidden")
	}
}

func fanInGraph() *model.Graph {
	g := &model.Graph{
		Nodes: []model.Node{
			{ID: "t", ParentNode: "folder"},
			{ID: "s1"}, {ID: "s2"}, {ID: "s3"},
		},
	}
	for _, s := range []string{"s1", "s2", "s3"} {
		g.Edges = append(g.Edges, model.Edge{ID: s + "-t", Source: s, Target: "t", Data: model.EdgeData{Type: model.EdgeTypeImport}})
	}
	g.Edges = append(g.Edges, model.Edge{ID: "s1-t-use", Source: "s1", Target: "t", Data: model.EdgeData{Type: model.EdgeTypeUses}})
	return g
}

func TestAggregateHubs(t *testing.T) {
	out, hubs := AggregateHubs(fanInGraph(), 3)

	if hubs != 1 {
		t.Fatalf("Expected one hub, got %d", hubs)
	}
	if !reflect.DeepEqual(nodeIDs(out.Nodes), []string{"t", "hub:t", "s1", "s2", "s3"}) {
		t.Errorf("Unexpected nodes: %v", nodeIDs(out.Nodes))
	}

	hub := findNode(t, out, "hub:t")
	if hub.Type != model.NodeTypeHub || hub.ParentNode != "folder" {
		t.Errorf("Unexpected hub node: %+v", hub)
	}
	if hub.Data.Hub.OriginalEdgeCount != 3 || !reflect.DeepEqual(hub.Data.Hub.SourceIDs, []string{"s1", "s2", "s3"}) {
		t.Errorf("Unexpected hub meta: %+v", hub.Data.Hub)
	}

	for _, e := range out.Edges {
		switch e.ID {
		case "s1-t", "s2-t", "s3-t":
			if e.Target != "hub:t" {
				t.Errorf("Edge %s should target the hub, got %s", e.ID, e.Target)
			}
		case "s1-t-use":
			if e.Target != "t" {
				t.Errorf("Structural edge must not be aggregated")
			}
		case "hub:t->t":
			if e.Data.BundledCount != 3 || e.Data.Type != model.EdgeTypeImport {
				t.Errorf("Unexpected summary edge: %+v", e)
			}
		default:
			t.Errorf("Unexpected edge %s", e.ID)
		}
	}
}

func TestAggregateHubsRebuildsFromScratch(t *testing.T) {
	first, _ := AggregateHubs(fanInGraph(), 3)

	again, hubs := AggregateHubs(first, 3)
	if hubs != 1 || !reflect.DeepEqual(again, first) {
		t.Errorf("Rerunning aggregation should produce the same graph")
	}

	dissolved, hubs := AggregateHubs(first, 0)
	if hubs != 0 {
		t.Errorf("Expected no hubs with threshold 0")
	}
	if !reflect.DeepEqual(dissolved.Edges, fanInGraph().Edges) {
		t.Errorf("Dissolving hubs should restore the original edges, got %v", edgeIDs(dissolved.Edges))
	}
}

func TestRender(t *testing.T) {
	res := Render(testDocument(), DefaultOptions())

	if res.Stats.FolderGroups != 4 || res.Stats.Nodes != 10 || res.Stats.Edges != 4 {
		t.Errorf("Unexpected stats: %+v", res.Stats)
	}
	if res.Stats.Orphans != 2 {
		t.Errorf("Expected app/lonely and lib/x to be orphans, got %d", res.Stats.Orphans)
	}
	for _, n := range res.Semantic.Nodes {
		if n.Type == model.NodeTypeGroup {
			t.Errorf("Semantic graph must not contain groups, found %s", n.ID)
		}
	}
}

func TestRenderCollapsedWithoutTests(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeTests = false
	opts.CollapseSCCs = true
	opts.ClusterByFolder = false

	res := Render(testDocument(), opts)

	if res.Stats.TestFiles != 1 || res.Stats.Cycles != 1 {
		t.Errorf("Unexpected stats: %+v", res.Stats)
	}
	want := []string{"scc:app/a", "app/c", "app/lonely", "lib/x"}
	if !reflect.DeepEqual(nodeIDs(res.Graph.Nodes), want) {
		t.Errorf("Nodes = %v, want %v", nodeIDs(res.Graph.Nodes), want)
	}
}

func TestSearch(t *testing.T) {
	res := Render(testDocument(), DefaultOptions())

	h := SearchHighlight(res, "APP/B", 1)

	if !reflect.DeepEqual(h.Matches, []string{"app/b"}) {
		t.Errorf("Unexpected matches: %v", h.Matches)
	}
	wantDist := map[string]int{"app/b": 0, "app/a": 1, "app/c": 1}
	if !reflect.DeepEqual(h.Distances, wantDist) {
		t.Errorf("Distances = %v, want %v", h.Distances, wantDist)
	}
	wantRendered := []string{"folder:app:src", "app/a", "app/b", "folder:app:lib", "app/c"}
	if !reflect.DeepEqual(h.Rendered, wantRendered) {
		t.Errorf("Rendered = %v, want %v", h.Rendered, wantRendered)
	}

	if empty := SearchHighlight(res, "  ", 3); len(empty.Matches) != 0 {
		t.Errorf("Blank query should match nothing")
	}
}

func TestSearchMapsCycleMembersToGroup(t *testing.T) {
	opts := DefaultOptions()
	opts.CollapseSCCs = true
	opts.ClusterByFolder = false
	res := Render(testDocument(), opts)

	h := SearchHighlight(res, "app/b", 0)

	if !reflect.DeepEqual(h.Rendered, []string{"scc:app/a"}) {
		t.Errorf("Expected the collapsed group to be highlighted, got %v", h.Rendered)
	}
}

func TestComputeDiff(t *testing.T) {
	old := &model.Graph{
		Nodes: []model.Node{{ID: "a"}, {ID: "b", Data: model.NodeData{Label: "b"}}},
		Edges: []model.Edge{{ID: "ab", Source: "a", Target: "b"}},
	}
	cur := &model.Graph{
		Nodes: []model.Node{{ID: "b", Data: model.NodeData{Label: "B"}}, {ID: "c"}},
		Edges: []model.Edge{{ID: "bc", Source: "b", Target: "c"}},
	}

	diff := ComputeDiff(old, cur)

	if !reflect.DeepEqual(nodeIDs(diff.AddedNodes), []string{"c"}) ||
		!reflect.DeepEqual(diff.RemovedNodes, []string{"a"}) ||
		!reflect.DeepEqual(nodeIDs(diff.ModifiedNodes), []string{"b"}) {
		t.Errorf("Unexpected node diff: %+v", diff)
	}
	if !reflect.DeepEqual(edgeIDs(diff.AddedEdges), []string{"bc"}) || !reflect.DeepEqual(diff.RemovedEdges, []string{"ab"}) {
		t.Errorf("Unexpected edge diff: %+v", diff)
	}
	if diff.Empty() {
		t.Errorf("Diff should not be empty")
	}
	if full := ComputeDiff(nil, cur); !full.FullGraph {
		t.Errorf("Expected a full graph without an old snapshot")
	}
	if same := ComputeDiff(cur, cur); !same.Empty() {
		t.Errorf("Expected an empty diff for identical graphs: %+v", same)
	}
}

func TestVisibilityAndPositionDelta(t *testing.T) {
	oldEdges := []model.Edge{{ID: "a"}, {ID: "b", Hidden: true}}
	newEdges := []model.Edge{{ID: "a"}, {ID: "b"}, {ID: "c", Hidden: true}}

	vis := VisibilityDelta(oldEdges, newEdges)
	if !reflect.DeepEqual(vis, map[string]bool{"b": false, "c": true}) {
		t.Errorf("Unexpected visibility delta: %v", vis)
	}

	oldNodes := []model.Node{
		{ID: "still", Position: &model.Point{X: 1, Y: 1}},
		{ID: "moved", Position: &model.Point{X: 0, Y: 0}},
	}
	newNodes := []model.Node{
		{ID: "still", Position: &model.Point{X: 1.005, Y: 1}},
		{ID: "moved", Position: &model.Point{X: 0, Y: 5}},
		{ID: "new", Position: &model.Point{X: 3, Y: 3}},
		{ID: "unplaced"},
	}
	pos := PositionDelta(oldNodes, newNodes)
	if !reflect.DeepEqual(SortedKeys(pos), []string{"moved", "new"}) {
		t.Errorf("Unexpected position delta: %v", pos)
	}
}

func TestComputeHash(t *testing.T) {
	opts := DefaultOptions()
	h1 := ComputeHash("rev1", opts)
	if h1 == "" || h1 != ComputeHash("rev1", opts) {
		t.Errorf("Hash must be stable")
	}
	if h1 == ComputeHash("rev2", opts) {
		t.Errorf("Hash must depend on the revision")
	}
	opts.CollapseSCCs = true
	if h1 == ComputeHash("rev1", opts) {
		t.Errorf("Hash must depend on the options")
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel(""); err != nil || l != LevelModule {
		t.Errorf("ParseLevel(\"\") = %q, %v", l, err)
	}
	if _, err := ParseLevel("galaxy"); err == nil {
		t.Errorf("Expected an error for an unknown level")
	}
}
