package model

// Graph is the node/edge list handed between the view pipeline, the layout engine,
// the collision resolver and the renderer. Ordering is significant: every consumer
// iterates in slice order so results are deterministic for a given input.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make([]Node, 0),
		Edges: make([]Edge, 0),
	}
}

// Node is a vertex in the rendered graph. Position is parent-relative when
// ParentNode is set, absolute otherwise.
type Node struct {
	ID         string     `json:"id"`
	Type       NodeType   `json:"type"`
	Position   *Point     `json:"position,omitempty"`
	ParentNode string     `json:"parentNode,omitempty"`
	Measured   *Size      `json:"measured,omitempty"`
	Style      *NodeStyle `json:"style,omitempty"`
	Data       NodeData   `json:"data"`
}

// NodeStyle carries explicit size hints. Width and Height are either numbers or
// strings of the form "<number><unit>" (e.g. "240px").
type NodeStyle struct {
	Width  interface{} `json:"width,omitempty"`
	Height interface{} `json:"height,omitempty"`
}

// NodeData is the payload attached to a node.
type NodeData struct {
	Label        string       `json:"label,omitempty"`
	Package      string       `json:"package,omitempty"`
	RelativePath string       `json:"relativePath,omitempty"`
	Diagnostics  *Diagnostics `json:"diagnostics,omitempty"`
	LayoutInsets *Insets      `json:"layoutInsets,omitempty"`
	Hub          *HubMeta     `json:"hub,omitempty"`
	Members      []string     `json:"members,omitempty"` // collapsed SCC members
}

// Diagnostics are derived flags computed by the view pipeline.
type Diagnostics struct {
	IsTestFile                     bool `json:"isTestFile"`
	OrphanCurrent                  bool `json:"orphanCurrent"`
	OrphanGlobal                   bool `json:"orphanGlobal"`
	ExternalDependencyCount        int  `json:"externalDependencyCount"`
	ExternalDependencyPackageCount int  `json:"externalDependencyPackageCount"`
}

// HubMeta describes a synthetic aggregation node standing in for the many
// incoming edges of a high fan-in target.
type HubMeta struct {
	TargetID          string   `json:"targetId"`
	SourceIDs         []string `json:"sourceIds"`
	OriginalEdgeCount int      `json:"originalEdgeCount"`
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Hidden bool     `json:"hidden,omitempty"`
	Data   EdgeData `json:"data"`
}

// EdgeData is the payload attached to an edge.
type EdgeData struct {
	Type         EdgeType   `json:"type,omitempty"`
	UsageKind    string     `json:"usageKind,omitempty"` // "method" or "property" for uses edges
	SourceAnchor *Point     `json:"sourceAnchor,omitempty"`
	TargetAnchor *Point     `json:"targetAnchor,omitempty"`
	SourceHandle string     `json:"sourceHandle,omitempty"`
	TargetHandle string     `json:"targetHandle,omitempty"`
	BundledCount int        `json:"bundledCount,omitempty"`
	BundledTypes []EdgeType `json:"bundledTypes,omitempty"`
	BundledIDs   []string   `json:"bundledIds,omitempty"`
}

// AddNode appends a node. If a node with the same ID exists, it is replaced in place.
func (g *Graph) AddNode(node Node) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == node.ID {
			g.Nodes[i] = node
			return
		}
	}
	g.Nodes = append(g.Nodes, node)
}

// AddEdge appends an edge.
func (g *Graph) AddEdge(edge Edge) {
	g.Edges = append(g.Edges, edge)
}

// NodeIndex maps node IDs to their slice index.
func (g *Graph) NodeIndex() map[string]int {
	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		index[n.ID] = i
	}
	return index
}

// DropDanglingEdges removes edges whose source or target is not a node of the
// graph and returns how many were dropped.
func (g *Graph) DropDanglingEdges() int {
	index := g.NodeIndex()
	kept := g.Edges[:0]
	dropped := 0
	for _, e := range g.Edges {
		_, okSource := index[e.Source]
		_, okTarget := index[e.Target]
		if !okSource || !okTarget {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	g.Edges = kept
	return dropped
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	for i, e := range g.Edges {
		out.Edges[i] = e.Clone()
	}
	return out
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	c := n
	if n.Position != nil {
		p := *n.Position
		c.Position = &p
	}
	if n.Measured != nil {
		m := *n.Measured
		c.Measured = &m
	}
	if n.Style != nil {
		s := *n.Style
		c.Style = &s
	}
	if n.Data.Diagnostics != nil {
		d := *n.Data.Diagnostics
		c.Data.Diagnostics = &d
	}
	if n.Data.LayoutInsets != nil {
		in := *n.Data.LayoutInsets
		c.Data.LayoutInsets = &in
	}
	if n.Data.Hub != nil {
		h := *n.Data.Hub
		h.SourceIDs = append([]string(nil), n.Data.Hub.SourceIDs...)
		c.Data.Hub = &h
	}
	if n.Data.Members != nil {
		c.Data.Members = append([]string(nil), n.Data.Members...)
	}
	return c
}

// Clone returns a deep copy of the edge.
func (e Edge) Clone() Edge {
	c := e
	if e.Data.SourceAnchor != nil {
		p := *e.Data.SourceAnchor
		c.Data.SourceAnchor = &p
	}
	if e.Data.TargetAnchor != nil {
		p := *e.Data.TargetAnchor
		c.Data.TargetAnchor = &p
	}
	if e.Data.BundledTypes != nil {
		c.Data.BundledTypes = append([]EdgeType(nil), e.Data.BundledTypes...)
	}
	if e.Data.BundledIDs != nil {
		c.Data.BundledIDs = append([]string(nil), e.Data.BundledIDs...)
	}
	return c
}
