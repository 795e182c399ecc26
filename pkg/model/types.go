package model

// NodeType tags what a node represents
type NodeType string

const (
	NodeTypeModule    NodeType = "module"
	NodeTypeClass     NodeType = "class"
	NodeTypeInterface NodeType = "interface"
	NodeTypePackage   NodeType = "package"
	NodeTypeFunction  NodeType = "function"
	NodeTypeProperty  NodeType = "property"
	NodeTypeMethod    NodeType = "method"
	NodeTypeGroup     NodeType = "group"
	NodeTypeHub       NodeType = "hub"
)

var nodeTypes = map[string]NodeType{
	"module":    NodeTypeModule,
	"class":     NodeTypeClass,
	"interface": NodeTypeInterface,
	"package":   NodeTypePackage,
	"function":  NodeTypeFunction,
	"property":  NodeTypeProperty,
	"method":    NodeTypeMethod,
	"group":     NodeTypeGroup,
	"hub":       NodeTypeHub,
}

// ParseNodeType returns the node type named by s, or ("", false) if s is not a known tag.
func ParseNodeType(s string) (NodeType, bool) {
	t, ok := nodeTypes[s]
	return t, ok
}

// IsGroup reports whether nodes of this type are containers with group insets.
func (t NodeType) IsGroup() bool {
	return t == NodeTypeGroup
}

// EdgeType is the relationship an edge represents
type EdgeType string

const (
	EdgeTypeDependency     EdgeType = "dependency"
	EdgeTypeDevDependency  EdgeType = "devDependency"
	EdgeTypePeerDependency EdgeType = "peerDependency"
	EdgeTypeImport         EdgeType = "import"
	EdgeTypeExport         EdgeType = "export"
	EdgeTypeInheritance    EdgeType = "inheritance"
	EdgeTypeImplements     EdgeType = "implements"
	EdgeTypeExtends        EdgeType = "extends"
	EdgeTypeContains       EdgeType = "contains"
	EdgeTypeUses           EdgeType = "uses"
)

// AllEdgeTypes lists every edge type in declaration order.
var AllEdgeTypes = []EdgeType{
	EdgeTypeDependency,
	EdgeTypeDevDependency,
	EdgeTypePeerDependency,
	EdgeTypeImport,
	EdgeTypeExport,
	EdgeTypeInheritance,
	EdgeTypeImplements,
	EdgeTypeExtends,
	EdgeTypeContains,
	EdgeTypeUses,
}

// ParseEdgeType returns the edge type named by s, or ("", false) if s is not a known tag.
func ParseEdgeType(s string) (EdgeType, bool) {
	for _, t := range AllEdgeTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// IsStructural reports whether the edge type is always shown regardless of the
// relationship filter (drill-down usage and containment).
func (t EdgeType) IsStructural() bool {
	return t == EdgeTypeUses || t == EdgeTypeContains
}

// EdgeTypePriority ranks relationship types; higher wins when picking a bundle
// representative and when thinning edges at low zoom.
func EdgeTypePriority(t EdgeType) int {
	switch t {
	case EdgeTypeInheritance, EdgeTypeExtends:
		return 6
	case EdgeTypeImplements:
		return 5
	case EdgeTypeImport, EdgeTypeExport:
		return 4
	case EdgeTypeDependency:
		return 3
	case EdgeTypePeerDependency, EdgeTypeDevDependency:
		return 2
	case EdgeTypeUses:
		return 1
	default:
		return 0
	}
}

// HandleSide is the side of a node an edge leaves or enters through
type HandleSide string

const (
	SideTop    HandleSide = "top"
	SideRight  HandleSide = "right"
	SideBottom HandleSide = "bottom"
	SideLeft   HandleSide = "left"
)

// ParseHandleSide returns the side named by s, or ("", false).
func ParseHandleSide(s string) (HandleSide, bool) {
	switch HandleSide(s) {
	case SideTop, SideRight, SideBottom, SideLeft:
		return HandleSide(s), true
	}
	return "", false
}

// IsHorizontal reports whether edges leave this side along the X axis.
func (s HandleSide) IsHorizontal() bool {
	return s == SideLeft || s == SideRight
}

// Normal returns the outward unit vector of the side.
func (s HandleSide) Normal() Point {
	switch s {
	case SideTop:
		return Point{X: 0, Y: -1}
	case SideBottom:
		return Point{X: 0, Y: 1}
	case SideLeft:
		return Point{X: -1, Y: 0}
	default:
		return Point{X: 1, Y: 0}
	}
}

// Point is a 2D coordinate in graph space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale returns p * f.
func (p Point) Scale(f float64) Point { return Point{X: p.X * f, Y: p.Y * f} }

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Insets are per-side paddings. Only Top is currently honoured for layout hints.
type Insets struct {
	Top    float64 `json:"top,omitempty"`
	Right  float64 `json:"right,omitempty"`
	Bottom float64 `json:"bottom,omitempty"`
	Left   float64 `json:"left,omitempty"`
}

// Rect is an axis-aligned box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the X coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the Y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// ContainsPoint reports whether p lies inside r, borders included.
func (r Rect) ContainsPoint(p Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

// Expand grows the rectangle by d on every side.
func (r Rect) Expand(d float64) Rect {
	return Rect{X: r.X - d, Y: r.Y - d, Width: r.Width + 2*d, Height: r.Height + 2*d}
}

// Intersects reports whether two rectangles overlap, borders included.
func (r Rect) Intersects(o Rect) bool {
	return r.X <= o.Right() && o.X <= r.Right() && r.Y <= o.Bottom() && o.Y <= r.Bottom()
}
