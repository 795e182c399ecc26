package collision

import (
	"math"
	"sort"

	"github.com/ritzau/deps-viz/pkg/geometry"
	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/model"
)

// changeEpsilon is the smallest movement reported as a change, in pixels.
const changeEpsilon = 0.01

// Box is the resolver's working state for one node, in parent-relative coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Options selects which nodes are pinned during a resolve.
type Options struct {
	// AnchoredNodeIDs scopes the resolve to the sibling groups containing these
	// nodes (plus their ancestor scopes) and pins them in place. Empty means a
	// full settle of every scope.
	AnchoredNodeIDs map[string]bool
	// HardAnchoredNodeIDs are nodes under live user drag. The caller owns their
	// position, so they are never reported in Result.UpdatedPositions.
	HardAnchoredNodeIDs map[string]bool
}

// Result is the minimal changeset produced by a resolve.
type Result struct {
	UpdatedPositions map[string]model.Point `json:"updatedPositions"`
	UpdatedSizes     map[string]model.Size  `json:"updatedSizes"`
	CyclesUsed       int                    `json:"cyclesUsed"`
	Converged        bool                   `json:"converged"`
}

// BoxesFromNodes builds the position map a resolve works on from node positions
// and resolved dimensions. Nodes without a position get no box.
func BoxesFromNodes(nodes []model.Node, defaults model.Size) map[string]*Box {
	boxes := make(map[string]*Box, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if n.Position == nil {
			continue
		}
		d := defaults
		if d.Width <= 0 || d.Height <= 0 {
			d = geometry.DefaultNodeSize(n.Type)
		}
		size := geometry.ResolveNodeDimensions(n, d)
		boxes[n.ID] = &Box{X: n.Position.X, Y: n.Position.Y, Width: size.Width, Height: size.Height}
	}
	return boxes
}

// Resolve settles the boxes in place and returns what changed. It always returns
// within cfg.MaxCycles cycles; a result with Converged=false is still meant to be
// applied.
func Resolve(nodes []model.Node, boxes map[string]*Box, cfg Config, opts Options) Result {
	r := newResolver(nodes, boxes, cfg, opts)

	snapshot := make(map[string]Box, len(r.ids))
	for _, id := range r.ids {
		snapshot[id] = *boxes[id]
	}

	r.enforceMinPositions()

	maxCycles := cfg.MaxCycles
	if maxCycles < 1 {
		maxCycles = 1
	}

	cycles := 0
	converged := false
	for cycles < maxCycles {
		cycles++
		r.expandParentsBottomUp()
		if !r.repelSiblings() {
			converged = true
			break
		}
		r.enforceMinPositions()
	}
	if !converged {
		// Keep containers fitting whatever the last repel produced.
		r.expandParentsBottomUp()
		logging.Debug("collision resolve did not converge",
			"cycles", cycles, "nodes", len(r.ids), "displaced", len(r.displaced))
	}

	result := Result{
		UpdatedPositions: make(map[string]model.Point),
		UpdatedSizes:     make(map[string]model.Size),
		CyclesUsed:       cycles,
		Converged:        converged,
	}
	for _, id := range r.ids {
		before := snapshot[id]
		after := boxes[id]
		if !r.hard[id] && (changed(before.X, after.X) || changed(before.Y, after.Y)) {
			result.UpdatedPositions[id] = model.Point{X: after.X, Y: after.Y}
		}
		if changed(before.Width, after.Width) || changed(before.Height, after.Height) {
			result.UpdatedSizes[id] = model.Size{Width: after.Width, Height: after.Height}
		}
	}
	return result
}

func changed(a, b float64) bool {
	return math.Abs(a-b) > changeEpsilon
}

type resolver struct {
	cfg   Config
	boxes map[string]*Box

	ids      []string // participating nodes in input order
	nodes    map[string]*model.Node
	order    map[string]int
	parent   map[string]string   // "" for root-level nodes
	children map[string][]string // keyed by parent id, "" is the root scope

	scopes         []string // every scope key in first-appearance order
	containers     []string // parents, deepest first
	resolvedScopes []string

	anchored  map[string]bool
	hard      map[string]bool
	pinned    map[string]bool // anchored or hard
	displaced map[string]bool // soft anchors: moved earlier in this resolve
}

func newResolver(nodes []model.Node, boxes map[string]*Box, cfg Config, opts Options) *resolver {
	r := &resolver{
		cfg:       cfg,
		boxes:     boxes,
		nodes:     make(map[string]*model.Node, len(nodes)),
		order:     make(map[string]int, len(nodes)),
		parent:    make(map[string]string, len(nodes)),
		children:  make(map[string][]string),
		anchored:  make(map[string]bool),
		hard:      make(map[string]bool),
		pinned:    make(map[string]bool),
		displaced: make(map[string]bool),
	}

	for i := range nodes {
		id := nodes[i].ID
		if boxes[id] == nil {
			continue
		}
		if _, dup := r.nodes[id]; dup {
			continue
		}
		r.nodes[id] = &nodes[i]
		r.order[id] = len(r.ids)
		r.ids = append(r.ids, id)
	}

	for id, ok := range opts.AnchoredNodeIDs {
		if ok && r.nodes[id] != nil {
			r.anchored[id] = true
			r.pinned[id] = true
		}
	}
	for id, ok := range opts.HardAnchoredNodeIDs {
		if ok && r.nodes[id] != nil {
			r.hard[id] = true
			r.pinned[id] = true
		}
	}

	seenScope := make(map[string]bool)
	for _, id := range r.ids {
		p := r.nodes[id].ParentNode
		if p == id || r.nodes[p] == nil {
			p = ""
		}
		r.parent[id] = p
		r.children[p] = append(r.children[p], id)
		if !seenScope[p] {
			seenScope[p] = true
			r.scopes = append(r.scopes, p)
		}
	}

	depth := make(map[string]int, len(r.ids))
	for _, id := range r.ids {
		depth[id] = r.depthOf(id)
	}
	for _, p := range r.scopes {
		if p != "" {
			r.containers = append(r.containers, p)
		}
	}
	sort.SliceStable(r.containers, func(i, j int) bool {
		a, b := r.containers[i], r.containers[j]
		if depth[a] != depth[b] {
			return depth[a] > depth[b]
		}
		return r.order[a] < r.order[b]
	})

	r.resolvedScopes = r.determineScopes()
	return r
}

// depthOf counts ancestors, stopping at the first repeated node of a cyclic chain.
func (r *resolver) depthOf(id string) int {
	visited := map[string]bool{id: true}
	d := 0
	for p := r.parent[id]; p != "" && !visited[p]; p = r.parent[p] {
		visited[p] = true
		d++
	}
	return d
}

// determineScopes returns the sibling scopes to repel. With pinned nodes only
// their scopes and the ancestor scopes above them are included.
func (r *resolver) determineScopes() []string {
	if len(r.pinned) == 0 {
		return append([]string(nil), r.scopes...)
	}

	include := make(map[string]bool)
	for _, id := range r.ids {
		if !r.pinned[id] {
			continue
		}
		scope := r.parent[id]
		include[scope] = true
		visited := make(map[string]bool)
		for p := scope; p != "" && !visited[p]; p = r.parent[p] {
			visited[p] = true
			include[r.parent[p]] = true
		}
	}

	var scopes []string
	for _, s := range r.scopes {
		if include[s] {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

func (r *resolver) padding(containerID string) Padding {
	if r.nodes[containerID].Type.IsGroup() {
		return r.cfg.GroupPadding
	}
	return r.cfg.ModulePadding
}

// topInset is the larger of the configured top padding and the container's own
// layout inset hint.
func (r *resolver) topInset(containerID string) float64 {
	top := r.padding(containerID).Top
	n := r.nodes[containerID]
	if n.Type.IsGroup() && n.Data.LayoutInsets != nil && n.Data.LayoutInsets.Top > top {
		top = n.Data.LayoutInsets.Top
	}
	return top
}

// enforceMinPositions keeps unpinned children from sitting above or left of
// their container's insets. Pinned children are exempt so a drag does not
// rubber-band.
func (r *resolver) enforceMinPositions() {
	for _, p := range r.containers {
		left := r.padding(p).Horizontal
		top := r.topInset(p)
		for _, c := range r.children[p] {
			if r.pinned[c] {
				continue
			}
			b := r.boxes[c]
			if b.X < left {
				b.X = left
			}
			if b.Y < top {
				b.Y = top
			}
		}
	}
}

// expandParentsBottomUp sizes every container to its children, deepest first so
// a grandparent sees already-correct child containers.
//
// Groups move their own origin when children cross the left or top inset and
// compensate the children, so content keeps its absolute position while the
// group grows towards the top-left. With slack and no anchored child they shrink
// back to the exact padding the same way.
func (r *resolver) expandParentsBottomUp() {
	for _, p := range r.containers {
		kids := r.children[p]
		if len(kids) == 0 {
			continue
		}
		pb := r.boxes[p]
		pad := r.padding(p)
		top := r.topInset(p)
		isGroup := r.nodes[p].Type.IsGroup()

		if isGroup && !r.hard[p] && !r.anyChild(p, r.hard) {
			minX, minY := math.Inf(1), math.Inf(1)
			for _, c := range kids {
				minX = math.Min(minX, r.boxes[c].X)
				minY = math.Min(minY, r.boxes[c].Y)
			}
			mayShrink := !r.pinned[p] && !r.anyChild(p, r.anchored)

			shiftX := 0.0
			if minX < pad.Horizontal || (mayShrink && minX > pad.Horizontal) {
				shiftX = pad.Horizontal - minX
			}
			shiftY := 0.0
			if minY < top || (mayShrink && minY > top) {
				shiftY = top - minY
			}

			if shiftX != 0 || shiftY != 0 {
				pb.X -= shiftX
				pb.Y -= shiftY
				for _, c := range kids {
					r.boxes[c].X += shiftX
					r.boxes[c].Y += shiftY
				}
			}
		}

		contentRight, contentBottom := 0.0, 0.0
		for _, c := range kids {
			b := r.boxes[c]
			contentRight = math.Max(contentRight, b.X+b.Width)
			contentBottom = math.Max(contentBottom, b.Y+b.Height)
		}
		requiredW := contentRight + pad.Horizontal
		requiredH := contentBottom + pad.Bottom

		if isGroup {
			pb.Width = math.Max(1, requiredW)
			pb.Height = math.Max(1, requiredH)
		} else {
			pb.Width = math.Max(pb.Width, requiredW)
			pb.Height = math.Max(pb.Height, requiredH)
		}
	}
}

func (r *resolver) anyChild(p string, set map[string]bool) bool {
	if len(set) == 0 {
		return false
	}
	for _, c := range r.children[p] {
		if set[c] {
			return true
		}
	}
	return false
}

// repelSiblings pushes apart every overlapping sibling pair in the resolved
// scopes and reports whether any overlap was found.
func (r *resolver) repelSiblings() bool {
	found := false
	for _, scope := range r.resolvedScopes {
		kids := r.children[scope]
		for i := 0; i < len(kids); i++ {
			for j := i + 1; j < len(kids); j++ {
				a, b := kids[i], kids[j]
				if !r.overlaps(r.boxes[a], r.boxes[b]) {
					continue
				}

				aHard, bHard := r.pinned[a], r.pinned[b]
				aSoft, bSoft := r.displaced[a], r.displaced[b]

				var mover, anchor string
				switch {
				case aHard && bHard:
					continue
				case aHard:
					mover, anchor = b, a
				case bHard:
					mover, anchor = a, b
				case aSoft && !bSoft:
					mover, anchor = b, a
				case bSoft && !aSoft:
					mover, anchor = a, b
				default:
					mover, anchor = r.laterArrival(a, b)
				}

				found = true
				r.push(mover, anchor)
			}
		}
	}
	return found
}

// overlaps reports whether two boxes are closer than the configured gap.
func (r *resolver) overlaps(a, b *Box) bool {
	gap := r.cfg.OverlapGap
	return a.X < b.X+b.Width+gap && b.X < a.X+a.Width+gap &&
		a.Y < b.Y+b.Height+gap && b.Y < a.Y+a.Height+gap
}

// laterArrival picks which of two unanchored boxes yields: the one whose center
// is farther from the center of their combined bounds. Ties go to the box later
// in input order. It returns (mover, anchor).
func (r *resolver) laterArrival(a, b string) (string, string) {
	ba, bb := r.boxes[a], r.boxes[b]
	minX := math.Min(ba.X, bb.X)
	minY := math.Min(ba.Y, bb.Y)
	maxX := math.Max(ba.X+ba.Width, bb.X+bb.Width)
	maxY := math.Max(ba.Y+ba.Height, bb.Y+bb.Height)
	mid := model.Point{X: (minX + maxX) / 2, Y: (minY + maxY) / 2}

	da := math.Hypot(ba.X+ba.Width/2-mid.X, ba.Y+ba.Height/2-mid.Y)
	db := math.Hypot(bb.X+bb.Width/2-mid.X, bb.Y+bb.Height/2-mid.Y)

	switch {
	case da > db+changeEpsilon:
		return a, b
	case db > da+changeEpsilon:
		return b, a
	}
	if r.order[a] > r.order[b] {
		return a, b
	}
	return b, a
}

// push moves mover out of anchor's gap along the cheaper axis, in the direction
// that increases separation from the anchor's center.
func (r *resolver) push(mover, anchor string) {
	m, a := r.boxes[mover], r.boxes[anchor]
	gap := r.cfg.OverlapGap

	mcX, mcY := m.X+m.Width/2, m.Y+m.Height/2
	acX, acY := a.X+a.Width/2, a.Y+a.Height/2

	var dx, dy float64
	if mcX >= acX {
		dx = a.X + a.Width + gap - m.X
	} else {
		dx = a.X - gap - m.Width - m.X
	}
	if mcY >= acY {
		dy = a.Y + a.Height + gap - m.Y
	} else {
		dy = a.Y - gap - m.Height - m.Y
	}

	if math.Abs(dx) <= math.Abs(dy) {
		m.X += r.clampStep(dx)
	} else {
		m.Y += r.clampStep(dy)
	}
	r.displaced[mover] = true
}

func (r *resolver) clampStep(d float64) float64 {
	limit := r.cfg.MaxDisplacementPerCycle
	if limit <= 0 || math.Abs(d) <= limit {
		return d
	}
	return math.Copysign(limit, d)
}
