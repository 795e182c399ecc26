// Package settle schedules collision resolves for interactive edits. Live
// drags resolve every frame, drag-end and resize events are debounced into a
// single settle pass, container contraction is delayed while expansion is
// immediate, and results are applied directly or animated with a spring that
// re-checks for overlaps every few frames.
//
// The controller is a state machine driven by explicit Frame calls; it never
// starts timers or goroutines of its own.
package settle

import (
	"math"
	"sync"
	"time"

	"github.com/ritzau/deps-viz/pkg/collision"
	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/metrics"
	"github.com/ritzau/deps-viz/pkg/model"
)

// State is the phase of the controller
type State int

const (
	Idle State = iota
	Settling
	Animating
	Rechecking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Settling:
		return "settling"
	case Animating:
		return "animating"
	case Rechecking:
		return "rechecking"
	}
	return "unknown"
}

// Config tunes the scheduling
type Config struct {
	Debounce            time.Duration `json:"debounce" koanf:"debounce"`
	ContractionDelay    time.Duration `json:"contractionDelay" koanf:"contractiondelay"`
	LargeGraphThreshold int           `json:"largeGraphThreshold" koanf:"largegraphthreshold"` // Skip live resolves above this many nodes, 0 never skips
	RecheckEveryNFrames int           `json:"recheckEveryNFrames" koanf:"recheckevery"`
	Stiffness           float64       `json:"stiffness" koanf:"stiffness"`
	Animate             bool          `json:"animate" koanf:"animate"`
}

// DefaultConfig returns the scheduling defaults
func DefaultConfig() Config {
	return Config{
		Debounce:            60 * time.Millisecond,
		ContractionDelay:    300 * time.Millisecond,
		LargeGraphThreshold: 600,
		RecheckEveryNFrames: 6,
		Stiffness:           170,
		Animate:             true,
	}
}

const (
	// restDistance and restSpeed decide when a spring has arrived
	restDistance = 0.5
	restSpeed    = 0.5
	sizeEpsilon  = 0.01
	defaultDt    = time.Second / 60
	maxDt        = time.Second / 30
)

// Update is what changed on screen during one frame
type Update struct {
	Positions map[string]model.Point `json:"positions"`
	Sizes     map[string]model.Size  `json:"sizes"`
	Resolves  int                    `json:"resolves"`
	State     State                  `json:"state"`
}

// Empty reports whether nothing moved or resized
func (u Update) Empty() bool {
	return len(u.Positions) == 0 && len(u.Sizes) == 0
}

type motion struct {
	pos, vel, target model.Point
}

type contraction struct {
	size model.Size
	due  time.Time
}

// Controller owns the positions of one graph between structural rebuilds
type Controller struct {
	mu        sync.Mutex
	cfg       Config
	collision collision.Config
	spring    Spring

	nodes     []model.Node
	ids       []string
	boxes     map[string]*collision.Box // resolver state, the settle targets
	shownPos  map[string]model.Point
	shownSize map[string]model.Size

	state         State
	dragging      map[string]bool
	liveDirty     bool
	settleDue     time.Time
	settleAnchors map[string]bool
	anim          map[string]*motion
	frames        int
	lastFrame     time.Time
	contractions  map[string]contraction
}

// New creates a controller for nodes
func New(nodes []model.Node, cfg Config, collisionCfg collision.Config) *Controller {
	c := &Controller{
		cfg:       cfg,
		collision: collisionCfg,
		spring:    Spring{Stiffness: cfg.Stiffness},
	}
	c.SetNodes(nodes)
	return c
}

// SetNodes replaces the graph after a structural rebuild, dropping every
// pending settle, contraction and animation
func (c *Controller) SetNodes(nodes []model.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nodes = make([]model.Node, len(nodes))
	for i, n := range nodes {
		c.nodes[i] = n.Clone()
	}
	c.boxes = collision.BoxesFromNodes(c.nodes, model.Size{})
	c.ids = c.ids[:0]
	c.shownPos = make(map[string]model.Point, len(c.boxes))
	c.shownSize = make(map[string]model.Size, len(c.boxes))
	for _, n := range c.nodes {
		b, ok := c.boxes[n.ID]
		if !ok {
			continue
		}
		if _, seen := c.shownPos[n.ID]; seen {
			continue
		}
		c.ids = append(c.ids, n.ID)
		c.shownPos[n.ID] = model.Point{X: b.X, Y: b.Y}
		c.shownSize[n.ID] = model.Size{Width: b.Width, Height: b.Height}
	}

	c.state = Idle
	c.dragging = make(map[string]bool)
	c.liveDirty = false
	c.settleDue = time.Time{}
	c.settleAnchors = make(map[string]bool)
	c.anim = make(map[string]*motion)
	c.frames = 0
	c.lastFrame = time.Time{}
	c.contractions = make(map[string]contraction)
}

// State returns the current phase
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Shown returns the on-screen position and size of a node
func (c *Controller) Shown(id string) (model.Point, model.Size, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.shownPos[id]
	return p, c.shownSize[id], ok
}

// DragMove records the live position of dragged nodes. The caller owns these
// positions; they are never reported back.
func (c *Controller) DragMove(positions map[string]model.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, p := range positions {
		b, ok := c.boxes[id]
		if !ok {
			continue
		}
		b.X, b.Y = p.X, p.Y
		c.shownPos[id] = p
		delete(c.anim, id)
		c.dragging[id] = true
	}
	if c.cfg.LargeGraphThreshold <= 0 || len(c.ids) <= c.cfg.LargeGraphThreshold {
		c.liveDirty = true
	}
}

// DragEnd releases dragged nodes and schedules a settle anchored on them
func (c *Controller) DragEnd(ids []string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		delete(c.dragging, id)
	}
	c.scheduleSettle(ids, now)
}

// Resize records a new measured size for a node and schedules a settle
func (c *Controller) Resize(id string, size model.Size, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.boxes[id]
	if !ok {
		return
	}
	b.Width, b.Height = size.Width, size.Height
	c.shownSize[id] = size
	c.scheduleSettle([]string{id}, now)
}

// RequestSettle schedules a settle pass. No anchors means a full settle.
func (c *Controller) RequestSettle(anchors []string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduleSettle(anchors, now)
}

func (c *Controller) scheduleSettle(anchors []string, now time.Time) {
	for _, id := range anchors {
		if _, ok := c.boxes[id]; ok {
			c.settleAnchors[id] = true
		}
	}
	c.settleDue = now.Add(c.cfg.Debounce)
}

// Frame advances the controller to now and returns what changed on screen
func (c *Controller) Frame(now time.Time) Update {
	c.mu.Lock()
	defer c.mu.Unlock()

	u := Update{
		Positions: make(map[string]model.Point),
		Sizes:     make(map[string]model.Size),
	}
	dt := defaultDt
	if !c.lastFrame.IsZero() {
		dt = min(max(now.Sub(c.lastFrame), 0), maxDt)
	}
	c.lastFrame = now

	// 1. Live drag
	if c.liveDirty && len(c.dragging) > 0 {
		c.setState(Settling)
		c.resolve(c.dragging, now, &u)
	}
	c.liveDirty = false

	// 2. Debounced settle
	if !c.settleDue.IsZero() && !now.Before(c.settleDue) {
		c.setState(Settling)
		anchors := c.settleAnchors
		for id := range c.dragging {
			anchors[id] = true
		}
		c.resolve(anchors, now, &u)
		c.settleDue = time.Time{}
		c.settleAnchors = make(map[string]bool)
	}

	// 3. Springs
	if len(c.anim) > 0 {
		c.animate(dt.Seconds(), now, &u)
	}

	// 4. Contractions that waited long enough
	for _, id := range c.ids {
		pending, ok := c.contractions[id]
		if !ok || now.Before(pending.due) {
			continue
		}
		c.shownSize[id] = pending.size
		u.Sizes[id] = pending.size
		delete(c.contractions, id)
	}

	if len(c.anim) > 0 {
		c.setState(Animating)
	} else {
		c.setState(Idle)
	}
	u.State = c.state
	return u
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	logging.Trace("settle state", "from", c.state, "to", s)
	c.state = s
}

func (c *Controller) resolve(anchors map[string]bool, now time.Time, u *Update) {
	res := collision.Resolve(c.nodes, c.boxes, c.collision, collision.Options{
		AnchoredNodeIDs:     anchors,
		HardAnchoredNodeIDs: c.dragging,
	})
	metrics.ObserveResolve(res.CyclesUsed, res.Converged)
	u.Resolves++

	c.applySizes(res.UpdatedSizes, now, u)
	for _, id := range c.ids {
		if p, ok := res.UpdatedPositions[id]; ok {
			c.applyPosition(id, p, u)
		}
	}
}

// applySizes shows growth immediately and holds back contraction. A growth
// cancels any contraction still pending for the same node.
func (c *Controller) applySizes(sizes map[string]model.Size, now time.Time, u *Update) {
	for _, id := range c.ids {
		s, ok := sizes[id]
		if !ok {
			continue
		}
		shown := c.shownSize[id]
		grows := s.Width > shown.Width+sizeEpsilon || s.Height > shown.Height+sizeEpsilon
		if grows || c.cfg.ContractionDelay <= 0 {
			delete(c.contractions, id)
			c.shownSize[id] = s
			u.Sizes[id] = s
			continue
		}
		c.contractions[id] = contraction{size: s, due: now.Add(c.cfg.ContractionDelay)}
	}
}

func (c *Controller) applyPosition(id string, p model.Point, u *Update) {
	if !c.cfg.Animate {
		c.shownPos[id] = p
		u.Positions[id] = p
		return
	}
	m, ok := c.anim[id]
	if !ok {
		m = &motion{pos: c.shownPos[id]}
		c.anim[id] = m
	}
	m.target = p
}

func (c *Controller) animate(dt float64, now time.Time, u *Update) {
	c.frames++
	if n := c.cfg.RecheckEveryNFrames; n > 0 && c.frames%n == 0 {
		c.setState(Rechecking)
		c.recheck(now, u)
	}

	for _, id := range c.ids {
		m, ok := c.anim[id]
		if !ok {
			continue
		}
		m.pos.X, m.vel.X = c.spring.Step(m.pos.X, m.vel.X, m.target.X, dt)
		m.pos.Y, m.vel.Y = c.spring.Step(m.pos.Y, m.vel.Y, m.target.Y, dt)
		if math.Abs(m.pos.X-m.target.X) < restDistance && math.Abs(m.pos.Y-m.target.Y) < restDistance &&
			math.Abs(m.vel.X) < restSpeed && math.Abs(m.vel.Y) < restSpeed {
			m.pos = m.target
			delete(c.anim, id)
		}
		c.shownPos[id] = m.pos
		u.Positions[id] = m.pos
	}
}

// recheck resolves the boxes where the springs currently show them. Only
// nodes the resolver actually moves get a new target, so a spring that is
// merely in flight keeps heading for its settled position.
func (c *Controller) recheck(now time.Time, u *Update) {
	shown := make(map[string]*collision.Box, len(c.boxes))
	for id, b := range c.boxes {
		cp := *b
		if _, moving := c.anim[id]; moving {
			p := c.shownPos[id]
			cp.X, cp.Y = p.X, p.Y
		}
		shown[id] = &cp
	}

	res := collision.Resolve(c.nodes, shown, c.collision, collision.Options{HardAnchoredNodeIDs: c.dragging})
	metrics.ObserveResolve(res.CyclesUsed, res.Converged)
	u.Resolves++

	for _, id := range c.ids {
		if p, ok := res.UpdatedPositions[id]; ok {
			c.boxes[id].X, c.boxes[id].Y = p.X, p.Y
			c.applyPosition(id, p, u)
		}
		if s, ok := res.UpdatedSizes[id]; ok {
			c.boxes[id].Width, c.boxes[id].Height = s.Width, s.Height
		}
	}
	c.applySizes(res.UpdatedSizes, now, u)
}
