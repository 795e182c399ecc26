package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ritzau/deps-viz/pkg/collision"
	"github.com/ritzau/deps-viz/pkg/edgepath"
	"github.com/ritzau/deps-viz/pkg/geometry"
	"github.com/ritzau/deps-viz/pkg/layout"
	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/metrics"
	"github.com/ritzau/deps-viz/pkg/model"
	"github.com/ritzau/deps-viz/pkg/pubsub"
	"github.com/ritzau/deps-viz/pkg/view"
	"github.com/ritzau/deps-viz/pkg/virtualize"
)

// viewRequest overrides the server's view options. Fields left out of
// Options keep their server defaults.
type viewRequest struct {
	Options json.RawMessage `json:"options,omitempty"`
}

type viewResponse struct {
	Hash     string `json:"hash"`
	Revision string `json:"revision"`
	*view.Result
}

type layoutRequest struct {
	Options   json.RawMessage `json:"options,omitempty"`
	Engine    string          `json:"engine,omitempty"`
	Direction string          `json:"direction,omitempty"`
}

type layoutResponse struct {
	Hash string `json:"hash"`
	*layout.Outcome
}

type resolveRequest struct {
	Nodes               []model.Node      `json:"nodes"`
	AnchoredNodeIDs     []string          `json:"anchoredNodeIds,omitempty"`
	HardAnchoredNodeIDs []string          `json:"hardAnchoredNodeIds,omitempty"`
	Config              *collision.Config `json:"config,omitempty"`
	Strategy            string            `json:"strategy,omitempty"`
	MinDistance         float64           `json:"minDistance,omitempty"`
}

type virtualizeRequest struct {
	Nodes             []model.Node           `json:"nodes"`
	Edges             []model.Edge           `json:"edges"`
	Viewport          virtualize.Viewport    `json:"viewport"`
	ContainerSize     model.Size             `json:"containerSize"`
	UserHiddenEdgeIDs []string               `json:"userHiddenEdgeIds,omitempty"`
	Hints             virtualize.DeviceHints `json:"hints"`
	Config            *virtualize.Config     `json:"config,omitempty"`
}

type routeRequest struct {
	Nodes         []model.Node `json:"nodes"`
	Edges         []model.Edge `json:"edges"`
	CornerRadius  *float64     `json:"cornerRadius,omitempty"`
	IncludeHidden bool         `json:"includeHidden,omitempty"`
}

type routeResponse struct {
	Routes     []edgepath.EdgeRoute `json:"routes"`
	Unresolved []string             `json:"unresolved,omitempty"` // Edges with an endpoint missing bounds
}

// decodeOptional is decodeJSON that accepts an empty body
func decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := decodeJSON(w, r, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// viewOptions applies a partial JSON override on top of the server defaults
func (s *Server) viewOptions(raw json.RawMessage) (view.Options, error) {
	opts := s.options().View
	opts.EnabledEdgeTypes = append([]model.EdgeType(nil), opts.EnabledEdgeTypes...)

	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return view.Options{}, fmt.Errorf("invalid view options: %w", err)
		}
	}

	level, err := view.ParseLevel(string(opts.Level))
	if err != nil {
		return view.Options{}, err
	}
	opts.Level = level
	for _, t := range opts.EnabledEdgeTypes {
		if _, ok := model.ParseEdgeType(string(t)); !ok {
			return view.Options{}, fmt.Errorf("unknown edge type %q", t)
		}
	}
	return opts, nil
}

// render runs the view pipeline once per distinct request. Concurrent
// identical requests share one run and finished results are cached until the
// document changes.
func (s *Server) render(opts view.Options) (*view.Result, string, error) {
	s.mu.RLock()
	doc, revision := s.doc, s.revision
	s.mu.RUnlock()
	if doc == nil {
		return nil, "", errNoDocument
	}

	hash := view.ComputeHash(revision, opts)

	s.mu.RLock()
	cached := s.views[hash]
	s.mu.RUnlock()
	if cached != nil {
		return cached, hash, nil
	}

	v, err, shared := s.renders.Do(hash, func() (interface{}, error) {
		res := view.Render(doc, opts)

		s.mu.Lock()
		if s.revision == revision {
			if len(s.views) >= maxCachedViews {
				s.views = make(map[string]*view.Result)
			}
			s.views[hash] = res
		}
		s.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, "", err
	}
	if shared {
		logging.Debug("shared view render", "hash", hash)
	}
	return v.(*view.Result), hash, nil
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.doc == nil {
		writeError(w, r, http.StatusNotFound, errNoDocument)
		return
	}
	writeJSON(w, http.StatusOK, pubsub.DocumentStatus{
		Path:     s.docPath,
		Revision: s.revision,
		Modules:  s.doc.ModuleCount(),
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := decodeOptional(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	opts, err := s.viewOptions(req.Options)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	res, hash, err := s.render(opts)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	s.mu.RLock()
	revision := s.revision
	s.mu.RUnlock()

	logging.InfoContext(r.Context(), "view rendered",
		"level", opts.Level,
		"nodes", res.Stats.Nodes,
		"edges", res.Stats.Edges,
		"hash", hash)
	writeJSON(w, http.StatusOK, viewResponse{Hash: hash, Revision: revision, Result: res})
}

// coordinator returns the coordinator for an engine and direction, creating
// it on first use so request versions are tracked per configuration
func (s *Server) coordinator(cfg layout.Config) (*layout.Coordinator, error) {
	key := cfg.Engine + "/" + cfg.Direction

	s.coordMu.Lock()
	defer s.coordMu.Unlock()

	if c, ok := s.coordinators[key]; ok {
		return c, nil
	}
	engine, err := layout.NewEngine(cfg.Engine)
	if err != nil {
		return nil, err
	}
	c := layout.NewCoordinator(engine, layout.DefaultEstimateMeasurer(), cfg, s.options().Collision)
	s.coordinators[key] = c
	return c, nil
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	var req layoutRequest
	if err := decodeOptional(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	opts, err := s.viewOptions(req.Options)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	cfg := s.options().Layout
	if req.Engine != "" {
		cfg.Engine = req.Engine
	}
	switch req.Direction {
	case "":
	case layout.DirectionTopBottom, layout.DirectionLeftRight:
		cfg.Direction = req.Direction
	default:
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("unknown direction %q", req.Direction))
		return
	}

	coord, err := s.coordinator(cfg)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	res, hash, err := s.render(opts)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	outcome, err := coord.Run(r.Context(), res.Graph)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if outcome.Stale {
		// A newer layout request superseded this one
		writeJSON(w, http.StatusConflict, layoutResponse{Hash: hash, Outcome: outcome})
		return
	}

	s.publishLayout(outcome)
	writeJSON(w, http.StatusOK, layoutResponse{Hash: hash, Outcome: outcome})
}

// publishLayout sends the geometry that changed since the previous layout
func (s *Server) publishLayout(outcome *layout.Outcome) {
	s.coordMu.Lock()
	prev := s.lastLayout
	s.lastLayout = outcome.Graph
	s.coordMu.Unlock()

	var prevNodes []model.Node
	if prev != nil {
		prevNodes = prev.Nodes
	}
	delta := pubsub.LayoutDelta{
		Version:   outcome.Version,
		Positions: view.PositionDelta(prevNodes, outcome.Graph.Nodes),
		Sizes:     sizeDelta(prevNodes, outcome.Graph.Nodes),
	}
	if len(delta.Positions) == 0 && len(delta.Sizes) == 0 {
		return
	}
	if err := s.publisher.Publish(pubsub.TopicLayoutDeltas, pubsub.EventLayout, delta); err != nil {
		logging.Warn("failed to publish layout delta", "error", err)
	}
}

func nodeSize(n *model.Node) model.Size {
	return geometry.ResolveNodeDimensions(n, geometry.DefaultNodeSize(n.Type))
}

func sizeDelta(old, cur []model.Node) map[string]model.Size {
	before := make(map[string]model.Size, len(old))
	for i := range old {
		before[old[i].ID] = nodeSize(&old[i])
	}
	delta := make(map[string]model.Size)
	for i := range cur {
		size := nodeSize(&cur[i])
		if b, ok := before[cur[i].ID]; !ok || b != size {
			delta[cur[i].ID] = size
		}
	}
	return delta
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("missing query parameter q"))
		return
	}

	depth := 1
	if d := q.Get("depth"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid depth %q", d))
			return
		}
		depth = n
	}

	var raw json.RawMessage
	if level := q.Get("level"); level != "" {
		raw, _ = json.Marshal(map[string]string{"level": level})
	}
	opts, err := s.viewOptions(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	res, _, err := s.render(opts)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view.SearchHighlight(res, query, depth))
}

func (s *Server) handleResolveCollisions(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	cfg := s.options().Collision
	switch {
	case req.Config != nil:
		cfg = *req.Config
	case req.Strategy != "":
		preset, err := collision.StrategyConfig(req.Strategy)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
		cfg = preset
	case req.MinDistance > 0:
		cfg = collision.ConfigFromMinDistance(req.MinDistance)
	}

	boxes := collision.BoxesFromNodes(req.Nodes, model.Size{})
	res := collision.Resolve(req.Nodes, boxes, cfg, collision.Options{
		AnchoredNodeIDs:     toSet(req.AnchoredNodeIDs),
		HardAnchoredNodeIDs: toSet(req.HardAnchoredNodeIDs),
	})
	metrics.ObserveResolve(res.CyclesUsed, res.Converged)

	logging.DebugContext(r.Context(), "collisions resolved",
		"nodes", len(req.Nodes),
		"moved", len(res.UpdatedPositions),
		"resized", len(res.UpdatedSizes),
		"cycles", res.CyclesUsed,
		"converged", res.Converged)

	if len(res.UpdatedPositions) > 0 || len(res.UpdatedSizes) > 0 {
		delta := pubsub.LayoutDelta{Positions: res.UpdatedPositions, Sizes: res.UpdatedSizes}
		if err := s.publisher.Publish(pubsub.TopicLayoutDeltas, pubsub.EventSettle, delta); err != nil {
			logging.WarnContext(r.Context(), "failed to publish settle delta", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleVirtualize(w http.ResponseWriter, r *http.Request) {
	var req virtualizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	cfg := s.options().Virtualization
	if req.Config != nil {
		cfg = *req.Config
	}

	res := virtualize.Compute(virtualize.Input{
		Nodes:             req.Nodes,
		Edges:             req.Edges,
		Viewport:          req.Viewport,
		ContainerSize:     req.ContainerSize,
		UserHiddenEdgeIDs: req.UserHiddenEdgeIDs,
		EdgePriorityOrder: virtualize.BuildEdgePriorityOrder(req.Nodes, req.Edges),
		Config:            cfg,
		Hints:             req.Hints,
	})
	metrics.VisibleEdges.Set(float64(res.FinalVisibleCount))

	s.publishVisibility(res)
	writeJSON(w, http.StatusOK, res)
}

// publishVisibility sends the edges whose visibility flipped since the last pass
func (s *Server) publishVisibility(res virtualize.Result) {
	s.visMu.Lock()
	changes := make(map[string]bool)
	for _, id := range res.FinalVisibleEdgeIDs {
		if visible, ok := s.lastVisible[id]; !ok || !visible {
			changes[id] = true
		}
		s.lastVisible[id] = true
	}
	for _, id := range res.HiddenEdgeIDs {
		if visible, ok := s.lastVisible[id]; !ok || visible {
			changes[id] = false
		}
		s.lastVisible[id] = false
	}
	s.visMu.Unlock()

	if len(changes) == 0 {
		return
	}
	payload := pubsub.EdgeVisibility{
		Changes:        changes,
		Visible:        res.FinalVisibleCount,
		LowZoomApplied: res.LowZoomApplied,
	}
	if err := s.publisher.Publish(pubsub.TopicEdgeVisibility, pubsub.EventVisibility, payload); err != nil {
		logging.Warn("failed to publish edge visibility", "error", err)
	}
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	radius := edgepath.DefaultCornerRadius
	if req.CornerRadius != nil {
		radius = *req.CornerRadius
	}

	bounds := geometry.BuildAbsoluteNodeBoundsMap(req.Nodes, model.Size{})
	types := make(map[string]model.NodeType, len(req.Nodes))
	for _, n := range req.Nodes {
		types[n.ID] = n.Type
	}

	resp := routeResponse{Routes: make([]edgepath.EdgeRoute, 0, len(req.Edges))}
	for _, e := range req.Edges {
		if e.Hidden && !req.IncludeHidden {
			continue
		}
		route, ok := edgepath.Route(e, bounds, types, radius)
		if !ok {
			resp.Unresolved = append(resp.Unresolved, e.ID)
			continue
		}
		resp.Routes = append(resp.Routes, route)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func statusFor(err error) int {
	if errors.Is(err, errNoDocument) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
