package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"

	"github.com/ritzau/deps-viz/pkg/collision"
	"github.com/ritzau/deps-viz/pkg/layout"
	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/model"
	"github.com/ritzau/deps-viz/pkg/pubsub"
	"github.com/ritzau/deps-viz/pkg/view"
	"github.com/ritzau/deps-viz/pkg/virtualize"
)

// errNoDocument is returned by endpoints that need a loaded document
var errNoDocument = errors.New("no document loaded")

// maxBodyBytes bounds request bodies
const maxBodyBytes = 32 << 20

// maxCachedViews bounds the rendered view cache before it is reset
const maxCachedViews = 32

// Options are the server-side defaults every request starts from
type Options struct {
	View           view.Options
	Layout         layout.Config
	Collision      collision.Config
	Virtualization virtualize.Config
}

// Server represents the web server
type Server struct {
	router    *mux.Router
	publisher *pubsub.SSEPublisher

	mu       sync.RWMutex
	opts     Options
	doc      *model.Document
	docPath  string
	revision string
	views    map[string]*view.Result // view hash -> result for the current revision

	renders singleflight.Group

	coordMu      sync.Mutex
	coordinators map[string]*layout.Coordinator // engine/direction -> coordinator
	lastLayout   *model.Graph

	visMu       sync.Mutex
	lastVisible map[string]bool
}

// NewServer creates a new web server
func NewServer(opts Options) *Server {
	// Topic delivery follows pubsub.DefaultTopicConfig
	ssePublisher := pubsub.NewSSEPublisher()

	s := &Server{
		router:       mux.NewRouter(),
		publisher:    ssePublisher,
		opts:         opts,
		views:        make(map[string]*view.Result),
		coordinators: make(map[string]*layout.Coordinator),
		lastVisible:  make(map[string]bool),
	}
	s.setupRoutes()
	return s
}

// SetDocument replaces the served document and drops every cached view
func (s *Server) SetDocument(doc *model.Document, path string) {
	revision := view.DocumentRevision(doc)

	s.mu.Lock()
	s.doc = doc
	s.docPath = path
	s.revision = revision
	s.views = make(map[string]*view.Result)
	s.mu.Unlock()

	// Layouts of the old document are superseded
	s.coordMu.Lock()
	for _, c := range s.coordinators {
		c.Invalidate()
	}
	s.lastLayout = nil
	s.coordMu.Unlock()

	s.visMu.Lock()
	s.lastVisible = make(map[string]bool)
	s.visMu.Unlock()

	status := pubsub.DocumentStatus{Path: path, Revision: revision, Modules: doc.ModuleCount()}
	if err := s.publisher.Publish(pubsub.TopicDocument, pubsub.EventReloaded, status); err != nil {
		logging.Warn("failed to publish document status", "error", err)
	}
}

// SetOptions replaces the server defaults. Cached views and layout
// coordinators built from the old settings are dropped.
func (s *Server) SetOptions(opts Options) {
	s.mu.Lock()
	s.opts = opts
	s.views = make(map[string]*view.Result)
	s.mu.Unlock()

	s.coordMu.Lock()
	for _, c := range s.coordinators {
		c.Invalidate()
	}
	s.coordinators = make(map[string]*layout.Coordinator)
	s.lastLayout = nil
	s.coordMu.Unlock()

	logging.Info("server options updated", "level", opts.View.Level, "engine", opts.Layout.Engine)
}

func (s *Server) options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// PublishReloadError tells subscribers the document on disk could not be read.
// The previously loaded document keeps being served.
func (s *Server) PublishReloadError(err error) {
	s.mu.RLock()
	status := pubsub.DocumentStatus{Path: s.docPath, Revision: s.revision, Error: err.Error()}
	if s.doc != nil {
		status.Modules = s.doc.ModuleCount()
	}
	s.mu.RUnlock()

	if perr := s.publisher.Publish(pubsub.TopicDocument, pubsub.EventReloadFail, status); perr != nil {
		logging.Warn("failed to publish reload error", "error", perr)
	}
}

// Handler returns the router wrapped in the request-id middleware
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	// SSE subscription endpoint
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	// Graph pipeline
	s.router.HandleFunc("/api/document", s.handleDocument).Methods("GET")
	s.router.HandleFunc("/api/view", s.handleView).Methods("POST")
	s.router.HandleFunc("/api/layout", s.handleLayout).Methods("POST")
	s.router.HandleFunc("/api/search", s.handleSearch).Methods("GET")

	// Geometry services
	s.router.HandleFunc("/api/collisions/resolve", s.handleResolveCollisions).Methods("POST")
	s.router.HandleFunc("/api/edges/virtualize", s.handleVirtualize).Methods("POST")
	s.router.HandleFunc("/api/edges/route", s.handleRoute).Methods("POST")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if !pubsub.KnownTopic(topic) {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("unknown topic %q", topic))
		return
	}

	// Create subscription
	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}
	defer sub.Close()

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*") // CORS support

	// Send initial comment to establish connection (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	flush(w)

	// Stream events
	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.WarnContext(r.Context(), "error writing SSE event", "topic", topic, "error", err)
				return
			}
			flush(w)
		}
	}
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	logging.DebugContext(r.Context(), "request error", "status", status, "error", err)
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: logging.GetRequestID(r.Context())})
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting web server", "url", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down web server")
	// Closing the publisher ends every SSE stream so Shutdown can drain
	s.publisher.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down web server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
