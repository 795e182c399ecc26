package pubsub

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ritzau/deps-viz/pkg/model"
)

// ErrPublisherClosed is returned once the publisher has shut down
var ErrPublisherClosed = errors.New("publisher is closed")

// Topics
const (
	TopicLayoutDeltas   = "layout_deltas"   // positions and sizes changed by layout or settle
	TopicEdgeVisibility = "edge_visibility" // virtualization results
	TopicDocument       = "document"        // the source document was reloaded
)

// Event types
const (
	EventLayout     = "layout"
	EventSettle     = "settle"
	EventVisibility = "visibility"
	EventReloaded   = "reloaded"
	EventReloadFail = "reload_failed"
)

// Topics lists every topic a client may subscribe to
func Topics() []string {
	return []string{TopicLayoutDeltas, TopicEdgeVisibility, TopicDocument}
}

// KnownTopic reports whether topic is one of Topics
func KnownTopic(topic string) bool {
	for _, t := range Topics() {
		if t == topic {
			return true
		}
	}
	return false
}

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "layout_deltas")
	Type    string          `json:"type"`    // Event type (e.g., "layout", "settle")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Per-topic version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// LayoutDelta carries only the nodes whose geometry changed
type LayoutDelta struct {
	Version   uint64                 `json:"version"` // Layout request version, 0 for settle passes
	Positions map[string]model.Point `json:"positions,omitempty"`
	Sizes     map[string]model.Size  `json:"sizes,omitempty"`
}

// EdgeVisibility carries the edges whose visibility flipped, edge id to visible
type EdgeVisibility struct {
	Changes        map[string]bool `json:"changes"`
	Visible        int             `json:"visible"`
	LowZoomApplied bool            `json:"lowZoomApplied"`
}

// DocumentStatus describes the currently loaded document
type DocumentStatus struct {
	Path     string `json:"path"`
	Revision string `json:"revision"`
	Modules  int    `json:"modules"`
	Error    string `json:"error,omitempty"`
}
