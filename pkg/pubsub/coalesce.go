package pubsub

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/ritzau/deps-viz/pkg/model"
)

// DefaultTopicConfig is the delivery policy for each known topic. The document
// topic replays its current status to late subscribers. Delta topics are only
// meaningful relative to what a client already has, so they never replay, and
// a subscriber that falls behind gets its queued deltas folded into one.
func DefaultTopicConfig(topic string) TopicConfig {
	switch topic {
	case TopicDocument:
		return TopicConfig{BufferSize: 1}
	case TopicLayoutDeltas, TopicEdgeVisibility:
		return TopicConfig{Coalesce: true}
	default:
		return TopicConfig{}
	}
}

// coalesce folds consecutive events of one topic into a single event carrying
// the newest version and type. Later payloads win per node or edge.
func coalesce(topic string, events []Event) (Event, error) {
	if len(events) == 0 {
		return Event{}, fmt.Errorf("nothing to coalesce on %s", topic)
	}
	last := events[len(events)-1]

	var data any
	switch topic {
	case TopicLayoutDeltas:
		merged := LayoutDelta{}
		for _, e := range events {
			var d LayoutDelta
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return Event{}, fmt.Errorf("decoding layout delta %d: %w", e.Version, err)
			}
			merged.Merge(d)
		}
		data = merged
	case TopicEdgeVisibility:
		merged := EdgeVisibility{}
		for _, e := range events {
			var v EdgeVisibility
			if err := json.Unmarshal(e.Data, &v); err != nil {
				return Event{}, fmt.Errorf("decoding edge visibility %d: %w", e.Version, err)
			}
			merged.Merge(v)
		}
		data = merged
	default:
		return Event{}, fmt.Errorf("topic %s cannot be coalesced", topic)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("encoding coalesced %s event: %w", topic, err)
	}
	last.Data = raw
	return last, nil
}

// Merge applies next on top of d
func (d *LayoutDelta) Merge(next LayoutDelta) {
	d.Version = max(d.Version, next.Version)
	if len(next.Positions) > 0 {
		if d.Positions == nil {
			d.Positions = make(map[string]model.Point, len(next.Positions))
		}
		maps.Copy(d.Positions, next.Positions)
	}
	if len(next.Sizes) > 0 {
		if d.Sizes == nil {
			d.Sizes = make(map[string]model.Size, len(next.Sizes))
		}
		maps.Copy(d.Sizes, next.Sizes)
	}
}

// Merge applies next on top of v. Counts describe the newest state.
func (v *EdgeVisibility) Merge(next EdgeVisibility) {
	if v.Changes == nil {
		v.Changes = make(map[string]bool, len(next.Changes))
	}
	maps.Copy(v.Changes, next.Changes)
	v.Visible = next.Visible
	v.LowZoomApplied = next.LowZoomApplied
}
