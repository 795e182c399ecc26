package watcher

import (
	"context"
	"time"

	"github.com/ritzau/deps-viz/pkg/logging"
)

// Debouncer batches rapid file system events to avoid excessive reloads. A
// batch is flushed after quietPeriod without events, or maxWait after its
// first event while events keep arriving.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

// run processes events and applies debouncing logic
func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		quiet       = stoppedTimer()
		maxWait     = stoppedTimer()
		waiting     bool
		accumulated = make(map[ChangeType][]string)
		eventCount  int
	)

	flush := func() {
		quiet.Stop()
		maxWait.Stop()
		waiting = false
		if eventCount == 0 {
			return
		}

		logging.Debug("flushing accumulated events", "count", eventCount)

		// Config first so a reload sees the new settings
		for _, kind := range []ChangeType{ChangeTypeConfig, ChangeTypeDocument} {
			paths := accumulated[kind]
			if len(paths) == 0 {
				continue
			}
			d.output <- ChangeEvent{Type: kind, Paths: paths, Timestamp: time.Now()}
		}

		accumulated = make(map[ChangeType][]string)
		eventCount = 0
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}

			for _, p := range event.Paths {
				accumulated[event.Type] = appendUnique(accumulated[event.Type], p)
			}
			eventCount++

			// Reset quiet period timer
			resetTimer(quiet, d.quietPeriod)

			// Start max wait timer on first event
			if !waiting {
				resetTimer(maxWait, d.maxWait)
				waiting = true
			}

		case <-quiet.C:
			flush()

		case <-maxWait.C:
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}

func stoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
