// Package bus carries collection-cycle outcomes from the runner to
// whoever wants them (CLI output, the Kafka feed, the Slack notifier).
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/streampulse/streampulse/internal/platform"
)

// CycleEvent describes the outcome of one collection cycle.
type CycleEvent struct {
	JobID        string            `json:"job_id"`
	Platform     platform.Platform `json:"platform"`
	Entity       string            `json:"entity"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Observations int               `json:"observations"`
	ChatMessages int               `json:"chat_messages"`
	WentLive     bool              `json:"went_live,omitempty"`
	Duration     time.Duration     `json:"duration"`
	Timestamp    time.Time         `json:"timestamp"`
}

// EventBus fans cycle events out to subscribers. Publishing never
// blocks the runner: when the queue is full the event is dropped with a
// warning.
type EventBus struct {
	events chan *CycleEvent
	subs   []func(*CycleEvent)
	mu     sync.RWMutex
}

// New creates an event bus with a bounded queue.
func New() *EventBus {
	return &EventBus{
		events: make(chan *CycleEvent, 100),
	}
}

// Publish enqueues a cycle event for dispatch.
func (b *EventBus) Publish(ev *CycleEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case b.events <- ev:
	default:
		slog.Warn("Event bus full, dropping cycle event", "job", ev.JobID, "entity", ev.Entity)
	}
}

// Subscribe registers a callback invoked for every dispatched event.
// Callbacks run on the dispatcher goroutine and must not block for long.
func (b *EventBus) Subscribe(callback func(*CycleEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, callback)
}

// Dispatch delivers events to subscribers until the context is
// cancelled. Run as a goroutine.
func (b *EventBus) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.events:
			b.mu.RLock()
			subs := b.subs
			b.mu.RUnlock()
			for _, cb := range subs {
				cb(ev)
			}
		}
	}
}

// Consume blocks until an event is available or the context is
// cancelled. Intended for callers that drain the bus themselves instead
// of running Dispatch.
func (b *EventBus) Consume(ctx context.Context) (*CycleEvent, error) {
	select {
	case ev := <-b.events:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the number of undelivered events.
func (b *EventBus) Pending() int {
	return len(b.events)
}
