package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/streampulse/streampulse/internal/bus"
	"github.com/streampulse/streampulse/internal/platform"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestNewPublisherDisabledWithoutBrokers(t *testing.T) {
	if p := NewPublisher("", "topic"); p != nil {
		t.Error("empty brokers must disable the feed")
	}
	if p := NewPublisher("  ", "topic"); p != nil {
		t.Error("blank brokers must disable the feed")
	}
	if p := NewPublisher("localhost:9092", "topic"); p == nil {
		t.Error("configured brokers must enable the feed")
	}
}

func TestPublishWritesEventAsJSON(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w, "cycles")

	ev := &bus.CycleEvent{
		JobID:        "job-1",
		Platform:     platform.Twitch,
		Entity:       "ninja",
		Success:      true,
		Observations: 3,
		WentLive:     true,
		Timestamp:    time.Now(),
	}
	p.publish(ev)

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.messages))
	}
	msg := w.messages[0]
	if string(msg.Key) != "job-1" {
		t.Errorf("message key = %q, want the job id", msg.Key)
	}

	var decoded bus.CycleEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.Entity != "ninja" || !decoded.WentLive || decoded.Observations != 3 {
		t.Errorf("decoded event wrong: %+v", decoded)
	}
}

func TestPublishSwallowsWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisherWithWriter(w, "cycles")

	// Must not panic and must not surface the error to callers.
	p.publish(&bus.CycleEvent{JobID: "job-1"})
}

func TestAttachForwardsBusEvents(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w, "cycles")

	events := bus.New()
	p.Attach(events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go events.Dispatch(ctx)

	events.Publish(&bus.CycleEvent{JobID: "job-1", Entity: "ninja"})

	deadline := time.Now().Add(2 * time.Second)
	for {
		w.mu.Lock()
		n := len(w.messages)
		w.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("event never reached the writer")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCloseClosesWriter(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w, "cycles")
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed {
		t.Error("underlying writer not closed")
	}
}
