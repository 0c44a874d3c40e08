// Package feed publishes collection-cycle outcomes to Kafka so other
// processes can consume the monitoring stream. Disabled unless brokers
// are configured.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/streampulse/streampulse/internal/bus"
)

// Writer is the slice of kafka.Writer the publisher uses; tests inject
// an in-memory implementation.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher forwards cycle events to a Kafka topic as JSON.
type Publisher struct {
	writer       Writer
	topic        string
	writeTimeout time.Duration
}

// NewPublisher creates a publisher for the given brokers and topic.
// Returns nil when brokers is empty (feed disabled).
func NewPublisher(brokers, topic string) *Publisher {
	if strings.TrimSpace(brokers) == "" {
		return nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &Publisher{writer: w, topic: topic, writeTimeout: 10 * time.Second}
}

// NewPublisherWithWriter wires a custom writer (tests).
func NewPublisherWithWriter(w Writer, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic, writeTimeout: 10 * time.Second}
}

// Attach subscribes the publisher to the event bus. Delivery is
// best-effort: a broker outage must never stall collection.
func (p *Publisher) Attach(events *bus.EventBus) {
	events.Subscribe(p.publish)
}

func (p *Publisher) publish(ev *bus.CycleEvent) {
	value, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Feed: event marshal failed", "job", ev.JobID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.JobID),
		Value: value,
		Time:  ev.Timestamp,
	})
	if err != nil {
		slog.Warn("Feed: publish failed", "topic", p.topic, "job", ev.JobID, "error", err)
	}
}

// Close shuts the underlying writer down.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
