// Package notify publishes settlement events for downstream consumers
// such as fulfillment and support tooling.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types.
const (
	EventCheckoutCompleted      = "checkout.completed"
	EventReconciliationRequired = "checkout.reconciliation_required"
	EventOrderReconciled        = "checkout.reconciled"
)

// Event is one settlement notification.
type Event struct {
	Type              string            `json:"type"`
	AttemptID         string            `json:"attempt_id"`
	UserID            string            `json:"user_id"`
	Wallet            string            `json:"wallet,omitempty"`
	TotalQuote        string            `json:"total_quote,omitempty"`
	OrderTx           string            `json:"order_tx,omitempty"`
	BlockchainOrderID string            `json:"blockchain_order_id,omitempty"`
	BackendOrderID    string            `json:"backend_order_id,omitempty"`
	ErrorCode         string            `json:"error_code,omitempty"`
	Details           map[string]string `json:"details,omitempty"`
	OccurredAt        time.Time         `json:"occurred_at"`
}

// Publisher sends settlement events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Compile-time interface checks
var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = NopPublisher{}
)

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON keyed by attempt id, so all events
// of one attempt land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return &KafkaPublisher{writer: w, topic: topic}
}

// New returns a Kafka publisher when brokers are configured, otherwise a
// NopPublisher.
func New(topic string, brokers []string) Publisher {
	if len(brokers) == 0 {
		return NopPublisher{}
	}
	return NewKafkaPublisher(topic, brokers...)
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.AttemptID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err = p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s to %s: %w", ev.Type, p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
