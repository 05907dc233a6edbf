// Package kafka publishes committed envelopes to a Kafka topic and consumes
// them back into event handlers. Messages are keyed by stream so one
// reservation's events stay in order on a single partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

const (
	headerEventType = "event_type"
	headerEventID   = "event_id"
	headerVersion   = "version"
)

var _ es.EventPublisher = (*Publisher)(nil)

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// message is the JSON value written for every envelope.
type message struct {
	EventID    uuid.UUID       `json:"event_id"`
	StreamID   string          `json:"stream_id"`
	EventType  string          `json:"event_type"`
	Version    uint64          `json:"version"`
	OccurredAt time.Time       `json:"occurred_at"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Data       json.RawMessage `json:"data"`
}

type Publisher struct {
	w        messageWriter
	registry *es.Registry
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithRegistry sets the registry used to encode events.
func WithRegistry(r *es.Registry) Option {
	return func(p *Publisher) { p.registry = r }
}

// WithWriter replaces the kafka writer, mostly useful in tests.
func WithWriter(w messageWriter) Option {
	return func(p *Publisher) { p.w = w }
}

// NewPublisher writes synchronously with RequireAll acks so a failed publish
// is reported to the caller.
func NewPublisher(brokers []string, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		registry: es.DefaultRegistry,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, envelopes ...es.Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(envelopes))
	for _, env := range envelopes {
		msg, err := p.encode(env)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka publish %d message(s): %w", len(msgs), err)
	}
	return nil
}

func (p *Publisher) encode(env es.Envelope) (kafka.Message, error) {
	eventType, data, err := p.registry.Encode(env.Event)
	if err != nil {
		return kafka.Message{}, err
	}

	value, err := json.Marshal(message{
		EventID:    env.EventID,
		StreamID:   env.StreamID,
		EventType:  eventType,
		Version:    env.Version,
		OccurredAt: env.OccurredAt,
		Metadata:   env.Metadata,
		Data:       data,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal envelope %s: %w", env.EventID, err)
	}

	return kafka.Message{
		Key:   []byte(env.StreamID),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(eventType)},
			{Key: headerEventID, Value: []byte(env.EventID.String())},
			{Key: headerVersion, Value: []byte(strconv.FormatUint(env.Version, 10))},
		},
	}, nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}
