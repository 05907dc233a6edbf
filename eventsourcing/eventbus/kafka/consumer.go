package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

// Consumer reads envelopes written by Publisher and hands them to an
// EventHandler. Offsets are committed only after the handler succeeds.
type Consumer struct {
	r        *kafka.Reader
	registry *es.Registry
	logger   *logrus.Entry
}

// NewConsumer joins the consumer group on topic.
func NewConsumer(brokers []string, group, topic string, registry *es.Registry, logger *logrus.Entry) *Consumer {
	if registry == nil {
		registry = es.DefaultRegistry
	}
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        group,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0,
		}),
		registry: registry,
		logger:   logger,
	}
}

// Run blocks until ctx is done or the reader fails. Handler failures are
// logged and the message is left uncommitted.
func (c *Consumer) Run(ctx context.Context, handler es.EventHandler) error {
	defer c.r.Close()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		env, err := Decode(c.registry, m)
		if err != nil {
			c.logger.WithError(err).WithField("offset", m.Offset).Error("dropping undecodable message")
			if err := c.r.CommitMessages(ctx, m); err != nil {
				return fmt.Errorf("kafka commit: %w", err)
			}
			continue
		}

		err = handler.Handle(es.WithEnvelope(ctx, env), env.Event)
		var skipped *es.ErrSkippedEvent
		if err != nil && !errors.As(err, &skipped) {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"stream":  env.StreamID,
				"version": env.Version,
			}).Error("event handler failed")
			continue
		}

		if err := c.r.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

// Decode turns a message written by Publisher back into an envelope.
func Decode(registry *es.Registry, m kafka.Message) (*es.Envelope, error) {
	var msg message
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return nil, fmt.Errorf("decode kafka message: %w", err)
	}

	ev, err := registry.Decode(msg.EventType, msg.Data)
	if err != nil {
		return nil, err
	}

	return &es.Envelope{
		EventID:    msg.EventID,
		StreamID:   msg.StreamID,
		Metadata:   msg.Metadata,
		Event:      ev,
		Version:    msg.Version,
		OccurredAt: msg.OccurredAt,
	}, nil
}
