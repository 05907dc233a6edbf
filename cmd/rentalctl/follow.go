package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	es "github.com/terraskye/fleetrental/eventsourcing"
	"github.com/terraskye/fleetrental/eventsourcing/eventbus/kafka"
	"github.com/terraskye/fleetrental/eventsourcing/logging"
	esotel "github.com/terraskye/fleetrental/eventsourcing/otel"
	"github.com/terraskye/fleetrental/internal/config"
)

var errNoBrokers = errors.New("follow: KAFKA_BROKERS is not set")

// follow tails the reservation topic until ctx is cancelled, printing one
// JSON line per event.
func follow(ctx context.Context, cfg config.Config, logger *logrus.Entry, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("follow", flag.ContinueOnError)
	group := fs.String("group", "rentalctl-follow", "kafka consumer group")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(cfg.KafkaBrokers) == 0 {
		return errNoBrokers
	}

	handler := printEvents(stdout)
	if cfg.OTelEnabled {
		otel.SetTextMapPropagator(propagation.TraceContext{})
		handler = esotel.WithEventTelemetry(handler, esotel.WithOperation("rentalctl.follow"))
	}
	handler = logging.WithEventLogging(logger, handler)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, *group, cfg.KafkaTopic, nil, logger.WithField("group", *group))
	return consumer.Run(ctx, handler)
}

type eventLine struct {
	Stream     string    `json:"stream"`
	Version    uint64    `json:"version"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Event      es.Event  `json:"event"`
}

func printEvents(w io.Writer) es.EventHandler {
	enc := json.NewEncoder(w)
	return es.NewEventHandlerFunc(func(ctx context.Context, ev es.Event) error {
		return enc.Encode(eventLine{
			Stream:     es.StreamIDFromContext(ctx),
			Version:    es.VersionFromContext(ctx),
			Type:       ev.EventType(),
			OccurredAt: es.OccurredAtFromContext(ctx),
			Event:      ev,
		})
	})
}
