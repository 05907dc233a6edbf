package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

// WithEventTelemetry wraps an EventHandler with a span per handled event.
// Skipped events keep an Ok status.
func WithEventTelemetry(next es.EventHandler, options ...Option) es.EventHandler {
	cfg := newConfig(options)

	return es.NewEventHandlerFunc(func(ctx context.Context, event es.Event) error {
		ctx, span := tracer.Start(ctx, cfg.spanName(fmt.Sprintf("events.handle %s", event.EventType())),
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(cfg.attributes(ctx,
				AttrEventType.String(event.EventType()),
				AttrEventID.String(es.EventIDFromContext(ctx).String()),
				AttrEventStreamPos.Int64(int64(es.VersionFromContext(ctx))),
				AttrStreamID.String(es.StreamIDFromContext(ctx)),
			)...),
		)
		defer span.End()

		typeAttr := metric.WithAttributes(AttrEventType.String(event.EventType()))
		start := time.Now()
		err := next.Handle(ctx, event)
		EventsDuration.Record(ctx, float64(time.Since(start).Milliseconds()), typeAttr)

		if err != nil {
			var skipped *es.ErrSkippedEvent
			if errors.As(err, &skipped) {
				span.SetStatus(codes.Ok, "event skipped")
				return err
			}
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			return err
		}

		EventsHandled.Add(ctx, 1, typeAttr)
		span.SetStatus(codes.Ok, "")
		return nil
	})
}
