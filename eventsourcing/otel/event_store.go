package otel

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

var _ es.EventStore = (*TelemetryStore)(nil)

// TelemetryStore decorates an EventStore with spans and metrics. On Save it
// also injects the current trace context into the envelope metadata so
// consumers of published events can continue the trace.
type TelemetryStore struct {
	next es.EventStore
	cfg  config
}

// WithEventStoreTelemetry wraps next.
func WithEventStoreTelemetry(next es.EventStore, options ...Option) *TelemetryStore {
	return &TelemetryStore{next: next, cfg: newConfig(options)}
}

func (t *TelemetryStore) Save(ctx context.Context, events []es.Envelope, revision es.StreamState) (es.AppendResult, error) {
	var streamID string
	if len(events) > 0 {
		streamID = events[0].StreamID
	}

	var expected string
	if revision != nil {
		expected = revision.String()
	}

	ctx, span := tracer.Start(ctx, t.cfg.spanName("EventStore.Save"),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.cfg.attributes(ctx,
			AttrOperation.String("save"),
			AttrStreamID.String(streamID),
			AttrExpectedState.String(expected),
			AttrEventCount.Int(len(events)),
		)...),
	)
	defer span.End()

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) > 0 || span.SpanContext().HasTraceID() {
		for i := range events {
			md := make(map[string]any, len(events[i].Metadata)+len(carrier)+1)
			for k, v := range events[i].Metadata {
				md[k] = v
			}
			for k, v := range carrier {
				md[k] = v
			}
			if span.SpanContext().HasTraceID() {
				md["correlationId"] = span.SpanContext().TraceID().String()
			}
			events[i].Metadata = md
		}
	}

	opAttr := metric.WithAttributes(AttrOperation.String("save"))
	start := time.Now()
	result, err := t.next.Save(ctx, events, revision)
	EventStoreDuration.Record(ctx, float64(time.Since(start).Milliseconds()), opAttr)
	EventStoreSaves.Add(ctx, 1)

	if err != nil {
		if errors.Is(err, es.ErrConcurrencyConflict) {
			ConcurrencyConflicts.Add(ctx, 1, opAttr)
			span.AddEvent("concurrency_conflict")
		}
		EventStoreErrors.Add(ctx, 1, opAttr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	EventsAppended.Add(ctx, int64(len(events)))
	span.SetAttributes(AttrStreamVersion.Int64(int64(result.NextExpectedVersion)))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// LoadStream opens a span that lasts until the returned iterator is drained.
func (t *TelemetryStore) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	opAttr := metric.WithAttributes(AttrOperation.String("load"))
	EventStoreLoads.Add(ctx, 1)

	ctx, span := tracer.Start(ctx, t.cfg.spanName("EventStore.LoadStream"),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.cfg.attributes(ctx,
			AttrOperation.String("load"),
			AttrStreamID.String(id),
		)...),
	)
	start := time.Now()

	iter, err := t.next.LoadStream(ctx, id)
	if err != nil {
		if !errors.Is(err, es.ErrStreamNotFound) {
			EventStoreErrors.Add(ctx, 1, opAttr)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		return iter, err
	}

	var count int64
	finished := false
	finish := func(ctx context.Context, err error) {
		if finished {
			return
		}
		finished = true
		span.SetAttributes(AttrEventCount.Int64(count))
		EventStoreDuration.Record(ctx, float64(time.Since(start).Milliseconds()), opAttr)
		if err != nil && !errors.Is(err, es.ErrStreamNotFound) {
			EventStoreErrors.Add(ctx, 1, opAttr)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}

	return es.NewIteratorFunc(func(ctx context.Context) (*es.Envelope, error) {
		if !iter.Next(ctx) {
			err := iter.Err()
			finish(ctx, err)
			if err == nil {
				return nil, io.EOF
			}
			return nil, err
		}

		count++
		EventsLoaded.Add(ctx, 1)
		return iter.Value(), nil
	}), nil
}

func (t *TelemetryStore) Close() error {
	return t.next.Close()
}
