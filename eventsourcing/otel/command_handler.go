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

// WithCommandTelemetry wraps a CommandHandler with a span and command metrics.
//
// Errors matching es.ErrBusinessRuleViolation are expected outcomes: they are
// counted as rejected and the span status stays Ok. Concurrency conflicts are
// counted separately and mark the span as failed so retries are visible.
func WithCommandTelemetry[C es.Command, R any](next es.CommandHandler[C, R], options ...Option) es.CommandHandler[C, R] {
	var zero C
	commandType := fmt.Sprintf("%T", zero)
	cfg := newConfig(options)
	spanName := cfg.spanName(fmt.Sprintf("command.handle %s", commandType))
	typeAttr := metric.WithAttributes(AttrCommandType.String(commandType))

	return func(ctx context.Context, cmd C) (R, error) {
		ctx, span := tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(cfg.attributes(ctx,
				AttrCommandType.String(commandType),
				AttrAggregateID.String(cmd.AggregateID()),
			)...),
		)
		defer span.End()

		CommandsInFlight.Add(ctx, 1, typeAttr)
		defer CommandsInFlight.Add(ctx, -1, typeAttr)

		start := time.Now()
		result, err := next(ctx, cmd)
		CommandsDuration.Record(ctx, float64(time.Since(start).Milliseconds()), typeAttr)

		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
			CommandsHandled.Add(ctx, 1, typeAttr)

		case errors.Is(err, es.ErrBusinessRuleViolation):
			span.SetStatus(codes.Ok, fmt.Sprintf("business rule violation: %v", err))
			span.AddEvent("business_rule_violation", trace.WithAttributes(
				AttrAggregateID.String(cmd.AggregateID()),
			))
			CommandsRejected.Add(ctx, 1, typeAttr)

		default:
			if errors.Is(err, es.ErrConcurrencyConflict) {
				ConcurrencyConflicts.Add(ctx, 1, typeAttr)
				span.AddEvent("concurrency_conflict")
			}
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			CommandsFailed.Add(ctx, 1, typeAttr)
		}

		return result, err
	}
}
