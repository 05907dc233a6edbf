package logging

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

// WithEventLogging logs every event that reaches next together with the
// envelope fields carried in the context.
func WithEventLogging(logger *logrus.Entry, next es.EventHandler) es.EventHandler {
	return es.NewEventHandlerFunc(func(ctx context.Context, event es.Event) error {
		l := logger.WithFields(logrus.Fields{
			"event":       event.EventType(),
			"stream-id":   es.StreamIDFromContext(ctx),
			"version":     es.VersionFromContext(ctx),
			"aggregateId": es.AggregateIDFromContext(ctx),
		})

		l.Debug("event processing started")

		err := next.Handle(ctx, event)

		var skipped *es.ErrSkippedEvent
		switch {
		case err == nil:
			l.Debug("event processed successfully")
		case errors.As(err, &skipped):
			l.Trace("event skipped")
		default:
			l.WithError(err).Error("error processing event")
		}

		return err
	})
}
