package logging

import (
	"context"
	"errors"
	"reflect"

	"github.com/sirupsen/logrus"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

// WithCommandLogging wraps a CommandHandler with logging functionality.
// It logs the command type and aggregate ID before execution. Commands
// rejected by a business rule are logged at warn level, everything else
// that fails at error level.
func WithCommandLogging[C es.Command, R any](logger *logrus.Entry, next es.CommandHandler[C, R]) es.CommandHandler[C, R] {
	return func(ctx context.Context, command C) (R, error) {
		l := logger.WithFields(logrus.Fields{
			"command":     reflect.TypeOf(command).String(),
			"aggregateId": command.AggregateID(),
		})
		l.Info("dispatch")

		result, err := next(ctx, command)
		switch {
		case err == nil:
			l.Debug("dispatch succeeded")
		case errors.Is(err, es.ErrBusinessRuleViolation):
			l.WithError(err).Warn("command rejected")
		default:
			l.WithError(err).Error("dispatch failed")
		}

		return result, err
	}
}
