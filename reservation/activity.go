package reservation

import (
	"context"

	"github.com/sirupsen/logrus"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

// ActivityLog writes one log line per committed reservation event. Hand its
// Accepts method to an event bus subscription as the filter.
func ActivityLog(logger *logrus.Entry) *es.EventGroupProcessor {
	entry := func(ctx context.Context, id string) *logrus.Entry {
		return logger.WithFields(logrus.Fields{
			"reservationId": id,
			"version":       es.VersionFromContext(ctx),
		})
	}

	return es.NewEventGroupProcessor(
		es.OnEvent(func(ctx context.Context, ev ReservationCreated) error {
			entry(ctx, ev.ReservationID).WithFields(logrus.Fields{
				"vehicleId":  ev.VehicleID,
				"customerId": ev.CustomerID,
				"period":     ev.Period.String(),
				"gross":      ev.TotalPrice.Gross().StringFixed(2) + " " + ev.TotalPrice.Currency(),
			}).Info("reservation created")
			return nil
		}),
		es.OnEvent(func(ctx context.Context, ev ReservationConfirmed) error {
			entry(ctx, ev.ReservationID).Info("reservation confirmed")
			return nil
		}),
		es.OnEvent(func(ctx context.Context, ev ReservationCancelled) error {
			e := entry(ctx, ev.ReservationID)
			if ev.Reason != nil {
				e = e.WithField("reason", *ev.Reason)
			}
			e.Info("reservation cancelled")
			return nil
		}),
		es.OnEvent(func(ctx context.Context, ev ReservationActivated) error {
			entry(ctx, ev.ReservationID).Info("vehicle handed over")
			return nil
		}),
		es.OnEvent(func(ctx context.Context, ev ReservationCompleted) error {
			entry(ctx, ev.ReservationID).Info("vehicle returned")
			return nil
		}),
		es.OnEvent(func(ctx context.Context, ev ReservationMarkedNoShow) error {
			entry(ctx, ev.ReservationID).Info("customer did not show up")
			return nil
		}),
	)
}
