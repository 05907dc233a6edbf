package main

import (
	"context"
	"errors"
	"flag"

	"github.com/terraskye/fleetrental/reservation"
)

type execFunc func(ctx context.Context, svc *reservation.Service) (reservation.Snapshot, error)

// commands registers the flags of a subcommand and returns what to run once
// they are parsed.
var commands = map[string]func(fs *flag.FlagSet) execFunc{
	"create":   createCommand,
	"confirm":  byID((*reservation.Service).Confirm),
	"activate": byID((*reservation.Service).Activate),
	"complete": byID((*reservation.Service).Complete),
	"no-show":  byID((*reservation.Service).MarkAsNoShow),
	"show":     byID((*reservation.Service).Get),
	"cancel":   cancelCommand,
	"release":  byID((*reservation.Service).ReleaseClaim),
}

var errMissingID = errors.New("-id is required")

func byID(op func(*reservation.Service, context.Context, string) (reservation.Snapshot, error)) func(fs *flag.FlagSet) execFunc {
	return func(fs *flag.FlagSet) execFunc {
		id := fs.String("id", "", "reservation id")
		return func(ctx context.Context, svc *reservation.Service) (reservation.Snapshot, error) {
			if *id == "" {
				return reservation.Snapshot{}, &reservation.ValidationError{Field: "reservation id", Reason: errMissingID.Error()}
			}
			return op(svc, ctx, *id)
		}
	}
}

func cancelCommand(fs *flag.FlagSet) execFunc {
	id := fs.String("id", "", "reservation id")
	reason := fs.String("reason", "", "optional cancellation reason")
	return func(ctx context.Context, svc *reservation.Service) (reservation.Snapshot, error) {
		if *id == "" {
			return reservation.Snapshot{}, &reservation.ValidationError{Field: "reservation id", Reason: errMissingID.Error()}
		}
		return svc.Cancel(ctx, *id, *reason)
	}
}

func createCommand(fs *flag.FlagSet) execFunc {
	var (
		id        = fs.String("id", "", "reservation id (generated when empty)")
		vehicle   = fs.String("vehicle", "", "vehicle id")
		customer  = fs.String("customer", "", "customer id")
		pickup    = fs.String("pickup", "", "pickup date, YYYY-MM-DD")
		ret       = fs.String("return", "", "return date, YYYY-MM-DD")
		from      = fs.String("from", "", "pickup location code")
		to        = fs.String("to", "", "dropoff location code (defaults to -from)")
		dailyRate = fs.String("daily-rate", "", "net price per day")
		vatRate   = fs.String("vat", "0.19", "VAT rate between 0 and 1")
		currency  = fs.String("currency", "EUR", "ISO currency code")
	)

	// The id is fixed on the first attempt so a retried create stays the same reservation.
	return func(ctx context.Context, svc *reservation.Service) (reservation.Snapshot, error) {
		period, err := reservation.ParseBookingPeriod(*pickup, *ret)
		if err != nil {
			return reservation.Snapshot{}, err
		}
		rate, err := reservation.ParseMoney(*dailyRate, *vatRate, *currency)
		if err != nil {
			return reservation.Snapshot{}, err
		}
		if *to == "" {
			*to = *from
		}
		if *id == "" {
			*id = reservation.NewID()
		}

		return svc.Create(ctx, reservation.CreateReservation{
			ReservationID:   *id,
			VehicleID:       *vehicle,
			CustomerID:      *customer,
			Period:          period,
			PickupLocation:  *from,
			DropoffLocation: *to,
			TotalPrice:      reservation.Quote(rate, period),
		})
	}
}
