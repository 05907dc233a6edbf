// Package pgschedule keeps vehicle claims in Postgres. The exclusion
// constraint vehicle_claims_no_overlap rejects overlapping claims for the same
// vehicle atomically, whatever the number of writers.
package pgschedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/terraskye/fleetrental/reservation"
)

const (
	uniqueViolation    = "23505"
	exclusionViolation = "23P01"
)

// DB is the subset of *pgxpool.Pool the schedule needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ reservation.Schedule = (*Schedule)(nil)

type Schedule struct {
	db DB
}

func New(db DB) *Schedule {
	return &Schedule{db: db}
}

func (s *Schedule) Claim(ctx context.Context, vehicleID, reservationID string, period reservation.BookingPeriod) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO vehicle_claims (reservation_id, vehicle_id, period)
		VALUES (@reservation_id, @vehicle_id, daterange(@pickup_date::date, @return_date::date, '[]'))`,
		pgx.NamedArgs{
			"reservation_id": reservationID,
			"vehicle_id":     vehicleID,
			"pickup_date":    period.PickupDate(),
			"return_date":    period.ReturnDate(),
		})
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case exclusionViolation:
			return &reservation.UnavailableError{
				VehicleID: vehicleID,
				Period:    period,
				HeldBy:    s.holder(ctx, vehicleID, period),
			}
		case uniqueViolation:
			return &reservation.DuplicateReservationError{ID: reservationID}
		}
	}
	return fmt.Errorf("claim vehicle %q: %w", vehicleID, err)
}

// holder looks up who blocks the vehicle. It only enriches the error, so a
// failed lookup yields "".
func (s *Schedule) holder(ctx context.Context, vehicleID string, period reservation.BookingPeriod) string {
	var id string
	err := s.db.QueryRow(ctx, `
		SELECT reservation_id FROM vehicle_claims
		WHERE vehicle_id = @vehicle_id
		  AND period && daterange(@pickup_date::date, @return_date::date, '[]')
		ORDER BY lower(period)
		LIMIT 1`,
		pgx.NamedArgs{
			"vehicle_id":  vehicleID,
			"pickup_date": period.PickupDate(),
			"return_date": period.ReturnDate(),
		}).Scan(&id)
	if err != nil {
		return ""
	}
	return id
}

func (s *Schedule) Release(ctx context.Context, reservationID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM vehicle_claims WHERE reservation_id = @reservation_id`,
		pgx.NamedArgs{"reservation_id": reservationID}); err != nil {
		return fmt.Errorf("release claim of reservation %q: %w", reservationID, err)
	}
	return nil
}
