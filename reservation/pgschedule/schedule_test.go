package pgschedule_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraskye/fleetrental/internal/testutil"
	"github.com/terraskye/fleetrental/migrations"
	"github.com/terraskye/fleetrental/reservation"
	"github.com/terraskye/fleetrental/reservation/pgschedule"
)

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		os.Exit(m.Run())
	}

	db := testutil.MustOpenSQLDB(dsn)
	if _, err := migrations.Up(context.Background(), db); err != nil {
		log.Fatalf("TestMain: run migrations: %v", err)
	}
	db.Close()

	os.Exit(m.Run())
}

var _ pgschedule.DB = (*pgxpool.Pool)(nil)

func mustPeriod(t *testing.T, from, to int) reservation.BookingPeriod {
	t.Helper()
	base := time.Date(2031, time.June, 1, 0, 0, 0, 0, time.UTC)
	p, err := reservation.NewBookingPeriod(base.AddDate(0, 0, from), base.AddDate(0, 0, to))
	require.NoError(t, err)
	return p
}

func TestScheduleRejectsOverlaps(t *testing.T) {
	pool := testutil.NewPool(t)
	s := pgschedule.New(pool)
	ctx := t.Context()

	vehicle := "car-" + reservation.NewID()
	first, second, third := reservation.NewID(), reservation.NewID(), reservation.NewID()
	t.Cleanup(func() {
		for _, id := range []string{first, second, third} {
			_ = s.Release(context.Background(), id)
		}
	})

	require.NoError(t, s.Claim(ctx, vehicle, first, mustPeriod(t, 7, 10)))

	err := s.Claim(ctx, vehicle, second, mustPeriod(t, 10, 12))
	require.ErrorIs(t, err, reservation.ErrVehicleUnavailable)
	var unavailable *reservation.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, first, unavailable.HeldBy)

	require.NoError(t, s.Claim(ctx, vehicle, second, mustPeriod(t, 11, 12)))

	err = s.Claim(ctx, "other-"+vehicle, first, mustPeriod(t, 1, 2))
	assert.ErrorIs(t, err, reservation.ErrDuplicateReservation)

	require.NoError(t, s.Release(ctx, first))
	require.NoError(t, s.Release(ctx, first))
	require.NoError(t, s.Claim(ctx, vehicle, third, mustPeriod(t, 7, 10)))
}
