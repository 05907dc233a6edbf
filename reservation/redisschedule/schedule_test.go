package redisschedule_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraskye/fleetrental/reservation"
	"github.com/terraskye/fleetrental/reservation/redisschedule"
)

func newSchedule(t *testing.T) *redisschedule.Schedule {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping integration test")
	}
	rdb, err := redisschedule.Dial(t.Context(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	return redisschedule.New(rdb, redisschedule.WithKeyPrefix("test:"+reservation.NewID()+":"))
}

func mustPeriod(t *testing.T, from, to int) reservation.BookingPeriod {
	t.Helper()
	base := time.Date(2031, time.June, 1, 0, 0, 0, 0, time.UTC)
	p, err := reservation.NewBookingPeriod(base.AddDate(0, 0, from), base.AddDate(0, 0, to))
	require.NoError(t, err)
	return p
}

func TestRedisScheduleClaims(t *testing.T) {
	s := newSchedule(t)
	ctx := t.Context()

	require.NoError(t, s.Claim(ctx, "car-1", "r-1", mustPeriod(t, 7, 10)))
	require.NoError(t, s.Claim(ctx, "car-1", "r-2", mustPeriod(t, 11, 14)))

	err := s.Claim(ctx, "car-1", "r-3", mustPeriod(t, 9, 9))
	require.ErrorIs(t, err, reservation.ErrVehicleUnavailable)

	err = s.Claim(ctx, "car-2", "r-1", mustPeriod(t, 1, 2))
	require.ErrorIs(t, err, reservation.ErrDuplicateReservation)

	claims, err := s.Claims(ctx, "car-1")
	require.NoError(t, err)
	assert.Len(t, claims, 2)

	require.NoError(t, s.Release(ctx, "r-1"))
	require.NoError(t, s.Release(ctx, "r-1"))
	require.NoError(t, s.Claim(ctx, "car-1", "r-3", mustPeriod(t, 9, 9)))
}

func TestRedisScheduleRaceHasOneWinner(t *testing.T) {
	s := newSchedule(t)
	p := mustPeriod(t, 7, 10)

	const bidders = 8
	var wg sync.WaitGroup
	errs := make([]error, bidders)
	for i := range bidders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Claim(context.Background(), "car-1", reservation.NewID(), p)
		}()
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}
