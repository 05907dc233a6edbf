package reservation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryScheduleClaims(t *testing.T) {
	s := NewMemorySchedule()
	ctx := t.Context()

	require.NoError(t, s.Claim(ctx, "car-1", "r-1", period(t, 7, 10)))
	require.NoError(t, s.Claim(ctx, "car-1", "r-2", period(t, 11, 14)))
	require.NoError(t, s.Claim(ctx, "car-2", "r-3", period(t, 7, 10)))

	err := s.Claim(ctx, "car-1", "r-4", period(t, 10, 11))
	assert.ErrorIs(t, err, ErrVehicleUnavailable)

	err = s.Claim(ctx, "car-3", "r-1", period(t, 1, 2))
	assert.ErrorIs(t, err, ErrDuplicateReservation)

	claims := s.Claims("car-1")
	require.Len(t, claims, 2)
	assert.Equal(t, "r-1", claims[0].ReservationID)
	assert.Equal(t, "r-2", claims[1].ReservationID)

	require.NoError(t, s.Release(ctx, "r-1"))
	require.NoError(t, s.Release(ctx, "r-1"))
	require.NoError(t, s.Claim(ctx, "car-1", "r-4", period(t, 8, 10)))
}

func TestMemoryScheduleRaceHasOneWinner(t *testing.T) {
	s := NewMemorySchedule()

	const bidders = 10
	p := period(t, 7, 10)
	var wg sync.WaitGroup
	errs := make([]error, bidders)
	for i := range bidders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Claim(t.Context(), "car-1", NewID(), p)
		}()
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrVehicleUnavailable)
		}
	}
	assert.Equal(t, 1, wins)
}
