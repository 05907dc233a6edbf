package reservation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingPeriodDays(t *testing.T) {
	assert.Equal(t, 1, period(t, 0, 0).Days())
	assert.Equal(t, 4, period(t, 7, 10).Days())
	assert.Equal(t, 0, BookingPeriod{}.Days())

	long, err := ParseBookingPeriod("1800-01-01", "2200-01-01")
	require.NoError(t, err)
	assert.Equal(t, 146098, long.Days())
}

func TestBookingPeriodValidation(t *testing.T) {
	_, err := NewBookingPeriod(day(10), day(7))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewBookingPeriod(time.Time{}, day(7))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseBookingPeriod("2025-03-10", "10.03.2025")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBookingPeriodDropsTimeOfDay(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	p, err := NewBookingPeriod(
		time.Date(2025, 3, 10, 23, 30, 0, 0, berlin),
		time.Date(2025, 3, 11, 0, 15, 0, 0, berlin),
	)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10..2025-03-11", p.String())
	assert.Equal(t, 2, p.Days())
}

func TestOverlapScenarios(t *testing.T) {
	base := period(t, 7, 10)

	assert.True(t, base.OverlapsWith(period(t, 9, 12)), "9 <= 10")
	assert.False(t, base.OverlapsWith(period(t, 11, 14)), "starts the day after return")
	assert.True(t, base.OverlapsWith(period(t, 10, 14)), "return day equals pickup day")
	assert.True(t, base.OverlapsWith(period(t, 8, 9)), "contained")
	assert.True(t, base.OverlapsWith(period(t, 1, 20)), "containing")
	assert.False(t, base.OverlapsWith(period(t, 1, 6)), "ends the day before pickup")
}

func TestOverlapIsSymmetric(t *testing.T) {
	var periods []BookingPeriod
	for from := 0; from < 6; from++ {
		for to := from; to < 6; to++ {
			periods = append(periods, period(t, from, to))
		}
	}

	for _, a := range periods {
		for _, b := range periods {
			require.Equal(t, a.OverlapsWith(b), b.OverlapsWith(a), "%s vs %s", a, b)
		}
	}
}

func TestBookingPeriodJSON(t *testing.T) {
	p := period(t, 7, 10)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pickup_date":"2025-03-17","return_date":"2025-03-20"}`, string(data))

	var back BookingPeriod
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)

	err = json.Unmarshal([]byte(`{"pickup_date":"2025-03-20","return_date":"2025-03-17"}`), &back)
	assert.ErrorIs(t, err, ErrValidation)
}
