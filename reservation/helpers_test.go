package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var clock = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

// freezeTime pins the aggregate clock for the duration of the test.
func freezeTime(t *testing.T, at time.Time) {
	t.Helper()
	old := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = old })
}

// day returns the calendar date offset days from the frozen clock.
func day(offset int) time.Time {
	return Date(clock).AddDate(0, 0, offset)
}

func period(t *testing.T, from, to int) BookingPeriod {
	t.Helper()
	p, err := NewBookingPeriod(day(from), day(to))
	require.NoError(t, err)
	return p
}

func dailyRate(t *testing.T) Money {
	t.Helper()
	m, err := ParseMoney("49.90", "0.19", "EUR")
	require.NoError(t, err)
	return m
}

func pending(t *testing.T, from, to int) *Reservation {
	t.Helper()
	p := period(t, from, to)
	r, err := Create(NewID(), "WOB-EV-42", "cust-7", p, "FRA", "MUC", Quote(dailyRate(t), p))
	require.NoError(t, err)
	return r
}

func confirmed(t *testing.T, from, to int) *Reservation {
	t.Helper()
	r := pending(t, from, to)
	require.NoError(t, r.Confirm())
	return r
}
