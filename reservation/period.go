package reservation

import (
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = time.DateOnly

// Date strips the time of day, keeping the calendar date t has in its own location.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is the current calendar date.
func Today() time.Time {
	return Date(now())
}

// BookingPeriod is an inclusive range of calendar dates.
type BookingPeriod struct {
	pickup time.Time
	ret    time.Time
}

// NewBookingPeriod requires returnDate >= pickupDate. Times of day are dropped.
func NewBookingPeriod(pickupDate, returnDate time.Time) (BookingPeriod, error) {
	if pickupDate.IsZero() || returnDate.IsZero() {
		return BookingPeriod{}, &ValidationError{Field: "period", Reason: "pickup and return date are required"}
	}
	p := BookingPeriod{pickup: Date(pickupDate), ret: Date(returnDate)}
	if p.ret.Before(p.pickup) {
		return BookingPeriod{}, &ValidationError{
			Field:  "period",
			Reason: fmt.Sprintf("return date %s is before pickup date %s", p.ret.Format(dateLayout), p.pickup.Format(dateLayout)),
		}
	}
	return p, nil
}

// ParseBookingPeriod parses two YYYY-MM-DD dates.
func ParseBookingPeriod(pickupDate, returnDate string) (BookingPeriod, error) {
	pickup, err := time.Parse(dateLayout, pickupDate)
	if err != nil {
		return BookingPeriod{}, &ValidationError{Field: "pickup date", Reason: err.Error()}
	}
	ret, err := time.Parse(dateLayout, returnDate)
	if err != nil {
		return BookingPeriod{}, &ValidationError{Field: "return date", Reason: err.Error()}
	}
	return NewBookingPeriod(pickup, ret)
}

func (p BookingPeriod) PickupDate() time.Time { return p.pickup }
func (p BookingPeriod) ReturnDate() time.Time { return p.ret }

func (p BookingPeriod) IsZero() bool {
	return p.pickup.IsZero()
}

// Days counts both the pickup and the return day.
func (p BookingPeriod) Days() int {
	if p.IsZero() {
		return 0
	}
	return int(dayNumber(p.ret)-dayNumber(p.pickup)) + 1
}

// dayNumber counts days since the Unix epoch. Both dates are UTC midnights.
func dayNumber(t time.Time) int64 {
	return t.Unix() / secondsPerDay
}

const secondsPerDay = 24 * 60 * 60

// OverlapsWith reports whether the periods share at least one calendar day.
func (p BookingPeriod) OverlapsWith(other BookingPeriod) bool {
	return !p.pickup.After(other.ret) && !p.ret.Before(other.pickup)
}

func (p BookingPeriod) String() string {
	return p.pickup.Format(dateLayout) + ".." + p.ret.Format(dateLayout)
}

type periodJSON struct {
	PickupDate string `json:"pickup_date"`
	ReturnDate string `json:"return_date"`
}

func (p BookingPeriod) MarshalJSON() ([]byte, error) {
	return json.Marshal(periodJSON{
		PickupDate: p.pickup.Format(dateLayout),
		ReturnDate: p.ret.Format(dateLayout),
	})
}

func (p *BookingPeriod) UnmarshalJSON(data []byte) error {
	var raw periodJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseBookingPeriod(raw.PickupDate, raw.ReturnDate)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
