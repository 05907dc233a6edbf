package reservation

import (
	"time"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

func init() {
	es.RegisterEvent(func() es.Event { return &ReservationCreated{} })
	es.RegisterEvent(func() es.Event { return &ReservationConfirmed{} })
	es.RegisterEvent(func() es.Event { return &ReservationCancelled{} })
	es.RegisterEvent(func() es.Event { return &ReservationActivated{} })
	es.RegisterEvent(func() es.Event { return &ReservationCompleted{} })
	es.RegisterEvent(func() es.Event { return &ReservationMarkedNoShow{} })
}

type ReservationCreated struct {
	ReservationID   string        `json:"reservation_id"`
	VehicleID       string        `json:"vehicle_id"`
	CustomerID      string        `json:"customer_id"`
	Period          BookingPeriod `json:"period"`
	PickupLocation  string        `json:"pickup_location"`
	DropoffLocation string        `json:"dropoff_location"`
	TotalPrice      Money         `json:"total_price"`
	CreatedAt       time.Time     `json:"created_at"`
}

func (e ReservationCreated) AggregateID() string { return e.ReservationID }
func (e ReservationCreated) EventType() string   { return "reservation.created" }

type ReservationConfirmed struct {
	ReservationID string    `json:"reservation_id"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

func (e ReservationConfirmed) AggregateID() string { return e.ReservationID }
func (e ReservationConfirmed) EventType() string   { return "reservation.confirmed" }

type ReservationCancelled struct {
	ReservationID string    `json:"reservation_id"`
	Reason        *string   `json:"reason,omitempty"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

func (e ReservationCancelled) AggregateID() string { return e.ReservationID }
func (e ReservationCancelled) EventType() string   { return "reservation.cancelled" }

type ReservationActivated struct {
	ReservationID string    `json:"reservation_id"`
	ActivatedAt   time.Time `json:"activated_at"`
}

func (e ReservationActivated) AggregateID() string { return e.ReservationID }
func (e ReservationActivated) EventType() string   { return "reservation.activated" }

type ReservationCompleted struct {
	ReservationID string    `json:"reservation_id"`
	CompletedAt   time.Time `json:"completed_at"`
}

func (e ReservationCompleted) AggregateID() string { return e.ReservationID }
func (e ReservationCompleted) EventType() string   { return "reservation.completed" }

type ReservationMarkedNoShow struct {
	ReservationID string    `json:"reservation_id"`
	MarkedAt      time.Time `json:"marked_at"`
}

func (e ReservationMarkedNoShow) AggregateID() string { return e.ReservationID }
func (e ReservationMarkedNoShow) EventType() string   { return "reservation.marked_no_show" }
