// Package reservation implements the vehicle rental booking lifecycle as an
// event-sourced aggregate, together with the command service that drives it.
//
//	Pending -> Confirmed -> Active -> Completed
//	Pending | Confirmed -> Cancelled
//	Confirmed -> NoShow
package reservation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

var now = time.Now

type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusNoShow    Status = "NoShow"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// NewID returns a time-ordered reservation id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

var _ es.Aggregate = (*Reservation)(nil)

// Reservation is the aggregate root. Its fields change only through Apply.
type Reservation struct {
	*es.AggregateBase

	vehicleID          string
	customerID         string
	period             BookingPeriod
	pickupLocation     string
	dropoffLocation    string
	totalPrice         Money
	status             Status
	createdAt          time.Time
	confirmedAt        *time.Time
	cancelledAt        *time.Time
	activatedAt        *time.Time
	completedAt        *time.Time
	noShowAt           *time.Time
	cancellationReason *string
}

// New returns the empty aggregate for id. It is the starting point of a replay
// and reports Exists() == false until an event is applied.
func New(id string) *Reservation {
	return &Reservation{AggregateBase: es.NewAggregateBase(id)}
}

// Create validates the input and records ReservationCreated.
func Create(id, vehicleID, customerID string, period BookingPeriod, pickupLocation, dropoffLocation string, totalPrice Money) (*Reservation, error) {
	required := []struct{ field, value string }{
		{"reservation id", id},
		{"vehicle id", vehicleID},
		{"customer id", customerID},
		{"pickup location", pickupLocation},
		{"dropoff location", dropoffLocation},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, &ValidationError{Field: r.field, Reason: "must not be empty"}
		}
	}
	if period.IsZero() {
		return nil, &ValidationError{Field: "period", Reason: "must be set"}
	}
	if totalPrice.IsZero() {
		return nil, &ValidationError{Field: "total price", Reason: "must be set"}
	}

	r := New(id)
	if err := r.record(ReservationCreated{
		ReservationID:   id,
		VehicleID:       vehicleID,
		CustomerID:      customerID,
		Period:          period,
		PickupLocation:  pickupLocation,
		DropoffLocation: dropoffLocation,
		TotalPrice:      totalPrice,
		CreatedAt:       now(),
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// Confirm is only legal from Pending.
func (r *Reservation) Confirm() error {
	if r.status != StatusPending {
		return &InvalidStateTransitionError{Operation: "confirm", Status: r.status}
	}
	return r.record(ReservationConfirmed{ReservationID: r.EntityID(), ConfirmedAt: now()})
}

// Cancel is legal from Pending and Confirmed. Cancelling a cancelled
// reservation is a no-op that keeps the original reason. An empty reason is
// stored as no reason.
func (r *Reservation) Cancel(reason string) error {
	switch r.status {
	case StatusCancelled:
		return nil
	case StatusPending, StatusConfirmed:
	case StatusActive:
		return &InvalidStateTransitionError{Operation: "cancel", Status: r.status, Reason: "cannot cancel an active rental"}
	case StatusCompleted:
		return &InvalidStateTransitionError{Operation: "cancel", Status: r.status, Reason: "cannot cancel a completed reservation"}
	default:
		return &InvalidStateTransitionError{Operation: "cancel", Status: r.status}
	}

	var why *string
	if reason = strings.TrimSpace(reason); reason != "" {
		why = &reason
	}
	return r.record(ReservationCancelled{ReservationID: r.EntityID(), Reason: why, CancelledAt: now()})
}

// MarkAsActive hands the vehicle over. Legal from Confirmed once the pickup date has come.
func (r *Reservation) MarkAsActive() error {
	if r.status != StatusConfirmed {
		return &InvalidStateTransitionError{Operation: "activate", Status: r.status}
	}
	if today := Today(); r.period.PickupDate().After(today) {
		return &PreconditionError{
			Operation: "activate reservation",
			Reason:    fmt.Sprintf("pickup date %s is in the future (today is %s)", r.period.PickupDate().Format(dateLayout), today.Format(dateLayout)),
		}
	}
	return r.record(ReservationActivated{ReservationID: r.EntityID(), ActivatedAt: now()})
}

// Complete is only legal from Active.
func (r *Reservation) Complete() error {
	if r.status != StatusActive {
		return &InvalidStateTransitionError{Operation: "complete", Status: r.status}
	}
	return r.record(ReservationCompleted{ReservationID: r.EntityID(), CompletedAt: now()})
}

// MarkAsNoShow is legal from Confirmed once the pickup date has passed. The
// pickup day itself is still a valid day to show up.
func (r *Reservation) MarkAsNoShow() error {
	if r.status != StatusConfirmed {
		return &InvalidStateTransitionError{Operation: "mark as no-show", Status: r.status}
	}
	if today := Today(); !r.period.PickupDate().Before(today) {
		return &PreconditionError{
			Operation: "mark reservation as no-show",
			Reason:    fmt.Sprintf("pickup date %s has not passed yet (today is %s)", r.period.PickupDate().Format(dateLayout), today.Format(dateLayout)),
		}
	}
	return r.record(ReservationMarkedNoShow{ReservationID: r.EntityID(), MarkedAt: now()})
}

// OverlapsWith reports whether the reservation's period intersects other.
func (r *Reservation) OverlapsWith(other BookingPeriod) bool {
	return r.period.OverlapsWith(other)
}

// HoldsVehicle reports whether the reservation still blocks its vehicle.
func (r *Reservation) HoldsVehicle() bool {
	return r.status == StatusPending || r.status == StatusConfirmed || r.status == StatusActive
}

func (r *Reservation) record(event es.Event) error {
	if err := r.Apply(event); err != nil {
		return err
	}
	r.AppendEvent(event)
	return nil
}

// Apply folds one event into the aggregate. It performs no validation so that
// replaying history always succeeds.
func (r *Reservation) Apply(event es.Event) error {
	switch e := event.(type) {
	case ReservationCreated:
		r.vehicleID = e.VehicleID
		r.customerID = e.CustomerID
		r.period = e.Period
		r.pickupLocation = e.PickupLocation
		r.dropoffLocation = e.DropoffLocation
		r.totalPrice = e.TotalPrice
		r.createdAt = e.CreatedAt
		r.status = StatusPending
	case ReservationConfirmed:
		r.confirmedAt = &e.ConfirmedAt
		r.status = StatusConfirmed
	case ReservationCancelled:
		r.cancelledAt = &e.CancelledAt
		r.cancellationReason = e.Reason
		r.status = StatusCancelled
	case ReservationActivated:
		r.activatedAt = &e.ActivatedAt
		r.status = StatusActive
	case ReservationCompleted:
		r.completedAt = &e.CompletedAt
		r.status = StatusCompleted
	case ReservationMarkedNoShow:
		r.noShowAt = &e.MarkedAt
		r.status = StatusNoShow
	default:
		return fmt.Errorf("reservation %s: unknown event %T", r.EntityID(), event)
	}
	return nil
}

func (r *Reservation) VehicleID() string           { return r.vehicleID }
func (r *Reservation) CustomerID() string          { return r.customerID }
func (r *Reservation) Period() BookingPeriod       { return r.period }
func (r *Reservation) Status() Status              { return r.status }
func (r *Reservation) TotalPrice() Money           { return r.totalPrice }
func (r *Reservation) CancellationReason() *string { return r.cancellationReason }

// Snapshot is the public state of a reservation.
type Snapshot struct {
	ID                 string        `json:"id"`
	Version            uint64        `json:"version"`
	VehicleID          string        `json:"vehicle_id"`
	CustomerID         string        `json:"customer_id"`
	Period             BookingPeriod `json:"period"`
	PickupLocation     string        `json:"pickup_location"`
	DropoffLocation    string        `json:"dropoff_location"`
	TotalPrice         Money         `json:"total_price"`
	Status             Status        `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	ConfirmedAt        *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	ActivatedAt        *time.Time    `json:"activated_at,omitempty"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	NoShowAt           *time.Time    `json:"no_show_at,omitempty"`
	CancellationReason *string       `json:"cancellation_reason,omitempty"`
}

// Snapshot copies the public state. Version counts committed and pending events.
func (r *Reservation) Snapshot() Snapshot {
	return Snapshot{
		ID:                 r.EntityID(),
		Version:            r.AggregateVersion() + uint64(len(r.UncommittedEvents())),
		VehicleID:          r.vehicleID,
		CustomerID:         r.customerID,
		Period:             r.period,
		PickupLocation:     r.pickupLocation,
		DropoffLocation:    r.dropoffLocation,
		TotalPrice:         r.totalPrice,
		Status:             r.status,
		CreatedAt:          r.createdAt,
		ConfirmedAt:        copyTime(r.confirmedAt),
		CancelledAt:        copyTime(r.cancelledAt),
		ActivatedAt:        copyTime(r.activatedAt),
		CompletedAt:        copyTime(r.completedAt),
		NoShowAt:           copyTime(r.noShowAt),
		CancellationReason: copyString(r.cancellationReason),
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
