package reservation

import (
	"errors"
	"fmt"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrPreconditionNotMet     = errors.New("precondition not met")
	ErrNotFound               = errors.New("reservation not found")
	ErrVehicleUnavailable     = errors.New("vehicle unavailable")
	ErrDuplicateReservation   = errors.New("reservation already exists")

	// ErrConcurrencyConflict is returned when the stream moved on between load
	// and save. Reload and retry; see RetryOnConflict.
	ErrConcurrencyConflict = es.ErrConcurrencyConflict
)

// ValidationError reports malformed input. Nothing is recorded when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || target == es.ErrBusinessRuleViolation
}

// InvalidStateTransitionError reports an operation the current status does not allow.
// The message always contains the status.
type InvalidStateTransitionError struct {
	Operation string
	Status    Status
	Reason    string
}

func (e *InvalidStateTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (status %s)", e.Reason, e.Status)
	}
	return fmt.Sprintf("cannot %s a reservation in status %s", e.Operation, e.Status)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition || target == es.ErrBusinessRuleViolation
}

// PreconditionError reports an allowed transition whose date condition is not met yet.
type PreconditionError struct {
	Operation string
	Reason    string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot %s: %s", e.Operation, e.Reason)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPreconditionNotMet || target == es.ErrBusinessRuleViolation
}

type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("reservation %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == es.ErrBusinessRuleViolation
}

// UnavailableError is returned by a Schedule when the vehicle is already
// claimed for an overlapping period.
type UnavailableError struct {
	VehicleID string
	Period    BookingPeriod
	// HeldBy is the reservation holding the conflicting claim, if known.
	HeldBy string
}

func (e *UnavailableError) Error() string {
	if e.HeldBy == "" {
		return fmt.Sprintf("vehicle %q is not available for %s", e.VehicleID, e.Period)
	}
	return fmt.Sprintf("vehicle %q is not available for %s: held by reservation %q", e.VehicleID, e.Period, e.HeldBy)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrVehicleUnavailable || target == es.ErrBusinessRuleViolation
}

// DuplicateReservationError is returned by Create when the id is already taken.
// Retrying cannot help, so it does not match ErrConcurrencyConflict.
type DuplicateReservationError struct {
	ID string
}

func (e *DuplicateReservationError) Error() string {
	return fmt.Sprintf("reservation %q already exists", e.ID)
}

func (e *DuplicateReservationError) Is(target error) bool {
	return target == ErrDuplicateReservation || target == es.ErrBusinessRuleViolation
}
