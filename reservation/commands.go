package reservation

// CreateReservation opens a new reservation. ReservationID may be left empty
// to have one generated; a supplied id that already exists fails with
// ErrDuplicateReservation.
type CreateReservation struct {
	ReservationID   string
	VehicleID       string
	CustomerID      string
	Period          BookingPeriod
	PickupLocation  string
	DropoffLocation string
	TotalPrice      Money
}

func (c CreateReservation) AggregateID() string { return c.ReservationID }

type ConfirmReservation struct {
	ReservationID string
}

func (c ConfirmReservation) AggregateID() string { return c.ReservationID }

type CancelReservation struct {
	ReservationID string
	Reason        string
}

func (c CancelReservation) AggregateID() string { return c.ReservationID }

type ActivateReservation struct {
	ReservationID string
}

func (c ActivateReservation) AggregateID() string { return c.ReservationID }

type CompleteReservation struct {
	ReservationID string
}

func (c CompleteReservation) AggregateID() string { return c.ReservationID }

type MarkReservationNoShow struct {
	ReservationID string
}

func (c MarkReservationNoShow) AggregateID() string { return c.ReservationID }
