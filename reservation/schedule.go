package reservation

import (
	"context"
	"sort"
	"sync"
)

// Schedule records which vehicle is promised to which reservation and when.
// It closes the gap between checking for overlaps and creating a
// reservation: Claim must reject an overlapping claim atomically.
type Schedule interface {
	// Claim reserves vehicleID for period on behalf of reservationID. It fails
	// with an error matching ErrVehicleUnavailable when another reservation
	// holds an overlapping claim, and with a *DuplicateReservationError when
	// reservationID already holds a claim.
	Claim(ctx context.Context, vehicleID, reservationID string, period BookingPeriod) error

	// Release drops the claim of reservationID. Releasing twice is not an error.
	Release(ctx context.Context, reservationID string) error
}

// VehicleClaim is one entry of a schedule.
type VehicleClaim struct {
	ReservationID string
	VehicleID     string
	Period        BookingPeriod
}

var _ Schedule = (*MemorySchedule)(nil)

// MemorySchedule is a process-local Schedule guarded by a mutex.
type MemorySchedule struct {
	mu     sync.Mutex
	claims map[string]VehicleClaim
}

func NewMemorySchedule() *MemorySchedule {
	return &MemorySchedule{claims: make(map[string]VehicleClaim)}
}

func (s *MemorySchedule) Claim(_ context.Context, vehicleID, reservationID string, period BookingPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claims[reservationID]; ok {
		return &DuplicateReservationError{ID: reservationID}
	}
	for _, c := range s.claims {
		if c.VehicleID == vehicleID && c.Period.OverlapsWith(period) {
			return &UnavailableError{VehicleID: vehicleID, Period: period, HeldBy: c.ReservationID}
		}
	}

	s.claims[reservationID] = VehicleClaim{ReservationID: reservationID, VehicleID: vehicleID, Period: period}
	return nil
}

func (s *MemorySchedule) Release(_ context.Context, reservationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, reservationID)
	return nil
}

// Claims lists the claims on vehicleID ordered by pickup date.
func (s *MemorySchedule) Claims(vehicleID string) []VehicleClaim {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []VehicleClaim
	for _, c := range s.claims {
		if c.VehicleID == vehicleID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Period.PickupDate().Before(out[j].Period.PickupDate())
	})
	return out
}
