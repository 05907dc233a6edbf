package reservation

import (
	"context"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

// StreamPrefix is prepended to the reservation id to form its stream name.
const StreamPrefix = "reservation-"

// Repository loads and saves reservations.
type Repository interface {
	Load(ctx context.Context, id string) (*Reservation, error)
	Save(ctx context.Context, r *Reservation) error
}

// StreamName returns the event stream of a reservation.
func StreamName(id string) string {
	return StreamPrefix + id
}

// NewRepository returns an event-sourced repository storing one stream per reservation.
func NewRepository(store es.EventStore, opts ...es.RepositoryOption) *es.Repository[*Reservation] {
	opts = append([]es.RepositoryOption{es.WithStreamNamer(StreamName)}, opts...)
	return es.NewRepository(store, New, opts...)
}
