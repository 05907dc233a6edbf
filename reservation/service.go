package reservation

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	es "github.com/terraskye/fleetrental/eventsourcing"
	"github.com/terraskye/fleetrental/eventsourcing/logging"
	"github.com/terraskye/fleetrental/eventsourcing/otel"
)

// Service runs every command as load, one aggregate operation, save. It never
// retries: a concurrency conflict is returned to the caller untouched.
type Service struct {
	repo     Repository
	schedule Schedule
	logger   *logrus.Entry

	create   es.CommandHandler[CreateReservation, Snapshot]
	confirm  es.CommandHandler[ConfirmReservation, Snapshot]
	cancel   es.CommandHandler[CancelReservation, Snapshot]
	activate es.CommandHandler[ActivateReservation, Snapshot]
	complete es.CommandHandler[CompleteReservation, Snapshot]
	noShow   es.CommandHandler[MarkReservationNoShow, Snapshot]
}

type ServiceOption func(*Service)

// WithSchedule sets the vehicle schedule. Defaults to a MemorySchedule.
func WithSchedule(s Schedule) ServiceOption {
	return func(svc *Service) { svc.schedule = s }
}

// WithLogger sets the logger. Defaults to discarding output.
func WithLogger(l *logrus.Entry) ServiceOption {
	return func(svc *Service) { svc.logger = l }
}

func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	if s.schedule == nil {
		s.schedule = NewMemorySchedule()
	}
	if s.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.logger = logrus.NewEntry(l)
	}

	s.create = instrument(s.logger, s.handleCreate)
	s.confirm = instrument(s.logger, s.handleConfirm)
	s.cancel = instrument(s.logger, s.handleCancel)
	s.activate = instrument(s.logger, s.handleActivate)
	s.complete = instrument(s.logger, s.handleComplete)
	s.noShow = instrument(s.logger, s.handleNoShow)
	return s
}

func instrument[C es.Command](logger *logrus.Entry, h es.CommandHandler[C, Snapshot]) es.CommandHandler[C, Snapshot] {
	return logging.WithCommandLogging(logger, otel.WithCommandTelemetry(h))
}

// Create opens a reservation and claims its vehicle. An empty ReservationID is
// replaced by a generated one.
func (s *Service) Create(ctx context.Context, cmd CreateReservation) (Snapshot, error) {
	if cmd.ReservationID == "" {
		cmd.ReservationID = NewID()
	}
	return s.create(ctx, cmd)
}

func (s *Service) Confirm(ctx context.Context, id string) (Snapshot, error) {
	return s.confirm(ctx, ConfirmReservation{ReservationID: id})
}

func (s *Service) Cancel(ctx context.Context, id, reason string) (Snapshot, error) {
	return s.cancel(ctx, CancelReservation{ReservationID: id, Reason: reason})
}

func (s *Service) Activate(ctx context.Context, id string) (Snapshot, error) {
	return s.activate(ctx, ActivateReservation{ReservationID: id})
}

func (s *Service) Complete(ctx context.Context, id string) (Snapshot, error) {
	return s.complete(ctx, CompleteReservation{ReservationID: id})
}

func (s *Service) MarkAsNoShow(ctx context.Context, id string) (Snapshot, error) {
	return s.noShow(ctx, MarkReservationNoShow{ReservationID: id})
}

// Get replays a single reservation.
func (s *Service) Get(ctx context.Context, id string) (Snapshot, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return r.Snapshot(), nil
}

func (s *Service) handleCreate(ctx context.Context, cmd CreateReservation) (Snapshot, error) {
	r, err := Create(cmd.ReservationID, cmd.VehicleID, cmd.CustomerID, cmd.Period, cmd.PickupLocation, cmd.DropoffLocation, cmd.TotalPrice)
	if err != nil {
		return Snapshot{}, err
	}

	if err := s.schedule.Claim(ctx, cmd.VehicleID, cmd.ReservationID, cmd.Period); err != nil {
		return Snapshot{}, err
	}

	if err := s.repo.Save(ctx, r); err != nil {
		s.release(ctx, cmd.ReservationID)
		if errors.Is(err, ErrConcurrencyConflict) {
			// the stream was expected to be empty
			return Snapshot{}, &DuplicateReservationError{ID: cmd.ReservationID}
		}
		return Snapshot{}, err
	}
	return r.Snapshot(), nil
}

func (s *Service) handleConfirm(ctx context.Context, cmd ConfirmReservation) (Snapshot, error) {
	return s.mutate(ctx, cmd.ReservationID, (*Reservation).Confirm, false)
}

func (s *Service) handleCancel(ctx context.Context, cmd CancelReservation) (Snapshot, error) {
	return s.mutate(ctx, cmd.ReservationID, func(r *Reservation) error {
		return r.Cancel(cmd.Reason)
	}, true)
}

func (s *Service) handleActivate(ctx context.Context, cmd ActivateReservation) (Snapshot, error) {
	return s.mutate(ctx, cmd.ReservationID, (*Reservation).MarkAsActive, false)
}

func (s *Service) handleComplete(ctx context.Context, cmd CompleteReservation) (Snapshot, error) {
	return s.mutate(ctx, cmd.ReservationID, (*Reservation).Complete, true)
}

func (s *Service) handleNoShow(ctx context.Context, cmd MarkReservationNoShow) (Snapshot, error) {
	return s.mutate(ctx, cmd.ReservationID, (*Reservation).MarkAsNoShow, true)
}

// mutate loads id, applies op and saves. With releases set the vehicle claim
// is dropped once the save went through.
func (s *Service) mutate(ctx context.Context, id string, op func(*Reservation) error, releases bool) (Snapshot, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	if err := op(r); err != nil {
		return Snapshot{}, err
	}

	if err := s.repo.Save(ctx, r); err != nil {
		return Snapshot{}, err
	}

	if releases {
		s.release(ctx, id)
	}
	return r.Snapshot(), nil
}

// ReleaseClaim drops the vehicle claim of a reservation in a terminal status.
// It repairs a claim left behind when the release after Cancel, Complete or
// MarkAsNoShow failed.
func (s *Service) ReleaseClaim(ctx context.Context, id string) (Snapshot, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if !r.Status().IsTerminal() {
		return Snapshot{}, &InvalidStateTransitionError{Operation: "release the vehicle of", Status: r.Status()}
	}
	if err := s.schedule.Release(ctx, id); err != nil {
		return Snapshot{}, fmt.Errorf("release vehicle claim of reservation %q: %w", id, err)
	}
	return r.Snapshot(), nil
}

func (s *Service) load(ctx context.Context, id string) (*Reservation, error) {
	if id == "" {
		return nil, &ValidationError{Field: "reservation id", Reason: "must not be empty"}
	}
	r, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Exists() {
		return nil, &NotFoundError{ID: id}
	}
	return r, nil
}

// release is best effort. Failures are logged and the command still succeeds;
// ReleaseClaim retries them later.
func (s *Service) release(ctx context.Context, id string) {
	if err := s.schedule.Release(ctx, id); err != nil {
		s.logger.WithError(err).WithField("reservationId", id).Error("releasing vehicle claim failed, run ReleaseClaim to repair")
	}
}

// LogPublishError is a repository publish error callback that logs to logger.
func LogPublishError(logger *logrus.Entry) func(ctx context.Context, err error) {
	return func(_ context.Context, err error) {
		logger.WithError(err).Error("publishing reservation events failed")
	}
}

// IsRetryable reports whether a command failed only because of a concurrent write.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
