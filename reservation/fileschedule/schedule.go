// Package fileschedule keeps vehicle claims in a directory, next to the disk
// event store. Every vehicle has a lock file created with O_EXCL; the overlap
// check and the claim write happen while it is held, so processes sharing the
// directory cannot claim overlapping periods.
//
//	<dir>/reservations/<reservation>.claim     vehicle id, created exclusively
//	<dir>/vehicles/<vehicle>.claims/<reservation>.json
//	<dir>/vehicles/<vehicle>.lock
package fileschedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/terraskye/fleetrental/reservation"
)

const (
	defaultLockTimeout = 10 * time.Second
	// a lock older than this was left behind by a crashed process
	staleLockAge = 30 * time.Second
)

var _ reservation.Schedule = (*Schedule)(nil)

type Schedule struct {
	dir         string
	lockTimeout time.Duration
}

// Option configures a Schedule.
type Option func(*Schedule)

// WithLockTimeout bounds how long Claim and Release wait for a vehicle lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Schedule) { s.lockTimeout = d }
}

func New(dir string, opts ...Option) (*Schedule, error) {
	s := &Schedule{dir: dir, lockTimeout: defaultLockTimeout}
	for _, opt := range opts {
		opt(s)
	}
	for _, sub := range []string{"reservations", "vehicles"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create schedule directory: %w", err)
		}
	}
	return s, nil
}

type claimFile struct {
	ReservationID string                    `json:"reservation_id"`
	VehicleID     string                    `json:"vehicle_id"`
	Period        reservation.BookingPeriod `json:"period"`
}

func (s *Schedule) indexPath(reservationID string) string {
	return filepath.Join(s.dir, "reservations", url.PathEscape(reservationID)+".claim")
}

func (s *Schedule) claimsDir(vehicleID string) string {
	return filepath.Join(s.dir, "vehicles", url.PathEscape(vehicleID)+".claims")
}

func (s *Schedule) Claim(ctx context.Context, vehicleID, reservationID string, period reservation.BookingPeriod) (err error) {
	index := s.indexPath(reservationID)
	if err := linkNew(index, []byte(vehicleID)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &reservation.DuplicateReservationError{ID: reservationID}
		}
		return fmt.Errorf("claim vehicle %q: %w", vehicleID, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(index)
		}
	}()

	unlock, err := s.lock(ctx, vehicleID)
	if err != nil {
		return err
	}
	defer unlock()

	claims, err := s.read(vehicleID)
	if err != nil {
		return err
	}
	for _, c := range claims {
		if c.Period.OverlapsWith(period) {
			return &reservation.UnavailableError{VehicleID: vehicleID, Period: period, HeldBy: c.ReservationID}
		}
	}

	data, err := json.Marshal(claimFile{ReservationID: reservationID, VehicleID: vehicleID, Period: period})
	if err != nil {
		return err
	}
	dir := s.claimsDir(vehicleID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("claim vehicle %q: %w", vehicleID, err)
	}
	if err := writeAtomic(filepath.Join(dir, url.PathEscape(reservationID)+".json"), data); err != nil {
		return fmt.Errorf("claim vehicle %q: %w", vehicleID, err)
	}
	return nil
}

func (s *Schedule) Release(ctx context.Context, reservationID string) error {
	index := s.indexPath(reservationID)
	vehicleID, err := os.ReadFile(index)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release claim of reservation %q: %w", reservationID, err)
	}

	unlock, err := s.lock(ctx, string(vehicleID))
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.claimsDir(string(vehicleID)), url.PathEscape(reservationID)+".json"))
	unlock()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release claim of reservation %q: %w", reservationID, err)
	}

	if err := os.Remove(index); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release claim of reservation %q: %w", reservationID, err)
	}
	return nil
}

// Claims lists the claims on vehicleID ordered by pickup date.
func (s *Schedule) Claims(vehicleID string) ([]reservation.VehicleClaim, error) {
	claims, err := s.read(vehicleID)
	if err != nil {
		return nil, err
	}
	out := make([]reservation.VehicleClaim, 0, len(claims))
	for _, c := range claims {
		out = append(out, reservation.VehicleClaim(c))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Period.PickupDate().Before(out[j].Period.PickupDate())
	})
	return out, nil
}

func (s *Schedule) read(vehicleID string) ([]claimFile, error) {
	dir := s.claimsDir(vehicleID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read claims of vehicle %q: %w", vehicleID, err)
	}

	claims := make([]claimFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read claims of vehicle %q: %w", vehicleID, err)
		}
		var c claimFile
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("claim file %s: %w", e.Name(), err)
		}
		claims = append(claims, c)
	}
	return claims, nil
}

// lock takes the vehicle lock, waiting with exponential backoff while another
// process holds it.
func (s *Schedule) lock(ctx context.Context, vehicleID string) (func(), error) {
	path := filepath.Join(s.dir, "vehicles", url.PathEscape(vehicleID)+".lock")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = s.lockTimeout

	err := backoff.Retry(func() error {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f.Close()
		}
		if !errors.Is(err, fs.ErrExist) {
			return backoff.Permanent(err)
		}
		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			_ = os.Remove(path)
		}
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("lock vehicle %q: %w", vehicleID, err)
	}
	return func() { _ = os.Remove(path) }, nil
}

// linkNew publishes data at path, failing with fs.ErrExist when path exists.
func linkNew(path string, data []byte) error {
	tmp, err := writeTemp(filepath.Dir(path), data)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	return os.Link(tmp, path)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := writeTemp(filepath.Dir(path), data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".pending-*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
