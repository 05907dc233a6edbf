// Package redisschedule keeps vehicle claims in Redis. Every vehicle has a
// hash of reservation id to claimed period. Claims are written in a
// WATCH/MULTI transaction, so a concurrent claim on the same vehicle makes
// the transaction fail and the overlap check is repeated.
package redisschedule

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/terraskye/fleetrental/reservation"
)

const (
	defaultPrefix = "fleet:"
	maxAttempts   = 8
)

var _ reservation.Schedule = (*Schedule)(nil)

type Schedule struct {
	rdb    redis.UniversalClient
	prefix string
}

// Option configures a Schedule.
type Option func(*Schedule)

// WithKeyPrefix namespaces all keys, e.g. per environment.
func WithKeyPrefix(prefix string) Option {
	return func(s *Schedule) { s.prefix = prefix }
}

func New(rdb redis.UniversalClient, opts ...Option) *Schedule {
	s := &Schedule{rdb: rdb, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *Schedule) vehicleKey(vehicleID string) string {
	return s.prefix + "vehicle:" + vehicleID + ":claims"
}

func (s *Schedule) claimKey(reservationID string) string {
	return s.prefix + "claim:" + reservationID
}

func (s *Schedule) Claim(ctx context.Context, vehicleID, reservationID string, period reservation.BookingPeriod) error {
	vehicleKey, claimKey := s.vehicleKey(vehicleID), s.claimKey(reservationID)

	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, claimKey).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return &reservation.DuplicateReservationError{ID: reservationID}
		}

		claims, err := tx.HGetAll(ctx, vehicleKey).Result()
		if err != nil {
			return err
		}
		for holder, raw := range claims {
			claimed, err := decodePeriod(raw)
			if err != nil {
				return fmt.Errorf("vehicle %q: claim of %q: %w", vehicleID, holder, err)
			}
			if claimed.OverlapsWith(period) {
				return &reservation.UnavailableError{VehicleID: vehicleID, Period: period, HeldBy: holder}
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, vehicleKey, reservationID, encodePeriod(period))
			pipe.Set(ctx, claimKey, vehicleID, 0)
			return nil
		})
		return err
	}

	for range maxAttempts {
		err := s.rdb.Watch(ctx, txf, vehicleKey, claimKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("claim vehicle %q: too much contention: %w", vehicleID, reservation.ErrConcurrencyConflict)
}

func (s *Schedule) Release(ctx context.Context, reservationID string) error {
	claimKey := s.claimKey(reservationID)

	txf := func(tx *redis.Tx) error {
		vehicleID, err := tx.Get(ctx, claimKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, s.vehicleKey(vehicleID), reservationID)
			pipe.Del(ctx, claimKey)
			return nil
		})
		return err
	}

	for range maxAttempts {
		err := s.rdb.Watch(ctx, txf, claimKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("release claim of reservation %q: %w", reservationID, err)
		}
		return nil
	}
	return fmt.Errorf("release claim of reservation %q: too much contention", reservationID)
}

// Claims lists the claims on vehicleID keyed by reservation id.
func (s *Schedule) Claims(ctx context.Context, vehicleID string) (map[string]reservation.BookingPeriod, error) {
	raw, err := s.rdb.HGetAll(ctx, s.vehicleKey(vehicleID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]reservation.BookingPeriod, len(raw))
	for id, v := range raw {
		p, err := decodePeriod(v)
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

func encodePeriod(p reservation.BookingPeriod) string {
	return p.PickupDate().Format("2006-01-02") + "/" + p.ReturnDate().Format("2006-01-02")
}

func decodePeriod(raw string) (reservation.BookingPeriod, error) {
	pickup, ret, ok := strings.Cut(raw, "/")
	if !ok {
		return reservation.BookingPeriod{}, fmt.Errorf("malformed period %q", raw)
	}
	return reservation.ParseBookingPeriod(pickup, ret)
}
