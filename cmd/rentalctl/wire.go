package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	es "github.com/terraskye/fleetrental/eventsourcing"
	"github.com/terraskye/fleetrental/eventsourcing/eventbus/kafka"
	memorybus "github.com/terraskye/fleetrental/eventsourcing/eventbus/memory"
	"github.com/terraskye/fleetrental/eventsourcing/eventstore/disk"
	"github.com/terraskye/fleetrental/eventsourcing/eventstore/kurrentdb"
	"github.com/terraskye/fleetrental/eventsourcing/eventstore/memory"
	"github.com/terraskye/fleetrental/eventsourcing/eventstore/postgres"
	esotel "github.com/terraskye/fleetrental/eventsourcing/otel"
	"github.com/terraskye/fleetrental/internal/config"
	"github.com/terraskye/fleetrental/migrations"
	"github.com/terraskye/fleetrental/reservation"
	"github.com/terraskye/fleetrental/reservation/fileschedule"
	"github.com/terraskye/fleetrental/reservation/pgschedule"
	"github.com/terraskye/fleetrental/reservation/redisschedule"
)

type app struct {
	service *reservation.Service
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// wire builds the service from the configured backends. On error everything
// opened so far is closed again.
func wire(ctx context.Context, cfg config.Config, logger *logrus.Entry) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var pool *pgxpool.Pool
	postgresPool := func() (*pgxpool.Pool, error) {
		if pool != nil {
			return pool, nil
		}
		p, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pool = p
		a.closers = append(a.closers, func() error { p.Close(); return nil })
		return p, nil
	}

	var store es.EventStore
	switch cfg.EventStore {
	case "memory":
		logger.Warn("memory event store: reservations are lost when rentalctl exits")
		store = memory.NewMemoryStore()
	case "disk":
		store, err = disk.NewFileStore(cfg.DataDir)
	case "postgres":
		var p *pgxpool.Pool
		if p, err = postgresPool(); err == nil {
			store = postgres.NewEventStore(p)
		}
	case "kurrentdb":
		client, dialErr := kurrentdb.Dial(cfg.KurrentDBURL)
		if dialErr != nil {
			return nil, dialErr
		}
		store = kurrentdb.NewEventStore(client)
	default:
		err = fmt.Errorf("unknown event store %q", cfg.EventStore)
	}
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	if cfg.OTelEnabled {
		otel.SetTextMapPropagator(propagation.TraceContext{})
		store = esotel.WithEventStoreTelemetry(store)
	}

	var schedule reservation.Schedule
	switch cfg.Schedule {
	case "memory":
		schedule = reservation.NewMemorySchedule()
	case "file":
		if schedule, err = fileschedule.New(cfg.ScheduleDir); err != nil {
			return nil, err
		}
	case "postgres":
		p, err := postgresPool()
		if err != nil {
			return nil, err
		}
		schedule = pgschedule.New(p)
	case "redis":
		rdb, err := redisschedule.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		schedule = redisschedule.New(rdb)
	default:
		return nil, fmt.Errorf("unknown schedule %q", cfg.Schedule)
	}

	var publisher es.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		p := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, p.Close)
		publisher = p
	} else {
		// without a broker committed events only reach the activity log
		bus := memorybus.NewEventBus(64)
		activity := reservation.ActivityLog(logger)
		var handler es.EventHandler = activity
		if cfg.OTelEnabled {
			handler = esotel.WithEventTelemetry(handler, esotel.WithOperation("rentalctl.activity"))
		}
		if err := bus.Subscribe(ctx, "activity-log", activity.Accepts, handler); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, bus.Close)
		publisher = bus
	}

	a.service = reservation.NewService(
		reservation.NewRepository(store, es.WithPublisher(publisher, reservation.LogPublishError(logger))),
		reservation.WithSchedule(schedule),
		reservation.WithLogger(logger),
	)
	return a, nil
}

func migrate(ctx context.Context, cfg config.Config, logger *logrus.Entry) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate: DATABASE_URL is not set")
	}

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	applied, err := migrations.Up(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.WithField("applied", applied).Info("migrations up to date")
	return nil
}
