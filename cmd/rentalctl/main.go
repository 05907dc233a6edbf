// Command rentalctl drives the reservation lifecycle from the command line.
//
//	rentalctl create -vehicle WOB-EV-42 -customer c-7 -pickup 2025-06-01 -return 2025-06-04 -from FRA -to MUC -daily-rate 49.90
//	rentalctl confirm -id <reservation id>
//	rentalctl show -id <reservation id>
//	rentalctl follow -group audit
//	rentalctl migrate
//
// Settings come from the environment or a .env file, see internal/config.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/terraskye/fleetrental/internal/config"
	"github.com/terraskye/fleetrental/reservation"
)

const usage = `usage: rentalctl <command> [flags]

commands:
  create    open a reservation
  confirm   confirm a pending reservation
  cancel    cancel a pending or confirmed reservation
  activate  hand the vehicle over
  complete  take the vehicle back
  no-show   mark a confirmed reservation whose pickup date passed
  show      print a reservation
  release   free the vehicle of a finished reservation whose claim was left behind
  follow    print reservation events published to Kafka
  migrate   apply the Postgres migrations
`

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "rentalctl:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates rejected commands from infrastructure failures.
func exitCode(err error) int {
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 2
	case errors.Is(err, reservation.ErrNotFound):
		return 3
	case errors.Is(err, reservation.ErrValidation),
		errors.Is(err, reservation.ErrInvalidStateTransition),
		errors.Is(err, reservation.ErrPreconditionNotMet),
		errors.Is(err, reservation.ErrVehicleUnavailable),
		errors.Is(err, reservation.ErrDuplicateReservation):
		return 4
	case errors.Is(err, reservation.ErrConcurrencyConflict):
		return 5
	default:
		return 1
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return flag.ErrHelp
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	switch args[0] {
	case "migrate":
		return migrate(ctx, cfg, logger)
	case "follow":
		return follow(ctx, cfg, logger, args[1:], stdout)
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q: %w", args[0], flag.ErrHelp)
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	exec := cmd(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	app, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	snap, err := reservation.RetryOnConflict(ctx, reservation.DefaultBackOff(cfg.RetryMaxElapsed),
		func(ctx context.Context) (reservation.Snapshot, error) {
			return exec(ctx, app.service)
		})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func newLogger(cfg config.Config) (*logrus.Entry, error) {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	l.SetLevel(level)

	if cfg.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logrus.NewEntry(l).WithField("app", "rentalctl"), nil
}
