// Package config reads the rentalctl settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	EventStore      string
	DataDir         string
	DatabaseURL     string
	KurrentDBURL    string
	Schedule        string
	ScheduleDir     string
	RedisAddr       string
	KafkaBrokers    []string
	KafkaTopic      string
	LogLevel        string
	LogFormat       string
	RetryMaxElapsed time.Duration
	OTelEnabled     bool
}

// Load reads the environment. Every problem found is reported in one error.
func Load() (Config, error) {
	cfg := Config{
		EventStore:   strings.ToLower(getenv("EVENT_STORE", "disk")),
		DataDir:      getenv("DATA_DIR", "./data/events"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		KurrentDBURL: os.Getenv("KURRENTDB_URL"),
		Schedule:     strings.ToLower(getenv("SCHEDULE", "file")),
		ScheduleDir:  getenv("SCHEDULE_DIR", "./data/schedule"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "fleet.reservations"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFormat:    strings.ToLower(getenv("LOG_FORMAT", "text")),
	}

	var errs []error

	maxElapsed, err := time.ParseDuration(getenv("RETRY_MAX_ELAPSED", "5s"))
	if err != nil {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ELAPSED: %w", err))
	}
	cfg.RetryMaxElapsed = maxElapsed

	if raw := os.Getenv("OTEL_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("OTEL_ENABLED: %w", err))
		}
		cfg.OTelEnabled = enabled
	}

	switch cfg.EventStore {
	case "memory":
	case "disk":
		if cfg.DataDir == "" {
			errs = append(errs, errors.New("DATA_DIR is required for EVENT_STORE=disk"))
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for EVENT_STORE=postgres"))
		}
	case "kurrentdb":
		if cfg.KurrentDBURL == "" {
			errs = append(errs, errors.New("KURRENTDB_URL is required for EVENT_STORE=kurrentdb"))
		}
	default:
		errs = append(errs, fmt.Errorf("EVENT_STORE: unknown store %q", cfg.EventStore))
	}

	switch cfg.Schedule {
	case "memory":
		// claims would be forgotten while the reservations they guard live on
		if cfg.EventStore != "memory" {
			errs = append(errs, fmt.Errorf("SCHEDULE=memory requires EVENT_STORE=memory, got %q", cfg.EventStore))
		}
	case "file":
		if cfg.ScheduleDir == "" {
			errs = append(errs, errors.New("SCHEDULE_DIR is required for SCHEDULE=file"))
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for SCHEDULE=postgres"))
		}
	case "redis":
		if cfg.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for SCHEDULE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("SCHEDULE: unknown schedule %q", cfg.Schedule))
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: must be text or json, got %q", cfg.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
