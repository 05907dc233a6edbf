package postgres_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	es "github.com/terraskye/fleetrental/eventsourcing"
	"github.com/terraskye/fleetrental/eventsourcing/eventstore/postgres"
	"github.com/terraskye/fleetrental/eventsourcing/eventstore/storetest"
	"github.com/terraskye/fleetrental/internal/testutil"
	"github.com/terraskye/fleetrental/migrations"
)

// TestMain applies the migrations once for the whole package when an
// integration database is configured.
func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		os.Exit(m.Run())
	}

	db := testutil.MustOpenSQLDB(dsn)
	if _, err := migrations.Up(context.Background(), db); err != nil {
		log.Fatalf("TestMain: run migrations: %v", err)
	}
	db.Close()

	os.Exit(m.Run())
}

func TestPostgresStoreConformance(t *testing.T) {
	pool := testutil.NewPool(t)

	storetest.Run(t, func(t *testing.T) es.EventStore {
		return postgres.NewEventStore(pool, postgres.WithRegistry(storetest.Registry()))
	})
}

var _ postgres.DB = (*pgxpool.Pool)(nil)
