package pgstore

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"testing"

	"bidvault/store"

	"github.com/go-kit/log"
	pgx "github.com/jackc/pgx/v4"
)

// NewTestStore creates a fresh database on the server named by the
// PGCONNSTRING environment variable and returns a migrated Store backed by
// it. The database is dropped when the test completes, unless it failed.
func NewTestStore(t *testing.T) store.Store {
	t.Helper()

	connStr := os.Getenv("PGCONNSTRING")
	if connStr == "" {
		t.Skipf("set PGCONNSTRING to run this test")
	}

	ctx := context.Background()
	dbConnStr := createTestDatabase(ctx, t, connStr, fmt.Sprintf("bidvault-test-%d", rand.Int()))

	s, err := NewStore(ctx, dbConnStr, log.NewNopLogger())
	if err != nil {
		t.Fatalf("create test DB store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close test DB store: %v", err)
		}
	})

	return s
}

func createTestDatabase(ctx context.Context, t *testing.T, connStr, dbName string) string {
	t.Helper()

	cfg, err := pgx.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("parse connection string: %v", err)
	}

	cfg.Database = "postgres"
	admin, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect to database: %v", err)
	}

	for _, q := range []string{
		fmt.Sprintf(`drop database if exists %q`, dbName),
		fmt.Sprintf(`create database %q`, dbName),
	} {
		if _, err := admin.Exec(ctx, q); err != nil {
			t.Fatalf("init test DB: %v", err)
		}
	}

	// Registered before the store's own cleanup, so it runs after it.
	t.Cleanup(func() {
		defer func() {
			if err := admin.Close(ctx); err != nil {
				t.Errorf("close admin connection: %v", err)
			}
		}()

		if t.Failed() {
			t.Logf("database %s left intact", dbName)
			return
		}

		if _, err := admin.Exec(ctx, `
			select pg_terminate_backend(pid)
			from pg_stat_activity
			where datname = $1
		`, dbName); err != nil {
			t.Errorf("kill clients query: %v", err)
		}

		if _, err := admin.Exec(ctx, fmt.Sprintf(`drop database %q`, dbName)); err != nil {
			t.Errorf("drop test DB: %v", err)
		}
	})

	u, err := url.Parse(cfg.ConnString())
	if err != nil {
		t.Fatalf("re-parse test DB connection string: %v", err)
	}
	u.Path = dbName

	t.Logf("connection string %s", u.Redacted())

	return u.String()
}
