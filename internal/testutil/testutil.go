// Package testutil provides database helpers for integration tests. Tests
// that hit Postgres call SkipIfNoTestDB first so the suite stays green on
// machines without the test database running.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/gradebench/gradebench/internal/migrate"
)

// TestingTB is the subset of testing.TB these helpers need. It exists so the
// helpers can be exercised without a real *testing.T.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// TestDBConfig describes the test database connection.
type TestDBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// DefaultTestDBConfig reads the test database settings from TEST_DB_* env
// vars, falling back to the local docker-compose defaults.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envIntOr("TEST_DB_PORT", 55432),
		User:     envOr("TEST_DB_USER", "gradebench"),
		Password: envOr("TEST_DB_PASSWORD", "gradebench"),
		Name:     envOr("TEST_DB_NAME", "gradebench_test"),
	}
}

// DSN renders the config as a pgx connection string.
func (c TestDBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SkipIfNoTestDB skips the test when the test database is unreachable. When
// TEST_REQUIRE_DB or TEST_REQUIRE_INFRA is set the skip escalates to a
// failure, so CI cannot silently drop the integration suite.
func SkipIfNoTestDB(tb TestingTB) {
	tb.Helper()

	cfg := DefaultTestDBConfig()
	db, err := sql.Open("pgx", cfg.DSN())
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = db.PingContext(ctx)
		cancel()
		_ = db.Close()
	}
	if err == nil {
		return
	}

	if requireDB() {
		tb.Fatalf("test database required but unreachable at %s:%d: %v", cfg.Host, cfg.Port, err)
	}
	tb.Skipf("test database unreachable at %s:%d: %v", cfg.Host, cfg.Port, err)
}

// SetupTestDB opens the test database, applies migrations, and clears any
// rows left behind by earlier runs.
func SetupTestDB(tb TestingTB) *sql.DB {
	tb.Helper()

	cfg := DefaultTestDBConfig()
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		tb.Fatalf("ping test database: %v", pingErr)
	}
	if migErr := migrate.Run(ctx, db); migErr != nil {
		tb.Fatalf("run migrations: %v", migErr)
	}

	CleanupTestDB(tb, db)
	return db
}

// CleanupTestDB deletes all rows from the application tables. Children go
// first so foreign keys never block the sweep.
func CleanupTestDB(tb TestingTB, db *sql.DB) {
	tb.Helper()

	tables := []string{
		"result_criteria",
		"results",
		"jobs",
		"batches",
		"secrets",
		"queue_messages",
		"queue_archive",
	}
	for _, table := range tables {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			tb.Fatalf("clean table %s: %v", table, err)
		}
	}
}

// TeardownTestDB cleans up and closes the connection.
func TeardownTestDB(tb TestingTB, db *sql.DB) {
	tb.Helper()

	CleanupTestDB(tb, db)
	if err := db.Close(); err != nil {
		tb.Logf("close test database: %v", err)
	}
}

// WithTestDB runs fn against a fresh test database and tears it down after.
func WithTestDB(tb TestingTB, fn func(db *sql.DB)) {
	tb.Helper()

	db := SetupTestDB(tb)
	defer TeardownTestDB(tb, db)
	fn(db)
}

func requireDB() bool {
	return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
