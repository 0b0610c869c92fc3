package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nutrition-bot/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testPostgresConfig() *config.PostgresConfig {
	cfg := &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "nutrition_bot_test",
		User:           "nutrition",
		Password:       "nutrition_dev_password",
		SSLMode:        "disable",
		MaxConnections: 5,
	}
	if host := os.Getenv("TEST_POSTGRES_HOST"); host != "" {
		cfg.Host = host
	}
	return cfg
}

// setupTestDB connects to the integration database, migrates it and clears
// all rows. The test is skipped when Postgres is unavailable.
func setupTestDB(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.URL()); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	ctx := testContext(t)
	if _, err := db.Pool().Exec(ctx, `TRUNCATE payments, analysis_events, users RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}
