package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"spreadwatch/config"
	"spreadwatch/pkg/storage/postgres"
)

// testConfig returns a local database config, or skips when no server is expected.
// Set SPREADWATCH_TEST_POSTGRES=1 to run against localhost:5432.
func testConfig(t *testing.T) config.PostgresConfig {
	t.Helper()
	if os.Getenv("SPREADWATCH_TEST_POSTGRES") == "" {
		t.Skip("SPREADWATCH_TEST_POSTGRES not set")
	}
	return config.PostgresConfig{
		Host:     envOr("PGHOST", "localhost"),
		Port:     5432,
		User:     envOr("PGUSER", "postgres"),
		Password: os.Getenv("PGPASSWORD"),
		DBName:   "spreadwatch_test",
		SSLMode:  "disable",
		TimeZone: "UTC",

		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// go test -v --run ^TestPostgresInvalidDSN$
func TestPostgresInvalidDSN(t *testing.T) {
	invalidDSN := "host=invalid.invalid port=5432 user=fail password=fail dbname=fail sslmode=disable connect_timeout=2"

	_, err := postgres.NewClient(invalidDSN)
	if err == nil {
		t.Fatal("expected error for invalid DSN, got nil")
	}
}

// go test -v --run ^TestPostgresClientWithConfig$
func TestPostgresClientWithConfig(t *testing.T) {
	cfg := testConfig(t)

	client, err := postgres.InitializeAndMigrateSignalRecord(cfg, "dev", true)
	if err != nil {
		t.Fatalf("failed to initialize Postgres client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if !client.IsHealthy(ctx) {
		t.Fatal("expected healthy DB connection")
	}
}
