package postgres_test

import (
	"testing"

	"spreadwatch/pkg/storage/postgres"
)

// go test -v --run TestCreateDatabase
func TestCreateDatabase(t *testing.T) {
	cfg := testConfig(t)

	if err := postgres.CreateDatabase(cfg, "dev"); err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	// second call finds the existing database
	if err := postgres.CreateDatabase(cfg, "dev"); err != nil {
		t.Fatalf("create database is not idempotent: %v", err)
	}
}
