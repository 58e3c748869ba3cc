package storage

import (
	"testing"

	"firecost/internal/config"
)

func TestOpenAndMigrateSQLiteMemory(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// migrations are idempotent
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM uploaded_files`).Scan(&n); err != nil {
		t.Fatalf("query uploaded_files: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"postgres": {DSN: "x"}}}
	if _, err := Open("postgres", cfg); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := Open("sqlite3", &config.Config{}); err == nil {
		t.Fatalf("expected missing config error")
	}
}
