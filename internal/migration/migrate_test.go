package migration

import (
	"database/sql"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newMigrationDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	return db
}

func TestRunMigrationsCreatesSchema(t *testing.T) {
	db := newMigrationDB(t)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	for _, table := range []string{
		"provider_types", "provider", "provider_creds", "connect_parkinglot",
		"provider_connect", "sessions", "session_log", "task", "violation",
	} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1`, table,
		).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := newMigrationDB(t)

	for i := 0; i < 2; i++ {
		if err := RunMigrations(db); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}

	var applied int
	err := db.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&applied)
	if err != nil {
		t.Fatalf("count applied: %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}

	var name string
	err = db.QueryRow(`SELECT name FROM schema_migrations`).Scan(&name)
	if err != nil {
		t.Fatalf("read applied name: %v", err)
	}
	if name != "0001_init.up.sql" {
		t.Fatalf("applied name = %q", name)
	}
}
