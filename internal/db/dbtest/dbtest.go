// Package dbtest opens throwaway SQLite databases with all migrations applied.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"

	"studyplan/backend/internal/db"
)

func Open(t testing.TB) *sql.DB {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	if err := db.RunMigrations(database, MigrationsDir()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

func MigrationsDir() string {
	_, currentFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(currentFile), "..", "..", "..", "migrations")
}
