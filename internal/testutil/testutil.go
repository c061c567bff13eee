// Package testutil opens throwaway databases for tests.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"piiquante/internal/config"
	"piiquante/internal/db"
	"testing"

	"gorm.io/gorm"
)

// SetupTestDB opens a migrated sqlite database in a temp dir. A single
// connection keeps concurrent tests from tripping over sqlite locks.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := db.Open(config.DatabaseConfig{
		Type:         "sqlite",
		URL:          filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	return conn
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
