package db

import (
	"path/filepath"
	"testing"
)

// NewTestDB opens a migrated database in a per-test temporary directory.
func NewTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "telemetry_test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
