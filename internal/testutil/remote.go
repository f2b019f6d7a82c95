package testutil

import (
	"testing"

	"storyfeed/internal/remote"
	"storyfeed/internal/remote/migrations"
)

// NewTestRemote creates an empty in-process remote.
func NewTestRemote() *remote.MemoryRemote {
	return remote.NewMemoryRemote()
}

// NewTestSQLRemote creates an in-memory SQLite remote with migrations applied.
// The database is automatically closed when the test completes.
func NewTestSQLRemote(t *testing.T) *remote.SQLRemote {
	t.Helper()

	db, err := remote.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	r := remote.NewSQLRemote(db, migrations.SQLite)
	if err := r.MigrateUp(); err != nil {
		db.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() {
		r.Close()
	})

	return r
}
