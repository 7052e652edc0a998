package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/worship-scheduler/internal/persistence/sqlite"
)

// NewSQLiteStateStore opens a migrated state store in a temporary directory
// and closes it when the test finishes.
func NewSQLiteStateStore(tb testing.TB) *sqlite.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "scheduler.db")
	store, err := sqlite.Open(path)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	return store
}
