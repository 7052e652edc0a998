package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/worship-scheduler/internal/persistence"
	"github.com/example/worship-scheduler/internal/persistence/sqlite"
	"github.com/example/worship-scheduler/internal/testfixtures"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	return testfixtures.NewSQLiteStateStore(t)
}

func TestStore(t *testing.T) {
	t.Parallel()

	testfixtures.RunStateStoreContract(t, func(t *testing.T) persistence.StateStore {
		return newTestStore(t)
	})
}

func TestStore_MigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("expected second migrate to succeed, got %v", err)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scheduler.db")

	first, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := first.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if _, err := first.Save(ctx, "scheduling:team-1", []byte(`{"isConfirmed":true}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()
	if err := second.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	doc, err := second.Load(ctx, "scheduling:team-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(doc.Data) != `{"isConfirmed":true}` {
		t.Fatalf("unexpected data %s", doc.Data)
	}
	if doc.UpdatedAt.IsZero() {
		t.Fatalf("expected updated_at to be recorded")
	}
}
