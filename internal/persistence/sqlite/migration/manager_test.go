package migration

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
)

func newTestDB(t *testing.T) *SQLiteExecutor {
	t.Helper()

	db, err := OpenDatabase(InMemoryTestSQLiteConfig())
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteExecutor(db)
}

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/001_create_items.sql": {Data: []byte("-- Description: create items\nCREATE TABLE items (id TEXT PRIMARY KEY);\n")},
		"migrations/002_add_name.sql":     {Data: []byte("ALTER TABLE items ADD COLUMN name TEXT;\nCREATE INDEX idx_items_name ON items(name);")},
		"migrations/README.md":            {Data: []byte("ignored")},
	}
}

func TestManager_Run(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	executor := newTestDB(t)
	manager := NewManager(NewScanner(testFS(), "migrations"), executor, nil)

	applied, err := manager.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 migrations applied, got %d", applied)
	}

	status, err := manager.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.CurrentVersion != "002" || len(status.Pending) != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}

	again, err := manager.Run(ctx)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected second run to be a no-op, got %d", again)
	}
}

func TestManager_DetectsEditedMigration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	executor := newTestDB(t)
	files := testFS()

	if _, err := NewManager(NewScanner(files, "migrations"), executor, nil).Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	files["migrations/001_create_items.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY);")}
	_, err := NewManager(NewScanner(files, "migrations"), executor, nil).Run(ctx)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestManager_RollsBackFailedMigration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	executor := newTestDB(t)
	files := fstest.MapFS{
		"migrations/001_broken.sql": {Data: []byte("CREATE TABLE ok (id TEXT);\nCREATE TABLE ok (id TEXT);")},
	}

	_, err := NewManager(NewScanner(files, "migrations"), executor, nil).Run(ctx)
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}

	applied, err := executor.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations failed: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no applied migrations, got %+v", applied)
	}
}

func TestScanner(t *testing.T) {
	t.Parallel()

	t.Run("orders by version and reads descriptions", func(t *testing.T) {
		t.Parallel()

		migrations, err := NewScanner(testFS(), "migrations").ScanMigrations()
		if err != nil {
			t.Fatalf("ScanMigrations failed: %v", err)
		}
		if len(migrations) != 2 {
			t.Fatalf("expected 2 migrations, got %d", len(migrations))
		}
		if migrations[0].Description != "create items" || migrations[1].Description != "add name" {
			t.Fatalf("unexpected descriptions: %q, %q", migrations[0].Description, migrations[1].Description)
		}
		if migrations[0].Checksum == "" {
			t.Fatalf("expected checksum to be populated")
		}
	})

	t.Run("rejects duplicate versions", func(t *testing.T) {
		t.Parallel()

		files := testFS()
		files["migrations/002_other.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}
		if _, err := NewScanner(files, "migrations").ScanMigrations(); !errors.Is(err, ErrDuplicateVersion) {
			t.Fatalf("expected ErrDuplicateVersion, got %v", err)
		}
	})

	t.Run("rejects malformed names", func(t *testing.T) {
		t.Parallel()

		files := fstest.MapFS{"migrations/create.sql": {Data: []byte("SELECT 1;")}}
		if _, err := NewScanner(files, "migrations").ScanMigrations(); !errors.Is(err, ErrInvalidMigrationFile) {
			t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
		}
	})

	t.Run("rejects comment-only files", func(t *testing.T) {
		t.Parallel()

		files := fstest.MapFS{"migrations/001_empty.sql": {Data: []byte("-- nothing here\n")}}
		if _, err := NewScanner(files, "migrations").ScanMigrations(); !errors.Is(err, ErrInvalidMigrationFile) {
			t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
		}
	})
}

func TestValidateSequence_DetectsGaps(t *testing.T) {
	t.Parallel()

	available := []Migration{{Version: "001"}, {Version: "003"}}
	if err := validateSequence(available, nil); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestSQLiteConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := DefaultSQLiteConfig("state.db").Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}
	bad := DefaultSQLiteConfig("state.db")
	bad.JournalMode = "SIDEWAYS"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected invalid journal mode to fail")
	}
	if err := (SQLiteConfig{}).Validate(); err == nil {
		t.Fatalf("expected empty DSN to fail")
	}
}
