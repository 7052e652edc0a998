// Package migration applies versioned SQL migrations to SQLite databases.
//
// Migration files follow the naming convention {version}_{description}.sql
// (e.g. "001_state_documents.sql") and are read from an fs.FS, usually an
// embedded directory. Applied versions are tracked in the schema_migrations
// table together with the checksum of the file that was executed, so an
// edited migration is reported instead of silently skipped.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(files, "migrations"), migration.NewSQLiteExecutor(db), logger)
//	if _, err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
