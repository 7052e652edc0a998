package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/example/worship-scheduler/internal/persistence"
	"github.com/example/worship-scheduler/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store is a StateStore backed by a SQLite database.
type Store struct {
	pool   *ConnectionPool
	retry  RetryConfig
	logger *slog.Logger
	now    func() time.Time
}

// Open returns a Store for the database at dsn.
func Open(dsn string) (*Store, error) {
	return OpenWithConfig(migration.DefaultSQLiteConfig(dsn), nil)
}

// OpenWithConfig returns a Store using config. A nil logger falls back to slog.Default().
func OpenWithConfig(config migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return &Store{
		pool:   pool,
		retry:  DefaultRetryConfig(),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	manager := migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewSQLiteExecutor(s.pool.DB()),
		s.logger,
	)
	if _, err := manager.Run(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Load returns the document stored under namespace.
func (s *Store) Load(ctx context.Context, namespace string) (persistence.Document, error) {
	const query = `SELECT data, digest, updated_at FROM state_documents WHERE namespace = ?`

	var (
		doc       = persistence.Document{Namespace: namespace}
		updatedAt string
	)
	err := s.pool.DB().QueryRowContext(ctx, query, namespace).Scan(&doc.Data, &doc.Digest, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Document{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Document{}, fmt.Errorf("sqlite: load %s: %w", namespace, MapError(err))
	}
	if parsed, parseErr := time.Parse(time.RFC3339Nano, updatedAt); parseErr == nil {
		doc.UpdatedAt = parsed
	}
	return doc, nil
}

// Save upserts the document unless its digest is unchanged.
func (s *Store) Save(ctx context.Context, namespace string, data []byte) (bool, error) {
	if !persistence.ValidNamespace(namespace) {
		return false, persistence.ErrInvalidNamespace
	}
	digest := persistence.Digest(data)

	var written bool
	err := WithRetry(ctx, s.retry, func() error {
		written = false
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var existing string
			err := tx.QueryRowContext(ctx, `SELECT digest FROM state_documents WHERE namespace = ?`, namespace).Scan(&existing)
			switch {
			case err == nil && existing == digest:
				return nil
			case err != nil && !errors.Is(err, sql.ErrNoRows):
				return err
			}

			const upsert = `
				INSERT INTO state_documents (namespace, data, digest, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(namespace) DO UPDATE SET
					data = excluded.data,
					digest = excluded.digest,
					updated_at = excluded.updated_at`
			if _, err := tx.ExecContext(ctx, upsert, namespace, data, digest, s.now().UTC().Format(time.RFC3339Nano)); err != nil {
				return err
			}
			written = true
			return nil
		})
	})
	if err != nil {
		return false, fmt.Errorf("sqlite: save %s: %w", namespace, err)
	}
	return written, nil
}

// Delete removes the document stored under namespace.
func (s *Store) Delete(ctx context.Context, namespace string) error {
	err := WithRetry(ctx, s.retry, func() error {
		_, err := s.pool.DB().ExecContext(ctx, `DELETE FROM state_documents WHERE namespace = ?`, namespace)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", namespace, err)
	}
	return nil
}

// List returns the namespaces beginning with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	const query = `
		SELECT namespace FROM state_documents
		WHERE substr(namespace, 1, ?) = ?
		ORDER BY namespace ASC`

	rows, err := s.pool.DB().QueryContext(ctx, query, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list %s: %w", prefix, MapError(err))
	}
	defer rows.Close()

	namespaces := make([]string, 0)
	for rows.Next() {
		var namespace string
		if err := rows.Scan(&namespace); err != nil {
			return nil, fmt.Errorf("sqlite: list %s: %w", prefix, err)
		}
		namespaces = append(namespaces, namespace)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list %s: %w", prefix, err)
	}
	return namespaces, nil
}

var _ persistence.StateStore = (*Store)(nil)
