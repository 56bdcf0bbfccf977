// Package sqlite provides a SQLite-backed persistent store. Transactions run
// against the in-memory store; the rows they create are written to the
// relational schema before the new state becomes visible.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mitostat/internal/infra/persistence/memory"
	"mitostat/internal/infra/persistence/relational"
	"mitostat/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "mitostat.db"

// Store persists state to SQLite while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path, applies the schema, and
// hydrates the in-memory store from any existing rows.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps the foreign_keys pragma in effect for every statement
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := relational.ApplyDDL(ctx, db, relational.SQLite.DDL()); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := relational.Load(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db, path: path}, nil
}

// RunInTransaction applies fn in memory and writes the created rows to SQLite
// in one database transaction. State only advances when both succeed. A
// constraint conflict with another writer reloads the database and retries once.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	return relational.RetryOnConflict(ctx, s.db, s.Store, func() (domain.Result, error) {
		return s.Store.RunInTransactionWithHook(ctx, fn, s.write)
	})
}

func (s *Store) write(ctx context.Context, changes []domain.Change) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := relational.WriteChanges(ctx, tx, relational.SQLite, changes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
