// Package store is the persistent store component (spec.md §4.1): it owns
// all SQL access to the scheduling kernel's tables and exposes transactional
// operations to the rest of internal/*. Integrity errors (unique/FK/check
// violations) are classified via pkg/database.ClassifyError so callers can
// tell a logic bug from a transient transport failure.
package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/waterwheel-project/waterwheel/pkg/database"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// Store wraps the shared database pool with entity-scoped query methods.
// One Store is created per process and shared (by reference, never copied)
// across every core loop — it carries no mutable state of its own beyond
// the pool.
type Store struct {
	db *database.Database
}

// New returns a Store backed by db.
func New(db *database.Database) *Store {
	return &Store{db: db}
}

// WithTx runs fn inside a transaction, giving the core loops (trigger,
// token, dispatch, progress) a single entry point for the multi-statement
// operations spec.md §4 requires to be atomic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.db.WithTx(ctx, fn)
}
