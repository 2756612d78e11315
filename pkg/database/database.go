// Package database wraps a *sql.DB pool over the pgx stdlib driver, the
// connection every other package transacts against.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres SQLSTATE codes the store layer classifies as IntegrityError.
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateCheckViolation      = "23514"
)

// Database wraps a connection pool with the WithTx helper every write path
// in internal/store uses.
type Database struct {
	db *sql.DB
}

// NewPool opens a connection pool against dbURL and verifies connectivity.
func NewPool(ctx context.Context, dbURL string) (*Database, error) {
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	return &Database{db: db}, nil
}

// DB returns the underlying *sql.DB for packages that need direct access
// (migrator, health checks).
func (d *Database) DB() *sql.DB {
	return d.db
}

// Ping checks pool health for the /health endpoint.
func (d *Database) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database: ping: %w", err)
	}
	return nil
}

// Close closes the pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. All multi-statement state transitions in
// internal/store go through this, per the persistent store's transactional
// requirement.
func (d *Database) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(tx)
}

// IntegrityError distinguishes unique/FK/check constraint violations from
// ordinary transport errors, per the error handling design's requirement
// that the two be distinguishable to the caller.
type IntegrityError struct {
	Code string
	err  error
}

func (e *IntegrityError) Error() string { return fmt.Sprintf("database: integrity violation (%s): %v", e.Code, e.err) }
func (e *IntegrityError) Unwrap() error { return e.err }

// ClassifyError wraps err as an *IntegrityError when it is a Postgres
// unique/FK/check violation, otherwise returns it unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation, sqlStateForeignKeyViolation, sqlStateCheckViolation:
			return &IntegrityError{Code: pgErr.Code, err: err}
		}
	}
	return err
}

// IsIntegrityError reports whether err (or a wrapped cause) is an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// ErrNotFound is returned by store lookups that find no matching row.
var ErrNotFound = sql.ErrNoRows
