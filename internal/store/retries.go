package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/model"
	"github.com/waterwheel-project/waterwheel/pkg/database"
)

// InsertRetry records a pending re-dispatch of taskRunID at retryAt
// (spec.md §4.6 step 5).
func (s *Store) InsertRetry(ctx context.Context, tx *sql.Tx, taskRunID uuid.UUID, retryAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO retries (task_run_id, retry_at) VALUES ($1, $2)`, taskRunID, retryAt)
	if err != nil {
		return fmt.Errorf("store: insert retry: %w", database.ClassifyError(err))
	}
	return nil
}

// ListAllRetries returns every pending retry, the retry scheduler's boot
// restore (spec.md §4.7).
func (s *Store) ListAllRetries(ctx context.Context) ([]model.Retry, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT task_run_id, retry_at FROM retries`)
	if err != nil {
		return nil, fmt.Errorf("store: list retries: %w", database.ClassifyError(err))
	}
	defer rows.Close()

	var out []model.Retry
	for rows.Next() {
		var r model.Retry
		if err := rows.Scan(&r.TaskRunID, &r.RetryAt); err != nil {
			return nil, fmt.Errorf("store: scan retry: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRetry removes a retry row once it has been consumed.
func (s *Store) DeleteRetry(ctx context.Context, taskRunID uuid.UUID) error {
	_, err := s.db.DB().ExecContext(ctx, `DELETE FROM retries WHERE task_run_id = $1`, taskRunID)
	if err != nil {
		return fmt.Errorf("store: delete retry: %w", database.ClassifyError(err))
	}
	return nil
}
