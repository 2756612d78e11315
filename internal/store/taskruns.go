package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/model"
	"github.com/waterwheel-project/waterwheel/pkg/database"
)

// InsertTaskRun creates a new TaskRun row (spec.md §4.5 step 3). The attempt
// number is the caller's responsibility (0 for a fresh dispatch, N+1 for a
// retry or requeue).
func (s *Store) InsertTaskRun(ctx context.Context, tx *sql.Tx, run *model.TaskRun) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO task_runs (id, task_id, trigger_datetime, attempt, queued_at, state, priority, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $5)`,
		run.ID, run.TaskID, run.TriggerDatetime, run.Attempt, run.QueuedAt, run.State.String(), int(run.Priority))
	if err != nil {
		return fmt.Errorf("store: insert task run: %w", database.ClassifyError(err))
	}
	return nil
}

// GetTaskRun looks up a task run by id.
func (s *Store) GetTaskRun(ctx context.Context, id uuid.UUID) (*model.TaskRun, error) {
	row := s.db.DB().QueryRowContext(ctx, taskRunSelectSQL+` WHERE id = $1`, id)
	return scanTaskRun(row)
}

// UpdateTaskRunProgress applies a progress message's effect on its TaskRun:
// state, started_at/finished_at, worker_id, and bumps updated_at — the
// requeue watchdog's staleness clock (spec.md §4.6 step 4).
func (s *Store) UpdateTaskRunProgress(ctx context.Context, tx *sql.Tx, id uuid.UUID, state model.TaskRunState, startedAt, finishedAt *time.Time, workerID *uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE task_runs
		SET state = $2, started_at = COALESCE($3, started_at), finished_at = $4,
		    worker_id = COALESCE($5, worker_id), updated_at = now()
		WHERE id = $1`, id, state.String(), startedAt, finishedAt, workerID)
	if err != nil {
		return fmt.Errorf("store: update task run progress: %w", database.ClassifyError(err))
	}
	return nil
}

// StalledRun is one row returned by the requeue watchdog's sweep.
type StalledRun struct {
	TaskID          uuid.UUID
	TriggerDatetime time.Time
	Priority        model.Priority
}

// RequeueStalledRuns transitions every run stuck in 'running' with
// updated_at older than staleAfter to 'error', returning the rows so the
// caller can re-dispatch them (spec.md §4.8).
func (s *Store) RequeueStalledRuns(ctx context.Context, staleAfter time.Duration) ([]StalledRun, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		UPDATE task_runs
		SET state = 'error', finished_at = now()
		WHERE state = 'running' AND updated_at < now() - $1::interval
		RETURNING task_id, trigger_datetime, priority`, fmt.Sprintf("%d seconds", int(staleAfter.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("store: requeue stalled runs: %w", database.ClassifyError(err))
	}
	defer rows.Close()

	var out []StalledRun
	for rows.Next() {
		var r StalledRun
		var priority int
		if err := rows.Scan(&r.TaskID, &r.TriggerDatetime, &priority); err != nil {
			return nil, fmt.Errorf("store: scan stalled run: %w", err)
		}
		r.Priority = model.Priority(priority)
		out = append(out, r)
	}
	return out, rows.Err()
}

// NextAttempt returns the attempt number the next TaskRun at
// (taskID, triggerDatetime) should carry: one past the current max.
func (s *Store) NextAttempt(ctx context.Context, taskID uuid.UUID, triggerDatetime time.Time) (int, error) {
	var maxAttempt sql.NullInt64
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT MAX(attempt) FROM task_runs WHERE task_id = $1 AND trigger_datetime = $2`,
		taskID, triggerDatetime)
	if err := row.Scan(&maxAttempt); err != nil {
		return 0, fmt.Errorf("store: next attempt: %w", database.ClassifyError(err))
	}
	if !maxAttempt.Valid {
		return 0, nil
	}
	return int(maxAttempt.Int64) + 1, nil
}

const taskRunSelectSQL = `
	SELECT id, task_id, trigger_datetime, attempt, queued_at, started_at, finished_at,
	       worker_id, state, priority, updated_at
	FROM task_runs`

func scanTaskRun(row *sql.Row) (*model.TaskRun, error) {
	var r model.TaskRun
	var state string
	var priority int
	if err := row.Scan(&r.ID, &r.TaskID, &r.TriggerDatetime, &r.Attempt, &r.QueuedAt,
		&r.StartedAt, &r.FinishedAt, &r.WorkerID, &state, &priority, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan task run: %w", database.ClassifyError(err))
	}
	var err error
	if r.State, err = model.ParseTaskRunState(state); err != nil {
		return nil, err
	}
	r.Priority = model.Priority(priority)
	return &r, nil
}
