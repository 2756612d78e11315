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

// IncrementToken increments the token at (taskID, triggerDatetime) by delta,
// creating it (count=delta, state=waiting) if absent — the token processor's
// Increment operation (spec.md §4.4), and invariant #1 ("count > 0 implies a
// token row exists"). Returns the resulting count and the task's threshold so
// the caller can decide whether to emit Execute.
func (s *Store) IncrementToken(ctx context.Context, tx *sql.Tx, taskID uuid.UUID, triggerDatetime time.Time, delta int) (count, threshold int, err error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO tokens (task_id, trigger_datetime, count, state)
		VALUES ($1, $2, $3, 'waiting')
		ON CONFLICT (task_id, trigger_datetime)
		DO UPDATE SET count = tokens.count + $3
		RETURNING count`, taskID, triggerDatetime, delta)

	if err := row.Scan(&count); err != nil {
		return 0, 0, fmt.Errorf("store: increment token: %w", database.ClassifyError(err))
	}

	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return 0, 0, err
	}
	threshold = task.Threshold
	if threshold < 1 {
		threshold = 1
	}
	return count, threshold, nil
}

// GetToken looks up a token by its primary key.
func (s *Store) GetToken(ctx context.Context, taskID uuid.UUID, triggerDatetime time.Time) (*model.Token, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT task_id, trigger_datetime, count, state FROM tokens WHERE task_id = $1 AND trigger_datetime = $2`,
		taskID, triggerDatetime)
	return scanToken(row)
}

// ListTokensAboveThreshold returns every token whose count is at least its
// task's threshold — the token processor's boot-time recovery query
// (spec.md §4.4 "Boot").
func (s *Store) ListTokensAboveThreshold(ctx context.Context) ([]model.Token, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT tokens.task_id, tokens.trigger_datetime, tokens.count, tokens.state
		FROM tokens
		JOIN tasks ON tasks.id = tokens.task_id
		WHERE tokens.count >= GREATEST(tasks.threshold, 1)`)
	if err != nil {
		return nil, fmt.Errorf("store: list tokens above threshold: %w", database.ClassifyError(err))
	}
	defer rows.Close()

	var out []model.Token
	for rows.Next() {
		var t model.Token
		var state string
		if err := rows.Scan(&t.TaskID, &t.TriggerDatetime, &t.Count, &state); err != nil {
			return nil, fmt.Errorf("store: scan token: %w", err)
		}
		if t.State, err = model.ParseTokenState(state); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DispatchToken transitions a token to active and subtracts threshold from
// its count (spec.md §4.5 step 2) — carrying the remainder forward so a
// fan-in task firing k-way in one burst can satisfy itself k times.
func (s *Store) DispatchToken(ctx context.Context, tx *sql.Tx, taskID uuid.UUID, triggerDatetime time.Time, threshold int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE tokens SET state = 'active', count = count - $3
		WHERE task_id = $1 AND trigger_datetime = $2`, taskID, triggerDatetime, threshold)
	if err != nil {
		return fmt.Errorf("store: dispatch token: %w", database.ClassifyError(err))
	}
	return nil
}

// SetTokenState transitions a token's state, honoring the allow-list in
// model.TokenState.CanTransitionTo; a disallowed transition is silently
// skipped (duplicate or stale delivery), not an error — see progress.go's
// caller for why that is safe.
func (s *Store) SetTokenState(ctx context.Context, tx *sql.Tx, taskID uuid.UUID, triggerDatetime time.Time, next model.TokenState) error {
	row := tx.QueryRowContext(ctx,
		`SELECT state FROM tokens WHERE task_id = $1 AND trigger_datetime = $2 FOR UPDATE`,
		taskID, triggerDatetime)
	var stateStr string
	if err := row.Scan(&stateStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("store: set token state: read current: %w", database.ClassifyError(err))
	}
	current, err := model.ParseTokenState(stateStr)
	if err != nil {
		return err
	}
	if !current.CanTransitionTo(next) {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tokens SET state = $3 WHERE task_id = $1 AND trigger_datetime = $2`,
		taskID, triggerDatetime, next.String())
	if err != nil {
		return fmt.Errorf("store: set token state: %w", database.ClassifyError(err))
	}
	return nil
}

// ClearToken performs the API's direct clear: count=0, state=waiting,
// bypassing the transition allow-list entirely (spec.md §4.4 "Clear").
func (s *Store) ClearToken(ctx context.Context, taskID uuid.UUID, triggerDatetime time.Time) error {
	_, err := s.db.DB().ExecContext(ctx,
		`UPDATE tokens SET count = 0, state = 'waiting' WHERE task_id = $1 AND trigger_datetime = $2`,
		taskID, triggerDatetime)
	if err != nil {
		return fmt.Errorf("store: clear token: %w", database.ClassifyError(err))
	}
	return nil
}

func scanToken(row *sql.Row) (*model.Token, error) {
	var t model.Token
	var state string
	if err := row.Scan(&t.TaskID, &t.TriggerDatetime, &t.Count, &state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan token: %w", database.ClassifyError(err))
	}
	var err error
	if t.State, err = model.ParseTokenState(state); err != nil {
		return nil, err
	}
	return &t, nil
}
