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

// GetTrigger looks up a trigger by id.
func (s *Store) GetTrigger(ctx context.Context, id uuid.UUID) (*model.Trigger, error) {
	row := s.db.DB().QueryRowContext(ctx, triggerSelectSQL+` WHERE id = $1`, id)
	return scanTrigger(row)
}

// ListNonPausedTriggers returns every trigger belonging to a non-paused job,
// the set the trigger engine loads at boot (spec.md §4.3).
func (s *Store) ListNonPausedTriggers(ctx context.Context) ([]model.Trigger, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		triggerSelectSQL+`
		 JOIN jobs ON jobs.id = triggers.job_id
		 WHERE jobs.paused = false`)
	if err != nil {
		return nil, fmt.Errorf("store: list triggers: %w", database.ClassifyError(err))
	}
	defer rows.Close()
	return scanTriggers(rows)
}

// ListTriggersByIDs returns the triggers matching ids, used by the cluster
// module's TriggerChange Add handling.
func (s *Store) ListTriggersByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Trigger, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.DB().QueryContext(ctx, triggerSelectSQL+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("store: list triggers by ids: %w", database.ClassifyError(err))
	}
	defer rows.Close()
	return scanTriggers(rows)
}

// ListAllTriggerIDs returns every trigger id, used by the cluster module to
// recompute ownership on a membership change.
func (s *Store) ListAllTriggerIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT id FROM triggers`)
	if err != nil {
		return nil, fmt.Errorf("store: list trigger ids: %w", database.ClassifyError(err))
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan trigger id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateTriggerFired sets earliest_fired/latest_fired to the min/max of
// their current values and instant, inside an existing transaction
// (spec.md §4.3 activation step).
func (s *Store) UpdateTriggerFired(ctx context.Context, tx *sql.Tx, triggerID uuid.UUID, instant time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE triggers
		SET earliest_fired = LEAST(COALESCE(earliest_fired, $2), $2),
		    latest_fired   = GREATEST(COALESCE(latest_fired, $2), $2)
		WHERE id = $1`, triggerID, instant)
	if err != nil {
		return fmt.Errorf("store: update trigger fired: %w", database.ClassifyError(err))
	}
	return nil
}

const triggerSelectSQL = `
	SELECT id, job_id, name, start, "end", earliest_fired, latest_fired,
	       period_secs, cron, offset_secs, catchup
	FROM triggers`

func scanTrigger(row *sql.Row) (*model.Trigger, error) {
	var t model.Trigger
	var catchup string
	if err := row.Scan(&t.ID, &t.JobID, &t.Name, &t.Start, &t.End, &t.EarliestFired,
		&t.LatestFired, &t.PeriodSecs, &t.Cron, &t.OffsetSecs, &catchup); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan trigger: %w", database.ClassifyError(err))
	}
	t.Catchup = parseCatchup(catchup)
	return &t, nil
}

func scanTriggers(rows *sql.Rows) ([]model.Trigger, error) {
	var out []model.Trigger
	for rows.Next() {
		var t model.Trigger
		var catchup string
		if err := rows.Scan(&t.ID, &t.JobID, &t.Name, &t.Start, &t.End, &t.EarliestFired,
			&t.LatestFired, &t.PeriodSecs, &t.Cron, &t.OffsetSecs, &catchup); err != nil {
			return nil, fmt.Errorf("store: scan trigger: %w", err)
		}
		t.Catchup = parseCatchup(catchup)
		out = append(out, t)
	}
	return out, rows.Err()
}

func parseCatchup(s string) model.CatchupPolicy {
	if s == "all" {
		return model.CatchupAll
	}
	return model.CatchupNone
}
