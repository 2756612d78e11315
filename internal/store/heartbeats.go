package store

import (
	"context"
	"fmt"
	"time"

	"github.com/waterwheel-project/waterwheel/internal/model"
	"github.com/waterwheel-project/waterwheel/pkg/database"
)

// UpsertWorkerHeartbeat records a worker's liveness row (spec.md §3
// "Heartbeat rows are upserted on a fixed interval").
func (s *Store) UpsertWorkerHeartbeat(ctx context.Context, hb *model.WorkerHeartbeat) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO worker_heartbeats (id, addr, last_seen, running_tasks, total_tasks, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			addr = $2, last_seen = $3, running_tasks = $4, total_tasks = $5, version = $6`,
		hb.ID, hb.Addr, hb.LastSeen, hb.RunningTasks, hb.TotalTasks, hb.Version)
	if err != nil {
		return fmt.Errorf("store: upsert worker heartbeat: %w", database.ClassifyError(err))
	}
	return nil
}

// UpsertSchedulerHeartbeat records a scheduler cluster member's liveness row.
func (s *Store) UpsertSchedulerHeartbeat(ctx context.Context, hb *model.SchedulerHeartbeat) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO scheduler_heartbeats (id, addr, last_seen)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET addr = $2, last_seen = $3`,
		hb.ID, hb.Addr, hb.LastSeen)
	if err != nil {
		return fmt.Errorf("store: upsert scheduler heartbeat: %w", database.ClassifyError(err))
	}
	return nil
}

// ListAliveSchedulers returns scheduler heartbeat rows seen within
// staleAfter — readers treat anything older as "gone" (spec.md §3).
func (s *Store) ListAliveSchedulers(ctx context.Context, staleAfter time.Duration) ([]model.SchedulerHeartbeat, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, addr, last_seen FROM scheduler_heartbeats
		WHERE last_seen > now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(staleAfter.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("store: list alive schedulers: %w", database.ClassifyError(err))
	}
	defer rows.Close()

	var out []model.SchedulerHeartbeat
	for rows.Next() {
		var hb model.SchedulerHeartbeat
		if err := rows.Scan(&hb.ID, &hb.Addr, &hb.LastSeen); err != nil {
			return nil, fmt.Errorf("store: scan scheduler heartbeat: %w", err)
		}
		out = append(out, hb)
	}
	return out, rows.Err()
}
