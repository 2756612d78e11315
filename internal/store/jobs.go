package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/model"
	"github.com/waterwheel-project/waterwheel/pkg/database"
)

// GetJob looks up a job by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT id, project_id, name, paused, raw_definition FROM jobs WHERE id = $1`, id)

	var j model.Job
	if err := row.Scan(&j.ID, &j.ProjectID, &j.Name, &j.Paused, &j.RawDefinition); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get job: %w", database.ClassifyError(err))
	}
	return &j, nil
}

// GetTask looks up a task by id.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT id, job_id, name, threshold, retry_max_attempts, retry_delay_secs,
		        timeout_secs, image, args, env
		 FROM tasks WHERE id = $1`, id)

	var t model.Task
	if err := row.Scan(&t.ID, &t.JobID, &t.Name, &t.Threshold, &t.RetryMaxAttempts,
		&t.RetryDelaySecs, &t.TimeoutSecs, &t.Image, &t.Args, &t.Env); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get task: %w", database.ClassifyError(err))
	}
	return &t, nil
}

// ListTaskEdgesByParent returns the TaskEdges whose parent is parentTaskID
// and whose kind matches. Used by the progress processor (spec.md §4.6).
func (s *Store) ListTaskEdgesByParent(ctx context.Context, parentTaskID uuid.UUID, kind model.EdgeKind) ([]model.TaskEdge, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT parent_task_id, child_task_id, kind, edge_offset_secs
		 FROM task_edges WHERE parent_task_id = $1 AND kind = $2`, parentTaskID, kind.String())
	if err != nil {
		return nil, fmt.Errorf("store: list task edges: %w", database.ClassifyError(err))
	}
	defer rows.Close()

	var edges []model.TaskEdge
	for rows.Next() {
		var e model.TaskEdge
		var kindStr string
		if err := rows.Scan(&e.ParentTaskID, &e.ChildTaskID, &kindStr, &e.EdgeOffsetSecs); err != nil {
			return nil, fmt.Errorf("store: scan task edge: %w", err)
		}
		e.Kind, err = model.ParseEdgeKind(kindStr)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ListTriggerEdges returns every TriggerEdge out of triggerID.
func (s *Store) ListTriggerEdges(ctx context.Context, triggerID uuid.UUID) ([]model.TriggerEdge, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT trigger_id, task_id, edge_offset_secs FROM trigger_edges WHERE trigger_id = $1`, triggerID)
	if err != nil {
		return nil, fmt.Errorf("store: list trigger edges: %w", database.ClassifyError(err))
	}
	defer rows.Close()

	var edges []model.TriggerEdge
	for rows.Next() {
		var e model.TriggerEdge
		if err := rows.Scan(&e.TriggerID, &e.TaskID, &e.EdgeOffsetSecs); err != nil {
			return nil, fmt.Errorf("store: scan trigger edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
