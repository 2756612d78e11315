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

// GetProject looks up a project by id.
func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*model.Project, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT id, name, description, config FROM projects WHERE id = $1`, id)

	var p model.Project
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Config); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get project: %w", database.ClassifyError(err))
	}
	return &p, nil
}

// CreateProject inserts a new project.
func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	_, err := s.db.DB().ExecContext(ctx,
		`INSERT INTO projects (id, name, description, config) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Name, p.Description, p.Config)
	if err != nil {
		return fmt.Errorf("store: create project: %w", database.ClassifyError(err))
	}
	return nil
}
