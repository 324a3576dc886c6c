package storage

import (
	"context"
	"database/sql"
	"errors"

	"board-api/domain"
)

const projectColumns = "id, name, project_key, description, created_at, updated_at"

func scanProject(s scanner) (domain.Project, error) {
	var p domain.Project
	err := s.Scan(&p.ID, &p.Name, &p.Key, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, ErrNotFound
	}
	return p, err
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+projectColumns+" FROM projects WHERE id = ?"), id)
	return scanProject(row)
}

// GetProjectByKey fetches a project by its unique key.
func (s *Store) GetProjectByKey(ctx context.Context, key string) (domain.Project, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+projectColumns+" FROM projects WHERE project_key = ?"), key)
	return scanProject(row)
}

// ListProjects returns projects ordered by name, optionally narrowed by an
// exact key match or a substring search over name, key and description.
func (s *Store) ListProjects(ctx context.Context, f ProjectFilter) ([]domain.Project, error) {
	query := "SELECT " + projectColumns + " FROM projects"
	var (
		where []string
		args  []any
	)
	if f.Key != "" {
		where = append(where, "project_key = ?")
		args = append(args, f.Key)
	}
	if f.Search != "" {
		where = append(where, "(name LIKE ? OR project_key LIKE ? OR description LIKE ?)")
		pat := "%" + f.Search + "%"
		args = append(args, pat, pat, pat)
	}
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ProjectDraft carries the fields for project creation.
type ProjectDraft struct {
	Name        string
	Key         string
	Description string
}

// CreateProject inserts a project. The key must be non-empty, at most 16
// characters and unique; a taken key yields ErrKeyConflict.
func (s *Store) CreateProject(ctx context.Context, d ProjectDraft) (domain.Project, error) {
	if d.Key == "" || len(d.Key) > domain.MaxProjectKeyLen {
		return domain.Project{}, ErrInvalidKey
	}
	if d.Name == "" {
		d.Name = d.Key
	}

	ts := now()
	id, err := s.insertID(ctx, s.db,
		"INSERT INTO projects (name, project_key, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		d.Name, d.Key, d.Description, ts, ts)
	if err != nil {
		// The unique constraint is the arbiter; confirm before reporting a
		// conflict so unrelated failures surface as themselves.
		if _, lookupErr := s.GetProjectByKey(ctx, d.Key); lookupErr == nil {
			return domain.Project{}, ErrKeyConflict
		}
		return domain.Project{}, err
	}

	return domain.Project{
		ID:          id,
		Name:        d.Name,
		Key:         d.Key,
		Description: d.Description,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}, nil
}

// DefaultProject returns the singleton default project, creating it on first
// use. Concurrent callers race on the unique key constraint; the loser falls
// back to the winner's row.
func (s *Store) DefaultProject(ctx context.Context) (domain.Project, error) {
	p, err := s.GetProjectByKey(ctx, domain.DefaultProjectKey)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.Project{}, err
	}

	p, err = s.CreateProject(ctx, ProjectDraft{
		Name: domain.DefaultProjectName,
		Key:  domain.DefaultProjectKey,
	})
	if errors.Is(err, ErrKeyConflict) {
		return s.GetProjectByKey(ctx, domain.DefaultProjectKey)
	}
	return p, err
}

func joinAnd(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += " AND " + p
	}
	return out
}
