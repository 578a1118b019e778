package postgres

import (
	"context"
	"fmt"

	"github.com/pagecraft/pagecraft/internal/domain"
	"github.com/pagecraft/pagecraft/internal/domain/workspace"
)

const workspaceColumns = `id, name, user_email, root_path, status, failure_note, created_at, updated_at`

func (s *Store) CreateWorkspace(ctx context.Context, w *workspace.Workspace) (*workspace.Workspace, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO workspaces (id, name, user_email, root_path, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+workspaceColumns,
		w.ID, w.Name, w.UserEmail, w.RootPath, string(w.Status))

	created, err := scanWorkspace(row)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &created, nil
}

func (s *Store) GetWorkspace(ctx context.Context, id string) (*workspace.Workspace, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, id)

	w, err := scanWorkspace(row)
	if err != nil {
		return nil, notFoundWrap(err, "get workspace %s", id)
	}
	return &w, nil
}

func (s *Store) ListWorkspaces(ctx context.Context) ([]workspace.Workspace, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []workspace.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		workspaces = append(workspaces, w)
	}
	return workspaces, rows.Err()
}

// UpdateWorkspaceStatus performs a compare-and-swap on the status column.
// The from-status guard makes duplicate queue deliveries observable as
// domain.ErrConflict instead of double transitions.
func (s *Store) UpdateWorkspaceStatus(ctx context.Context, id string, from, to workspace.Status, failureNote string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workspaces SET status = $3, failure_note = $4, updated_at = now()
		 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), failureNote)
	if err != nil {
		return fmt.Errorf("update workspace status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update workspace status %s (%s -> %s): %w", id, from, to, domain.ErrConflict)
	}
	return nil
}

func scanWorkspace(row scannable) (workspace.Workspace, error) {
	var w workspace.Workspace
	var status string
	err := row.Scan(&w.ID, &w.Name, &w.UserEmail, &w.RootPath, &status, &w.FailureNote, &w.CreatedAt, &w.UpdatedAt)
	w.Status = workspace.Status(status)
	return w, err
}
