package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sitegrid/sitegrid/internal/project"
	"github.com/sitegrid/sitegrid/internal/tenantdb"
)

// ProjectRepository implements project.Repository over a routed tenant
// database handle. Every query carries the tenant filter, shared or
// dedicated alike.
type ProjectRepository struct{}

// NewProjectRepository creates a new project repository
func NewProjectRepository() *ProjectRepository {
	return &ProjectRepository{}
}

// List retrieves all projects in the tenant
func (r *ProjectRepository) List(ctx context.Context, h *tenantdb.Handle, tenantID string) ([]*project.Project, error) {
	conn, err := h.Conn(tenantID)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, `
		SELECT id, tenant_id, name, status, created_by, created_at, updated_at
		FROM projects
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*project.Project
	for rows.Next() {
		var p project.Project
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// Get retrieves one project by id within the tenant
func (r *ProjectRepository) Get(ctx context.Context, h *tenantdb.Handle, tenantID, projectID string) (*project.Project, error) {
	conn, err := h.Conn(tenantID)
	if err != nil {
		return nil, err
	}

	var p project.Project
	err = conn.QueryRow(ctx, `
		SELECT id, tenant_id, name, status, created_by, created_at, updated_at
		FROM projects
		WHERE id = $1 AND tenant_id = $2
	`, projectID, tenantID).Scan(&p.ID, &p.TenantID, &p.Name, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, project.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// Create inserts a new project
func (r *ProjectRepository) Create(ctx context.Context, h *tenantdb.Handle, p *project.Project) error {
	conn, err := h.Conn(p.TenantID)
	if err != nil {
		return err
	}

	_, err = conn.Exec(ctx, `
		INSERT INTO projects (id, tenant_id, name, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.TenantID, p.Name, p.Status, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// Delete removes a project within the tenant
func (r *ProjectRepository) Delete(ctx context.Context, h *tenantdb.Handle, tenantID, projectID string) error {
	conn, err := h.Conn(tenantID)
	if err != nil {
		return err
	}

	result, err := conn.Exec(ctx, `
		DELETE FROM projects WHERE id = $1 AND tenant_id = $2
	`, projectID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return project.ErrNotFound
	}
	return nil
}
