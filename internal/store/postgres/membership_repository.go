package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sitegrid/sitegrid/internal/membership"
	"github.com/sitegrid/sitegrid/internal/rbac"
)

// MembershipRepository implements membership.Repository
type MembershipRepository struct {
	db *DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Get retrieves a user's membership in a tenant
func (r *MembershipRepository) Get(ctx context.Context, userID, tenantID string) (*membership.Membership, error) {
	var m membership.Membership
	var role string
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, user_name, role, status, created_at, updated_at
		FROM memberships
		WHERE user_id = $1 AND tenant_id = $2
	`, userID, tenantID).Scan(&m.ID, &m.TenantID, &m.UserID, &m.UserName, &role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, membership.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.Role = rbac.Role(role)
	return &m, nil
}

// Create inserts a new membership
func (r *MembershipRepository) Create(ctx context.Context, m *membership.Membership) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO memberships (id, tenant_id, user_id, user_name, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.TenantID, m.UserID, m.UserName, string(m.Role), string(m.Status), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return membership.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// UpdateRole changes the role on an existing membership
func (r *MembershipRepository) UpdateRole(ctx context.Context, userID, tenantID string, role rbac.Role) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE memberships SET role = $1, updated_at = $2
		WHERE user_id = $3 AND tenant_id = $4
	`, string(role), time.Now(), userID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return membership.ErrNotFound
	}
	return nil
}

// UpdateStatus changes the status on an existing membership
func (r *MembershipRepository) UpdateStatus(ctx context.Context, userID, tenantID string, status membership.Status) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE memberships SET status = $1, updated_at = $2
		WHERE user_id = $3 AND tenant_id = $4
	`, string(status), time.Now(), userID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return membership.ErrNotFound
	}
	return nil
}

// ListForTenant retrieves all memberships in a tenant
func (r *MembershipRepository) ListForTenant(ctx context.Context, tenantID string) ([]*membership.Membership, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, user_name, role, status, created_at, updated_at
		FROM memberships
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var members []*membership.Membership
	for rows.Next() {
		var m membership.Membership
		var role string
		if err := rows.Scan(&m.ID, &m.TenantID, &m.UserID, &m.UserName, &role, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.Role = rbac.Role(role)
		members = append(members, &m)
	}
	return members, rows.Err()
}

// HasSuperadmin reports whether the user holds an active SUPERADMIN
// membership anywhere. Used to verify superadmin claims against the
// store; the claim itself is never trusted.
func (r *MembershipRepository) HasSuperadmin(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM memberships
			WHERE user_id = $1 AND role = $2 AND status = $3
		)
	`, userID, string(rbac.RoleSuperadmin), string(membership.StatusActive)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check superadmin: %w", err)
	}
	return exists, nil
}
