package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sitegrid/sitegrid/internal/membership"
)

// OverrideRepository implements membership.OverrideRepository
type OverrideRepository struct {
	db *DB
}

// NewOverrideRepository creates a new override repository
func NewOverrideRepository(db *DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// ListForMembership retrieves all overrides for a (user, tenant) pair
func (r *OverrideRepository) ListForMembership(ctx context.Context, userID, tenantID string) ([]*membership.Override, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, permission, allow, granted_by, granted_at, expires_at
		FROM permission_overrides
		WHERE user_id = $1 AND tenant_id = $2
	`, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*membership.Override
	for rows.Next() {
		var o membership.Override
		if err := rows.Scan(&o.ID, &o.TenantID, &o.UserID, &o.Permission, &o.Allow, &o.GrantedBy, &o.GrantedAt, &o.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides = append(overrides, &o)
	}
	return overrides, rows.Err()
}

// Grant inserts a new override
func (r *OverrideRepository) Grant(ctx context.Context, o *membership.Override) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO permission_overrides (id, tenant_id, user_id, permission, allow, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, o.ID, o.TenantID, o.UserID, o.Permission, o.Allow, o.GrantedBy, o.GrantedAt, o.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to grant override: %w", err)
	}
	return nil
}

// Revoke deletes an override by id
func (r *OverrideRepository) Revoke(ctx context.Context, overrideID string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM permission_overrides WHERE id = $1
	`, overrideID)
	if err != nil {
		return fmt.Errorf("failed to revoke override: %w", err)
	}
	if result.RowsAffected() == 0 {
		return membership.ErrNotFound
	}
	return nil
}

// PurgeExpired removes overrides whose expiry has passed
func (r *OverrideRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM permission_overrides WHERE expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired overrides: %w", err)
	}
	return result.RowsAffected(), nil
}
