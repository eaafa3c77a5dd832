package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sitegrid/sitegrid/internal/guard"
)

// BreakGlassRepository implements guard.BreakGlassRepository
type BreakGlassRepository struct {
	db *DB
}

// NewBreakGlassRepository creates a new break-glass repository
func NewBreakGlassRepository(db *DB) *BreakGlassRepository {
	return &BreakGlassRepository{db: db}
}

// Create inserts a new grant
func (r *BreakGlassRepository) Create(ctx context.Context, grant *guard.BreakGlassGrant) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO breakglass_grants (id, user_id, tenant_id, reason, granted_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, grant.ID, grant.UserID, grant.TenantID, grant.Reason, grant.GrantedAt, grant.ExpiresAt, grant.RevokedAt)
	if err != nil {
		return fmt.Errorf("failed to create break-glass grant: %w", err)
	}
	return nil
}

// GetActive returns the live grant for a (user, tenant) pair
func (r *BreakGlassRepository) GetActive(ctx context.Context, userID, tenantID string, now time.Time) (*guard.BreakGlassGrant, error) {
	var g guard.BreakGlassGrant
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, user_id, tenant_id, reason, granted_at, expires_at, revoked_at
		FROM breakglass_grants
		WHERE user_id = $1 AND tenant_id = $2 AND revoked_at IS NULL AND expires_at > $3
		ORDER BY expires_at DESC
		LIMIT 1
	`, userID, tenantID, now).Scan(&g.ID, &g.UserID, &g.TenantID, &g.Reason, &g.GrantedAt, &g.ExpiresAt, &g.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, guard.ErrNoActiveGrant
		}
		return nil, fmt.Errorf("failed to get break-glass grant: %w", err)
	}
	return &g, nil
}

// Revoke marks a grant revoked
func (r *BreakGlassRepository) Revoke(ctx context.Context, grantID string, at time.Time) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE breakglass_grants SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL
	`, at, grantID)
	if err != nil {
		return fmt.Errorf("failed to revoke break-glass grant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return guard.ErrNoActiveGrant
	}
	return nil
}

// PurgeExpired removes grants that are expired or revoked
func (r *BreakGlassRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM breakglass_grants WHERE expires_at <= $1 OR revoked_at IS NOT NULL
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge break-glass grants: %w", err)
	}
	return result.RowsAffected(), nil
}
