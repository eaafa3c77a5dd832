package postgres

import (
	"context"
	"fmt"

	"github.com/sitegrid/sitegrid/internal/module"
)

// EntitlementRepository implements module.EntitlementRepository
type EntitlementRepository struct {
	db *DB
}

// NewEntitlementRepository creates a new entitlement repository
func NewEntitlementRepository(db *DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

// GetEnabledModules loads the entitlement set for a tenant
func (r *EntitlementRepository) GetEnabledModules(ctx context.Context, tenantID string) ([]module.Module, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT module FROM module_entitlements WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get enabled modules: %w", err)
	}
	defer rows.Close()

	var modules []module.Module
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, module.Module(m))
	}
	return modules, rows.Err()
}

// SetEnabledModules replaces the entitlement set for a tenant in one
// transaction, so readers never observe a partial set.
func (r *EntitlementRepository) SetEnabledModules(ctx context.Context, tenantID string, modules []module.Module) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM module_entitlements WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("failed to clear entitlements: %w", err)
	}
	for _, m := range modules {
		if _, err := tx.Exec(ctx, `
			INSERT INTO module_entitlements (tenant_id, module) VALUES ($1, $2)
		`, tenantID, string(m)); err != nil {
			return fmt.Errorf("failed to insert entitlement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit entitlements: %w", err)
	}
	return nil
}
