package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ownershipTables maps resource types to the tables holding their tenant
// id. A closed allowlist; the type string is never interpolated from
// user input without passing through it.
var ownershipTables = map[string]string{
	"project": "projects",
}

// ResourceLookup implements guard.TenantLookup against the control-plane
// database. The ownership registry lives in the shared database for all
// tenants, dedicated-isolation ones included, so a single query answers
// who owns any resource id.
type ResourceLookup struct {
	db *DB
}

// NewResourceLookup creates a new resource ownership lookup
func NewResourceLookup(db *DB) *ResourceLookup {
	return &ResourceLookup{db: db}
}

// ResourceTenant returns the owning tenant id, or "" when the resource
// does not exist.
func (r *ResourceLookup) ResourceTenant(ctx context.Context, resourceType, resourceID string) (string, error) {
	table, ok := ownershipTables[resourceType]
	if !ok {
		return "", fmt.Errorf("unknown resource type %q", resourceType)
	}

	var tenantID string
	query := fmt.Sprintf(`SELECT tenant_id FROM %s WHERE id = $1`, table)
	err := r.db.pool.QueryRow(ctx, query, resourceID).Scan(&tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to look up resource owner: %w", err)
	}
	return tenantID, nil
}
