package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sitegrid/sitegrid/internal/audit"
)

// AuditRepository implements audit.Store over the append-only audit_log
// table.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit record. There is no update or delete path
// except Purge.
func (r *AuditRepository) Append(ctx context.Context, record *audit.Record) error {
	var metadata []byte
	if len(record.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO audit_log (id, ts, tenant_id, actor_user_id, actor_name, action, resource_type, resource_id, outcome, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, record.ID, record.Timestamp, record.TenantID, record.ActorUserID, record.ActorName,
		record.Action, record.ResourceType, record.ResourceID, record.Outcome, metadata)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// Timeline returns records for a tenant in [from, to), newest first
func (r *AuditRepository) Timeline(ctx context.Context, tenantID string, from, to time.Time, limit int) ([]*audit.Record, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, ts, tenant_id, actor_user_id, actor_name, action, resource_type, resource_id, outcome, metadata
		FROM audit_log
		WHERE tenant_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts DESC
		LIMIT $4
	`, tenantID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit timeline: %w", err)
	}
	defer rows.Close()

	var records []*audit.Record
	for rows.Next() {
		var rec audit.Record
		var metadata []byte
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.TenantID, &rec.ActorUserID, &rec.ActorName,
			&rec.Action, &rec.ResourceType, &rec.ResourceID, &rec.Outcome, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// CountByAction returns per-action record counts for a tenant in [from, to)
func (r *AuditRepository) CountByAction(ctx context.Context, tenantID string, from, to time.Time) (map[string]int64, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT action, COUNT(*)
		FROM audit_log
		WHERE tenant_id = $1 AND ts >= $2 AND ts < $3
		GROUP BY action
	`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("failed to scan audit count: %w", err)
		}
		counts[action] = count
	}
	return counts, rows.Err()
}

// Purge removes records older than the cutoff for one tenant
func (r *AuditRepository) Purge(ctx context.Context, tenantID string, olderThan time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM audit_log WHERE tenant_id = $1 AND ts < $2
	`, tenantID, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit records: %w", err)
	}
	return result.RowsAffected(), nil
}
