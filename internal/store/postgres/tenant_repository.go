package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sitegrid/sitegrid/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create inserts a new tenant
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	var dbURL sql.NullString
	if t.DatabaseURL != "" {
		dbURL = sql.NullString{String: t.DatabaseURL, Valid: true}
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, status, plan, isolation_mode, database_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.Name, t.Status, t.Plan, string(t.IsolationMode), dbURL, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return tenant.ErrTenantAlreadyExists
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by id
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	return r.scanOne(r.db.pool.QueryRow(ctx, `
		SELECT id, name, status, plan, isolation_mode, database_url, created_at, updated_at
		FROM tenants WHERE id = $1
	`, id))
}

// GetByName retrieves a tenant by name
func (r *TenantRepository) GetByName(ctx context.Context, name string) (*tenant.Tenant, error) {
	return r.scanOne(r.db.pool.QueryRow(ctx, `
		SELECT id, name, status, plan, isolation_mode, database_url, created_at, updated_at
		FROM tenants WHERE name = $1
	`, name))
}

// Update persists changes to a tenant
func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	var dbURL sql.NullString
	if t.DatabaseURL != "" {
		dbURL = sql.NullString{String: t.DatabaseURL, Valid: true}
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE tenants SET name = $1, status = $2, plan = $3, isolation_mode = $4, database_url = $5, updated_at = $6
		WHERE id = $7
	`, t.Name, t.Status, t.Plan, string(t.IsolationMode), dbURL, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// List retrieves tenants with pagination
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, status, plan, isolation_mode, database_url, created_at, updated_at
		FROM tenants
		ORDER BY created_at
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		t, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (r *TenantRepository) scanOne(row pgx.Row) (*tenant.Tenant, error) {
	t, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *TenantRepository) scanRow(row pgx.Row) (*tenant.Tenant, error) {
	var t tenant.Tenant
	var mode string
	var dbURL sql.NullString
	if err := row.Scan(&t.ID, &t.Name, &t.Status, &t.Plan, &mode, &dbURL, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}
	t.IsolationMode = tenant.IsolationMode(mode)
	if dbURL.Valid {
		t.DatabaseURL = dbURL.String
	}
	return &t, nil
}
