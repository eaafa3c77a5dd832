// Copyright 2026 The SiteGrid Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tenantdb routes data access to the correct database for a
// tenant. Shared-isolation tenants all use one pool and rely on tenant
// id filtering at every call site; dedicated-isolation tenants get their
// own lazily opened pool.
package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/sitegrid/sitegrid/internal/security"
	"github.com/sitegrid/sitegrid/internal/tenant"
)

var (
	// ErrTenantMismatch is returned when a handle bound to one tenant is
	// asked to serve another.
	ErrTenantMismatch = errors.New("database handle bound to a different tenant")

	// ErrTenantSuspended is returned for tenants that are not active.
	ErrTenantSuspended = errors.New("tenant is not active")
)

// Conn is the query surface a routed handle exposes. *pgxpool.Pool
// satisfies it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Opener opens a connection to a dedicated tenant database.
type Opener func(ctx context.Context, databaseURL string) (Conn, error)

// PgxOpener opens a pgx pool and verifies it with a ping.
func PgxOpener(ctx context.Context, databaseURL string) (Conn, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open dedicated pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping dedicated database: %w", err)
	}
	return pool, nil
}

// Handle is a tenant-bound database connection. Every accessor checks
// the tenant id so a handle obtained for one tenant can never be used to
// read another tenant's data.
type Handle struct {
	tenantID string
	mode     tenant.IsolationMode
	conn     Conn
}

// TenantID returns the tenant this handle is bound to.
func (h *Handle) TenantID() string { return h.tenantID }

// Mode returns the isolation mode the handle was routed under.
func (h *Handle) Mode() tenant.IsolationMode { return h.mode }

// Conn returns the underlying connection for tenantID, or
// ErrTenantMismatch if the handle belongs to another tenant.
func (h *Handle) Conn(tenantID string) (Conn, error) {
	if tenantID == "" || tenantID != h.tenantID {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrTenantMismatch, h.tenantID, tenantID)
	}
	return h.conn, nil
}

// Router resolves tenants to database handles.
//
// Dedicated pools are opened lazily on first access and memoized;
// concurrent first accesses for the same tenant coalesce into a single
// open. The shared pool is owned by the caller and never closed here.
type Router struct {
	tenants tenant.Repository
	shared  Conn
	opener  Opener

	mu        sync.Mutex
	dedicated map[string]Conn
	group     singleflight.Group
}

// NewRouter creates a router over the shared pool. opener may be nil
// when no dedicated tenants exist; PgxOpener is the production choice.
func NewRouter(tenants tenant.Repository, shared Conn, opener Opener) *Router {
	return &Router{
		tenants:   tenants,
		shared:    shared,
		opener:    opener,
		dedicated: make(map[string]Conn),
	}
}

// GetHandle returns the database handle for a tenant. Inactive tenants
// are refused; a tenant config lookup failure is indeterminate.
func (r *Router) GetHandle(ctx context.Context, tenantID string) (*Handle, error) {
	if tenantID == "" {
		return nil, security.ErrSecurityContextRequired
	}

	t, err := r.tenants.GetByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: tenant config lookup: %v", security.ErrIndeterminate, err)
	}
	if t.Status != tenant.StatusActive {
		return nil, fmt.Errorf("%w: %s", ErrTenantSuspended, tenantID)
	}

	switch t.IsolationMode {
	case tenant.IsolationShared:
		return &Handle{tenantID: tenantID, mode: tenant.IsolationShared, conn: r.shared}, nil
	case tenant.IsolationDedicated:
		conn, err := r.dedicatedConn(ctx, t)
		if err != nil {
			return nil, err
		}
		return &Handle{tenantID: tenantID, mode: tenant.IsolationDedicated, conn: conn}, nil
	default:
		return nil, fmt.Errorf("tenant %s has unknown isolation mode %q", tenantID, t.IsolationMode)
	}
}

func (r *Router) dedicatedConn(ctx context.Context, t *tenant.Tenant) (Conn, error) {
	r.mu.Lock()
	if conn, ok := r.dedicated[t.ID]; ok {
		r.mu.Unlock()
		return conn, nil
	}
	r.mu.Unlock()

	if r.opener == nil {
		return nil, fmt.Errorf("no opener configured for dedicated tenant %s", t.ID)
	}
	if t.DatabaseURL == "" {
		return nil, fmt.Errorf("dedicated tenant %s has no database url", t.ID)
	}

	v, err, _ := r.group.Do(t.ID, func() (any, error) {
		r.mu.Lock()
		if conn, ok := r.dedicated[t.ID]; ok {
			r.mu.Unlock()
			return conn, nil
		}
		r.mu.Unlock()

		conn, err := r.opener(ctx, t.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: dedicated connection: %v", security.ErrIndeterminate, err)
		}

		r.mu.Lock()
		r.dedicated[t.ID] = conn
		r.mu.Unlock()
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Conn), nil
}

// Evict closes and forgets a tenant's dedicated pool. A later GetHandle
// reopens it from the current tenant config.
func (r *Router) Evict(tenantID string) {
	r.mu.Lock()
	conn, ok := r.dedicated[tenantID]
	delete(r.dedicated, tenantID)
	r.mu.Unlock()
	if ok {
		conn.Close()
	}
}

// Close shuts down all dedicated pools. The shared pool belongs to the
// caller and is left open.
func (r *Router) Close() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.dedicated))
	for _, c := range r.dedicated {
		conns = append(conns, c)
	}
	r.dedicated = make(map[string]Conn)
	r.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}
