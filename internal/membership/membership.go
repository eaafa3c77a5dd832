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

package membership

import (
	"context"
	"errors"
	"time"

	"github.com/sitegrid/sitegrid/internal/rbac"
)

// Domain errors
var (
	ErrNotFound      = errors.New("membership not found")
	ErrAlreadyExists = errors.New("membership already exists")
	ErrNotActive     = errors.New("membership is not active")
)

// Status is the lifecycle state of a membership.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusInvited   Status = "invited"
	StatusInactive  Status = "inactive"
)

// Membership binds a user to a tenant with a role. It is the
// authoritative record the permission service and security resolver query.
type Membership struct {
	ID        string
	TenantID  string
	UserID    string
	UserName  string
	Role      rbac.Role
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the membership currently grants access.
func (m *Membership) Active() bool {
	return m.Status == StatusActive
}

// Override is an explicit per-membership permission grant or denial.
// A matching override short-circuits the role's base permission set.
// Overrides may expire; expired rows are ignored by lookups and removed
// by the cleanup job.
type Override struct {
	ID         string
	TenantID   string
	UserID     string
	Permission string
	Allow      bool
	GrantedBy  string
	GrantedAt  time.Time
	ExpiresAt  *time.Time
}

// Expired reports whether the override has lapsed at time now.
func (o *Override) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}

// Repository defines membership persistence.
type Repository interface {
	// Get retrieves the membership binding userID to tenantID.
	Get(ctx context.Context, userID, tenantID string) (*Membership, error)

	// Create inserts a new membership.
	Create(ctx context.Context, m *Membership) error

	// UpdateRole changes the role on an existing membership.
	UpdateRole(ctx context.Context, userID, tenantID string, role rbac.Role) error

	// UpdateStatus changes the lifecycle status of a membership.
	UpdateStatus(ctx context.Context, userID, tenantID string, status Status) error

	// ListForTenant retrieves all memberships in a tenant.
	ListForTenant(ctx context.Context, tenantID string) ([]*Membership, error)

	// HasSuperadmin reports whether userID holds a SUPERADMIN membership
	// anywhere. Used to verify superadmin claims against the store rather
	// than trusting a client-supplied flag.
	HasSuperadmin(ctx context.Context, userID string) (bool, error)
}

// OverrideRepository defines persistence for permission overrides.
type OverrideRepository interface {
	// ListForMembership retrieves the non-expired overrides for a
	// (user, tenant) pair.
	ListForMembership(ctx context.Context, userID, tenantID string) ([]*Override, error)

	// Grant inserts an override.
	Grant(ctx context.Context, o *Override) error

	// Revoke deletes an override by id.
	Revoke(ctx context.Context, overrideID string) error

	// PurgeExpired removes lapsed overrides and returns the count removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
