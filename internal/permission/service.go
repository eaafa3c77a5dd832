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

package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sitegrid/sitegrid/internal/audit"
	"github.com/sitegrid/sitegrid/internal/id"
	"github.com/sitegrid/sitegrid/internal/membership"
	"github.com/sitegrid/sitegrid/internal/rbac"
	"github.com/sitegrid/sitegrid/internal/security"
)

// Service answers whether a (user, tenant) pair holds a permission.
//
// Superadmin identities never reach this service: the security resolver
// grants them the wildcard upstream. Keeping this service free of
// superadmin special-cases keeps it auditable in isolation.
type Service struct {
	memberships membership.Repository
	overrides   membership.OverrideRepository
	auditor     audit.Recorder
}

// NewService creates a new permission service.
func NewService(
	memberships membership.Repository,
	overrides membership.OverrideRepository,
	auditor audit.Recorder,
) *Service {
	return &Service{
		memberships: memberships,
		overrides:   overrides,
		auditor:     auditor,
	}
}

// HasPermission resolves the membership for tenantID and checks the
// permission string against overrides first, then the role's base set.
//
// No membership means false. A store failure propagates as
// security.ErrIndeterminate, which every caller must treat as deny.
func (s *Service) HasPermission(ctx context.Context, userID, permission, tenantID string) (bool, error) {
	if !rbac.ValidPermission(permission) {
		return false, nil
	}

	m, err := s.memberships.Get(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, membership.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: membership lookup: %v", security.ErrIndeterminate, err)
	}
	if !m.Active() {
		return false, nil
	}

	overrides, err := s.overrides.ListForMembership(ctx, userID, tenantID)
	if err != nil {
		return false, fmt.Errorf("%w: override lookup: %v", security.ErrIndeterminate, err)
	}
	now := time.Now()
	for _, o := range overrides {
		if o.Permission != permission || o.Expired(now) {
			continue
		}
		// A matching override short-circuits the role set.
		return o.Allow, nil
	}

	return rbac.RoleHasPermission(m.Role, permission), nil
}

// GrantOverride adds an explicit permission override to a membership.
// expiresAt may be nil for a standing grant. The grant is audited.
func (s *Service) GrantOverride(ctx context.Context, userID, tenantID, permission, grantedBy string, allow bool, expiresAt *time.Time) (*membership.Override, error) {
	if !rbac.ValidPermission(permission) {
		return nil, fmt.Errorf("unknown permission %q", permission)
	}

	m, err := s.memberships.Get(ctx, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("override target: %w", err)
	}
	if !m.Active() {
		return nil, membership.ErrNotActive
	}

	o := &membership.Override{
		ID:         id.NewUUIDv7(),
		TenantID:   tenantID,
		UserID:     userID,
		Permission: permission,
		Allow:      allow,
		GrantedBy:  grantedBy,
		GrantedAt:  time.Now(),
		ExpiresAt:  expiresAt,
	}
	if err := s.overrides.Grant(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to grant override: %w", err)
	}

	s.auditor.Log(ctx, audit.Event{
		Action:       audit.ActionOverrideGranted,
		TenantID:     tenantID,
		ActorUserID:  grantedBy,
		ResourceType: "permission_override",
		ResourceID:   o.ID,
		Outcome:      audit.OutcomeSuccess,
		Metadata: map[string]any{
			"user_id":    userID,
			"permission": permission,
			"allow":      allow,
		},
	})

	return o, nil
}

// RevokeOverride removes an override by id. The revocation is audited.
func (s *Service) RevokeOverride(ctx context.Context, overrideID, tenantID, revokedBy string) error {
	if err := s.overrides.Revoke(ctx, overrideID); err != nil {
		return fmt.Errorf("failed to revoke override: %w", err)
	}

	s.auditor.Log(ctx, audit.Event{
		Action:       audit.ActionOverrideRevoked,
		TenantID:     tenantID,
		ActorUserID:  revokedBy,
		ResourceType: "permission_override",
		ResourceID:   overrideID,
		Outcome:      audit.OutcomeSuccess,
	})
	return nil
}

// PurgeExpired removes lapsed overrides. Run periodically by the cleanup
// job.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.overrides.PurgeExpired(ctx, time.Now())
}
