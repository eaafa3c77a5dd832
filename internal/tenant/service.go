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

package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sitegrid/sitegrid/internal/audit"
	"github.com/sitegrid/sitegrid/internal/id"
	"github.com/sitegrid/sitegrid/internal/membership"
	"github.com/sitegrid/sitegrid/internal/module"
	"github.com/sitegrid/sitegrid/internal/rbac"
)

// Service provides tenant provisioning and membership administration.
type Service struct {
	repo        Repository
	memberships membership.Repository
	modules     *module.AccessService
	auditor     audit.Recorder
}

// NewService creates a new tenant service
func NewService(repo Repository, memberships membership.Repository, modules *module.AccessService, auditor audit.Recorder) *Service {
	return &Service{
		repo:        repo,
		memberships: memberships,
		modules:     modules,
		auditor:     auditor,
	}
}

// ProvisionTenant creates a tenant, seeds its module entitlements from
// the selected plan, and binds the first company admin.
func (s *Service) ProvisionTenant(ctx context.Context, name, plan, adminUserID, adminName string, mode IsolationMode) (*Tenant, error) {
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid isolation mode: %s", mode)
	}

	if _, err := s.repo.GetByName(ctx, name); err == nil {
		return nil, ErrTenantAlreadyExists
	}

	now := time.Now()
	t := &Tenant{
		ID:            id.NewUUIDv7(),
		Name:          name,
		Status:        StatusActive,
		Plan:          plan,
		IsolationMode: mode,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	// Entitlements come from the plan. SetEnabledModules handles cache
	// invalidation and its own audit record.
	if err := s.modules.SetEnabledModules(ctx, t.ID, adminUserID, module.ModulesForPlan(plan)); err != nil {
		return nil, fmt.Errorf("failed to seed entitlements: %w", err)
	}

	if adminUserID != "" {
		if err := s.AssignRole(ctx, t.ID, adminUserID, adminName, rbac.RoleCompanyAdmin, adminUserID); err != nil {
			return nil, fmt.Errorf("failed to bind company admin: %w", err)
		}
	}

	return t, nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	return s.repo.GetByID(ctx, tenantID)
}

// ListTenants lists tenants with pagination
func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	return s.repo.List(ctx, limit, offset)
}

// ChangePlan moves a tenant to a new plan and reseeds its entitlement
// set. Cache invalidation rides on SetEnabledModules.
func (s *Service) ChangePlan(ctx context.Context, tenantID, plan, actorUserID string) error {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	t.Plan = plan
	t.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, t); err != nil {
		return fmt.Errorf("failed to update tenant plan: %w", err)
	}
	return s.modules.SetEnabledModules(ctx, tenantID, actorUserID, module.ModulesForPlan(plan))
}

// AssignRole creates or updates a user's membership in a tenant.
func (s *Service) AssignRole(ctx context.Context, tenantID, userID, userName string, role rbac.Role, grantedBy string) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role: %s", role)
	}

	_, err := s.memberships.Get(ctx, userID, tenantID)
	switch {
	case err == nil:
		if err := s.memberships.UpdateRole(ctx, userID, tenantID, role); err != nil {
			return err
		}
	case errors.Is(err, membership.ErrNotFound):
		now := time.Now()
		m := &membership.Membership{
			ID:        id.NewUUIDv7(),
			TenantID:  tenantID,
			UserID:    userID,
			UserName:  userName,
			Role:      role,
			Status:    membership.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.memberships.Create(ctx, m); err != nil {
			return err
		}
	default:
		return err
	}

	s.auditor.Log(ctx, audit.Event{
		Action:       audit.ActionRoleAssigned,
		TenantID:     tenantID,
		ActorUserID:  grantedBy,
		ResourceType: "membership",
		ResourceID:   userID,
		Outcome:      audit.OutcomeSuccess,
		Metadata:     map[string]any{"role": string(role)},
	})
	return nil
}

// SuspendMember marks a membership suspended; the resolver denies it on
// the next request.
func (s *Service) SuspendMember(ctx context.Context, tenantID, userID, actorUserID string) error {
	if err := s.memberships.UpdateStatus(ctx, userID, tenantID, membership.StatusSuspended); err != nil {
		return err
	}
	s.auditor.Log(ctx, audit.Event{
		Action:       audit.ActionMemberSuspended,
		TenantID:     tenantID,
		ActorUserID:  actorUserID,
		ResourceType: "membership",
		ResourceID:   userID,
		Outcome:      audit.OutcomeSuccess,
	})
	return nil
}

// GetTenantMembers retrieves all memberships in a tenant.
func (s *Service) GetTenantMembers(ctx context.Context, tenantID string) ([]*membership.Membership, error) {
	return s.memberships.ListForTenant(ctx, tenantID)
}
