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

package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sitegrid/sitegrid/internal/membership"
	"github.com/sitegrid/sitegrid/internal/observability/logger"
	"github.com/sitegrid/sitegrid/internal/rbac"
)

// placeholders are identity values that only ever appear in seeded demo
// data. They are treated the same as a missing hint.
var placeholders = map[string]bool{
	"demo":        true,
	"demo-tenant": true,
	"demo-user":   true,
	"c1":          true,
	"u1":          true,
}

// Resolver reconstructs a SecurityContext from the raw request identity.
// It is the single source of truth consumed by every downstream check.
type Resolver struct {
	memberships membership.Repository
	overrides   membership.OverrideRepository
	policy      ResolutionPolicy
	timeout     time.Duration
}

// NewResolver creates a resolver. The policy comes from explicit
// configuration; see ParsePolicy.
func NewResolver(
	memberships membership.Repository,
	overrides membership.OverrideRepository,
	policy ResolutionPolicy,
	timeout time.Duration,
) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		memberships: memberships,
		overrides:   overrides,
		policy:      policy,
		timeout:     timeout,
	}
}

// Policy returns the active resolution policy.
func (r *Resolver) Policy() ResolutionPolicy { return r.policy }

// Resolve walks the resolution state machine for one request.
//
// Terminal states: a resolved context, or one of ErrAuthenticationRequired,
// ErrSecurityContextRequired, ErrIndeterminate. Resolution is bounded by
// the resolver timeout; a store that cannot answer in time fails closed.
func (r *Resolver) Resolve(ctx context.Context, identity RawIdentity) (*SecurityContext, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if identity.UserID == "" && identity.TenantID == "" && identity.RoleClaim == "" {
		return nil, ErrAuthenticationRequired
	}

	// Superadmin path. The claim is re-verified against the membership
	// store; a client-supplied flag alone never elevates.
	if identity.RoleClaim == string(rbac.RoleSuperadmin) && identity.UserID != "" {
		verified, err := r.memberships.HasSuperadmin(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("%w: superadmin verification: %v", ErrIndeterminate, err)
		}
		if verified {
			return NewContext(
				identity.TenantID,
				identity.UserID,
				"",
				rbac.RoleSuperadmin,
				[]string{rbac.Wildcard},
				true,
			), nil
		}
		// Claimed but unverified superadmin falls through to the normal
		// path: the membership lookup decides.
	}

	tenantID := identity.TenantID
	userID := identity.UserID
	if placeholders[tenantID] {
		tenantID = ""
	}
	if placeholders[userID] {
		userID = ""
	}

	// Incomplete identity.
	if tenantID == "" || userID == "" {
		if r.policy == PolicyPermissiveDev {
			slog.WarnContext(ctx, "synthesizing demo security context",
				logger.Component("security"),
				logger.UserID(identity.UserID),
				logger.TenantID(identity.TenantID),
			)
			return r.demoContext(), nil
		}
		return nil, ErrSecurityContextRequired
	}

	// Normal path: active membership required.
	m, err := r.memberships.Get(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, membership.ErrNotFound) {
			return nil, ErrAuthenticationRequired
		}
		return nil, fmt.Errorf("%w: membership lookup: %v", ErrIndeterminate, err)
	}
	if !m.Active() {
		return nil, ErrAuthenticationRequired
	}

	perms, err := r.effectivePermissions(ctx, m)
	if err != nil {
		return nil, err
	}

	return NewContext(m.TenantID, m.UserID, m.UserName, m.Role, perms, false), nil
}

// effectivePermissions is the role's base set with membership overrides
// applied: allow overrides add, deny overrides remove.
func (r *Resolver) effectivePermissions(ctx context.Context, m *membership.Membership) ([]string, error) {
	set := make(map[string]bool)
	for _, p := range rbac.PermissionsForRole(m.Role) {
		set[p] = true
	}

	overrides, err := r.overrides.ListForMembership(ctx, m.UserID, m.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: override lookup: %v", ErrIndeterminate, err)
	}
	now := time.Now()
	for _, o := range overrides {
		if o.Expired(now) || !rbac.ValidPermission(o.Permission) {
			continue
		}
		if o.Allow {
			set[o.Permission] = true
		} else {
			delete(set, o.Permission)
		}
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out, nil
}

// demoContext is the permissive-policy stand-in for local development.
// Company-admin shaped, never superadmin.
func (r *Resolver) demoContext() *SecurityContext {
	return NewContext(
		DemoTenantID,
		DemoUserID,
		DemoUserName,
		rbac.RoleCompanyAdmin,
		rbac.PermissionsForRole(rbac.RoleCompanyAdmin),
		false,
	)
}
