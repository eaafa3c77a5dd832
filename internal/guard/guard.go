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

// Package guard enforces resource ownership: a resource may only be
// touched through a security context belonging to the tenant that owns
// it. Cross-tenant access and nonexistent resources are
// indistinguishable to the caller.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sitegrid/sitegrid/internal/audit"
	"github.com/sitegrid/sitegrid/internal/id"
	"github.com/sitegrid/sitegrid/internal/security"
)

// ErrNoActiveGrant is returned when no live break-glass grant exists for
// a (user, tenant) pair.
var ErrNoActiveGrant = errors.New("no active break-glass grant")

// DefaultBreakGlassTTL bounds emergency access when no explicit duration
// is requested.
const DefaultBreakGlassTTL = time.Hour

// MaxBreakGlassTTL is the hard ceiling for a single grant.
const MaxBreakGlassTTL = 4 * time.Hour

// TenantLookup resolves which tenant owns a resource. Implementations
// return ("", nil) for resources that do not exist.
type TenantLookup interface {
	ResourceTenant(ctx context.Context, resourceType, resourceID string) (string, error)
}

// BreakGlassGrant is a time-boxed, audited permit for a superadmin to
// operate inside a tenant they do not belong to.
type BreakGlassGrant struct {
	ID        string
	UserID    string
	TenantID  string
	Reason    string
	GrantedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Active reports whether the grant is live at the given instant.
func (g *BreakGlassGrant) Active(now time.Time) bool {
	return g.RevokedAt == nil && now.Before(g.ExpiresAt)
}

// BreakGlassRepository persists break-glass grants.
type BreakGlassRepository interface {
	Create(ctx context.Context, grant *BreakGlassGrant) error

	// GetActive returns the live grant for a (user, tenant) pair, or
	// ErrNoActiveGrant.
	GetActive(ctx context.Context, userID, tenantID string, now time.Time) (*BreakGlassGrant, error)

	Revoke(ctx context.Context, grantID string, at time.Time) error

	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Guard checks resource ownership against the caller's tenant.
type Guard struct {
	lookup     TenantLookup
	breakglass BreakGlassRepository
	auditor    audit.Recorder
}

// NewGuard creates an ownership guard. breakglass may be nil to disable
// emergency cross-tenant access entirely.
func NewGuard(lookup TenantLookup, breakglass BreakGlassRepository, auditor audit.Recorder) *Guard {
	return &Guard{lookup: lookup, breakglass: breakglass, auditor: auditor}
}

// Check verifies the resource belongs to the caller's tenant.
//
// A resource owned by another tenant and a resource that does not exist
// both return security.ErrResourceNotFound: the response must not leak
// whether the id exists elsewhere. A superadmin with a live break-glass
// grant for the owning tenant passes, and the use is audited.
func (g *Guard) Check(ctx context.Context, sc *security.SecurityContext, resourceType, resourceID string) error {
	if sc == nil {
		return security.ErrSecurityContextRequired
	}
	if resourceID == "" {
		return security.ErrResourceNotFound
	}

	owner, err := g.lookup.ResourceTenant(ctx, resourceType, resourceID)
	if err != nil {
		return fmt.Errorf("%w: ownership lookup: %v", security.ErrIndeterminate, err)
	}
	if owner == "" {
		return security.ErrResourceNotFound
	}
	if owner == sc.TenantID() {
		return nil
	}

	if sc.IsSuperadmin() && g.breakglass != nil {
		grant, bgErr := g.breakglass.GetActive(ctx, sc.UserID(), owner, time.Now())
		if bgErr == nil && grant.Active(time.Now()) {
			g.auditor.Log(ctx, audit.Event{
				Action:       audit.ActionBreakGlassUsed,
				TenantID:     owner,
				ActorUserID:  sc.UserID(),
				ActorName:    sc.UserName(),
				ResourceType: resourceType,
				ResourceID:   resourceID,
				Outcome:      audit.OutcomeSuccess,
				Metadata:     map[string]any{"grant_id": grant.ID, "reason": grant.Reason},
			})
			return nil
		}
		if bgErr != nil && !errors.Is(bgErr, ErrNoActiveGrant) {
			return fmt.Errorf("%w: break-glass lookup: %v", security.ErrIndeterminate, bgErr)
		}
	}

	return security.ErrResourceNotFound
}

// RequestBreakGlass opens a grant for the caller into tenantID. Only a
// superadmin may request one, a reason is mandatory, and the opening is
// audited into the target tenant's trail.
func (g *Guard) RequestBreakGlass(ctx context.Context, sc *security.SecurityContext, tenantID, reason string, ttl time.Duration) (*BreakGlassGrant, error) {
	if sc == nil {
		return nil, security.ErrSecurityContextRequired
	}
	if !sc.IsSuperadmin() {
		return nil, security.ErrInsufficientRole
	}
	if g.breakglass == nil {
		return nil, errors.New("break-glass access is not configured")
	}
	if reason == "" {
		return nil, errors.New("break-glass reason is required")
	}
	if tenantID == "" || tenantID == sc.TenantID() {
		return nil, fmt.Errorf("invalid break-glass target tenant %q", tenantID)
	}
	if ttl <= 0 {
		ttl = DefaultBreakGlassTTL
	}
	if ttl > MaxBreakGlassTTL {
		ttl = MaxBreakGlassTTL
	}

	now := time.Now()
	grant := &BreakGlassGrant{
		ID:        id.NewUUIDv7(),
		UserID:    sc.UserID(),
		TenantID:  tenantID,
		Reason:    reason,
		GrantedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := g.breakglass.Create(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to open break-glass grant: %w", err)
	}

	g.auditor.Log(ctx, audit.Event{
		Action:       audit.ActionBreakGlassOpened,
		TenantID:     tenantID,
		ActorUserID:  sc.UserID(),
		ActorName:    sc.UserName(),
		ResourceType: "breakglass_grant",
		ResourceID:   grant.ID,
		Outcome:      audit.OutcomeSuccess,
		Metadata:     map[string]any{"reason": reason, "expires_at": grant.ExpiresAt},
	})
	return grant, nil
}

// RevokeBreakGlass ends a grant before its expiry. The revocation is
// audited.
func (g *Guard) RevokeBreakGlass(ctx context.Context, grant *BreakGlassGrant, revokedBy string) error {
	if g.breakglass == nil {
		return errors.New("break-glass access is not configured")
	}
	if err := g.breakglass.Revoke(ctx, grant.ID, time.Now()); err != nil {
		return fmt.Errorf("failed to revoke break-glass grant: %w", err)
	}
	g.auditor.Log(ctx, audit.Event{
		Action:       audit.ActionBreakGlassRevoked,
		TenantID:     grant.TenantID,
		ActorUserID:  revokedBy,
		ResourceType: "breakglass_grant",
		ResourceID:   grant.ID,
		Outcome:      audit.OutcomeSuccess,
	})
	return nil
}

// HasActiveBreakGlass reports whether a live grant exists for the pair.
func (g *Guard) HasActiveBreakGlass(ctx context.Context, userID, tenantID string) (bool, error) {
	if g.breakglass == nil {
		return false, nil
	}
	_, err := g.breakglass.GetActive(ctx, userID, tenantID, time.Now())
	if err != nil {
		if errors.Is(err, ErrNoActiveGrant) {
			return false, nil
		}
		return false, fmt.Errorf("%w: break-glass lookup: %v", security.ErrIndeterminate, err)
	}
	return true, nil
}

// PurgeExpired removes lapsed grants. Run periodically by the cleanup
// job.
func (g *Guard) PurgeExpired(ctx context.Context) (int64, error) {
	if g.breakglass == nil {
		return 0, nil
	}
	return g.breakglass.PurgeExpired(ctx, time.Now())
}
