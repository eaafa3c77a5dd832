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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitegrid/sitegrid/internal/audit"
	"github.com/sitegrid/sitegrid/internal/membership"
	"github.com/sitegrid/sitegrid/internal/rbac"
	"github.com/sitegrid/sitegrid/internal/security"
)

type mockMembershipRepo struct {
	mu      sync.Mutex
	members map[string]*membership.Membership // key userID|tenantID
	err     error
}

func newMockMembershipRepo() *mockMembershipRepo {
	return &mockMembershipRepo{members: make(map[string]*membership.Membership)}
}

func (r *mockMembershipRepo) add(m *membership.Membership) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.UserID+"|"+m.TenantID] = m
}

func (r *mockMembershipRepo) Get(ctx context.Context, userID, tenantID string) (*membership.Membership, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[userID+"|"+tenantID]
	if !ok {
		return nil, membership.ErrNotFound
	}
	return m, nil
}

func (r *mockMembershipRepo) Create(ctx context.Context, m *membership.Membership) error {
	r.add(m)
	return nil
}

func (r *mockMembershipRepo) UpdateRole(ctx context.Context, userID, tenantID string, role rbac.Role) error {
	return nil
}

func (r *mockMembershipRepo) UpdateStatus(ctx context.Context, userID, tenantID string, status membership.Status) error {
	return nil
}

func (r *mockMembershipRepo) ListForTenant(ctx context.Context, tenantID string) ([]*membership.Membership, error) {
	return nil, nil
}

func (r *mockMembershipRepo) HasSuperadmin(ctx context.Context, userID string) (bool, error) {
	return false, nil
}

type mockOverrideRepo struct {
	mu        sync.Mutex
	overrides []*membership.Override
	err       error
}

func (r *mockOverrideRepo) ListForMembership(ctx context.Context, userID, tenantID string) ([]*membership.Override, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*membership.Override
	for _, o := range r.overrides {
		if o.UserID == userID && o.TenantID == tenantID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *mockOverrideRepo) Grant(ctx context.Context, o *membership.Override) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides = append(r.overrides, o)
	return nil
}

func (r *mockOverrideRepo) Revoke(ctx context.Context, overrideID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, o := range r.overrides {
		if o.ID == overrideID {
			r.overrides = append(r.overrides[:i], r.overrides[i+1:]...)
			return nil
		}
	}
	return membership.ErrNotFound
}

func (r *mockOverrideRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*membership.Override
	var purged int64
	for _, o := range r.overrides {
		if o.Expired(now) {
			purged++
			continue
		}
		kept = append(kept, o)
	}
	r.overrides = kept
	return purged, nil
}

type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureRecorder) Log(ctx context.Context, event audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func activeMember(userID, tenantID string, role rbac.Role) *membership.Membership {
	return &membership.Membership{
		ID:       "m-" + userID,
		TenantID: tenantID,
		UserID:   userID,
		UserName: "Test User",
		Role:     role,
		Status:   membership.StatusActive,
	}
}

// TestPurpose: Validates the permission decision path for memberships
// without overrides: role base set governs, tenant scoping holds.
// Scope: Unit Test
// Security: Core authorization decision correctness
func TestHasPermission_RoleBaseSet(t *testing.T) {
	members := newMockMembershipRepo()
	members.add(activeMember("u-worker", "t-acme", rbac.RoleOperative))
	svc := NewService(members, &mockOverrideRepo{}, &captureRecorder{})
	ctx := context.Background()

	ok, err := svc.HasPermission(ctx, "u-worker", "tasks.update", "t-acme")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasPermission(ctx, "u-worker", "financials.read", "t-acme")
	require.NoError(t, err)
	assert.False(t, ok, "OPERATIVE must not see financials")

	// Same user, different tenant: no membership, no permission.
	ok, err = svc.HasPermission(ctx, "u-worker", "tasks.update", "t-other")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestPurpose: Validates that a permission outside the closed namespace
// is denied without touching the store.
// Scope: Unit Test
// Security: Unknown permission strings must fail closed
func TestHasPermission_UnknownPermission(t *testing.T) {
	members := newMockMembershipRepo()
	members.err = errors.New("must not be called")
	svc := NewService(members, &mockOverrideRepo{}, &captureRecorder{})

	ok, err := svc.HasPermission(context.Background(), "u-worker", "spaceships.launch", "t-acme")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPermission_SuspendedMembership(t *testing.T) {
	members := newMockMembershipRepo()
	m := activeMember("u-worker", "t-acme", rbac.RoleCompanyAdmin)
	m.Status = membership.StatusSuspended
	members.add(m)
	svc := NewService(members, &mockOverrideRepo{}, &captureRecorder{})

	ok, err := svc.HasPermission(context.Background(), "u-worker", "projects.read", "t-acme")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestPurpose: Validates override precedence over the role base set in
// both directions, and that expired overrides are ignored.
// Scope: Unit Test
// Security: Explicit grants and denies must win over role defaults
func TestHasPermission_Overrides(t *testing.T) {
	members := newMockMembershipRepo()
	members.add(activeMember("u-worker", "t-acme", rbac.RoleOperative))
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	overrides := &mockOverrideRepo{overrides: []*membership.Override{
		{ID: "o1", TenantID: "t-acme", UserID: "u-worker", Permission: "financials.read", Allow: true, ExpiresAt: &future},
		{ID: "o2", TenantID: "t-acme", UserID: "u-worker", Permission: "tasks.update", Allow: false},
		{ID: "o3", TenantID: "t-acme", UserID: "u-worker", Permission: "reports.export", Allow: true, ExpiresAt: &past},
	}}
	svc := NewService(members, overrides, &captureRecorder{})
	ctx := context.Background()

	// Allow override adds a permission the role lacks.
	ok, err := svc.HasPermission(ctx, "u-worker", "financials.read", "t-acme")
	require.NoError(t, err)
	assert.True(t, ok)

	// Deny override removes a permission the role has.
	ok, err = svc.HasPermission(ctx, "u-worker", "tasks.update", "t-acme")
	require.NoError(t, err)
	assert.False(t, ok)

	// Expired allow falls back to the role set, which lacks it.
	ok, err = svc.HasPermission(ctx, "u-worker", "reports.export", "t-acme")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestPurpose: Validates that store unavailability is indeterminate, not
// a silent deny or allow.
// Scope: Unit Test
// Security: Callers must be able to distinguish outage from denial
func TestHasPermission_StoreFailure(t *testing.T) {
	members := newMockMembershipRepo()
	members.err = errors.New("connection refused")
	svc := NewService(members, &mockOverrideRepo{}, &captureRecorder{})

	ok, err := svc.HasPermission(context.Background(), "u-worker", "projects.read", "t-acme")
	assert.False(t, ok)
	assert.ErrorIs(t, err, security.ErrIndeterminate)
}

func TestGrantOverride(t *testing.T) {
	members := newMockMembershipRepo()
	members.add(activeMember("u-worker", "t-acme", rbac.RoleOperative))
	overrides := &mockOverrideRepo{}
	recorder := &captureRecorder{}
	svc := NewService(members, overrides, recorder)
	ctx := context.Background()

	future := time.Now().Add(24 * time.Hour)
	o, err := svc.GrantOverride(ctx, "u-worker", "t-acme", "financials.read", "u-admin", true, &future)
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)

	ok, err := svc.HasPermission(ctx, "u-worker", "financials.read", "t-acme")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, recorder.events, 1)
	assert.Equal(t, audit.ActionOverrideGranted, recorder.events[0].Action)
	assert.Equal(t, "u-admin", recorder.events[0].ActorUserID)
}

func TestGrantOverride_Rejections(t *testing.T) {
	members := newMockMembershipRepo()
	suspended := activeMember("u-susp", "t-acme", rbac.RoleOperative)
	suspended.Status = membership.StatusSuspended
	members.add(suspended)
	svc := NewService(members, &mockOverrideRepo{}, &captureRecorder{})
	ctx := context.Background()

	// Unknown permission.
	_, err := svc.GrantOverride(ctx, "u-susp", "t-acme", "spaceships.launch", "u-admin", true, nil)
	assert.Error(t, err)

	// No membership in the tenant.
	_, err = svc.GrantOverride(ctx, "u-ghost", "t-acme", "projects.read", "u-admin", true, nil)
	assert.ErrorIs(t, err, membership.ErrNotFound)

	// Inactive membership.
	_, err = svc.GrantOverride(ctx, "u-susp", "t-acme", "projects.read", "u-admin", true, nil)
	assert.ErrorIs(t, err, membership.ErrNotActive)
}

func TestRevokeOverride(t *testing.T) {
	members := newMockMembershipRepo()
	members.add(activeMember("u-worker", "t-acme", rbac.RoleOperative))
	overrides := &mockOverrideRepo{}
	recorder := &captureRecorder{}
	svc := NewService(members, overrides, recorder)
	ctx := context.Background()

	o, err := svc.GrantOverride(ctx, "u-worker", "t-acme", "financials.read", "u-admin", true, nil)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeOverride(ctx, o.ID, "t-acme", "u-admin"))

	ok, err := svc.HasPermission(ctx, "u-worker", "financials.read", "t-acme")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, audit.ActionOverrideRevoked, recorder.events[len(recorder.events)-1].Action)
}

func TestPurgeExpired(t *testing.T) {
	members := newMockMembershipRepo()
	past := time.Now().Add(-time.Hour)
	overrides := &mockOverrideRepo{overrides: []*membership.Override{
		{ID: "o1", TenantID: "t-acme", UserID: "u-worker", Permission: "financials.read", Allow: true, ExpiresAt: &past},
		{ID: "o2", TenantID: "t-acme", UserID: "u-worker", Permission: "tasks.assign", Allow: true},
	}}
	svc := NewService(members, overrides, &captureRecorder{})

	purged, err := svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Len(t, overrides.overrides, 1)
}
