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

package module

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sitegrid/sitegrid/internal/audit"
	"github.com/sitegrid/sitegrid/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEntitlementRepo counts backing-store reads so tests can assert on
// cache behavior.
type mockEntitlementRepo struct {
	mu      sync.Mutex
	modules map[string][]Module
	reads   atomic.Int64
	err     error
	delay   time.Duration

	// When set, reads park here after loading their result so tests can
	// hold a refresh in flight while something else mutates the store.
	block chan struct{}
}

func newMockEntitlementRepo() *mockEntitlementRepo {
	return &mockEntitlementRepo{modules: make(map[string][]Module)}
}

func (m *mockEntitlementRepo) GetEnabledModules(ctx context.Context, tenantID string) ([]Module, error) {
	m.reads.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	mods := m.modules[tenantID]
	m.mu.Unlock()
	if m.block != nil {
		<-m.block
	}
	return mods, nil
}

func (m *mockEntitlementRepo) SetEnabledModules(ctx context.Context, tenantID string, modules []Module) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules[tenantID] = modules
	return nil
}

// nopRecorder discards audit events.
type nopRecorder struct{}

func (nopRecorder) Log(ctx context.Context, event audit.Event) {}

// captureRecorder keeps logged events for assertions.
type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureRecorder) Log(ctx context.Context, event audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// TestPurpose: Validates module checks against the entitlement set: a
// module outside the set is false immediately after cache population and
// stays false on cached reads.
// Scope: Unit Test
// Security: Feature gating correctness
func TestModuleAccess_HasModule(t *testing.T) {
	repo := newMockEntitlementRepo()
	repo.modules["t-acme"] = []Module{ModuleProjects, ModuleTasks}
	svc := NewAccessService(repo, nopRecorder{}, time.Minute)
	ctx := context.Background()

	has, err := svc.HasModule(ctx, "t-acme", ModuleProjects)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = svc.HasModule(ctx, "t-acme", ModuleFinancials)
	require.NoError(t, err)
	assert.False(t, has)

	// Cached read: still false, no extra store read.
	before := repo.reads.Load()
	has, err = svc.HasModule(ctx, "t-acme", ModuleFinancials)
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, before, repo.reads.Load())
}

func TestModuleAccess_AllAndAny(t *testing.T) {
	repo := newMockEntitlementRepo()
	repo.modules["t-acme"] = []Module{ModuleProjects, ModuleTasks, ModuleSafety}
	svc := NewAccessService(repo, nopRecorder{}, time.Minute)
	ctx := context.Background()

	all, err := svc.HasAllModules(ctx, "t-acme", ModuleProjects, ModuleTasks)
	require.NoError(t, err)
	assert.True(t, all)

	all, err = svc.HasAllModules(ctx, "t-acme", ModuleProjects, ModuleFinancials)
	require.NoError(t, err)
	assert.False(t, all)

	any, err := svc.HasAnyModule(ctx, "t-acme", ModuleFinancials, ModuleSafety)
	require.NoError(t, err)
	assert.True(t, any)

	any, err = svc.HasAnyModule(ctx, "t-acme", ModuleFinancials, ModuleAnalytics)
	require.NoError(t, err)
	assert.False(t, any)
}

// TestPurpose: Validates that RequireModules names every missing module
// and matches security.ErrModuleNotEnabled.
// Scope: Unit Test
func TestModuleAccess_RequireModules(t *testing.T) {
	repo := newMockEntitlementRepo()
	repo.modules["t-acme"] = []Module{ModuleProjects}
	svc := NewAccessService(repo, nopRecorder{}, time.Minute)

	err := svc.RequireModules(context.Background(), "t-acme", ModuleProjects)
	assert.NoError(t, err)

	err = svc.RequireModules(context.Background(), "t-acme", ModuleFinancials, ModuleSafety)
	require.Error(t, err)
	assert.ErrorIs(t, err, security.ErrModuleNotEnabled)
	var notEnabled *NotEnabledError
	require.ErrorAs(t, err, &notEnabled)
	assert.ElementsMatch(t, []Module{ModuleFinancials, ModuleSafety}, notEnabled.Missing)
}

// TestPurpose: Validates that N concurrent cold-cache reads for the same
// tenant collapse into exactly one backing-store read, all returning the
// same result.
// Scope: Unit Test (concurrency)
// Security: Cache stampede protection
func TestModuleAccess_ConcurrentMisses_Coalesce(t *testing.T) {
	repo := newMockEntitlementRepo()
	repo.modules["t-acme"] = []Module{ModuleProjects, ModuleTasks}
	repo.delay = 20 * time.Millisecond
	svc := NewAccessService(repo, nopRecorder{}, time.Minute)

	const n = 32
	var wg sync.WaitGroup
	results := make([][]Module, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.GetEnabledModules(context.Background(), "t-acme")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), repo.reads.Load(), "concurrent misses must coalesce into one read")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.ElementsMatch(t, []Module{ModuleProjects, ModuleTasks}, results[i])
	}
}

// TestPurpose: Validates explicit invalidation: after SetEnabledModules,
// the next read sees the new set without waiting for TTL expiry.
// Scope: Unit Test
// Security: Entitlement changes must be visible promptly after admin action
func TestModuleAccess_MutationInvalidatesCache(t *testing.T) {
	repo := newMockEntitlementRepo()
	repo.modules["t-acme"] = []Module{ModuleProjects}
	recorder := &captureRecorder{}
	svc := NewAccessService(repo, recorder, time.Hour) // TTL long enough to never expire in-test
	ctx := context.Background()

	has, err := svc.HasModule(ctx, "t-acme", ModuleFinancials)
	require.NoError(t, err)
	assert.False(t, has)

	err = svc.SetEnabledModules(ctx, "t-acme", "u-admin", []Module{ModuleProjects, ModuleFinancials})
	require.NoError(t, err)

	has, err = svc.HasModule(ctx, "t-acme", ModuleFinancials)
	require.NoError(t, err)
	assert.True(t, has, "mutation must invalidate the cache")

	require.Len(t, recorder.events, 1)
	assert.Equal(t, audit.ActionModulesChanged, recorder.events[0].Action)
}

// TestPurpose: Validates that ClearCache forces a fresh backing-store read.
// Scope: Unit Test
func TestModuleAccess_ClearCache(t *testing.T) {
	repo := newMockEntitlementRepo()
	repo.modules["t-acme"] = []Module{ModuleProjects}
	svc := NewAccessService(repo, nopRecorder{}, time.Hour)
	ctx := context.Background()

	_, err := svc.GetEnabledModules(ctx, "t-acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1), repo.reads.Load())

	_, err = svc.GetEnabledModules(ctx, "t-acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1), repo.reads.Load(), "second read served from cache")

	svc.ClearCache("t-acme")
	_, err = svc.GetEnabledModules(ctx, "t-acme")
	require.NoError(t, err)
	assert.Equal(t, int64(2), repo.reads.Load(), "cleared cache must reload")
}

// TestPurpose: Validates that a refresh racing a mutation cannot
// repopulate the cache with the pre-mutation entitlement set after the
// mutation already invalidated it. The racing caller may still see the
// old set it read, but the next read must hit the store and return the
// new set, not a stale cache refill.
// Scope: Unit Test (concurrency)
// Security: Entitlement revocation must not be resurrected by an
// in-flight refresh
func TestModuleAccess_RefreshRacingMutation_DoesNotPinStaleSet(t *testing.T) {
	repo := newMockEntitlementRepo()
	repo.modules["t-acme"] = []Module{ModuleProjects, ModuleFinancials}
	repo.block = make(chan struct{})
	svc := NewAccessService(repo, nopRecorder{}, time.Hour)
	ctx := context.Background()

	inFlight := make(chan []Module, 1)
	go func() {
		mods, err := svc.GetEnabledModules(ctx, "t-acme")
		assert.NoError(t, err)
		inFlight <- mods
	}()

	// Wait until the refresh has read the old set and is parked in the
	// store call.
	require.Eventually(t, func() bool { return repo.reads.Load() == 1 },
		time.Second, time.Millisecond)

	// The mutation lands, and invalidates, while the refresh is in flight.
	require.NoError(t, svc.SetEnabledModules(ctx, "t-acme", "u-admin", []Module{ModuleProjects}))
	close(repo.block)

	got := <-inFlight
	assert.ElementsMatch(t, []Module{ModuleProjects, ModuleFinancials}, got,
		"the racing caller sees the set that was current when it asked")

	repo.block = nil
	mods, err := svc.GetEnabledModules(ctx, "t-acme")
	require.NoError(t, err)
	assert.ElementsMatch(t, []Module{ModuleProjects}, mods,
		"post-mutation read must come from the store, not a stale refill")
	assert.Equal(t, int64(2), repo.reads.Load())
}

// TestPurpose: Validates that a store failure surfaces as indeterminate
// and is not cached.
// Scope: Unit Test
// Security: Fail-closed on entitlement store unavailability
func TestModuleAccess_StoreFailure_Indeterminate(t *testing.T) {
	repo := newMockEntitlementRepo()
	repo.err = errors.New("connection refused")
	svc := NewAccessService(repo, nopRecorder{}, time.Minute)

	_, err := svc.GetEnabledModules(context.Background(), "t-acme")
	assert.ErrorIs(t, err, security.ErrIndeterminate)

	// Recovery: once the store is healthy the next read succeeds.
	repo.err = nil
	repo.modules["t-acme"] = []Module{ModuleProjects}
	mods, err := svc.GetEnabledModules(context.Background(), "t-acme")
	require.NoError(t, err)
	assert.Equal(t, []Module{ModuleProjects}, mods)
}

func TestModuleAccess_RejectsUnknownModuleOnMutation(t *testing.T) {
	repo := newMockEntitlementRepo()
	svc := NewAccessService(repo, nopRecorder{}, time.Minute)

	err := svc.SetEnabledModules(context.Background(), "t-acme", "u-admin", []Module{"warp_drive"})
	assert.Error(t, err)
}

func TestModule_ModulesForPlan(t *testing.T) {
	assert.ElementsMatch(t,
		[]Module{ModuleProjects, ModuleTasks, ModuleDocuments},
		ModulesForPlan(PlanStarter))
	assert.Len(t, ModulesForPlan(PlanEnterprise), 10)
	// Unknown plans fall back to starter.
	assert.ElementsMatch(t, ModulesForPlan(PlanStarter), ModulesForPlan("free-beer"))
}
