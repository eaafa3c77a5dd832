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
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/sitegrid/sitegrid/internal/audit"
	"github.com/sitegrid/sitegrid/internal/security"
)

// DefaultCacheTTL is the passive expiry for cached entitlement sets.
const DefaultCacheTTL = 5 * time.Minute

// cacheSize bounds the entitlement cache; one entry per active tenant.
const cacheSize = 4096

// EntitlementRepository defines persistence for per-tenant module sets.
type EntitlementRepository interface {
	// GetEnabledModules loads the entitlement set for a tenant.
	GetEnabledModules(ctx context.Context, tenantID string) ([]Module, error)

	// SetEnabledModules replaces the entitlement set for a tenant.
	SetEnabledModules(ctx context.Context, tenantID string, modules []Module) error
}

// AccessService answers per-tenant module entitlement checks.
//
// Entitlements are cached per tenant with a TTL; concurrent misses for
// the same tenant collapse into a single backing-store read. The cache is
// owned by the service instance, never package state, so tests construct
// fresh instances per case.
type AccessService struct {
	repo    EntitlementRepository
	auditor audit.Recorder
	cache   *lru.LRU[string, []Module]
	group   singleflight.Group

	// gens invalidates in-flight refreshes: a coalesced read snapshots
	// the tenant's generation before hitting the store and only caches
	// the result if no invalidation bumped it in between. Without this,
	// a refresh racing SetEnabledModules could re-cache the pre-mutation
	// set after ClearCache already ran, pinning it until TTL expiry.
	mu   sync.Mutex
	gens map[string]uint64
}

// NewAccessService creates a module access service. ttl <= 0 selects
// DefaultCacheTTL.
func NewAccessService(repo EntitlementRepository, auditor audit.Recorder, ttl time.Duration) *AccessService {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &AccessService{
		repo:    repo,
		auditor: auditor,
		cache:   lru.NewLRU[string, []Module](cacheSize, nil, ttl),
		gens:    make(map[string]uint64),
	}
}

// GetEnabledModules returns the tenant's entitlement set, served from
// cache when fresh. A store failure surfaces as security.ErrIndeterminate.
func (s *AccessService) GetEnabledModules(ctx context.Context, tenantID string) ([]Module, error) {
	if mods, ok := s.cache.Get(tenantID); ok {
		return mods, nil
	}

	// Coalesce a stampede of cold-cache requests for the same tenant into
	// one backing-store read.
	v, err, _ := s.group.Do(tenantID, func() (any, error) {
		if mods, ok := s.cache.Get(tenantID); ok {
			return mods, nil
		}
		gen := s.generation(tenantID)
		mods, err := s.repo.GetEnabledModules(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("%w: entitlement lookup: %v", security.ErrIndeterminate, err)
		}
		// Cache only if no invalidation happened while we were reading.
		// The caller still gets the set it read either way.
		s.mu.Lock()
		if s.gens[tenantID] == gen {
			s.cache.Add(tenantID, mods)
		}
		s.mu.Unlock()
		return mods, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Module), nil
}

// HasModule reports whether the tenant has one module enabled.
func (s *AccessService) HasModule(ctx context.Context, tenantID string, m Module) (bool, error) {
	enabled, err := s.GetEnabledModules(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return containsModule(enabled, m), nil
}

// HasAllModules reports whether every listed module is enabled.
func (s *AccessService) HasAllModules(ctx context.Context, tenantID string, modules ...Module) (bool, error) {
	enabled, err := s.GetEnabledModules(ctx, tenantID)
	if err != nil {
		return false, err
	}
	for _, m := range modules {
		if !containsModule(enabled, m) {
			return false, nil
		}
	}
	return true, nil
}

// HasAnyModule reports whether at least one listed module is enabled.
func (s *AccessService) HasAnyModule(ctx context.Context, tenantID string, modules ...Module) (bool, error) {
	enabled, err := s.GetEnabledModules(ctx, tenantID)
	if err != nil {
		return false, err
	}
	for _, m := range modules {
		if containsModule(enabled, m) {
			return true, nil
		}
	}
	return false, nil
}

// RequireModules returns a NotEnabledError naming every missing module.
func (s *AccessService) RequireModules(ctx context.Context, tenantID string, modules ...Module) error {
	enabled, err := s.GetEnabledModules(ctx, tenantID)
	if err != nil {
		return err
	}
	var missing []Module
	for _, m := range modules {
		if !containsModule(enabled, m) {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		return &NotEnabledError{TenantID: tenantID, Missing: missing}
	}
	return nil
}

// ClearCache drops the cached entitlement set for a tenant and fences
// off in-flight refreshes that read before the drop. Any code path
// mutating entitlements outside SetEnabledModules must call this.
func (s *AccessService) ClearCache(tenantID string) {
	s.mu.Lock()
	s.gens[tenantID]++
	s.cache.Remove(tenantID)
	s.mu.Unlock()
}

func (s *AccessService) generation(tenantID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[tenantID]
}

// SetEnabledModules is the entitlement mutation API. It validates the
// closed enum, persists, invalidates the cache, and audits. Invalidation
// is a side effect of the mutation itself, not a caller obligation.
func (s *AccessService) SetEnabledModules(ctx context.Context, tenantID, actorUserID string, modules []Module) error {
	for _, m := range modules {
		if !m.Valid() {
			return fmt.Errorf("unknown module %q", m)
		}
	}

	if err := s.repo.SetEnabledModules(ctx, tenantID, modules); err != nil {
		return fmt.Errorf("failed to set enabled modules: %w", err)
	}
	s.ClearCache(tenantID)

	labels := make([]string, len(modules))
	for i, m := range modules {
		labels[i] = string(m)
	}
	s.auditor.Log(ctx, audit.Event{
		Action:       audit.ActionModulesChanged,
		TenantID:     tenantID,
		ActorUserID:  actorUserID,
		ResourceType: "module_entitlement",
		Outcome:      audit.OutcomeSuccess,
		Metadata:     map[string]any{"modules": labels},
	})
	return nil
}

func containsModule(list []Module, m Module) bool {
	for _, have := range list {
		if have == m {
			return true
		}
	}
	return false
}
