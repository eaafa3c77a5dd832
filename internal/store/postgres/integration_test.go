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

//go:build integration
// +build integration

package postgres

import (
	"context"
	"testing"

	"github.com/sitegrid/sitegrid/internal/membership"
	"github.com/sitegrid/sitegrid/internal/rbac"
)

// TestPurpose: Validates that the membership repository maintains strict tenant isolation, so a user's role in one tenant is never visible through another tenant's scope.
// Scope: Database Integration Test
// Security: Multi-tenant Data Separation (CWE-284)
// Expected: The same user holds independent memberships per tenant; a lookup scoped to tenant B never returns the tenant A binding.
// Test Case ID: ISO-01
// Metadata:
//   - Category: Tenant
//   - Priority: High
//   - Tags: multi-tenancy, security, data-isolation
func TestMembershipRepository_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Host:         "localhost",
		Port:         "5432",
		User:         "sitegrid",
		Password:     "sitegrid_dev_password",
		Database:     "sitegrid",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 5,
	}

	db, err := New(ctx, cfg)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := NewMembershipRepository(db)

	tenantA := "tenant-a"
	tenantB := "tenant-b"
	userID := "shared-user"

	memberA := &membership.Membership{
		ID:       "member-a",
		TenantID: tenantA,
		UserID:   userID,
		Role:     rbac.RoleCompanyAdmin,
		Status:   membership.StatusActive,
	}

	memberB := &membership.Membership{
		ID:       "member-b",
		TenantID: tenantB,
		UserID:   userID,
		Role:     rbac.RoleReadOnly,
		Status:   membership.StatusActive,
	}

	// 1. Bind the user as admin of tenant A
	if err := repo.Create(ctx, memberA); err != nil {
		t.Fatalf("failed to create membership A: %v", err)
	}
	defer repo.db.pool.Exec(ctx, "DELETE FROM memberships WHERE id = $1", memberA.ID)

	// 2. Bind the same user as read-only in tenant B
	if err := repo.Create(ctx, memberB); err != nil {
		t.Fatalf("failed to create membership B: %v", err)
	}
	defer repo.db.pool.Exec(ctx, "DELETE FROM memberships WHERE id = $1", memberB.ID)

	// 3. Lookup scoped to tenant A must return the admin binding only
	foundA, err := repo.Get(ctx, userID, tenantA)
	if err != nil {
		t.Fatalf("failed to get membership in tenant A: %v", err)
	}
	if foundA.ID != memberA.ID || foundA.Role != rbac.RoleCompanyAdmin {
		t.Errorf("cross-tenant leakage! expected membership A with COMPANY_ADMIN, got %s with %s", foundA.ID, foundA.Role)
	}

	// 4. Lookup scoped to tenant B must return the read-only binding
	foundB, err := repo.Get(ctx, userID, tenantB)
	if err != nil {
		t.Fatalf("failed to get membership in tenant B: %v", err)
	}
	if foundB.ID != memberB.ID || foundB.Role != rbac.RoleReadOnly {
		t.Errorf("cross-tenant leakage! expected membership B with READ_ONLY, got %s with %s", foundB.ID, foundB.Role)
	}

	// 5. A tenant the user never joined yields ErrNotFound
	if _, err := repo.Get(ctx, userID, "tenant-ghost"); err != membership.ErrNotFound {
		t.Errorf("expected ErrNotFound for unjoined tenant, got %v", err)
	}
}
