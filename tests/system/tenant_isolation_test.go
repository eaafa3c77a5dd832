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

// Package system provides integration tests that run against a real PostgreSQL database.
//
// Test Execution:
//
//	INTEGRATION_TEST=true go test -v ./tests/system/...
//
// Prerequisites:
//
//	docker compose up -d postgres
//
// Test Categories:
//   - TEN-*: Tenant isolation tests
//   - AUT-*: Authorization tests
//   - MOD-*: Module entitlement tests
//   - OWN-*: Resource ownership tests
package system

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitegrid/sitegrid/internal/audit"
	"github.com/sitegrid/sitegrid/internal/guard"
	"github.com/sitegrid/sitegrid/internal/id"
	"github.com/sitegrid/sitegrid/internal/membership"
	"github.com/sitegrid/sitegrid/internal/module"
	"github.com/sitegrid/sitegrid/internal/project"
	"github.com/sitegrid/sitegrid/internal/rbac"
	"github.com/sitegrid/sitegrid/internal/security"
	"github.com/sitegrid/sitegrid/internal/store/postgres"
	"github.com/sitegrid/sitegrid/internal/tenant"
	"github.com/sitegrid/sitegrid/internal/tenantdb"
)

// testDB is the shared database connection for integration tests
var testDB *postgres.DB

// TestMain sets up and tears down the test database connection
func TestMain(m *testing.M) {
	// Skip if not integration test
	if os.Getenv("INTEGRATION_TEST") != "true" {
		os.Exit(0)
	}

	// Setup database
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         getEnvOrDefault("DB_HOST", "localhost"),
		Port:         getEnvOrDefault("DB_PORT", "5432"),
		User:         getEnvOrDefault("DB_USER", "sitegrid"),
		Password:     getEnvOrDefault("DB_PASSWORD", "sitegrid_dev_password"),
		Database:     getEnvOrDefault("DB_NAME", "sitegrid"),
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	testDB = db

	// Apply migrations
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		// Ignore errors for already existing tables
		_ = err
	}

	// Run tests
	code := m.Run()

	// Cleanup
	testDB.Close()
	os.Exit(code)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newServices wires the service graph the way cmd/server does, against
// the shared test database.
func newServices() (*tenant.Service, *security.Resolver, *module.AccessService) {
	membershipRepo := postgres.NewMembershipRepository(testDB)
	overrideRepo := postgres.NewOverrideRepository(testDB)
	entitlementRepo := postgres.NewEntitlementRepository(testDB)
	auditService := audit.NewService(postgres.NewAuditRepository(testDB))

	moduleService := module.NewAccessService(entitlementRepo, auditService, time.Minute)
	tenantService := tenant.NewService(postgres.NewTenantRepository(testDB), membershipRepo, moduleService, auditService)
	resolver := security.NewResolver(membershipRepo, overrideRepo, security.PolicyStrict, 5*time.Second)
	return tenantService, resolver, moduleService
}

// =============================================================================
// TENANT ISOLATION TESTS
// =============================================================================

// TestPurpose: Validates cross-tenant isolation ensures a membership in Tenant A grants nothing in Tenant B.
// Scope: Integration Test
// Security: Multi-tenancy boundary enforcement (prevents cross-tenant access)
// Expected: A user's role in Tenant A is not visible or usable in Tenant B.
// Test Case ID: TEN-01
func TestTenant_Isolation_MembershipInTenantAGrantsNothingInTenantB(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database (set INTEGRATION_TEST=true)")
	}

	ctx := context.Background()
	tenantService, resolver, _ := newServices()

	adminA := "admin-a-" + id.NewUUIDv7()[:8]
	adminB := "admin-b-" + id.NewUUIDv7()[:8]

	tenantA, err := tenantService.ProvisionTenant(ctx, "Tenant A - "+id.NewUUIDv7()[:8], module.PlanStarter, adminA, "Admin A", tenant.IsolationShared)
	require.NoError(t, err, "TEN-01: Failed to create Tenant A")

	tenantB, err := tenantService.ProvisionTenant(ctx, "Tenant B - "+id.NewUUIDv7()[:8], module.PlanStarter, adminB, "Admin B", tenant.IsolationShared)
	require.NoError(t, err, "TEN-01: Failed to create Tenant B")

	assert.NotEqual(t, tenantA.ID, tenantB.ID,
		"TEN-01: Tenants must have unique IDs")

	// Bind a supervisor in Tenant A only
	user := "user-a-" + id.NewUUIDv7()[:8]
	err = tenantService.AssignRole(ctx, tenantA.ID, user, "User A", rbac.RoleSupervisor, adminA)
	require.NoError(t, err, "TEN-01: Failed to assign role in Tenant A")

	// Resolving against Tenant A yields the supervisor context
	scA, err := resolver.Resolve(ctx, security.RawIdentity{UserID: user, TenantID: tenantA.ID})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleSupervisor, scA.Role(),
		"TEN-01: User should resolve as SUPERVISOR in Tenant A")

	// CRITICAL: Resolving the same user against Tenant B must fail closed
	_, err = resolver.Resolve(ctx, security.RawIdentity{UserID: user, TenantID: tenantB.ID})
	assert.ErrorIs(t, err, security.ErrAuthenticationRequired,
		"TEN-01 SECURITY: Tenant A membership MUST NOT resolve in Tenant B (tenant isolation)")
}

// =============================================================================
// AUTHORIZATION TESTS
// =============================================================================

// TestPurpose: Validates that a tenant admin can manage roles within their own tenant.
// Scope: Integration Test
// Security: RBAC enforcement at service layer
// Permissions: COMPANY_ADMIN role
// Expected: Role assignment succeeds and is reflected in the member list.
// Test Case ID: AUT-01
func TestAuthz_CompanyAdmin_CanManageRolesInOwnTenant(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database")
	}

	ctx := context.Background()
	tenantService, _, _ := newServices()

	admin := "admin-" + id.NewUUIDv7()[:8]
	testTenant, err := tenantService.ProvisionTenant(ctx, "Test Tenant - "+id.NewUUIDv7()[:8], module.PlanProfessional, admin, "Admin", tenant.IsolationShared)
	require.NoError(t, err)

	// Admin assigns a finance role
	memberID := "member-" + id.NewUUIDv7()[:8]
	err = tenantService.AssignRole(ctx, testTenant.ID, memberID, "Member", rbac.RoleFinance, admin)
	assert.NoError(t, err,
		"AUT-01: Company admin should be able to assign roles in own tenant")

	// Verify assignment
	members, err := tenantService.GetTenantMembers(ctx, testTenant.ID)
	require.NoError(t, err)
	var found *membership.Membership
	for _, m := range members {
		if m.UserID == memberID {
			found = m
		}
	}
	require.NotNil(t, found, "AUT-01: Member should appear in the tenant roster")
	assert.Equal(t, rbac.RoleFinance, found.Role,
		"AUT-01: Member should hold the assigned role")
}

// TestPurpose: Validates that invalid or malicious role names are rejected during assignment.
// Scope: Integration Test
// Security: Prevents privilege escalation via role name manipulation (e.g. SQL injection or privilege escalation)
// Expected: Returns an error when an invalid role name is used.
// Test Case ID: AUT-02
func TestAuthz_RoleAssignment_InvalidRoleNameIsRejected(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database")
	}

	ctx := context.Background()
	tenantService, _, _ := newServices()

	admin := "role-admin-" + id.NewUUIDv7()[:8]
	testTenant, err := tenantService.ProvisionTenant(ctx, "Role Test - "+id.NewUUIDv7()[:8], module.PlanStarter, admin, "Role Admin", tenant.IsolationShared)
	require.NoError(t, err)

	user := "invalid-role-" + id.NewUUIDv7()[:8]

	// Attempt to assign invalid roles
	invalidRoles := []string{
		"platform_admin",      // Not part of the role enum
		"root",                // Non-existent role
		"",                    // Empty role
		"COMPANY_ADMIN; DROP", // SQL injection attempt
	}

	for _, invalidRole := range invalidRoles {
		err := tenantService.AssignRole(ctx, testTenant.ID, user, "", rbac.Role(invalidRole), admin)
		assert.Error(t, err,
			"AUT-02 SECURITY: Invalid role '%s' should be rejected", invalidRole)
	}
}

// =============================================================================
// MODULE ENTITLEMENT TESTS
// =============================================================================

// TestPurpose: Validates that module entitlements follow the tenant's plan and are enforced per tenant.
// Scope: Integration Test
// Security: Feature entitlement enforcement across tenant boundary
// Expected: A starter tenant is denied financials; an enterprise tenant is not. Denial names the missing modules.
// Test Case ID: MOD-01
func TestModule_Entitlement_FollowsPlanPerTenant(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database")
	}

	ctx := context.Background()
	tenantService, _, moduleService := newServices()

	starter, err := tenantService.ProvisionTenant(ctx, "Starter - "+id.NewUUIDv7()[:8], module.PlanStarter, "sa-"+id.NewUUIDv7()[:8], "SA", tenant.IsolationShared)
	require.NoError(t, err)

	enterprise, err := tenantService.ProvisionTenant(ctx, "Enterprise - "+id.NewUUIDv7()[:8], module.PlanEnterprise, "ea-"+id.NewUUIDv7()[:8], "EA", tenant.IsolationShared)
	require.NoError(t, err)

	// Starter plan carries projects but not financials
	err = moduleService.RequireModules(ctx, starter.ID, module.ModuleProjects)
	assert.NoError(t, err, "MOD-01: Starter tenant should have projects enabled")

	err = moduleService.RequireModules(ctx, starter.ID, module.ModuleFinancials)
	require.Error(t, err, "MOD-01: Starter tenant must be denied financials")
	var notEnabled *module.NotEnabledError
	require.ErrorAs(t, err, &notEnabled)
	assert.Contains(t, notEnabled.Missing, module.ModuleFinancials,
		"MOD-01: Denial must name the missing module")

	// Enterprise tenant is entitled; the starter denial must not bleed over
	err = moduleService.RequireModules(ctx, enterprise.ID, module.ModuleFinancials)
	assert.NoError(t, err, "MOD-01: Enterprise tenant should have financials enabled")
}

// =============================================================================
// RESOURCE OWNERSHIP TESTS
// =============================================================================

// TestPurpose: Validates that a resource created under Tenant A is unreachable through Tenant B's scope, and that denial is indistinguishable from absence.
// Scope: Integration Test
// Security: Object-level authorization (CWE-639, IDOR prevention)
// Expected: The ownership guard returns not-found for both a foreign id and a nonexistent id.
// Test Case ID: OWN-01
func TestOwnership_CrossTenantProjectIsIndistinguishableFromAbsent(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database")
	}

	ctx := context.Background()
	tenantService, resolver, _ := newServices()

	adminA := "own-admin-a-" + id.NewUUIDv7()[:8]
	adminB := "own-admin-b-" + id.NewUUIDv7()[:8]

	tenantA, err := tenantService.ProvisionTenant(ctx, "Owner A - "+id.NewUUIDv7()[:8], module.PlanStarter, adminA, "Admin A", tenant.IsolationShared)
	require.NoError(t, err)
	tenantB, err := tenantService.ProvisionTenant(ctx, "Owner B - "+id.NewUUIDv7()[:8], module.PlanStarter, adminB, "Admin B", tenant.IsolationShared)
	require.NoError(t, err)

	// Create "Project Alpha" under Tenant A through the tenant router
	router := tenantdb.NewRouter(postgres.NewTenantRepository(testDB), testDB.Pool(), tenantdb.PgxOpener)
	defer router.Close()

	handle, err := router.GetHandle(ctx, tenantA.ID)
	require.NoError(t, err)

	projects := postgres.NewProjectRepository()
	alpha := &project.Project{
		ID:        id.NewUUIDv7(),
		TenantID:  tenantA.ID,
		Name:      "Project Alpha",
		CreatedBy: adminA,
	}
	require.NoError(t, projects.Create(ctx, handle, alpha))
	defer testDB.Pool().Exec(ctx, "DELETE FROM projects WHERE id = $1", alpha.ID)

	auditService := audit.NewService(postgres.NewAuditRepository(testDB))
	ownershipGuard := guard.NewGuard(postgres.NewResourceLookup(testDB), postgres.NewBreakGlassRepository(testDB), auditService)

	scA, err := resolver.Resolve(ctx, security.RawIdentity{UserID: adminA, TenantID: tenantA.ID})
	require.NoError(t, err)
	scB, err := resolver.Resolve(ctx, security.RawIdentity{UserID: adminB, TenantID: tenantB.ID})
	require.NoError(t, err)

	// Owner passes
	assert.NoError(t, ownershipGuard.Check(ctx, scA, "project", alpha.ID),
		"OWN-01: Owner tenant should pass the ownership guard")

	// CRITICAL: Tenant B sees not-found, identical to a nonexistent id
	errForeign := ownershipGuard.Check(ctx, scB, "project", alpha.ID)
	errGhost := ownershipGuard.Check(ctx, scB, "project", id.NewUUIDv7())
	assert.True(t, errors.Is(errForeign, security.ErrResourceNotFound),
		"OWN-01 SECURITY: Foreign resource MUST read as not found")
	assert.True(t, errors.Is(errGhost, security.ErrResourceNotFound),
		"OWN-01 SECURITY: Nonexistent resource MUST read as not found")
	assert.Equal(t, errors.Is(errForeign, security.ErrResourceNotFound), errors.Is(errGhost, security.ErrResourceNotFound),
		"OWN-01 SECURITY: Denial must be indistinguishable from absence")
}
