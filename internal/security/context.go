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
	"sort"

	"github.com/sitegrid/sitegrid/internal/rbac"
)

// RawIdentity is the already-authenticated identity attached to a request
// by the upstream authentication step. Hints may be absent; the resolver's
// state machine decides what that means under the active policy.
type RawIdentity struct {
	UserID    string
	TenantID  string
	RoleClaim string // role claim from the identity provider, never a client flag
}

// SecurityContext is the resolved, request-scoped bundle of tenant, user,
// role, and permissions. Built once per request by the Resolver and never
// mutated afterwards.
type SecurityContext struct {
	tenantID     string
	userID       string
	userName     string
	role         rbac.Role
	permissions  map[string]bool
	isSuperadmin bool
}

// NewContext builds an immutable security context. The permission slice is
// copied; callers cannot mutate the context through it afterwards.
func NewContext(tenantID, userID, userName string, role rbac.Role, permissions []string, superadmin bool) *SecurityContext {
	set := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		set[p] = true
	}
	return &SecurityContext{
		tenantID:     tenantID,
		userID:       userID,
		userName:     userName,
		role:         role,
		permissions:  set,
		isSuperadmin: superadmin,
	}
}

func (c *SecurityContext) TenantID() string { return c.tenantID }
func (c *SecurityContext) UserID() string   { return c.userID }
func (c *SecurityContext) UserName() string { return c.userName }
func (c *SecurityContext) Role() rbac.Role  { return c.role }

// IsSuperadmin reports whether this is a verified superadmin context.
// It does NOT bypass the ownership guard; cross-tenant administration is
// a separate, explicitly-invoked break-glass path.
func (c *SecurityContext) IsSuperadmin() bool { return c.isSuperadmin }

// Has reports whether the context holds a permission. The wildcard grants
// everything inside the closed namespace.
func (c *SecurityContext) Has(permission string) bool {
	if c.permissions[rbac.Wildcard] {
		return rbac.ValidPermission(permission)
	}
	if !rbac.ValidPermission(permission) {
		return false
	}
	return c.permissions[permission]
}

// Permissions returns the held permissions in sorted order. The returned
// slice is a copy.
func (c *SecurityContext) Permissions() []string {
	out := make([]string, 0, len(c.permissions))
	for p := range c.permissions {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether two contexts resolve to the same identity, role,
// and permission set.
func (c *SecurityContext) Equal(other *SecurityContext) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.tenantID != other.tenantID || c.userID != other.userID ||
		c.role != other.role || c.isSuperadmin != other.isSuperadmin {
		return false
	}
	if len(c.permissions) != len(other.permissions) {
		return false
	}
	for p := range c.permissions {
		if !other.permissions[p] {
			return false
		}
	}
	return true
}
