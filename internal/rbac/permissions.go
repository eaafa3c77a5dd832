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

package rbac

import "strings"

// Permissions are "resource.action" strings over a closed namespace.
// Unknown permission strings are never granted.

// Wildcard grants every permission. Only superadmin contexts carry it,
// and only the security resolver assigns it.
const Wildcard = "*"

// Resources in the permission namespace.
var resources = map[string]bool{
	"projects":         true,
	"tasks":            true,
	"documents":        true,
	"users":            true,
	"companies":        true,
	"financials":       true,
	"reports":          true,
	"safety_incidents": true,
	"timesheets":       true,
	"audit_logs":       true,
}

// Base CRUD actions, plus the explicitly enumerated extras per resource.
var actions = map[string]bool{
	"create": true,
	"read":   true,
	"update": true,
	"delete": true,
}

var extraActions = map[string]bool{
	"users.invite":       true,
	"tasks.assign":       true,
	"reports.export":     true,
	"financials.approve": true,
}

// ValidPermission reports whether p is a member of the closed namespace.
func ValidPermission(p string) bool {
	if extraActions[p] {
		return true
	}
	resource, action, ok := strings.Cut(p, ".")
	if !ok {
		return false
	}
	return resources[resource] && actions[action]
}

// Perm builds a "resource.action" permission string.
func Perm(resource, action string) string {
	return resource + "." + action
}

// -----------------------------------------------------------------------------
// Role Permission Mappings
// These define the base permission set for each role. Membership-level
// overrides are layered on top by the permission service.
// -----------------------------------------------------------------------------

var readOnlyPermissions = []string{
	"projects.read",
	"tasks.read",
	"documents.read",
	"reports.read",
}

// extend copies base into a fresh slice before adding perms, so no role
// set shares a backing array with another. Chained append would alias
// whenever the base happened to have spare capacity.
func extend(base []string, perms ...string) []string {
	out := make([]string, 0, len(base)+len(perms))
	out = append(out, base...)
	return append(out, perms...)
}

var operativePermissions = extend(readOnlyPermissions,
	"tasks.update",
	"timesheets.create",
	"timesheets.read",
	"timesheets.update",
	"safety_incidents.create",
	"safety_incidents.read",
)

var supervisorPermissions = extend(operativePermissions,
	"tasks.create",
	"tasks.assign",
	"tasks.delete",
	"documents.create",
	"documents.update",
	"safety_incidents.update",
	"users.read",
)

var financePermissions = []string{
	"projects.read",
	"reports.read",
	"reports.export",
	"financials.create",
	"financials.read",
	"financials.update",
	"financials.approve",
}

var projectManagerPermissions = extend(supervisorPermissions,
	"projects.create",
	"projects.update",
	"documents.delete",
	"reports.export",
	"financials.read",
	"users.invite",
)

var companyAdminPermissions = extend(projectManagerPermissions,
	"projects.delete",
	"companies.read",
	"companies.update",
	"users.create",
	"users.update",
	"users.delete",
	"financials.create",
	"financials.update",
	"financials.approve",
	"audit_logs.read",
)

var rolePermissions = map[Role][]string{
	RoleReadOnly:       readOnlyPermissions,
	RoleOperative:      operativePermissions,
	RoleSupervisor:     supervisorPermissions,
	RoleFinance:        financePermissions,
	RoleProjectManager: projectManagerPermissions,
	RoleCompanyAdmin:   companyAdminPermissions,
	// SUPERADMIN deliberately absent: superadmin identities bypass the
	// permission service upstream and receive the wildcard from the
	// security resolver.
}

// PermissionsForRole returns a copy of the base permission set for a role,
// deduplicated. Unknown roles get the empty set.
func PermissionsForRole(r Role) []string {
	base := rolePermissions[r]
	seen := make(map[string]bool, len(base))
	out := make([]string, 0, len(base))
	for _, p := range base {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// RoleHasPermission reports whether the role's base set contains p.
// The namespace check runs first so unknown strings are never granted.
func RoleHasPermission(r Role, p string) bool {
	if !ValidPermission(p) {
		return false
	}
	for _, held := range rolePermissions[r] {
		if held == p {
			return true
		}
	}
	return false
}
