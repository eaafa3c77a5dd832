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

import (
	"errors"
	"fmt"
)

// Role is one of the fixed, totally ordered tenant roles.
type Role string

// -----------------------------------------------------------------------------
// Role Name Constants
// These are the canonical role labels stored in membership records.
// -----------------------------------------------------------------------------

const (
	RoleReadOnly       Role = "READ_ONLY"
	RoleOperative      Role = "OPERATIVE"
	RoleSupervisor     Role = "SUPERVISOR"
	RoleFinance        Role = "FINANCE"
	RoleProjectManager Role = "PROJECT_MANAGER"
	RoleCompanyAdmin   Role = "COMPANY_ADMIN"
	RoleSuperadmin     Role = "SUPERADMIN"
)

// ErrUnknownRole is returned when a role label is not part of the closed set.
var ErrUnknownRole = errors.New("unknown role")

// roleRanks is the single source of truth for the role order.
// Ranks are strictly increasing across the declared role list.
var roleRanks = map[Role]int{
	RoleReadOnly:       0,
	RoleOperative:      1,
	RoleSupervisor:     2,
	RoleFinance:        3,
	RoleProjectManager: 4,
	RoleCompanyAdmin:   5,
	RoleSuperadmin:     6,
}

// Roles lists every role in ascending rank order.
var Roles = []Role{
	RoleReadOnly,
	RoleOperative,
	RoleSupervisor,
	RoleFinance,
	RoleProjectManager,
	RoleCompanyAdmin,
	RoleSuperadmin,
}

// Rank returns the integer rank of a role. Unrecognized labels rank
// below READ_ONLY so that comparisons against them fail closed.
func Rank(r Role) int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return -1
}

// AtLeast reports whether role holds at least the privileges of min.
// Comparisons are always rank comparisons, never string comparisons.
func AtLeast(role, min Role) bool {
	return Rank(role) >= Rank(min) && Rank(role) >= 0
}

// HigherThan reports whether role strictly outranks other.
func HigherThan(role, other Role) bool {
	return Rank(role) > Rank(other)
}

// ParseRole validates a role label against the closed set.
func ParseRole(label string) (Role, error) {
	r := Role(label)
	if _, ok := roleRanks[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, label)
	}
	return r, nil
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}
