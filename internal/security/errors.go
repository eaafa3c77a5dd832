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

import "errors"

// Operational error taxonomy for the access-control engine. Every one of
// these maps to a 4xx response with a safe message; anything else is a
// 500-class fault logged in full internally and returned opaque.
var (
	// ErrAuthenticationRequired: no usable identity on the request.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrSecurityContextRequired: identity present but incomplete, and the
	// resolution policy is strict.
	ErrSecurityContextRequired = errors.New("security context required")

	// ErrInsufficientRole: the resolved role does not meet the gate's
	// minimum.
	ErrInsufficientRole = errors.New("insufficient role")

	// ErrPermissionDenied: the resolved context lacks a required permission.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrModuleNotEnabled: the tenant's entitlement set is missing a
	// required module. The module package wraps this with the missing list.
	ErrModuleNotEnabled = errors.New("module not enabled")

	// ErrResourceNotFound: the resource does not exist in the caller's
	// tenant. Also used for cross-tenant mismatches so denials never
	// confirm a resource's existence to another tenant.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrIndeterminate: a backing store was unavailable during a check.
	// Every call site must treat this as a denial, never as an allow.
	ErrIndeterminate = errors.New("authorization indeterminate")
)
