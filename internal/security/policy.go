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
	"errors"
	"fmt"
)

// ResolutionPolicy decides what happens when a request carries an
// incomplete identity. It is explicit configuration injected at startup,
// never inferred from an ambient environment inside the resolver.
type ResolutionPolicy string

const (
	// PolicyStrict denies incomplete identities. The only valid value in
	// production deployments.
	PolicyStrict ResolutionPolicy = "strict"

	// PolicyPermissiveDev synthesizes a demo context for incomplete
	// identities. Local development only.
	PolicyPermissiveDev ResolutionPolicy = "permissive"
)

// ErrInvalidPolicy is returned for anything that is not exactly "strict"
// or "permissive". There is no default: an unset policy fails startup
// rather than silently shipping the permissive branch.
var ErrInvalidPolicy = errors.New("invalid resolution policy")

// ParsePolicy validates a configured policy value.
func ParsePolicy(value string) (ResolutionPolicy, error) {
	switch ResolutionPolicy(value) {
	case PolicyStrict:
		return PolicyStrict, nil
	case PolicyPermissiveDev:
		return PolicyPermissiveDev, nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidPolicy, value, PolicyStrict, PolicyPermissiveDev)
	}
}

// Demo identity synthesized under PolicyPermissiveDev. Fixed values so
// local runs are reproducible.
const (
	DemoTenantID = "demo-tenant"
	DemoUserID   = "demo-user"
	DemoUserName = "Demo User"
)
