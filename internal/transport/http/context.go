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

package http

import (
	"context"

	"github.com/sitegrid/sitegrid/internal/security"
)

type contextKey string

const (
	identityKey        contextKey = "raw_identity"
	securityContextKey contextKey = "security_context"
)

// withIdentity attaches the authenticated raw identity to the request
// context. Only the authentication middleware writes it.
func withIdentity(ctx context.Context, identity security.RawIdentity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// identityFrom retrieves the raw identity set by the authentication
// middleware.
func identityFrom(ctx context.Context) (security.RawIdentity, bool) {
	identity, ok := ctx.Value(identityKey).(security.RawIdentity)
	return identity, ok
}

// withSecurityContext attaches the resolved security context. Only the
// resolution middleware writes it.
func withSecurityContext(ctx context.Context, sc *security.SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey, sc)
}

// SecurityContextFrom retrieves the resolved security context. Handlers
// behind the resolution middleware can rely on it being present; nil
// means the request never passed resolution.
func SecurityContextFrom(ctx context.Context) *security.SecurityContext {
	if sc, ok := ctx.Value(securityContextKey).(*security.SecurityContext); ok {
		return sc
	}
	return nil
}

// GetUserID retrieves the resolved user id from context.
func GetUserID(ctx context.Context) string {
	if sc := SecurityContextFrom(ctx); sc != nil {
		return sc.UserID()
	}
	return ""
}

// GetTenantID retrieves the resolved tenant id from context.
func GetTenantID(ctx context.Context) string {
	if sc := SecurityContextFrom(ctx); sc != nil {
		return sc.TenantID()
	}
	return ""
}
