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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sitegrid/sitegrid/internal/observability/logger"
	"github.com/sitegrid/sitegrid/internal/rbac"
	"github.com/sitegrid/sitegrid/internal/security"
)

// Authorization pipeline order, outermost first:
// authenticate -> resolve context -> role gate -> permission gate ->
// module gate -> ownership guard -> handler.
// Tenant context comes EXCLUSIVELY from the verified token; the
// X-Tenant-ID header is rejected on authenticated routes.

// publicPaths need no authentication. Everything else fails closed.
var publicPaths = []string{
	"/health",
	"/api/v1/auth/",
	"/api/v1/invitations/accept",
	"/shared/",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
		} else if path == p {
			return true
		}
	}
	return false
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// tokenClaims is the verified JWT payload the authentication step trusts.
// The role claim is a hint from the identity provider; the resolver
// re-derives the effective role from the membership store.
type tokenClaims struct {
	TenantID  string `json:"tenant_id"`
	RoleClaim string `json:"role"`
	jwt.RegisteredClaims
}

// AuthnMiddleware verifies the bearer token and attaches the raw
// identity. Public paths pass through untouched; everything else
// without a valid token is 401.
func (h *Handler) AuthnMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			respondAuthzError(w, security.ErrAuthenticationRequired)
			return
		}

		claims := &tokenClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return h.signingKey, nil
		})
		if err != nil || !token.Valid {
			respondAuthzError(w, security.ErrAuthenticationRequired)
			return
		}

		// Tenant context comes from the verified token only. A client
		// supplying X-Tenant-ID on an authenticated request is trying to
		// steer tenancy and is refused outright.
		if r.Header.Get("X-Tenant-ID") != "" {
			slog.WarnContext(r.Context(), "tenant header rejected on authenticated route",
				logger.UserID(claims.Subject),
				logger.RemoteAddr(r.RemoteAddr),
			)
			respondError(w, http.StatusBadRequest, "X-Tenant-ID header is not allowed; tenant is derived from the token")
			return
		}

		identity := security.RawIdentity{
			UserID:    claims.Subject,
			TenantID:  claims.TenantID,
			RoleClaim: claims.RoleClaim,
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// ResolveContextMiddleware builds the security context for the request.
// Handlers downstream can rely on SecurityContextFrom returning non-nil.
func (h *Handler) ResolveContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		identity, ok := identityFrom(r.Context())
		if !ok {
			respondAuthzError(w, security.ErrAuthenticationRequired)
			return
		}

		start := time.Now()
		sc, err := h.resolver.Resolve(r.Context(), identity)
		if err != nil {
			h.metrics.RecordResolve(r.Context(), time.Since(start).Seconds(), "denied")
			// Only store failures are indeterminate; a missing or
			// suspended membership is an ordinary denial.
			if errors.Is(err, security.ErrIndeterminate) {
				h.decisions.Indeterminate(r.Context(), "resolve", identity.UserID, identity.TenantID, err)
			} else {
				h.decisions.Denied(r.Context(), "resolve", identity.UserID, identity.TenantID, err.Error())
			}
			respondAuthzError(w, err)
			return
		}
		h.metrics.RecordResolve(r.Context(), time.Since(start).Seconds(), "resolved")

		next.ServeHTTP(w, r.WithContext(withSecurityContext(r.Context(), sc)))
	})
}

// RequireRole admits contexts whose role ranks at or above min. The
// denial names the requirement, not the caller's role.
func (h *Handler) RequireRole(min rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := SecurityContextFrom(r.Context())
			if sc == nil {
				respondAuthzError(w, security.ErrSecurityContextRequired)
				return
			}
			if !rbac.AtLeast(sc.Role(), min) {
				h.metrics.RecordDecision(r.Context(), "role", "denied")
				h.decisions.Denied(r.Context(), "role", sc.UserID(), sc.TenantID(), "requires "+string(min))
				respondAuthzError(w, fmt.Errorf("%w: requires %s", security.ErrInsufficientRole, min))
				return
			}
			h.metrics.RecordDecision(r.Context(), "role", "granted")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyRole admits contexts holding any of the listed roles exactly.
func (h *Handler) RequireAnyRole(roles ...rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := SecurityContextFrom(r.Context())
			if sc == nil {
				respondAuthzError(w, security.ErrSecurityContextRequired)
				return
			}
			for _, role := range roles {
				if sc.Role() == role {
					h.metrics.RecordDecision(r.Context(), "role", "granted")
					next.ServeHTTP(w, r)
					return
				}
			}
			h.metrics.RecordDecision(r.Context(), "role", "denied")
			h.decisions.Denied(r.Context(), "role", sc.UserID(), sc.TenantID(), "role not in allowed set")
			respondAuthzError(w, fmt.Errorf("%w: requires one of %v", security.ErrInsufficientRole, roles))
		})
	}
}

// RequirePermission admits contexts holding the permission.
func (h *Handler) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := SecurityContextFrom(r.Context())
			if sc == nil {
				respondAuthzError(w, security.ErrSecurityContextRequired)
				return
			}
			if !sc.Has(permission) {
				h.metrics.RecordDecision(r.Context(), "permission", "denied")
				h.decisions.Log(r.Context(), logger.DecisionEvent{
					Gate:       "permission",
					UserID:     sc.UserID(),
					TenantID:   sc.TenantID(),
					Permission: permission,
					Decision:   "denied",
				})
				respondAuthzError(w, fmt.Errorf("%w: requires %s", security.ErrPermissionDenied, permission))
				return
			}
			h.metrics.RecordDecision(r.Context(), "permission", "granted")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireModule admits tenants with every listed module enabled. An
// entitlement store failure denies with 503, never allows.
func (h *Handler) RequireModule(modules ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := SecurityContextFrom(r.Context())
			if sc == nil {
				respondAuthzError(w, security.ErrSecurityContextRequired)
				return
			}

			required, err := parseModules(modules)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "misconfigured module gate")
				return
			}
			if err := h.moduleService.RequireModules(r.Context(), sc.TenantID(), required...); err != nil {
				h.metrics.RecordDecision(r.Context(), "module", "denied")
				h.decisions.Log(r.Context(), logger.DecisionEvent{
					Gate:     "module",
					UserID:   sc.UserID(),
					TenantID: sc.TenantID(),
					Module:   strings.Join(modules, ","),
					Decision: "denied",
					Reason:   err.Error(),
				})
				respondAuthzError(w, err)
				return
			}
			h.metrics.RecordDecision(r.Context(), "module", "granted")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyModule admits tenants with at least one listed module.
func (h *Handler) RequireAnyModule(modules ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := SecurityContextFrom(r.Context())
			if sc == nil {
				respondAuthzError(w, security.ErrSecurityContextRequired)
				return
			}

			required, err := parseModules(modules)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "misconfigured module gate")
				return
			}
			ok, err := h.moduleService.HasAnyModule(r.Context(), sc.TenantID(), required...)
			if err != nil {
				respondAuthzError(w, err)
				return
			}
			if !ok {
				h.metrics.RecordDecision(r.Context(), "module", "denied")
				respondAuthzError(w, security.ErrModuleNotEnabled)
				return
			}
			h.metrics.RecordDecision(r.Context(), "module", "granted")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnership verifies the {urlParam} resource belongs to the
// caller's tenant before the handler runs. Cross-tenant ids come back
// as 404.
func (h *Handler) RequireOwnership(resourceType, urlParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := SecurityContextFrom(r.Context())
			if sc == nil {
				respondAuthzError(w, security.ErrSecurityContextRequired)
				return
			}

			resourceID := chi.URLParam(r, urlParam)
			if err := h.guard.Check(r.Context(), sc, resourceType, resourceID); err != nil {
				h.metrics.RecordDecision(r.Context(), "ownership", "denied")
				h.decisions.Log(r.Context(), logger.DecisionEvent{
					Gate:     "ownership",
					UserID:   sc.UserID(),
					TenantID: sc.TenantID(),
					Resource: resourceType + "/" + resourceID,
					Decision: "denied",
				})
				respondAuthzError(w, err)
				return
			}
			h.metrics.RecordDecision(r.Context(), "ownership", "granted")
			next.ServeHTTP(w, r)
		})
	}
}
