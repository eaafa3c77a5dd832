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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sitegrid/sitegrid/internal/audit"
	"github.com/sitegrid/sitegrid/internal/guard"
	"github.com/sitegrid/sitegrid/internal/id"
	"github.com/sitegrid/sitegrid/internal/module"
	"github.com/sitegrid/sitegrid/internal/observability/logger"
	"github.com/sitegrid/sitegrid/internal/observability/metrics"
	"github.com/sitegrid/sitegrid/internal/permission"
	"github.com/sitegrid/sitegrid/internal/project"
	"github.com/sitegrid/sitegrid/internal/rbac"
	"github.com/sitegrid/sitegrid/internal/security"
	"github.com/sitegrid/sitegrid/internal/tenant"
	"github.com/sitegrid/sitegrid/internal/tenantdb"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	resolver          *security.Resolver
	permissionService *permission.Service
	moduleService     *module.AccessService
	tenantService     *tenant.Service
	auditService      *audit.Service
	guard             *guard.Guard
	router            *tenantdb.Router
	projects          project.Repository

	signingKey []byte
	decisions  *logger.DecisionLogger
	metrics    *metrics.AuthzMetrics
}

// NewHandler creates a new HTTP handler
func NewHandler(
	resolver *security.Resolver,
	permissionService *permission.Service,
	moduleService *module.AccessService,
	tenantService *tenant.Service,
	auditService *audit.Service,
	ownershipGuard *guard.Guard,
	router *tenantdb.Router,
	projects project.Repository,
	signingKey []byte,
	authzMetrics *metrics.AuthzMetrics,
) *Handler {
	return &Handler{
		resolver:          resolver,
		permissionService: permissionService,
		moduleService:     moduleService,
		tenantService:     tenantService,
		auditService:      auditService,
		guard:             ownershipGuard,
		router:            router,
		projects:          projects,
		signingKey:        signingKey,
		decisions:         logger.NewDecisionLogger(slog.Default()),
		metrics:           authzMetrics,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Everything under /api/v1 runs the full authorization pipeline:
	// authenticate, resolve context, then per-route gates.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthnMiddleware)
		r.Use(h.ResolveContextMiddleware)

		r.Get("/me", h.WhoAmI)

		// Gates are chained per route so each request runs them in the
		// pipeline order: permission, then module, then ownership. Group
		// level r.Use would put the group's gate ahead of every
		// per-route gate regardless of that order.
		r.Route("/projects", func(r chi.Router) {
			r.With(
				h.RequirePermission("projects.read"),
				h.RequireModule("projects"),
			).Get("/", h.ListProjects)
			r.With(
				h.RequirePermission("projects.create"),
				h.RequireModule("projects"),
			).Post("/", h.CreateProject)

			r.Route("/{projectID}", func(r chi.Router) {
				r.With(
					h.RequirePermission("projects.read"),
					h.RequireModule("projects"),
					h.RequireOwnership("project", "projectID"),
				).Get("/", h.GetProject)
				r.With(
					h.RequirePermission("projects.delete"),
					h.RequireModule("projects"),
					h.RequireOwnership("project", "projectID"),
				).Delete("/", h.DeleteProject)
			})
		})

		// Tenant administration, COMPANY_ADMIN and above.
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireRole(rbac.RoleCompanyAdmin))

			r.Get("/modules", h.GetModules)
			r.Put("/modules", h.SetModules)

			r.Post("/overrides", h.GrantOverride)
			r.Delete("/overrides/{overrideID}", h.RevokeOverride)

			r.Get("/members", h.ListMembers)
			r.Put("/members/{userID}/role", h.AssignRole)
			r.Post("/members/{userID}/suspend", h.SuspendMember)

			r.With(h.RequirePermission("audit_logs.read")).Get("/audit", h.AuditTimeline)
			r.With(h.RequirePermission("audit_logs.read")).Get("/audit/stats", h.AuditStats)
			r.Post("/audit/purge", h.PurgeAudit)
		})

		// Platform operations, verified superadmin only.
		r.Route("/platform", func(r chi.Router) {
			r.Use(h.RequireRole(rbac.RoleSuperadmin))

			r.Post("/tenants", h.ProvisionTenant)
			r.Get("/tenants", h.ListTenants)
			r.Post("/breakglass", h.OpenBreakGlass)
		})
	})

	return r
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// WhoAmI returns the resolved security context for the caller.
func (h *Handler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())
	if sc == nil {
		respondAuthzError(w, security.ErrSecurityContextRequired)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":       sc.UserID(),
		"user_name":     sc.UserName(),
		"tenant_id":     sc.TenantID(),
		"role":          sc.Role(),
		"permissions":   sc.Permissions(),
		"is_superadmin": sc.IsSuperadmin(),
	})
}

// ListProjects returns the caller tenant's projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())

	handle, err := h.router.GetHandle(r.Context(), sc.TenantID())
	if err != nil {
		respondAuthzError(w, err)
		return
	}
	projects, err := h.projects.List(r.Context(), handle, sc.TenantID())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list projects", logger.Error(err), logger.TenantID(sc.TenantID()))
		respondAuthzError(w, err)
		return
	}
	if projects == nil {
		projects = []*project.Project{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// CreateProject creates a project in the caller's tenant. The tenant id
// always comes from the security context, never the request body.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	handle, err := h.router.GetHandle(r.Context(), sc.TenantID())
	if err != nil {
		respondAuthzError(w, err)
		return
	}

	now := time.Now()
	p := &project.Project{
		ID:        id.NewUUIDv7(),
		TenantID:  sc.TenantID(),
		Name:      req.Name,
		Status:    "active",
		CreatedBy: sc.UserID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.projects.Create(r.Context(), handle, p); err != nil {
		slog.ErrorContext(r.Context(), "failed to create project", logger.Error(err), logger.TenantID(sc.TenantID()))
		respondError(w, http.StatusInternalServerError, "failed to create project")
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// GetProject returns one project. The ownership guard upstream already
// proved it belongs to the caller's tenant.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())
	projectID := chi.URLParam(r, "projectID")

	handle, err := h.router.GetHandle(r.Context(), sc.TenantID())
	if err != nil {
		respondAuthzError(w, err)
		return
	}
	p, err := h.projects.Get(r.Context(), handle, sc.TenantID(), projectID)
	if err != nil {
		respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// DeleteProject deletes a project and audits the deletion.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())
	projectID := chi.URLParam(r, "projectID")

	handle, err := h.router.GetHandle(r.Context(), sc.TenantID())
	if err != nil {
		respondAuthzError(w, err)
		return
	}
	if err := h.projects.Delete(r.Context(), handle, sc.TenantID(), projectID); err != nil {
		respondAuthzError(w, err)
		return
	}

	h.auditService.Log(r.Context(), audit.Event{
		Action:       audit.ActionResourceDeleted,
		TenantID:     sc.TenantID(),
		ActorUserID:  sc.UserID(),
		ActorName:    sc.UserName(),
		ResourceType: "project",
		ResourceID:   projectID,
		Outcome:      audit.OutcomeSuccess,
	})
	w.WriteHeader(http.StatusNoContent)
}

// GetModules returns the caller tenant's enabled modules.
func (h *Handler) GetModules(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())

	modules, err := h.moduleService.GetEnabledModules(r.Context(), sc.TenantID())
	if err != nil {
		respondAuthzError(w, err)
		return
	}
	if modules == nil {
		modules = []module.Module{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"modules": modules})
}

// SetModules replaces the caller tenant's entitlement set.
func (h *Handler) SetModules(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())

	var req struct {
		Modules []string `json:"modules"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	modules, err := parseModules(req.Modules)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.moduleService.SetEnabledModules(r.Context(), sc.TenantID(), sc.UserID(), modules); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to set modules")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"modules": modules})
}

// GrantOverride adds a permission override for a member of the caller's
// tenant.
func (h *Handler) GrantOverride(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())

	var req struct {
		UserID     string     `json:"user_id"`
		Permission string     `json:"permission"`
		Allow      bool       `json:"allow"`
		ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" || req.Permission == "" {
		respondError(w, http.StatusBadRequest, "user_id and permission are required")
		return
	}

	o, err := h.permissionService.GrantOverride(r.Context(), req.UserID, sc.TenantID(), req.Permission, sc.UserID(), req.Allow, req.ExpiresAt)
	if err != nil {
		respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

// RevokeOverride removes a permission override.
func (h *Handler) RevokeOverride(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())
	overrideID := chi.URLParam(r, "overrideID")

	if err := h.permissionService.RevokeOverride(r.Context(), overrideID, sc.TenantID(), sc.UserID()); err != nil {
		respondAuthzError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers returns the caller tenant's memberships.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())

	members, err := h.tenantService.GetTenantMembers(r.Context(), sc.TenantID())
	if err != nil {
		respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"members": members})
}

// AssignRole assigns or updates a member's role in the caller's tenant.
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())
	userID := chi.URLParam(r, "userID")

	var req struct {
		Role     string `json:"role"`
		UserName string `json:"user_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	// SUPERADMIN is never granted through the tenant admin surface.
	if role == rbac.RoleSuperadmin {
		respondError(w, http.StatusBadRequest, "superadmin cannot be assigned through tenant administration")
		return
	}

	if err := h.tenantService.AssignRole(r.Context(), sc.TenantID(), userID, req.UserName, role, sc.UserID()); err != nil {
		respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"user_id": userID, "role": string(role)})
}

// SuspendMember suspends a membership in the caller's tenant.
func (h *Handler) SuspendMember(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())
	userID := chi.URLParam(r, "userID")

	if userID == sc.UserID() {
		respondError(w, http.StatusBadRequest, "cannot suspend your own membership")
		return
	}
	if err := h.tenantService.SuspendMember(r.Context(), sc.TenantID(), userID, sc.UserID()); err != nil {
		respondAuthzError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AuditTimeline returns the caller tenant's audit records, newest first.
func (h *Handler) AuditTimeline(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())
	from, to, limit := timelineParams(r)

	records, err := h.auditService.Timeline(r.Context(), sc.TenantID(), from, to, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read audit timeline")
		return
	}
	if records == nil {
		records = []*audit.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

// AuditStats returns per-action audit counts for the caller's tenant.
func (h *Handler) AuditStats(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())
	from, to, _ := timelineParams(r)

	stats, err := h.auditService.Stats(r.Context(), sc.TenantID(), from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read audit stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"counts": stats})
}

// PurgeAudit truncates the caller tenant's audit trail before a cutoff.
func (h *Handler) PurgeAudit(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())

	var req struct {
		OlderThan time.Time `json:"older_than"`
	}
	if err := decodeJSON(r, &req); err != nil || req.OlderThan.IsZero() {
		respondError(w, http.StatusBadRequest, "older_than is required")
		return
	}

	purged, err := h.auditService.Purge(r.Context(), sc.TenantID(), sc.UserID(), req.OlderThan)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to purge audit records")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"purged": purged})
}

// ProvisionTenant creates a tenant with plan-seeded entitlements.
func (h *Handler) ProvisionTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		Plan          string `json:"plan"`
		AdminUserID   string `json:"admin_user_id"`
		AdminName     string `json:"admin_name"`
		IsolationMode string `json:"isolation_mode"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	mode := tenant.IsolationMode(req.IsolationMode)
	if req.IsolationMode == "" {
		mode = tenant.IsolationShared
	}

	t, err := h.tenantService.ProvisionTenant(r.Context(), req.Name, req.Plan, req.AdminUserID, req.AdminName, mode)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantAlreadyExists) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

// ListTenants lists tenants for platform operators.
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenantService.ListTenants(r.Context(), 100, 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

// OpenBreakGlass opens a time-boxed cross-tenant grant for the caller.
func (h *Handler) OpenBreakGlass(w http.ResponseWriter, r *http.Request) {
	sc := SecurityContextFrom(r.Context())

	var req struct {
		TenantID   string `json:"tenant_id"`
		Reason     string `json:"reason"`
		TTLMinutes int    `json:"ttl_minutes"`
	}
	if err := decodeJSON(r, &req); err != nil || req.TenantID == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	grant, err := h.guard.RequestBreakGlass(r.Context(), sc, req.TenantID, req.Reason, time.Duration(req.TTLMinutes)*time.Minute)
	if err != nil {
		respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, grant)
}

func parseModules(names []string) ([]module.Module, error) {
	modules := make([]module.Module, 0, len(names))
	for _, name := range names {
		m, err := module.ParseModule(name)
		if err != nil {
			return nil, fmt.Errorf("unknown module %q", name)
		}
		modules = append(modules, m)
	}
	return modules, nil
}

func timelineParams(r *http.Request) (from, to time.Time, limit int) {
	from = time.Now().AddDate(0, -1, 0)
	to = time.Now().Add(time.Minute)
	limit = 100

	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		}
	}
	if v := q.Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	return from, to, limit
}
