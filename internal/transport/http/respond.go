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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sitegrid/sitegrid/internal/membership"
	"github.com/sitegrid/sitegrid/internal/module"
	"github.com/sitegrid/sitegrid/internal/project"
	"github.com/sitegrid/sitegrid/internal/security"
	"github.com/sitegrid/sitegrid/internal/tenant"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondAuthzError maps authorization errors to HTTP statuses.
//
// Two mappings are deliberate: cross-tenant access is 404, never 403, so
// responses cannot confirm a foreign resource id exists; and an
// indeterminate decision is 503, denied but distinguishable from a
// policy denial so clients know to retry.
func respondAuthzError(w http.ResponseWriter, err error) {
	var notEnabled *module.NotEnabledError

	switch {
	case errors.Is(err, security.ErrAuthenticationRequired):
		respondError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, security.ErrSecurityContextRequired):
		// Identity was presented but is incomplete: the caller is known,
		// just not authorized to proceed without tenant context.
		respondError(w, http.StatusForbidden, "security context could not be established")
	case errors.As(err, &notEnabled):
		respondJSON(w, http.StatusForbidden, map[string]any{
			"error":           "module not enabled",
			"missing_modules": notEnabled.Missing,
		})
	case errors.Is(err, security.ErrModuleNotEnabled):
		respondError(w, http.StatusForbidden, "module not enabled")
	case errors.Is(err, security.ErrInsufficientRole):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, security.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, security.ErrResourceNotFound),
		errors.Is(err, project.ErrNotFound),
		errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, membership.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, security.ErrIndeterminate):
		respondError(w, http.StatusServiceUnavailable, "authorization temporarily unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON decodes a request body with a size cap.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		return forwarded
	}
	// Fallback to RemoteAddr
	return r.RemoteAddr
}
