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

package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/sitegrid/sitegrid/internal/id"
	"github.com/sitegrid/sitegrid/internal/observability/logger"
)

// Actions recorded by the engine.
const (
	ActionRoleAssigned      = "role_assigned"
	ActionRoleRevoked       = "role_revoked"
	ActionMemberSuspended   = "member_suspended"
	ActionOverrideGranted   = "override_granted"
	ActionOverrideRevoked   = "override_revoked"
	ActionModulesChanged    = "modules_changed"
	ActionBreakGlassOpened  = "breakglass_opened"
	ActionBreakGlassRevoked = "breakglass_revoked"
	ActionBreakGlassUsed    = "breakglass_used"
	ActionResourceDeleted   = "resource_deleted"
	ActionRetentionPurge    = "retention_purge"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeFailure = "failure"
)

// Event is what callers hand to the recorder.
type Event struct {
	Action       string
	TenantID     string
	ActorUserID  string
	ActorName    string
	ResourceType string
	ResourceID   string
	Outcome      string
	Metadata     map[string]any
	Timestamp    time.Time
}

// Record is the immutable, append-only row persisted for an event.
// Normal application code never updates or deletes records; only the
// role-gated retention job removes them.
type Record struct {
	ID           string
	Timestamp    time.Time
	ActorUserID  string
	ActorName    string
	Action       string
	ResourceType string
	ResourceID   string
	TenantID     string
	Metadata     map[string]any
	Outcome      string
}

// Recorder is the interface services log through.
type Recorder interface {
	Log(ctx context.Context, event Event)
}

// Store defines audit persistence.
type Store interface {
	Append(ctx context.Context, record *Record) error
	Timeline(ctx context.Context, tenantID string, from, to time.Time, limit int) ([]*Record, error)
	CountByAction(ctx context.Context, tenantID string, from, to time.Time) (map[string]int64, error)
	Purge(ctx context.Context, tenantID string, olderThan time.Time) (int64, error)
}

// Service writes audit records and serves read-only projections.
//
// Write policy: audit is best-effort durability. A failed append must not
// fail the business operation it describes, but the failure is surfaced
// on the operational log channel. This is a deliberate trade-off: business
// correctness does not depend on the audit trail, and operators are told
// when the trail has gaps.
type Service struct {
	store Store
}

// NewService creates a new audit service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Log appends one audit record for the event. Never returns an error;
// see the Service write policy.
func (s *Service) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeSuccess
	}

	record := &Record{
		ID:           id.NewUUIDv7(),
		Timestamp:    event.Timestamp,
		ActorUserID:  event.ActorUserID,
		ActorName:    event.ActorName,
		Action:       event.Action,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		TenantID:     event.TenantID,
		Metadata:     redact(event.Metadata),
		Outcome:      event.Outcome,
	}

	if err := s.store.Append(ctx, record); err != nil {
		slog.ErrorContext(ctx, "audit append failed",
			logger.Component("audit"),
			logger.Error(err),
			logger.TenantID(event.TenantID),
			slog.String("action", event.Action),
		)
	}
}

// Timeline returns records for a tenant in [from, to), newest first.
func (s *Service) Timeline(ctx context.Context, tenantID string, from, to time.Time, limit int) ([]*Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.Timeline(ctx, tenantID, from, to, limit)
}

// Stats returns per-action counts for a tenant in [from, to).
func (s *Service) Stats(ctx context.Context, tenantID string, from, to time.Time) (map[string]int64, error) {
	return s.store.CountByAction(ctx, tenantID, from, to)
}

// Purge removes records older than the cutoff for one tenant. Exposed
// only through the role-gated retention route; the purge itself is
// audited so the trail records its own truncation.
func (s *Service) Purge(ctx context.Context, tenantID, actorUserID string, olderThan time.Time) (int64, error) {
	n, err := s.store.Purge(ctx, tenantID, olderThan)
	if err != nil {
		return 0, err
	}
	s.Log(ctx, Event{
		Action:       ActionRetentionPurge,
		TenantID:     tenantID,
		ActorUserID:  actorUserID,
		ResourceType: "audit_logs",
		Outcome:      OutcomeSuccess,
		Metadata:     map[string]any{"purged": n, "older_than": olderThan},
	})
	return n, nil
}

// redact masks metadata values under keys that likely hold secrets.
func redact(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if isSecret(k) {
			v = "[REDACTED]"
		}
		out[k] = v
	}
	return out
}

func isSecret(key string) bool {
	secrets := []string{"password", "secret", "token", "key", "authorization"}
	for _, s := range secrets {
		if key == s {
			return true
		}
	}
	return false
}
