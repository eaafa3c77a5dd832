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

package logger

import (
	"context"
	"log/slog"
)

// DecisionEvent describes one authorization decision on the operational
// log channel. This is observability only; the durable audit trail is
// the audit service's job.
type DecisionEvent struct {
	Gate       string // role, permission, module, ownership
	UserID     string
	TenantID   string
	Role       string
	Permission string
	Module     string
	Resource   string
	Decision   string // granted, denied, indeterminate
	Reason     string
}

// DecisionLogger logs authorization decisions with consistent attributes.
type DecisionLogger struct {
	logger *slog.Logger
}

// NewDecisionLogger creates a new decision logger
func NewDecisionLogger(logger *slog.Logger) *DecisionLogger {
	return &DecisionLogger{
		logger: logger.With(Component("authz")),
	}
}

// Log logs one decision event
func (d *DecisionLogger) Log(ctx context.Context, event DecisionEvent) {
	attrs := []slog.Attr{
		slog.String("gate", event.Gate),
		slog.String("decision", event.Decision),
	}

	if event.UserID != "" {
		attrs = append(attrs, UserID(event.UserID))
	}
	if event.TenantID != "" {
		attrs = append(attrs, TenantID(event.TenantID))
	}
	if event.Role != "" {
		attrs = append(attrs, Role(event.Role))
	}
	if event.Permission != "" {
		attrs = append(attrs, Permission(event.Permission))
	}
	if event.Module != "" {
		attrs = append(attrs, Module(event.Module))
	}
	if event.Resource != "" {
		attrs = append(attrs, slog.String("resource", event.Resource))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	level := slog.LevelInfo
	if event.Decision != "granted" {
		level = slog.LevelWarn
	}
	d.logger.LogAttrs(ctx, level, "authz_decision", attrs...)
}

// Granted logs a passing gate check at info level.
func (d *DecisionLogger) Granted(ctx context.Context, gate, userID, tenantID string) {
	d.Log(ctx, DecisionEvent{Gate: gate, UserID: userID, TenantID: tenantID, Decision: "granted"})
}

// Denied logs a failed gate check with the requirement that failed.
func (d *DecisionLogger) Denied(ctx context.Context, gate, userID, tenantID, reason string) {
	d.Log(ctx, DecisionEvent{Gate: gate, UserID: userID, TenantID: tenantID, Decision: "denied", Reason: reason})
}

// Indeterminate logs a gate that could not reach a decision; callers
// have already denied the request.
func (d *DecisionLogger) Indeterminate(ctx context.Context, gate, userID, tenantID string, err error) {
	d.logger.LogAttrs(ctx, slog.LevelError, "authz_decision",
		slog.String("gate", gate),
		slog.String("decision", "indeterminate"),
		UserID(userID),
		TenantID(tenantID),
		Error(err),
	)
}
