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

package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthzMetrics instruments the authorization pipeline.
type AuthzMetrics struct {
	decisions       metric.Int64Counter
	resolveDuration metric.Float64Histogram
}

// NewAuthzMetrics registers the authorization instruments on the meter.
func NewAuthzMetrics(m *Meter) (*AuthzMetrics, error) {
	if m == nil {
		return nil, nil
	}
	decisions, err := m.CreateCounter("authz_decisions_total", "Authorization gate decisions by gate and outcome")
	if err != nil {
		return nil, err
	}
	resolveDuration, err := m.CreateHistogram("security_context_resolve_seconds", "Security context resolution latency", "s")
	if err != nil {
		return nil, err
	}
	return &AuthzMetrics{
		decisions:       decisions,
		resolveDuration: resolveDuration,
	}, nil
}

// RecordDecision counts one gate decision.
func (a *AuthzMetrics) RecordDecision(ctx context.Context, gate, decision string) {
	if a == nil {
		return
	}
	a.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gate", gate),
		attribute.String("decision", decision),
	))
}

// RecordResolve records one security context resolution.
func (a *AuthzMetrics) RecordResolve(ctx context.Context, seconds float64, outcome string) {
	if a == nil {
		return
	}
	a.resolveDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
