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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory audit Store.
type memStore struct {
	records   []*Record
	appendErr error
}

func (m *memStore) Append(ctx context.Context, record *Record) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memStore) Timeline(ctx context.Context, tenantID string, from, to time.Time, limit int) ([]*Record, error) {
	var out []*Record
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.records[i]
		if r.TenantID == tenantID && !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CountByAction(ctx context.Context, tenantID string, from, to time.Time) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, r := range m.records {
		if r.TenantID == tenantID && !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			counts[r.Action]++
		}
	}
	return counts, nil
}

func (m *memStore) Purge(ctx context.Context, tenantID string, olderThan time.Time) (int64, error) {
	var kept []*Record
	var purged int64
	for _, r := range m.records {
		if r.TenantID == tenantID && r.Timestamp.Before(olderThan) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return purged, nil
}

// TestPurpose: Validates that Log persists an immutable record with id,
// timestamp and default outcome filled in.
// Scope: Unit Test
func TestAudit_Log_AppendsRecord(t *testing.T) {
	store := &memStore{}
	svc := NewService(store)

	svc.Log(context.Background(), Event{
		Action:       ActionRoleAssigned,
		TenantID:     "t-acme",
		ActorUserID:  "u-admin",
		ResourceType: "membership",
		ResourceID:   "m-1",
	})

	require.Len(t, store.records, 1)
	r := store.records[0]
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.Timestamp.IsZero())
	assert.Equal(t, OutcomeSuccess, r.Outcome)
	assert.Equal(t, "t-acme", r.TenantID)
}

// TestPurpose: Validates that a failing audit store never propagates an
// error to the caller: audit is best-effort, business operations succeed.
// Scope: Unit Test
// Security: Audit failure must not block the primary operation
func TestAudit_Log_StoreFailureDoesNotPanicOrPropagate(t *testing.T) {
	store := &memStore{appendErr: errors.New("disk full")}
	svc := NewService(store)

	assert.NotPanics(t, func() {
		svc.Log(context.Background(), Event{
			Action:   ActionModulesChanged,
			TenantID: "t-acme",
		})
	})
	assert.Empty(t, store.records)
}

// TestPurpose: Validates that metadata under secret-like keys is redacted
// before persistence.
// Scope: Unit Test
// Security: Audit records must not retain credentials
func TestAudit_Log_RedactsSecrets(t *testing.T) {
	store := &memStore{}
	svc := NewService(store)

	svc.Log(context.Background(), Event{
		Action:   ActionOverrideGranted,
		TenantID: "t-acme",
		Metadata: map[string]any{
			"password":   "hunter2",
			"permission": "financials.read",
		},
	})

	require.Len(t, store.records, 1)
	meta := store.records[0].Metadata
	assert.Equal(t, "[REDACTED]", meta["password"])
	assert.Equal(t, "financials.read", meta["permission"])
}

// TestPurpose: Validates the timeline projection is tenant-scoped and
// respects the time window.
// Scope: Unit Test
// Security: Audit reads must not cross tenants
func TestAudit_Timeline_TenantScoped(t *testing.T) {
	store := &memStore{}
	svc := NewService(store)
	now := time.Now()

	svc.Log(context.Background(), Event{Action: ActionRoleAssigned, TenantID: "t-a", Timestamp: now})
	svc.Log(context.Background(), Event{Action: ActionRoleRevoked, TenantID: "t-b", Timestamp: now})

	records, err := svc.Timeline(context.Background(), "t-a", now.Add(-time.Minute), now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t-a", records[0].TenantID)
}

// TestPurpose: Validates that Purge removes old records and records the
// purge itself in the trail.
// Scope: Unit Test
func TestAudit_Purge_RemovesOldAndAuditsItself(t *testing.T) {
	store := &memStore{}
	svc := NewService(store)
	old := time.Now().Add(-48 * time.Hour)

	svc.Log(context.Background(), Event{Action: ActionRoleAssigned, TenantID: "t-a", Timestamp: old})
	svc.Log(context.Background(), Event{Action: ActionRoleAssigned, TenantID: "t-a"})

	purged, err := svc.Purge(context.Background(), "t-a", "u-admin", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	// The purge left the recent record plus its own audit record.
	require.Len(t, store.records, 2)
	assert.Equal(t, ActionRetentionPurge, store.records[1].Action)
}
