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

// Package project holds the construction project model, the exemplar
// tenant-scoped business resource the authorization pipeline protects.
package project

import (
	"context"
	"errors"
	"time"

	"github.com/sitegrid/sitegrid/internal/tenantdb"
)

// ErrNotFound is returned when a project does not exist in the tenant's
// database.
var ErrNotFound = errors.New("project not found")

// Project is a construction project owned by exactly one tenant.
type Project struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository defines project persistence. Every method takes the routed
// handle and the tenant id; implementations must filter by tenant even
// on dedicated databases.
type Repository interface {
	List(ctx context.Context, h *tenantdb.Handle, tenantID string) ([]*Project, error)
	Get(ctx context.Context, h *tenantdb.Handle, tenantID, projectID string) (*Project, error)
	Create(ctx context.Context, h *tenantdb.Handle, p *Project) error
	Delete(ctx context.Context, h *tenantdb.Handle, tenantID, projectID string) error
}
