package tenant

import (
	"time"
)

// Tenant represents an isolated customer account (a company). All
// business data is scoped to exactly one tenant.
type Tenant struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Status        string        `json:"status"`
	Plan          string        `json:"plan"`
	IsolationMode IsolationMode `json:"isolation_mode"`
	DatabaseURL   string        `json:"-"` // set only for dedicated isolation
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsolationMode selects where a tenant's business data lives.
type IsolationMode string

const (
	// IsolationShared stores the tenant's rows in the shared schema,
	// filtered by tenant id at every call site.
	IsolationShared IsolationMode = "shared"

	// IsolationDedicated gives the tenant a physically separate database.
	IsolationDedicated IsolationMode = "dedicated"
)

// Valid reports whether m is a recognized isolation mode.
func (m IsolationMode) Valid() bool {
	return m == IsolationShared || m == IsolationDedicated
}

// Status constants
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusInactive  = "inactive"
)
