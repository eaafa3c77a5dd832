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

package module

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sitegrid/sitegrid/internal/security"
)

// Module is a named feature capability a tenant's plan may include.
type Module string

// The closed module enum.
const (
	ModuleProjects     Module = "projects"
	ModuleTasks        Module = "tasks"
	ModuleDocuments    Module = "documents"
	ModuleFinancials   Module = "financials"
	ModuleSafety       Module = "safety"
	ModuleAnalytics    Module = "analytics"
	ModuleTimesheets   Module = "timesheets"
	ModuleInventory    Module = "inventory"
	ModuleClientPortal Module = "client_portal"
	ModuleAutomations  Module = "automations"
)

var knownModules = map[Module]bool{
	ModuleProjects:     true,
	ModuleTasks:        true,
	ModuleDocuments:    true,
	ModuleFinancials:   true,
	ModuleSafety:       true,
	ModuleAnalytics:    true,
	ModuleTimesheets:   true,
	ModuleInventory:    true,
	ModuleClientPortal: true,
	ModuleAutomations:  true,
}

// Valid reports whether m is part of the closed enum.
func (m Module) Valid() bool { return knownModules[m] }

// ParseModule validates a module label.
func ParseModule(label string) (Module, error) {
	m := Module(label)
	if !m.Valid() {
		return "", fmt.Errorf("unknown module %q", label)
	}
	return m, nil
}

// Plan identifiers used at company provisioning time.
const (
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

var planModules = map[string][]Module{
	PlanStarter: {
		ModuleProjects, ModuleTasks, ModuleDocuments,
	},
	PlanProfessional: {
		ModuleProjects, ModuleTasks, ModuleDocuments,
		ModuleFinancials, ModuleSafety, ModuleTimesheets,
	},
	PlanEnterprise: {
		ModuleProjects, ModuleTasks, ModuleDocuments,
		ModuleFinancials, ModuleSafety, ModuleTimesheets,
		ModuleAnalytics, ModuleInventory, ModuleClientPortal, ModuleAutomations,
	},
}

// ModulesForPlan returns the entitlement set seeded for a plan. Unknown
// plans get the starter set.
func ModulesForPlan(plan string) []Module {
	mods, ok := planModules[plan]
	if !ok {
		mods = planModules[PlanStarter]
	}
	out := make([]Module, len(mods))
	copy(out, mods)
	return out
}

// NotEnabledError names the modules a tenant's entitlement set is missing.
// It matches security.ErrModuleNotEnabled under errors.Is.
type NotEnabledError struct {
	TenantID string
	Missing  []Module
}

func (e *NotEnabledError) Error() string {
	labels := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		labels[i] = string(m)
	}
	sort.Strings(labels)
	return fmt.Sprintf("module not enabled: %s", strings.Join(labels, ", "))
}

func (e *NotEnabledError) Is(target error) bool {
	return target == security.ErrModuleNotEnabled
}
