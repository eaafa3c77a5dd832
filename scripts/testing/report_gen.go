// report_gen merges `go test -json` output with the test annotations
// (TestPurpose, Scope, Security, Expected, Test Case ID) carried in the
// suite's doc comments, and emits a JSON and a Markdown report. Run it
// from the repo root:
//
//	go test -json ./... > /tmp/tests.json
//	go run scripts/testing/report_gen.go -input /tmp/tests.json \
//	    -out-json reports/tests.json -out-md reports/tests.md
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const modulePath = "github.com/sitegrid/sitegrid"

// TestMetadata holds info parsed from Go source comments.
type TestMetadata struct {
	Name       string `json:"name"`
	Purpose    string `json:"purpose,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Security   string `json:"security,omitempty"`
	Expected   string `json:"expected,omitempty"`
	TestCaseID string `json:"test_case_id,omitempty"`
	Package    string `json:"package"`
	Category   string `json:"category"`
}

// GoTestEvent represents a single event from `go test -json`.
type GoTestEvent struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// TestResult is the merged outcome for a single test.
type TestResult struct {
	Name        string       `json:"name"`
	Status      string       `json:"status"`
	Elapsed     float64      `json:"elapsed_seconds"`
	Package     string       `json:"package"`
	Failure     string       `json:"failure_reason,omitempty"`
	Annotations TestMetadata `json:"annotations"`
}

// ReportSummary holds top-level stats.
type ReportSummary struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Total       int          `json:"total"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
	Skipped     int          `json:"skipped"`
	Results     []TestResult `json:"results"`
}

// categories maps package path fragments to report sections, first match
// wins. These mirror the repository layout.
var categories = []struct {
	fragment string
	label    string
}{
	{"internal/rbac", "Roles & Permissions"},
	{"internal/security", "Context Resolution"},
	{"internal/permission", "Roles & Permissions"},
	{"internal/module", "Module Entitlements"},
	{"internal/audit", "Audit"},
	{"internal/tenantdb", "Tenant Isolation"},
	{"internal/tenant", "Tenant Isolation"},
	{"internal/guard", "Tenant Isolation"},
	{"internal/transport/http", "HTTP Gates"},
	{"internal/store", "Storage"},
	{"tests/system", "System"},
}

// categoryOrder fixes section ordering in the Markdown report.
var categoryOrder = []string{
	"Roles & Permissions",
	"Context Resolution",
	"Module Entitlements",
	"Tenant Isolation",
	"Audit",
	"HTTP Gates",
	"Storage",
	"System",
	"Other",
}

func main() {
	inputPath := flag.String("input", "", "Path to go test -json output file")
	outputJSON := flag.String("out-json", "", "Path for output JSON report")
	outputMD := flag.String("out-md", "", "Path for output Markdown report")
	title := flag.String("title", "Test Report", "Report title")
	filterCats := flag.String("filter-categories", "", "Comma-separated list of categories to include")
	flag.Parse()

	if *inputPath == "" || *outputJSON == "" || *outputMD == "" {
		fmt.Println("Usage: report_gen -input <json_file> -out-json <out_json> -out-md <out_md>")
		os.Exit(1)
	}

	metadata := scanMetadata()
	results := parseTestOutput(*inputPath, metadata)

	if *filterCats != "" {
		keep := make(map[string]bool)
		for _, cat := range strings.Split(*filterCats, ",") {
			keep[strings.TrimSpace(cat)] = true
		}
		filtered := results[:0]
		for _, res := range results {
			if keep[res.Annotations.Category] {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}

	summary := generateSummary(results)
	saveJSON(summary, *outputJSON)
	saveMarkdown(summary, *outputMD, *title)

	// Non-zero exit keeps CI gates honest.
	if summary.Failed > 0 {
		fmt.Printf("\n%d tests failed\n", summary.Failed)
		os.Exit(1)
	}
}

// scanMetadata walks the repository for _test.go files and collects the
// annotation comments off every Test function.
func scanMetadata() map[string]TestMetadata {
	metadata := make(map[string]TestMetadata)
	fset := token.NewFileSet()

	filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, "_test.go") {
			return nil
		}
		if strings.Contains(path, "vendor/") || strings.Contains(path, ".git/") {
			return nil
		}

		node, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil
		}

		pkgPath := packagePath(path)
		for _, decl := range node.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || !strings.HasPrefix(fn.Name.Name, "Test") {
				continue
			}

			meta := TestMetadata{
				Name:     fn.Name.Name,
				Package:  pkgPath,
				Category: categoryFor(pkgPath),
			}
			if fn.Doc != nil {
				for _, line := range fn.Doc.List {
					text := strings.TrimSpace(strings.TrimPrefix(line.Text, "//"))
					switch {
					case strings.HasPrefix(text, "TestPurpose:"):
						meta.Purpose = strings.TrimSpace(strings.TrimPrefix(text, "TestPurpose:"))
					case strings.HasPrefix(text, "Scope:"):
						meta.Scope = strings.TrimSpace(strings.TrimPrefix(text, "Scope:"))
					case strings.HasPrefix(text, "Security:"):
						meta.Security = strings.TrimSpace(strings.TrimPrefix(text, "Security:"))
					case strings.HasPrefix(text, "Expected:"):
						meta.Expected = strings.TrimSpace(strings.TrimPrefix(text, "Expected:"))
					case strings.HasPrefix(text, "Test Case ID:"):
						meta.TestCaseID = strings.TrimSpace(strings.TrimPrefix(text, "Test Case ID:"))
					}
				}
			}
			metadata[pkgPath+"."+fn.Name.Name] = meta
		}
		return nil
	})

	return metadata
}

func packagePath(filePath string) string {
	dir := filepath.ToSlash(filepath.Dir(filePath))
	dir = strings.TrimPrefix(dir, "./")
	if dir == "." {
		return modulePath
	}
	return modulePath + "/" + dir
}

func categoryFor(pkgPath string) string {
	rel := strings.TrimPrefix(pkgPath, modulePath+"/")
	for _, c := range categories {
		if strings.HasPrefix(rel, c.fragment) {
			return c.label
		}
	}
	return "Other"
}

// parseTestOutput merges go test -json events onto the annotation map.
// Tests known from source that never ran are reported as "not run" so a
// skipped package is visible in the report.
func parseTestOutput(path string, metadata map[string]TestMetadata) []TestResult {
	states := make(map[string]*TestResult)
	for key, m := range metadata {
		states[key] = &TestResult{
			Name:        m.Name,
			Package:     m.Package,
			Status:      "not run",
			Annotations: m,
		}
	}

	file, err := os.Open(path)
	if err != nil {
		fmt.Printf("Error opening test output: %v\n", err)
		return nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event GoTestEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil || event.Test == "" {
			continue
		}

		key := event.Package + "." + event.Test
		res, ok := states[key]
		if !ok {
			res = resultForUnknown(event, metadata)
			states[key] = res
		}

		switch event.Action {
		case "pass":
			res.Status = "pass"
			res.Elapsed = event.Elapsed
		case "fail":
			res.Status = "fail"
			res.Elapsed = event.Elapsed
		case "skip":
			res.Status = "skip"
		case "output":
			if res.Status == "fail" || res.Status == "" {
				res.Failure += event.Output
			}
		}
	}

	var list []TestResult
	for _, v := range states {
		list = append(list, *v)
	}
	return list
}

// resultForUnknown covers subtests, which inherit the parent's
// annotations, and tests the source scan missed.
func resultForUnknown(event GoTestEvent, metadata map[string]TestMetadata) *TestResult {
	annotations := TestMetadata{
		Name:     event.Test,
		Package:  event.Package,
		Category: categoryFor(event.Package),
	}
	if parent, _, isSub := strings.Cut(event.Test, "/"); isSub {
		if parentMeta, found := metadata[event.Package+"."+parent]; found {
			annotations = parentMeta
			annotations.Name = event.Test
		}
	}
	return &TestResult{
		Name:        event.Test,
		Package:     event.Package,
		Annotations: annotations,
	}
}

func generateSummary(results []TestResult) ReportSummary {
	summary := ReportSummary{
		GeneratedAt: time.Now(),
		Results:     results,
	}
	for _, r := range results {
		summary.Total++
		switch r.Status {
		case "pass":
			summary.Passed++
		case "fail":
			summary.Failed++
		case "skip":
			summary.Skipped++
		}
	}
	return summary
}

func saveJSON(summary ReportSummary, path string) {
	data, _ := json.MarshalIndent(summary, "", "  ")
	os.MkdirAll(filepath.Dir(path), 0755)
	os.WriteFile(path, data, 0644)
}

func saveMarkdown(summary ReportSummary, path, title string) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# SiteGrid %s\n\n", title))
	sb.WriteString(fmt.Sprintf("**Generated:** %s  \n", summary.GeneratedAt.Format("2006-01-02 15:04:05 MST")))

	status := "PASSED"
	if summary.Failed > 0 {
		status = "FAILED"
	}
	sb.WriteString(fmt.Sprintf("**Status:** %s\n\n", status))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Total | Passed | Failed | Skipped | Pass Rate |\n")
	sb.WriteString("|-------|--------|--------|---------|-----------|\n")
	rate := 0.0
	if summary.Total > 0 {
		rate = float64(summary.Passed) / float64(summary.Total) * 100
	}
	sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %.1f%% |\n\n",
		summary.Total, summary.Passed, summary.Failed, summary.Skipped, rate))

	byCategory := make(map[string][]TestResult)
	for _, r := range summary.Results {
		byCategory[r.Annotations.Category] = append(byCategory[r.Annotations.Category], r)
	}

	sb.WriteString("## Test Results by Category\n\n")
	for _, cat := range categoryOrder {
		tests := byCategory[cat]
		if len(tests) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n", cat))
		sb.WriteString("| ID | Test Name | Status | Purpose | Security |\n")
		sb.WriteString("|----|-----------|--------|---------|----------|\n")
		for _, t := range tests {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				t.Annotations.TestCaseID, t.Name, t.Status, t.Annotations.Purpose, t.Annotations.Security))
		}
		sb.WriteString("\n")
	}

	if summary.Failed > 0 {
		sb.WriteString("## Failure Details\n\n")
		for _, t := range summary.Results {
			if t.Status == "fail" {
				sb.WriteString(fmt.Sprintf("### %s (%s)\n", t.Name, t.Package))
				sb.WriteString("```\n")
				sb.WriteString(t.Failure)
				sb.WriteString("\n```\n\n")
			}
		}
	}

	os.MkdirAll(filepath.Dir(path), 0755)
	os.WriteFile(path, []byte(sb.String()), 0644)
}
