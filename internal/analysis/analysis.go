// Package analysis implements the Analysis Orchestrator (§4.I): dispatches
// an analysis call to a detector keyed by (category, kind), running it
// against either a single file or a globbed workspace scope, and returns a
// uniform AnalysisResult.
package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/amarbel-llc/codebuddy/internal/codeerr"
	"github.com/amarbel-llc/codebuddy/internal/enhance"
)

// Severity matches the three buckets the summary aggregates by.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Location pinpoints a finding inside a file.
type Location struct {
	File      string
	StartLine int
	StartChar int
	EndLine   int
	EndChar   int
}

// Finding is one detector result.
type Finding struct {
	ID          string
	Kind        string
	Severity    Severity
	Location    Location
	Metrics     map[string]any
	Message     string
	Suggestions []string
}

// Summary aggregates findings across the whole call.
type Summary struct {
	TotalFindings    int
	ReturnedFindings int
	HasMore          bool
	BySeverity       map[Severity]int
	FilesAnalyzed    int
	SymbolsAnalyzed  int
	AnalysisTimeMs   int64
}

// Result is the uniform envelope every analysis call returns.
type Result struct {
	Metadata map[string]any
	Summary  Summary
	Findings []Finding
}

// ScopeType selects whether a call covers one file or a filtered
// workspace walk.
type ScopeType string

const (
	ScopeFile      ScopeType = "file"
	ScopeWorkspace ScopeType = "workspace"
)

// Scope describes what the call should analyze.
type Scope struct {
	Type    ScopeType
	Path    string
	Include []string
	Exclude []string
}

// Detector is a single (category, kind) analysis implementation, given the
// source of one file and returning the findings for it.
type Detector func(path string, content string, options map[string]any) ([]Finding, error)

// Key identifies a detector in the orchestrator's registry.
type Key struct {
	Category string
	Kind     string
}

// Orchestrator holds the category/kind → detector map.
type Orchestrator struct {
	detectors map[Key]Detector
}

func NewOrchestrator() *Orchestrator {
	o := &Orchestrator{detectors: map[Key]Detector{}}
	registerBuiltinDetectors(o)
	return o
}

// Register adds or replaces the detector for (category, kind).
func (o *Orchestrator) Register(category, kind string, d Detector) {
	o.detectors[Key{category, kind}] = d
}

// Run dispatches an analysis call per §4.I.
func (o *Orchestrator) Run(category, kind string, scope Scope, options map[string]any) (*Result, error) {
	detector, ok := o.detectors[Key{category, kind}]
	if !ok {
		return nil, &codeerr.NotSupported{Msg: fmt.Sprintf("no analysis detector for %s/%s", category, kind)}
	}

	start := time.Now()

	var files []string
	switch scope.Type {
	case ScopeFile:
		files = []string{scope.Path}
	case ScopeWorkspace:
		files = enumerateWorkspace(scope)
	default:
		return nil, &codeerr.InvalidRequest{Msg: fmt.Sprintf("unknown scope_type %q", scope.Type)}
	}

	var all []Finding
	filesAnalyzed := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		filesAnalyzed++
		findings, err := detector(f, string(data), options)
		if err != nil {
			return nil, err
		}
		all = append(all, findings...)
	}

	for i := range all {
		if all[i].ID == "" {
			all[i].ID = uuid.NewString()
		}
	}

	bySeverity := map[Severity]int{SeverityHigh: 0, SeverityMedium: 0, SeverityLow: 0}
	for _, f := range all {
		bySeverity[f.Severity]++
	}

	return &Result{
		Metadata: map[string]any{"category": category, "kind": kind},
		Summary: Summary{
			TotalFindings:    len(all),
			ReturnedFindings: len(all),
			HasMore:          false,
			BySeverity:       bySeverity,
			FilesAnalyzed:    filesAnalyzed,
			AnalysisTimeMs:   time.Since(start).Milliseconds(),
		},
		Findings: all,
	}, nil
}

// enumerateWorkspace walks scope.Path honoring include/exclude globs and
// the enhancer's default ignore list, per §4.I's instruction to reuse
// §4.D's ignore rules for workspace-scoped analysis.
func enumerateWorkspace(scope Scope) []string {
	var includeGlobs, excludeGlobs []glob.Glob
	for _, pattern := range scope.Include {
		if g, err := glob.Compile(pattern, '/'); err == nil {
			includeGlobs = append(includeGlobs, g)
		}
	}
	for _, pattern := range scope.Exclude {
		if g, err := glob.Compile(pattern, '/'); err == nil {
			excludeGlobs = append(excludeGlobs, g)
		}
	}

	candidates := enhance.CandidateFiles(scope.Path, "")

	var out []string
	for _, f := range candidates {
		rel, err := filepath.Rel(scope.Path, f)
		if err != nil {
			rel = f
		}
		rel = filepath.ToSlash(rel)

		if len(includeGlobs) > 0 && !matchesAny(includeGlobs, rel) {
			continue
		}
		if matchesAny(excludeGlobs, rel) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func matchesAny(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func registerBuiltinDetectors(o *Orchestrator) {
	o.Register("dead_code", "unused_imports", detectUnusedImports)
	o.Register("dependencies", "unused_dependencies", detectUnusedDependencies)
}

// detectUnusedImports flags single-import lines (Go `import "pkg"` / named
// import, or a TS `import { X } from '...'` default binding) whose bound
// identifier never appears again in the file body. This is a heuristic
// text-scan detector, grounded in the style of the original dead-code
// analyzer's "declared but never referenced" definition, not a full
// type-aware unused-import pass.
func detectUnusedImports(path, content string, _ map[string]any) ([]Finding, error) {
	ext := filepath.Ext(path)
	switch ext {
	case ".go":
		return detectUnusedGoImports(path, content)
	case ".ts", ".tsx", ".js", ".jsx":
		return detectUnusedTSImports(path, content)
	default:
		return nil, nil
	}
}

func detectUnusedGoImports(path, content string) ([]Finding, error) {
	lines := strings.Split(content, "\n")
	var findings []Finding

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		alias := ""
		if rest, ok := strings.CutPrefix(trimmed, "import "); ok {
			trimmed = strings.TrimSpace(rest)
			if name, spec, ok := strings.Cut(trimmed, " "); ok && !strings.HasPrefix(trimmed, `"`) {
				alias, trimmed = name, strings.TrimSpace(spec)
			}
		}
		if !strings.HasPrefix(trimmed, `"`) || !strings.HasSuffix(trimmed, `"`) {
			continue
		}
		pkgPath := strings.Trim(trimmed, `"`)
		if pkgPath == "" || alias == "_" || alias == "." {
			continue
		}
		if alias == "" {
			alias = lastPathSegment(pkgPath)
		}

		body := strings.Join(append(append([]string{}, lines[:i]...), lines[i+1:]...), "\n")
		if !enhance.IdentifierReferenced(body, alias) {
			findings = append(findings, Finding{
				Kind:     "unused_import",
				Severity: SeverityLow,
				Location: Location{File: path, StartLine: i, EndLine: i},
				Message:  fmt.Sprintf("imported package %q is never referenced", pkgPath),
			})
		}
	}
	return findings, nil
}

func detectUnusedTSImports(path, content string) ([]Finding, error) {
	lines := strings.Split(content, "\n")
	var findings []Finding

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "import ") || !strings.Contains(trimmed, " from ") {
			continue
		}
		bindingsPart, _, ok := strings.Cut(strings.TrimPrefix(trimmed, "import "), " from ")
		if !ok {
			continue
		}
		names := extractBindingNames(bindingsPart)

		body := strings.Join(append(append([]string{}, lines[:i]...), lines[i+1:]...), "\n")
		for _, name := range names {
			if name == "" || enhance.IdentifierReferenced(body, name) {
				continue
			}
			findings = append(findings, Finding{
				Kind:     "unused_import",
				Severity: SeverityLow,
				Location: Location{File: path, StartLine: i, EndLine: i},
				Message:  fmt.Sprintf("imported binding %q is never referenced", name),
			})
		}
	}
	return findings, nil
}

func extractBindingNames(bindingsPart string) []string {
	bindingsPart = strings.TrimSpace(bindingsPart)
	bindingsPart = strings.Trim(bindingsPart, "{}")
	var names []string
	for _, part := range strings.Split(bindingsPart, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, " as "); idx != -1 {
			part = strings.TrimSpace(part[idx+4:])
		}
		names = append(names, part)
	}
	return names
}

func lastPathSegment(pkgPath string) string {
	parts := strings.Split(pkgPath, "/")
	return parts[len(parts)-1]
}

// detectUnusedDependencies flags entries in a Cargo.toml/package.json
// dependency table that are never referenced by an import statement
// anywhere else in the same package directory.
func detectUnusedDependencies(path, content string, _ map[string]any) ([]Finding, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	var names []string
	var language string
	switch base {
	case "Cargo.toml":
		language = "rust"
		names = dependencyNamesFromCargo(content)
	case "package.json":
		language = "typescript"
		names = dependencyNamesFromPackageJSON(content)
	default:
		return nil, nil
	}

	siblingSources := enhance.CandidateFiles(dir, path)

	var findings []Finding
	for _, name := range names {
		if dependencyUsedIn(siblingSources, name, language) {
			continue
		}
		findings = append(findings, Finding{
			Kind:     "unused_dependency",
			Severity: SeverityMedium,
			Location: Location{File: path},
			Message:  fmt.Sprintf("dependency %q does not appear to be imported anywhere in this package", name),
		})
	}
	return findings, nil
}

func dependencyNamesFromCargo(content string) []string {
	var names []string
	inDeps := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[dependencies") {
			inDeps = true
			continue
		}
		if strings.HasPrefix(trimmed, "[") {
			inDeps = false
			continue
		}
		if inDeps {
			if name, _, ok := strings.Cut(trimmed, "="); ok {
				names = append(names, strings.TrimSpace(name))
			}
		}
	}
	return names
}

func dependencyNamesFromPackageJSON(content string) []string {
	var names []string
	inDeps := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(trimmed, `"dependencies"`) {
			inDeps = true
			continue
		}
		if inDeps && strings.HasPrefix(trimmed, "}") {
			inDeps = false
			continue
		}
		if inDeps {
			if strings.HasPrefix(trimmed, `"`) {
				name := strings.TrimPrefix(trimmed, `"`)
				if idx := strings.Index(name, `"`); idx != -1 {
					names = append(names, name[:idx])
				}
			}
		}
	}
	return names
}

func dependencyUsedIn(files []string, name, language string) bool {
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		content := string(data)
		if language == "rust" {
			normalized := strings.ReplaceAll(name, "-", "_")
			if strings.Contains(content, "use "+normalized+"::") || strings.Contains(content, "extern crate "+normalized) {
				return true
			}
		} else {
			if strings.Contains(content, `"`+name+`"`) || strings.Contains(content, `'`+name+`'`) {
				return true
			}
		}
	}
	return false
}
