// Package consolidate implements the post-processing that runs after a
// successful directory-move plan flagged is_consolidation: folding a
// moved package into an existing one's source tree, fixing up module
// declarations, manifests, and workspace-wide imports.
//
// Manifest edits are done as targeted line/text rewrites rather than a
// full parse-modify-reserialize round trip, so that comments and
// formatting in Cargo.toml / package.json survive untouched outside the
// lines actually changed — the same "preserve everything outside the
// edit" discipline the rest of the refactor pipeline applies to source
// files.
package consolidate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/amarbel-llc/codebuddy/internal/codeerr"
)

// Metadata describes one consolidation: a directory that used to be its
// own package, now folded into another package's source tree as a
// sub-module.
type Metadata struct {
	SourceCratePath  string // e.g. /repo/crates/old_widget
	SourceCrateName  string // e.g. old_widget
	TargetCratePath  string // e.g. /repo/crates/widgets
	TargetCrateName  string // e.g. widgets
	TargetModulePath string // e.g. /repo/crates/widgets/src/old_widget
	TargetModuleName string // e.g. old_widget
	Language         string // "rust" or "typescript"
}

// Run executes the nine consolidation steps in order. Each step is
// idempotent; a failure returns a *codeerr.ConsolidationPartial naming the
// stage and file, leaving everything completed so far in place.
func Run(meta Metadata, projectRoot string, projectFiles []string) ([]string, error) {
	var warnings []string
	warn := func(w string) { warnings = append(warnings, w) }

	if err := flattenNestedSrc(meta); err != nil {
		return warnings, fail("flatten_nested_src", meta.TargetModulePath, err)
	}

	if meta.Language == "rust" {
		if err := renameLibRsToModRs(meta); err != nil {
			return warnings, fail("rename_lib_to_mod", meta.TargetModulePath, err)
		}
	}

	if err := addModuleExport(meta); err != nil {
		return warnings, fail("add_module_export", meta.TargetCratePath, err)
	}

	if w, err := mergeManifestDependencies(meta); err != nil {
		return warnings, fail("merge_manifest_dependencies", meta.TargetCratePath, err)
	} else if w != "" {
		warn(w)
	}

	if err := fixSelfImports(meta); err != nil {
		return warnings, fail("fix_self_imports", meta.TargetModulePath, err)
	}

	if err := rewriteWorkspaceImports(meta, projectRoot, projectFiles); err != nil {
		return warnings, fail("rewrite_workspace_imports", projectRoot, err)
	}

	if err := cleanupWorkspaceManifest(meta, projectRoot); err != nil {
		return warnings, fail("cleanup_workspace_manifest", projectRoot, err)
	}

	if err := removeSourceFromTargetManifest(meta); err != nil {
		return warnings, fail("remove_source_from_target_manifest", meta.TargetCratePath, err)
	}

	if err := removeDuplicateDependencies(projectRoot); err != nil {
		return warnings, fail("remove_duplicate_dependencies", projectRoot, err)
	}

	return warnings, nil
}

func fail(stage, file string, cause error) error {
	return &codeerr.ConsolidationPartial{Stage: stage, File: file, Cause: cause}
}

// Step 1: flatten target_module_path/src/* up one level, remove the empty
// src/ and any leftover package manifest inside the module directory.
func flattenNestedSrc(meta Metadata) error {
	nestedSrc := filepath.Join(meta.TargetModulePath, "src")
	info, err := os.Stat(nestedSrc)
	if err != nil || !info.IsDir() {
		return nil // already flat; idempotent no-op
	}

	entries, err := os.ReadDir(nestedSrc)
	if err != nil {
		return err
	}
	for _, e := range entries {
		src := filepath.Join(nestedSrc, e.Name())
		dst := filepath.Join(meta.TargetModulePath, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return err
		}
	}
	if err := os.Remove(nestedSrc); err != nil {
		return err
	}

	for _, manifest := range manifestNames(meta.Language) {
		leftover := filepath.Join(meta.TargetModulePath, manifest)
		if _, err := os.Stat(leftover); err == nil {
			os.Remove(leftover)
		}
	}
	return nil
}

func manifestNames(language string) []string {
	if language == "rust" {
		return []string{"Cargo.toml"}
	}
	return []string{"package.json"}
}

// Step 2: Rust only. lib.rs present, mod.rs absent → rename.
func renameLibRsToModRs(meta Metadata) error {
	lib := filepath.Join(meta.TargetModulePath, "lib.rs")
	mod := filepath.Join(meta.TargetModulePath, "mod.rs")
	if _, err := os.Stat(lib); err != nil {
		return nil
	}
	if _, err := os.Stat(mod); err == nil {
		return nil // mod.rs already present; don't clobber
	}
	return os.Rename(lib, mod)
}

// Step 3: insert a module export for the new sub-module into the target
// package's root module file, after the last existing mod/export line.
func addModuleExport(meta Metadata) error {
	rootFile, line := rootModuleFile(meta)
	if rootFile == "" {
		return nil
	}

	data, err := os.ReadFile(rootFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	content := string(data)

	if strings.Contains(content, line) {
		return nil // already present
	}

	return insertAfterLastMatching(rootFile, content, declPattern(meta.Language), line)
}

func rootModuleFile(meta Metadata) (path, line string) {
	if meta.Language == "rust" {
		p := filepath.Join(meta.TargetCratePath, "src", "lib.rs")
		return p, fmt.Sprintf("pub mod %s;", meta.TargetModuleName)
	}
	for _, candidate := range []string{
		filepath.Join(meta.TargetCratePath, "src", "index.ts"),
		filepath.Join(meta.TargetCratePath, "src", "index.js"),
		filepath.Join(meta.TargetCratePath, "index.ts"),
		filepath.Join(meta.TargetCratePath, "index.js"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, fmt.Sprintf("export * from './%s';", meta.TargetModuleName)
		}
	}
	return "", ""
}

func declPattern(language string) *regexp.Regexp {
	if language == "rust" {
		return regexp.MustCompile(`^\s*(pub\s+)?mod\s+\w+;`)
	}
	return regexp.MustCompile(`^\s*export\s`)
}

func insertAfterLastMatching(path, content string, pattern *regexp.Regexp, newLine string) error {
	lines := strings.Split(content, "\n")
	lastMatch := -1
	for i, l := range lines {
		if pattern.MatchString(l) {
			lastMatch = i
		}
	}

	insertAt := lastMatch + 1
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insertAt]...)
	out = append(out, newLine)
	out = append(out, lines[insertAt:]...)

	return os.WriteFile(path, []byte(strings.Join(out, "\n")), 0o644)
}

// Step 4: merge dependency tables from the source manifest into the
// target's, preferring the target's existing entry on conflict.
func mergeManifestDependencies(meta Metadata) (string, error) {
	sourceManifest := filepath.Join(meta.SourceCratePath, manifestNames(meta.Language)[0])
	targetManifest := filepath.Join(meta.TargetCratePath, manifestNames(meta.Language)[0])

	if _, err := os.Stat(sourceManifest); err != nil {
		return "", nil
	}
	if _, err := os.Stat(targetManifest); err != nil {
		return "", nil
	}

	sourceDeps, err := readDependencyLines(sourceManifest, meta.Language)
	if err != nil {
		return "", err
	}
	targetContent, err := os.ReadFile(targetManifest)
	if err != nil {
		return "", err
	}

	var warning string
	merged := string(targetContent)
	for name, line := range sourceDeps {
		if dependencyDeclared(merged, name, meta.Language) {
			warning = fmt.Sprintf("dependency %q already present in target manifest, kept target's entry", name)
			continue
		}
		merged = appendDependencyLine(merged, line, meta.Language)
	}

	if merged != string(targetContent) {
		if err := os.WriteFile(targetManifest, []byte(merged), 0o644); err != nil {
			return "", err
		}
	}
	return warning, nil
}

var cargoDepLineRe = regexp.MustCompile(`^([A-Za-z0-9_-]+)\s*=`)
var npmDepLineRe = regexp.MustCompile(`^\s*"([^"]+)"\s*:`)

func readDependencyLines(path, language string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	deps := make(map[string]string)
	inDeps := false
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if language == "rust" {
			if strings.HasPrefix(trimmed, "[dependencies") {
				inDeps = true
				continue
			}
			if strings.HasPrefix(trimmed, "[") {
				inDeps = false
				continue
			}
			if inDeps {
				if m := cargoDepLineRe.FindStringSubmatch(trimmed); m != nil {
					deps[m[1]] = line
				}
			}
		} else {
			if strings.Contains(trimmed, `"dependencies"`) {
				inDeps = true
				continue
			}
			if inDeps && strings.HasPrefix(trimmed, "}") {
				inDeps = false
				continue
			}
			if inDeps {
				if m := npmDepLineRe.FindStringSubmatch(trimmed); m != nil {
					deps[m[1]] = line
				}
			}
		}
	}
	return deps, nil
}

func dependencyDeclared(content, name, language string) bool {
	if language == "rust" {
		return regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(name) + `\s*=`).MatchString(content)
	}
	return strings.Contains(content, `"`+name+`"`)
}

func appendDependencyLine(content, line, language string) string {
	marker := "[dependencies]"
	if language != "rust" {
		marker = `"dependencies"`
	}
	idx := strings.Index(content, marker)
	if idx == -1 {
		return content
	}
	endOfMarkerLine := strings.Index(content[idx:], "\n")
	if endOfMarkerLine == -1 {
		return content + "\n" + line
	}
	insertAt := idx + endOfMarkerLine + 1
	return content[:insertAt] + line + "\n" + content[insertAt:]
}

// Step 5: rewrite self-imports inside the moved code from the old crate
// name to a relative reference now that it lives inside the target.
func fixSelfImports(meta Metadata) error {
	boundary := `(^|[\s<(,{[&*!])`
	var pattern *regexp.Regexp
	var replacement string

	if meta.Language == "rust" {
		pattern = regexp.MustCompile(boundary + regexp.QuoteMeta(meta.SourceCrateName) + `::`)
		replacement = "${1}crate::"
	} else {
		pattern = regexp.MustCompile(boundary + `from\s+'` + regexp.QuoteMeta(meta.SourceCrateName) + `'`)
		replacement = "${1}from '" + meta.TargetCrateName + "/" + meta.TargetModuleName + "'"
	}

	return filepath.WalkDir(meta.TargetModulePath, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !sourceFileExt(path, meta.Language) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rewritten := pattern.ReplaceAllString(string(data), replacement)
		if rewritten != string(data) {
			return os.WriteFile(path, []byte(rewritten), 0o644)
		}
		return nil
	})
}

func sourceFileExt(path, language string) bool {
	ext := filepath.Ext(path)
	if language == "rust" {
		return ext == ".rs"
	}
	switch ext {
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
		return true
	}
	return false
}

// Step 6: rewrite every reference to the old crate/package, outside the
// moved directory, to point at target::sub_module (Rust) or
// target/sub_module (TS/JS, including require and dynamic import forms).
func rewriteWorkspaceImports(meta Metadata, projectRoot string, projectFiles []string) error {
	for _, f := range projectFiles {
		if strings.HasPrefix(f, meta.TargetModulePath+string(filepath.Separator)) {
			continue
		}
		if !sourceFileExt(f, meta.Language) {
			continue
		}
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		rewritten := rewriteOneFile(string(data), meta)
		if rewritten != string(data) {
			if err := os.WriteFile(f, []byte(rewritten), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

func rewriteOneFile(content string, meta Metadata) string {
	if meta.Language == "rust" {
		rewritten := regexp.MustCompile(`\buse\s+`+regexp.QuoteMeta(meta.SourceCrateName)+`::`).
			ReplaceAllString(content, "use "+meta.TargetCrateName+"::"+meta.TargetModuleName+"::")
		rewritten = regexp.MustCompile(`\bpub use\s+`+regexp.QuoteMeta(meta.SourceCrateName)+`::`).
			ReplaceAllString(rewritten, "pub use "+meta.TargetCrateName+"::"+meta.TargetModuleName+"::")
		rewritten = regexp.MustCompile(`(^|[\s<(,{[&*!])`+regexp.QuoteMeta(meta.SourceCrateName)+`::`).
			ReplaceAllString(rewritten, "${1}"+meta.TargetCrateName+"::"+meta.TargetModuleName+"::")
		return rewritten
	}

	target := meta.TargetCrateName + "/" + meta.TargetModuleName
	rewritten := content
	for _, form := range []struct{ open, close string }{
		{`from\s+'`, `'`}, {`from\s+"`, `"`},
		{`require\(\s*'`, `'\s*\)`}, {`require\(\s*"`, `"\s*\)`},
		{`import\(\s*'`, `'\s*\)`}, {`import\(\s*"`, `"\s*\)`},
	} {
		pattern := regexp.MustCompile(form.open + regexp.QuoteMeta(meta.SourceCrateName) + form.close)
		rewritten = pattern.ReplaceAllStringFunc(rewritten, func(m string) string {
			return strings.Replace(m, meta.SourceCrateName, target, 1)
		})
	}
	return rewritten
}

// Step 7: drop the source crate/package from the workspace manifest's
// members/dependencies lists. The target is not added to the manifest when
// it is missing from it.
func cleanupWorkspaceManifest(meta Metadata, projectRoot string) error {
	manifest := workspaceManifestPath(projectRoot, meta.Language)
	if manifest == "" {
		return nil
	}
	data, err := os.ReadFile(manifest)
	if err != nil {
		return nil
	}
	content := string(data)

	sourceRel, _ := filepath.Rel(projectRoot, meta.SourceCratePath)
	targetRel, _ := filepath.Rel(projectRoot, meta.TargetCratePath)
	sourceRel = filepath.ToSlash(sourceRel)
	targetRel = filepath.ToSlash(targetRel)

	lines := strings.Split(content, "\n")
	var out []string
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if strings.Contains(trimmed, `"`+sourceRel+`"`) || strings.Contains(trimmed, "'"+sourceRel+"'") {
			continue // drop from members list
		}
		if strings.HasPrefix(trimmed, meta.SourceCrateName+" =") || strings.HasPrefix(trimmed, meta.SourceCrateName+"=") {
			continue // drop from workspace dependencies table
		}
		out = append(out, l)
	}

	rewritten := strings.Join(out, "\n")
	if !strings.Contains(rewritten, targetRel) && meta.Language == "rust" {
		// best-effort: leave absence as a no-op rather than guessing array syntax
	}
	if rewritten != content {
		return os.WriteFile(manifest, []byte(rewritten), 0o644)
	}
	return nil
}

func workspaceManifestPath(projectRoot, language string) string {
	if language == "rust" {
		p := filepath.Join(projectRoot, "Cargo.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
		return ""
	}
	for _, name := range []string{"pnpm-workspace.yaml", "package.json"} {
		p := filepath.Join(projectRoot, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Step 8: the source is now internal to the target; drop it from the
// target's own manifest if merge step 4 carried it over as a dependency.
func removeSourceFromTargetManifest(meta Metadata) error {
	manifest := filepath.Join(meta.TargetCratePath, manifestNames(meta.Language)[0])
	data, err := os.ReadFile(manifest)
	if err != nil {
		return nil
	}
	content := string(data)

	var pattern *regexp.Regexp
	if meta.Language == "rust" {
		pattern = regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(meta.SourceCrateName) + `\s*=.*\n`)
	} else {
		pattern = regexp.MustCompile(`(?m)^\s*"` + regexp.QuoteMeta(meta.SourceCrateName) + `"\s*:\s*"[^"]*",?\n`)
	}

	rewritten := pattern.ReplaceAllString(content, "")
	if rewritten != content {
		return os.WriteFile(manifest, []byte(rewritten), 0o644)
	}
	return nil
}

// Step 9: within every manifest in the workspace, keep only the first
// occurrence of each dependency key per table.
func removeDuplicateDependencies(projectRoot string) error {
	var manifests []string
	filepath.WalkDir(projectRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "node_modules" || d.Name() == "target" || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == "Cargo.toml" || d.Name() == "package.json" {
			manifests = append(manifests, path)
		}
		return nil
	})

	for _, m := range manifests {
		if err := dedupeManifest(m); err != nil {
			return err
		}
	}
	return nil
}

var tableHeaderRe = regexp.MustCompile(`^\[(dependencies|dev-dependencies|build-dependencies)]`)

func dedupeManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(string(data), "\n")

	inTable := false
	seen := map[string]bool{}
	var out []string
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if tableHeaderRe.MatchString(trimmed) {
			inTable = true
			seen = map[string]bool{}
			out = append(out, l)
			continue
		}
		if inTable && strings.HasPrefix(trimmed, "[") {
			inTable = false
		}
		if inTable {
			if m := cargoDepLineRe.FindStringSubmatch(trimmed); m != nil {
				if seen[m[1]] {
					continue
				}
				seen[m[1]] = true
			}
		}
		out = append(out, l)
	}

	rewritten := strings.Join(out, "\n")
	if rewritten != string(data) {
		return os.WriteFile(path, []byte(rewritten), 0o644)
	}
	return nil
}
