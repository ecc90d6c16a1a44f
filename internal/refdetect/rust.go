// Package refdetect implements the per-language reference detectors named
// in the language plugin contract: given an old path, a new path, and the
// project's file list, find every file whose imports must be rewritten.
package refdetect

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Rust keys reference discovery on a file's effective module path,
// crate_name::relative_path_without_src_prefix, dot-separated components
// joined by "::". It recognizes use old_module::, super::last::,
// self::last::, crate::<suffix>::, bare use <suffix>:: from a lib root, and
// (for directory/crate renames) any use <old_crate>::.
type Rust struct{}

func NewRust() *Rust { return &Rust{} }

// FindAffectedFiles implements plugin.ReferenceDetector.
func (r *Rust) FindAffectedFiles(oldPath, newPath, projectRoot string, projectFiles []string) ([]string, error) {
	oldPath = canonical(oldPath)
	newPath = canonical(newPath)

	var affected []string
	seen := make(map[string]bool)
	add := func(f string) {
		f = canonical(f)
		if f == oldPath || f == newPath || seen[f] {
			return
		}
		seen[f] = true
		affected = append(affected, f)
	}

	oldIsDir := isDir(oldPath)

	oldCrate := crateNameFor(oldPath, oldIsDir)
	newCrate := crateNameFor(newPath, newIsDir(newPath))
	if newCrate == "" && !exists(newPath) {
		// new_path doesn't exist yet (mid-rename) and no Cargo.toml was found
		// walking up from it. Preserved from the original detector: fall back
		// to the project root's directory name. This can misattribute edits
		// in unusual layouts; flagged, not fixed, per the base design notes.
		newCrate = strings.ReplaceAll(filepath.Base(projectRoot), "-", "_")
	}

	// Directory (crate) rename: scan every .rs file outside the moved
	// directory for "use <old_crate>::".
	if oldIsDir {
		if oldCrate != "" && newCrate != "" && oldCrate != newCrate {
			pattern := "use " + oldCrate + "::"
			for _, f := range projectFiles {
				if strings.HasPrefix(canonical(f), oldPath+string(filepath.Separator)) {
					continue
				}
				if filepath.Ext(f) != ".rs" {
					continue
				}
				if fileContains(f, pattern) {
					add(f)
				}
			}
			return affected, nil
		}
	}

	// Same-directory file rename: update mod declarations in the parent's
	// lib.rs / mod.rs when they name the old module and not yet the new one.
	if !oldIsDir && filepath.Dir(oldPath) == filepath.Dir(newPath) {
		parent := filepath.Dir(oldPath)
		oldModule := stemOf(oldPath)
		newModule := stemOf(newPath)

		for _, modFile := range []string{filepath.Join(parent, "lib.rs"), filepath.Join(parent, "mod.rs")} {
			if !exists(modFile) {
				continue
			}
			hasOld := fileHasModDecl(modFile, oldModule)
			hasNew := fileHasModDecl(modFile, newModule)
			if hasOld && !hasNew {
				add(modFile)
			}
		}
	}

	// File move with crate info: compare full module paths; if they differ,
	// scan every .rs file for use-statements referencing the old path.
	if oldCrate != "" && newCrate != "" {
		oldModulePath := modulePathFor(oldPath, oldCrate, projectRoot)
		newModulePath := modulePathFor(newPath, newCrate, projectRoot)

		if oldModulePath != newModulePath {
			modulePattern := oldModulePath + "::"
			_, suffix, hasSuffix := strings.Cut(oldModulePath, "::")
			lastComponent := lastSegment(oldModulePath)

			for _, f := range projectFiles {
				if canonical(f) == oldPath || canonical(f) == newPath {
					continue
				}
				if filepath.Ext(f) != ".rs" {
					continue
				}
				if rustFileImports(f, modulePattern, suffix, hasSuffix, lastComponent) {
					add(f)
				}
			}
		}
	}

	return affected, nil
}

func rustFileImports(path, modulePattern, suffix string, hasSuffix bool, lastComponent string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	superPattern := "super::" + lastComponent + "::"
	selfPattern := "self::" + lastComponent + "::"
	superGlob := "super::" + lastComponent + "::*"
	selfGlob := "self::" + lastComponent + "::*"

	var cratePattern, relativePattern string
	if hasSuffix {
		cratePattern = "crate::" + suffix + "::"
		relativePattern = "use " + suffix + "::"
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "use ") {
			continue
		}
		if strings.Contains(line, modulePattern) {
			return true
		}
		if lastComponent != "" && (strings.Contains(line, superPattern) || strings.Contains(line, selfPattern) ||
			strings.Contains(line, superGlob) || strings.Contains(line, selfGlob)) {
			return true
		}
		if hasSuffix {
			if strings.Contains(line, cratePattern) {
				return true
			}
			if strings.HasPrefix(line, relativePattern) {
				return true
			}
		}
	}
	return false
}

func fileHasModDecl(path, moduleName string) bool {
	if moduleName == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	want := moduleName + ";"
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if (strings.HasPrefix(line, "pub mod ") || strings.HasPrefix(line, "mod ")) && strings.Contains(line, want) {
			return true
		}
	}
	return false
}

func fileContains(path, substr string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), substr)
}

// crateNameFor reads the name field out of the nearest Cargo.toml, walking
// up from path (or, when path is a directory, reading path/Cargo.toml
// directly), normalizing hyphens to underscores as Rust's import syntax
// requires.
func crateNameFor(path string, isDirHint bool) string {
	var cargoToml string
	if isDirHint {
		cargoToml = filepath.Join(path, "Cargo.toml")
		if !exists(cargoToml) {
			return ""
		}
	} else {
		dir := filepath.Dir(path)
		for {
			candidate := filepath.Join(dir, "Cargo.toml")
			if exists(candidate) {
				cargoToml = candidate
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				return ""
			}
			dir = parent
		}
	}

	data, err := os.ReadFile(cargoToml)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "name") && strings.Contains(trimmed, "=") {
			_, value, _ := strings.Cut(trimmed, "=")
			name := strings.Trim(strings.TrimSpace(value), `"'`)
			return strings.ReplaceAll(name, "-", "_")
		}
	}
	return ""
}

// modulePathFor computes crate_name::a::b::c from a file path relative to
// the crate's src/ directory, dropping the .rs extension and collapsing a
// trailing lib.rs/mod.rs into the parent module.
func modulePathFor(path, crateName, projectRoot string) string {
	dir := filepath.Dir(path)
	var crateRoot string
	for {
		if exists(filepath.Join(dir, "Cargo.toml")) {
			crateRoot = dir
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir || dir == projectRoot {
			crateRoot = dir
			break
		}
		dir = parent
	}

	srcDir := filepath.Join(crateRoot, "src")
	rel, err := filepath.Rel(srcDir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, ".rs")
	parts := strings.Split(filepath.ToSlash(rel), "/")

	last := parts[len(parts)-1]
	if last == "lib" || last == "mod" {
		parts = parts[:len(parts)-1]
	}

	segments := append([]string{crateName}, parts...)
	var kept []string
	for _, s := range segments {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "::")
}

func lastSegment(modulePath string) string {
	parts := strings.Split(modulePath, "::")
	return parts[len(parts)-1]
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func canonical(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			return path
		}
		return abs
	}
	return resolved
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func newIsDir(path string) bool {
	if info, err := os.Stat(path); err == nil {
		return info.IsDir()
	}
	// new_path may not exist yet during a rename; a trailing-slash-free
	// heuristic can't tell file from dir, so fall back to false — crate-name
	// resolution then walks parents looking for Cargo.toml exactly as the
	// file case does.
	return false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
