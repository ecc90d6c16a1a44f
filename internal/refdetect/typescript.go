package refdetect

import (
	"os"
	"path/filepath"
	"strings"
)

// TypeScript treats a file as affected if it contains from "<pkg>",
// from '<pkg>', require("<pkg>"), or import("<pkg>") for the moved package
// specifier.
type TypeScript struct{}

func NewTypeScript() *TypeScript { return &TypeScript{} }

var tsExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".mjs": true, ".cjs": true, ".mts": true, ".cts": true,
}

// FindAffectedFiles implements plugin.ReferenceDetector.
func (t *TypeScript) FindAffectedFiles(oldPath, newPath, projectRoot string, projectFiles []string) ([]string, error) {
	oldPath = canonical(oldPath)
	newPath = canonical(newPath)

	pkg := packageSpecifierFor(oldPath, projectRoot)
	if pkg == "" {
		return nil, nil
	}

	patterns := []string{
		`from "` + pkg + `"`,
		`from '` + pkg + `'`,
		`require("` + pkg + `")`,
		`require('` + pkg + `')`,
		`import("` + pkg + `")`,
		`import('` + pkg + `')`,
	}

	var affected []string
	for _, f := range projectFiles {
		cf := canonical(f)
		if cf == oldPath || cf == newPath {
			continue
		}
		if !tsExtensions[filepath.Ext(f)] {
			continue
		}
		if tsFileMatchesAny(f, patterns) {
			affected = append(affected, f)
		}
	}
	return affected, nil
}

func tsFileMatchesAny(path string, patterns []string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	content := string(data)
	for _, p := range patterns {
		if strings.Contains(content, p) {
			return true
		}
	}
	return false
}

// packageSpecifierFor derives the import specifier other files would use to
// reach path: for a file under a package.json, "./" plus its path (without
// extension) relative to that package's src/ directory, or to the package
// root when the file is outside src/; the directory name for a directory
// move (npm package rename); otherwise the file's own stem.
func packageSpecifierFor(path, projectRoot string) string {
	if isDir(path) {
		return filepath.Base(path)
	}

	pkgRoot := nearestPackageJSONDir(path)
	if pkgRoot == "" {
		return stemOf(path)
	}

	base := pkgRoot
	if srcRoot := filepath.Join(pkgRoot, "src"); strings.HasPrefix(path, srcRoot+string(filepath.Separator)) {
		base = srcRoot
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return stemOf(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return "./" + filepath.ToSlash(rel)
}

func nearestPackageJSONDir(path string) string {
	dir := filepath.Dir(path)
	for {
		if exists(filepath.Join(dir, "package.json")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
