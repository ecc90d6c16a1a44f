package refdetect

import (
	"path/filepath"
	"testing"
)

func TestTypeScript_FindsImportingFiles(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "package.json"), `{"name":"pkg"}`)
	writeFile(t, filepath.Join(root, "src", "util.ts"), "export const isValid = (x) => !!x;\n")
	writeFile(t, filepath.Join(root, "src", "app.ts"), "import { isValid } from './util';\nisValid(1);\n")

	oldPath := filepath.Join(root, "src", "util.ts")
	newPath := filepath.Join(root, "src", "validation.ts")

	projectFiles := []string{oldPath, filepath.Join(root, "src", "app.ts")}

	affected, err := NewTypeScript().FindAffectedFiles(oldPath, newPath, root, projectFiles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !containsPath(affected, canonical(filepath.Join(root, "src", "app.ts"))) {
		t.Fatalf("expected app.ts to be affected, got %v", affected)
	}
}

func TestTypeScript_MatchesRequireAndDynamicImport(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{"name":"pkg"}`)
	writeFile(t, filepath.Join(root, "src", "util.js"), "module.exports.isValid = (x) => !!x;\n")
	writeFile(t, filepath.Join(root, "src", "cjs.js"), "const { isValid } = require('./util');\n")
	writeFile(t, filepath.Join(root, "src", "dyn.js"), "import('./util').then((m) => m.isValid(1));\n")

	oldPath := filepath.Join(root, "src", "util.js")
	newPath := filepath.Join(root, "src", "validation.js")

	projectFiles := []string{
		oldPath,
		filepath.Join(root, "src", "cjs.js"),
		filepath.Join(root, "src", "dyn.js"),
	}

	affected, err := NewTypeScript().FindAffectedFiles(oldPath, newPath, root, projectFiles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !containsPath(affected, canonical(filepath.Join(root, "src", "cjs.js"))) {
		t.Fatalf("expected cjs.js (require) to be affected, got %v", affected)
	}
	if !containsPath(affected, canonical(filepath.Join(root, "src", "dyn.js"))) {
		t.Fatalf("expected dyn.js (dynamic import) to be affected, got %v", affected)
	}
}

func TestTypeScript_SkipsUnrelatedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{"name":"pkg"}`)
	writeFile(t, filepath.Join(root, "src", "util.ts"), "export const isValid = (x) => !!x;\n")
	writeFile(t, filepath.Join(root, "src", "unrelated.ts"), "export const other = 1;\n")

	oldPath := filepath.Join(root, "src", "util.ts")
	newPath := filepath.Join(root, "src", "validation.ts")

	affected, err := NewTypeScript().FindAffectedFiles(oldPath, newPath, root, []string{
		oldPath, filepath.Join(root, "src", "unrelated.ts"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(affected) != 0 {
		t.Fatalf("expected no affected files, got %v", affected)
	}
}
