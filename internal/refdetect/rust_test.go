package refdetect

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestRust_CrateDirectoryRenameDetection(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "old_crate", "Cargo.toml"), "[package]\nname = \"old_crate\"\nversion = \"0.1.0\"\n")
	writeFile(t, filepath.Join(root, "old_crate", "src", "lib.rs"), "pub fn utility() {}\n")
	writeFile(t, filepath.Join(root, "app", "Cargo.toml"), "[package]\nname = \"app\"\nversion = \"0.1.0\"\n")
	writeFile(t, filepath.Join(root, "app", "src", "main.rs"), "use old_crate::utility;\n\nfn main() {\n    utility();\n}\n")

	oldPath := filepath.Join(root, "old_crate")
	newPath := filepath.Join(root, "new_crate")

	projectFiles := []string{
		filepath.Join(root, "old_crate", "src", "lib.rs"),
		filepath.Join(root, "app", "src", "main.rs"),
	}

	det := NewRust()
	affected, err := det.FindAffectedFiles(oldPath, newPath, root, projectFiles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantFile := canonical(filepath.Join(root, "app", "src", "main.rs"))
	if !containsPath(affected, wantFile) {
		t.Fatalf("expected app/src/main.rs in affected files, got %v", affected)
	}
}

func TestRust_CrateRelativeImportDetection(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "Cargo.toml"), "[package]\nname = \"test_project\"\nversion = \"0.1.0\"\n")
	writeFile(t, filepath.Join(root, "src", "lib.rs"), "pub mod utils;\n\nuse utils::helpers::process;\n\npub fn lib_fn() {\n    process();\n}\n")
	writeFile(t, filepath.Join(root, "src", "utils", "mod.rs"), "pub mod helpers;\n\npub fn utils_fn() {\n    helpers::process();\n}\n")
	writeFile(t, filepath.Join(root, "src", "utils", "helpers.rs"), "pub fn process() {}\n")

	oldPath := filepath.Join(root, "src", "utils", "helpers.rs")
	newPath := filepath.Join(root, "src", "utils", "support.rs")

	projectFiles := []string{
		filepath.Join(root, "src", "lib.rs"),
		filepath.Join(root, "src", "utils", "mod.rs"),
		filepath.Join(root, "src", "utils", "helpers.rs"),
	}

	det := NewRust()
	affected, err := det.FindAffectedFiles(oldPath, newPath, root, projectFiles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantLib := canonical(filepath.Join(root, "src", "lib.rs"))
	if !containsPath(affected, wantLib) {
		t.Fatalf("expected src/lib.rs (crate-relative import) in affected files, got %v", affected)
	}
}

func TestRust_SameDirectoryRename_UpdatesModDeclaration(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "Cargo.toml"), "[package]\nname = \"proj\"\nversion = \"0.1.0\"\n")
	writeFile(t, filepath.Join(root, "src", "lib.rs"), "mod old_name;\n")
	writeFile(t, filepath.Join(root, "src", "old_name.rs"), "pub fn f() {}\n")

	oldPath := filepath.Join(root, "src", "old_name.rs")
	newPath := filepath.Join(root, "src", "new_name.rs")

	affected, err := NewRust().FindAffectedFiles(oldPath, newPath, root, []string{
		filepath.Join(root, "src", "lib.rs"),
		oldPath,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !containsPath(affected, canonical(filepath.Join(root, "src", "lib.rs"))) {
		t.Fatalf("expected lib.rs to be affected by mod declaration update, got %v", affected)
	}
}

func TestRust_SameDirectoryRename_SkipsAlreadyDeclaredModule(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "Cargo.toml"), "[package]\nname = \"proj\"\nversion = \"0.1.0\"\n")
	writeFile(t, filepath.Join(root, "src", "lib.rs"), "mod old_name;\nmod new_name;\n")
	writeFile(t, filepath.Join(root, "src", "old_name.rs"), "pub fn f() {}\n")

	oldPath := filepath.Join(root, "src", "old_name.rs")
	newPath := filepath.Join(root, "src", "new_name.rs")

	affected, err := NewRust().FindAffectedFiles(oldPath, newPath, root, []string{
		filepath.Join(root, "src", "lib.rs"),
		oldPath,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if containsPath(affected, canonical(filepath.Join(root, "src", "lib.rs"))) {
		t.Fatalf("did not expect lib.rs to be affected when new_name is already declared, got %v", affected)
	}
}

func TestRust_SkipsTheMovedFileItself(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Cargo.toml"), "[package]\nname = \"proj\"\nversion = \"0.1.0\"\n")
	writeFile(t, filepath.Join(root, "src", "lib.rs"), "pub fn f() {}\n")

	oldPath := filepath.Join(root, "src", "lib.rs")
	newPath := filepath.Join(root, "src", "lib2.rs")

	affected, err := NewRust().FindAffectedFiles(oldPath, newPath, root, []string{oldPath})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if containsPath(affected, canonical(oldPath)) {
		t.Fatalf("detector must never include the moved file itself, got %v", affected)
	}
}

func containsPath(paths []string, want string) bool {
	for _, p := range paths {
		if canonical(p) == want {
			return true
		}
	}
	return false
}
