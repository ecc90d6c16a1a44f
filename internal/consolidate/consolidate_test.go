package consolidate

import (
	"os"
	"path/filepath"
	"strings"
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

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestRun_RustConsolidation_FullPipeline(t *testing.T) {
	root := t.TempDir()

	targetCrate := filepath.Join(root, "crates", "widgets")
	sourceCrate := filepath.Join(root, "crates", "old_widget")
	targetModule := filepath.Join(targetCrate, "src", "old_widget")

	writeFile(t, filepath.Join(root, "Cargo.toml"), "[workspace]\nmembers = [\n    \"crates/widgets\",\n    \"crates/old_widget\",\n]\n")
	writeFile(t, filepath.Join(targetCrate, "Cargo.toml"), "[package]\nname = \"widgets\"\n\n[dependencies]\nserde = \"1\"\n")
	writeFile(t, filepath.Join(targetCrate, "src", "lib.rs"), "pub mod shapes;\n")
	writeFile(t, filepath.Join(sourceCrate, "Cargo.toml"), "[package]\nname = \"old_widget\"\n\n[dependencies]\nserde = \"1\"\nlog = \"0.4\"\n")

	// Simulate the Plan Executor having already moved the directory with a
	// nested src/ (the pre-move crate layout) into the target module path.
	writeFile(t, filepath.Join(targetModule, "src", "lib.rs"), "pub fn render() {}\n\npub fn helper() {\n    old_widget::render();\n}\n")

	consumer := filepath.Join(root, "crates", "consumer", "src", "main.rs")
	writeFile(t, consumer, "use old_widget::render;\n\nfn main() {\n    render();\n}\n")

	meta := Metadata{
		SourceCratePath:  sourceCrate,
		SourceCrateName:  "old_widget",
		TargetCratePath:  targetCrate,
		TargetCrateName:  "widgets",
		TargetModulePath: targetModule,
		TargetModuleName: "old_widget",
		Language:         "rust",
	}

	projectFiles := []string{consumer, filepath.Join(targetModule, "lib.rs")}

	warnings, err := Run(meta, root, projectFiles)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one warning for the duplicate serde dependency, got %v", warnings)
	}

	// Step 1+2: nested src/ flattened and lib.rs renamed to mod.rs.
	if _, err := os.Stat(filepath.Join(targetModule, "src")); !os.IsNotExist(err) {
		t.Fatalf("expected nested src/ to be removed")
	}
	if _, err := os.Stat(filepath.Join(targetModule, "mod.rs")); err != nil {
		t.Fatalf("expected lib.rs to be renamed to mod.rs: %v", err)
	}

	// Step 3: module export added to target's lib.rs.
	libRs := readFile(t, filepath.Join(targetCrate, "src", "lib.rs"))
	if !strings.Contains(libRs, "pub mod old_widget;") {
		t.Fatalf("expected pub mod old_widget; in target lib.rs, got %q", libRs)
	}

	// Step 4: log dependency merged in, serde conflict kept target's.
	targetManifest := readFile(t, filepath.Join(targetCrate, "Cargo.toml"))
	if !strings.Contains(targetManifest, `log = "0.4"`) {
		t.Fatalf("expected log dependency merged into target manifest, got %q", targetManifest)
	}

	// Step 5: self-import rewritten to crate::.
	modRs := readFile(t, filepath.Join(targetModule, "mod.rs"))
	if strings.Contains(modRs, "old_widget::render()") {
		t.Fatalf("expected self-import to be rewritten to crate::render(), got %q", modRs)
	}
	if !strings.Contains(modRs, "crate::render()") {
		t.Fatalf("expected crate::render() after self-import fix, got %q", modRs)
	}

	// Step 6: workspace-wide import rewritten.
	consumerSrc := readFile(t, consumer)
	if !strings.Contains(consumerSrc, "use widgets::old_widget::render;") {
		t.Fatalf("expected consumer import rewritten to widgets::old_widget::, got %q", consumerSrc)
	}

	// Step 7: source removed from workspace members.
	workspaceToml := readFile(t, filepath.Join(root, "Cargo.toml"))
	if strings.Contains(workspaceToml, "crates/old_widget") {
		t.Fatalf("expected source crate removed from workspace members, got %q", workspaceToml)
	}
}

func TestFlattenNestedSrc_NoOpWhenAlreadyFlat(t *testing.T) {
	root := t.TempDir()
	module := filepath.Join(root, "mod")
	writeFile(t, filepath.Join(module, "mod.rs"), "pub fn f() {}\n")

	meta := Metadata{TargetModulePath: module, Language: "rust"}
	if err := flattenNestedSrc(meta); err != nil {
		t.Fatalf("expected no-op, got error: %v", err)
	}
}

func TestRenameLibRsToModRs_SkipsWhenModAlreadyExists(t *testing.T) {
	module := t.TempDir()
	writeFile(t, filepath.Join(module, "lib.rs"), "pub fn old() {}\n")
	writeFile(t, filepath.Join(module, "mod.rs"), "pub fn existing() {}\n")

	meta := Metadata{TargetModulePath: module}
	if err := renameLibRsToModRs(meta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(module, "lib.rs")); err != nil {
		t.Fatalf("expected lib.rs to remain untouched when mod.rs already exists")
	}
}
