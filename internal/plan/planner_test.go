package plan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writePlannerFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Lays out a Rust workspace with a source crate and a host crate, the
// shape the consolidation auto-detector keys on.
func rustConsolidationWorkspace(t *testing.T) (root, sourceCrate, targetModule string) {
	t.Helper()
	root = t.TempDir()
	sourceCrate = filepath.Join(root, "crates", "sub")
	hostCrate := filepath.Join(root, "crates", "host")
	targetModule = filepath.Join(hostCrate, "src", "sub")

	writePlannerFile(t, filepath.Join(root, "Cargo.toml"), "[workspace]\nmembers = [\"crates/sub\", \"crates/host\"]\n")
	writePlannerFile(t, filepath.Join(sourceCrate, "Cargo.toml"), "[package]\nname = \"sub-crate\"\n")
	writePlannerFile(t, filepath.Join(sourceCrate, "src", "lib.rs"), "pub fn go() {}\n")
	writePlannerFile(t, filepath.Join(hostCrate, "Cargo.toml"), "[package]\nname = \"host-crate\"\n")
	writePlannerFile(t, filepath.Join(hostCrate, "src", "lib.rs"), "pub mod shapes;\n")
	return root, sourceCrate, targetModule
}

func TestPlanMove_ConsolidationMetadataFullyResolved(t *testing.T) {
	root, sourceCrate, targetModule := rustConsolidationWorkspace(t)

	p, err := PlanMove(nil, MoveArgs{
		SourcePath:  sourceCrate,
		TargetPath:  targetModule,
		ProjectRoot: root,
	}, Options{DryRun: true})
	if err != nil {
		t.Fatalf("PlanMove failed: %v", err)
	}

	if !p.IsConsolidation {
		t.Fatal("expected move into crates/host/src/ to be detected as a consolidation")
	}
	if p.Consolidation == nil {
		t.Fatal("IsConsolidation is set but Consolidation metadata is nil")
	}

	meta := p.Consolidation
	if meta.SourceCratePath != sourceCrate {
		t.Errorf("SourceCratePath = %q, want %q", meta.SourceCratePath, sourceCrate)
	}
	if meta.SourceCrateName != "sub_crate" {
		t.Errorf("SourceCrateName = %q, want %q", meta.SourceCrateName, "sub_crate")
	}
	if want := filepath.Join(root, "crates", "host"); meta.TargetCratePath != want {
		t.Errorf("TargetCratePath = %q, want the crate root %q, not the module path", meta.TargetCratePath, want)
	}
	if meta.TargetCrateName != "host_crate" {
		t.Errorf("TargetCrateName = %q, want %q", meta.TargetCrateName, "host_crate")
	}
	if meta.TargetModulePath != targetModule {
		t.Errorf("TargetModulePath = %q, want %q", meta.TargetModulePath, targetModule)
	}
	if meta.TargetModuleName != "sub" {
		t.Errorf("TargetModuleName = %q, want %q", meta.TargetModuleName, "sub")
	}
	if meta.Language != "rust" {
		t.Errorf("Language = %q, want %q", meta.Language, "rust")
	}
}

func TestPlanMove_UnresolvableConsolidationDowngradesToPlainMove(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "crates", "sub")
	target := filepath.Join(root, "crates", "host", "src", "sub")
	// No manifests anywhere: the path shape says consolidation, but there
	// is nothing to resolve crate names from.
	writePlannerFile(t, filepath.Join(source, "lib.rs"), "pub fn go() {}\n")

	p, err := PlanMove(nil, MoveArgs{
		SourcePath:  source,
		TargetPath:  target,
		ProjectRoot: root,
	}, Options{DryRun: true})
	if err != nil {
		t.Fatalf("PlanMove failed: %v", err)
	}

	if p.IsConsolidation || p.Consolidation != nil {
		t.Fatal("expected unresolvable consolidation to fall back to a plain move")
	}
	if len(p.Warnings) == 0 {
		t.Fatal("expected a warning explaining why post-processing was skipped")
	}
}

func TestPlanBatchRename_DirectoryConsolidationCarriesMetadata(t *testing.T) {
	root, sourceCrate, targetModule := rustConsolidationWorkspace(t)

	p, err := PlanBatchRename(context.Background(), nil, nil, BatchRenameArgs{
		Targets: []RenameTarget{
			{Path: sourceCrate, NewName: filepath.Join("host", "src", "sub")},
		},
		ProjectRoot: root,
	}, Options{DryRun: true})
	if err != nil {
		t.Fatalf("PlanBatchRename failed: %v", err)
	}

	if !p.IsConsolidation {
		t.Fatal("expected the directory target to be detected as a consolidation")
	}
	if p.Consolidation == nil {
		t.Fatal("IsConsolidation is set but Consolidation metadata is nil; the executor would silently skip post-processing")
	}
	if p.Consolidation.SourceCrateName != "sub_crate" || p.Consolidation.TargetCrateName != "host_crate" {
		t.Errorf("crate names = (%q, %q), want (sub_crate, host_crate)",
			p.Consolidation.SourceCrateName, p.Consolidation.TargetCrateName)
	}
	if p.Consolidation.TargetModulePath != targetModule {
		t.Errorf("TargetModulePath = %q, want %q", p.Consolidation.TargetModulePath, targetModule)
	}
}

func TestPlanMove_TypeScriptPackageConsolidation(t *testing.T) {
	root := t.TempDir()
	sourcePkg := filepath.Join(root, "packages", "utils")
	hostPkg := filepath.Join(root, "packages", "app")
	targetModule := filepath.Join(hostPkg, "src", "utils")

	writePlannerFile(t, filepath.Join(sourcePkg, "package.json"), "{\n  \"name\": \"@acme/utils\"\n}\n")
	writePlannerFile(t, filepath.Join(sourcePkg, "src", "index.ts"), "export const ok = true;\n")
	writePlannerFile(t, filepath.Join(hostPkg, "package.json"), "{\n  \"name\": \"@acme/app\"\n}\n")
	writePlannerFile(t, filepath.Join(hostPkg, "src", "index.ts"), "export * from './shapes';\n")

	p, err := PlanMove(nil, MoveArgs{
		SourcePath:  sourcePkg,
		TargetPath:  targetModule,
		ProjectRoot: root,
	}, Options{DryRun: true})
	if err != nil {
		t.Fatalf("PlanMove failed: %v", err)
	}

	if p.Consolidation == nil {
		t.Fatal("expected consolidation metadata for a packages/app/src/ move")
	}
	if p.Consolidation.Language != "typescript" {
		t.Errorf("Language = %q, want typescript", p.Consolidation.Language)
	}
	if p.Consolidation.SourceCrateName != "@acme/utils" {
		t.Errorf("SourceCrateName = %q, want @acme/utils", p.Consolidation.SourceCrateName)
	}
	if p.Consolidation.TargetCrateName != "@acme/app" {
		t.Errorf("TargetCrateName = %q, want @acme/app", p.Consolidation.TargetCrateName)
	}
	if p.Consolidation.TargetModuleName != "utils" {
		t.Errorf("TargetModuleName = %q, want utils", p.Consolidation.TargetModuleName)
	}
}
