package exec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amarbel-llc/codebuddy/internal/lsp"
	"github.com/amarbel-llc/codebuddy/internal/plan"
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

func TestExecute_AppliesTextEditsInDescendingOrder(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a.go")
	writeFile(t, target, "package a\n\nfunc old() {}\n")

	p := plan.NewPlan(plan.KindRename, plan.Options{DryRun: false})
	p.RecordChecksum(target, []byte("package a\n\nfunc old() {}\n"))
	p.AddTextEdits(target, []lsp.TextEdit{
		{Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 8}, End: lsp.Position{Line: 0, Character: 9}}, NewText: "alpha"},
		{Range: lsp.Range{Start: lsp.Position{Line: 2, Character: 5}, End: lsp.Position{Line: 2, Character: 8}}, NewText: "new"},
	})

	result, err := Execute(p, root, nil, nil, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}

	got := readFile(t, target)
	if got != "package alpha\n\nfunc new() {}\n" {
		t.Fatalf("got %q", got)
	}
}

func TestExecute_AbortsOnStaleChecksum(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a.go")
	writeFile(t, target, "package a\n")

	p := plan.NewPlan(plan.KindRename, plan.Options{DryRun: false})
	p.RecordChecksum(target, []byte("this is not the current content"))

	_, err := Execute(p, root, nil, nil, nil)
	if err == nil {
		t.Fatal("expected a stale plan error")
	}

	// No edits should have been written.
	if got := readFile(t, target); got != "package a\n" {
		t.Fatalf("file was mutated despite stale precondition: %q", got)
	}
}

func TestExecute_RollsBackOnResourceOpFailure(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.go")
	writeFile(t, a, "package a\n")

	p := plan.NewPlan(plan.KindMove, plan.Options{DryRun: false})
	p.RecordChecksum(a, []byte("package a\n"))
	p.AddTextEdits(a, []lsp.TextEdit{
		{Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 0}, End: lsp.Position{Line: 0, Character: 7}}, NewText: "package b"},
	})
	p.ResourceOps = []plan.ResourceOp{
		{Kind: plan.ResourceRename, Path: filepath.Join(root, "does-not-exist.go"), NewPath: filepath.Join(root, "renamed.go")},
	}

	_, err := Execute(p, root, nil, nil, nil)
	if err == nil {
		t.Fatal("expected an error from the missing source file rename")
	}

	if got := readFile(t, a); got != "package a\n" {
		t.Fatalf("expected a.go to remain untouched after rollback, got %q", got)
	}
}

func TestExecute_CreateThenDeleteOrdering(t *testing.T) {
	root := t.TempDir()
	toDelete := filepath.Join(root, "old.go")
	writeFile(t, toDelete, "package a\n")

	p := plan.NewPlan(plan.KindDelete, plan.Options{DryRun: false})
	p.ResourceOps = []plan.ResourceOp{
		{Kind: plan.ResourceDelete, Path: toDelete},
		{Kind: plan.ResourceCreate, Path: filepath.Join(root, "new.go")},
	}

	result, err := Execute(p, root, nil, nil, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(result.CreatedFiles) != 1 || len(result.DeletedFiles) != 1 {
		t.Fatalf("expected one created and one deleted file, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(root, "new.go")); err != nil {
		t.Fatalf("expected new.go to exist: %v", err)
	}
	if _, err := os.Stat(toDelete); !os.IsNotExist(err) {
		t.Fatalf("expected old.go to be deleted")
	}
}
