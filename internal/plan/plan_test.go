package plan

import (
	"testing"

	"github.com/amarbel-llc/codebuddy/internal/lsp"
)

func TestSortEditsDescending_OrdersByLineThenCharacter(t *testing.T) {
	edits := []lsp.TextEdit{
		{Range: lsp.Range{Start: lsp.Position{Line: 1, Character: 5}}},
		{Range: lsp.Range{Start: lsp.Position{Line: 3, Character: 0}}},
		{Range: lsp.Range{Start: lsp.Position{Line: 1, Character: 1}}},
	}
	sorted := SortEditsDescending(edits)

	want := []lsp.Position{{Line: 3, Character: 0}, {Line: 1, Character: 5}, {Line: 1, Character: 1}}
	for i, w := range want {
		if sorted[i].Range.Start != w {
			t.Fatalf("sorted[%d] = %+v, want %+v", i, sorted[i].Range.Start, w)
		}
	}
}

func TestValidateBatchRenameTargets_RejectsMissingNewName(t *testing.T) {
	err := ValidateBatchRenameTargets([]RenameTarget{{Path: "a.go", NewName: ""}})
	if err == nil {
		t.Fatal("expected error for missing new_name")
	}
}

func TestValidateBatchRenameTargets_RejectsCollision(t *testing.T) {
	err := ValidateBatchRenameTargets([]RenameTarget{
		{Path: "a.go", NewName: "widget"},
		{Path: "b.go", NewName: "widget"},
	})
	if err == nil {
		t.Fatal("expected a naming collision error")
	}
}

func TestValidateBatchRenameTargets_AcceptsDistinctNames(t *testing.T) {
	err := ValidateBatchRenameTargets([]RenameTarget{
		{Path: "a.go", NewName: "widget"},
		{Path: "b.go", NewName: "gadget"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMergeFileEdits_DedupesFullFileReplacementKeepingFirst(t *testing.T) {
	full1 := lsp.TextEdit{Range: lsp.Range{Start: lsp.Position{0, 0}, End: lsp.Position{100, 0}}, NewText: "manifest-version"}
	full2 := lsp.TextEdit{Range: lsp.Range{Start: lsp.Position{0, 0}, End: lsp.Position{100, 0}}, NewText: "per-target-version"}

	merged := MergeFileEdits([]TextEditSet{
		{Path: "Cargo.toml", Edits: []lsp.TextEdit{full1}},
		{Path: "Cargo.toml", Edits: []lsp.TextEdit{full2}},
	})

	if len(merged) != 1 {
		t.Fatalf("expected one merged set, got %d", len(merged))
	}
	var fullFileCount int
	for _, e := range merged[0].Edits {
		if isFullFileReplacement(e) {
			fullFileCount++
		}
	}
	if fullFileCount != 1 {
		t.Fatalf("expected exactly one full-file replacement to survive, got %d", fullFileCount)
	}
	if merged[0].Edits[0].NewText != "manifest-version" {
		t.Fatalf("expected the first (batch manifest) full-file edit to be kept, got %q", merged[0].Edits[0].NewText)
	}
}

func TestDetectConsolidation_RustCratesSrcSubtree(t *testing.T) {
	if !DetectConsolidation("/repo/crates/widgets/src/old_widget", nil) {
		t.Fatal("expected crates/X/src/... to be detected as a consolidation")
	}
}

func TestDetectConsolidation_TypeScriptPackagesSrcSubtree(t *testing.T) {
	if !DetectConsolidation("/repo/packages/widgets/src/old-widget", nil) {
		t.Fatal("expected packages/X/src/... to be detected as a consolidation")
	}
}

func TestDetectConsolidation_PlainMoveIsNotConsolidation(t *testing.T) {
	if DetectConsolidation("/repo/crates/widgets", nil) {
		t.Fatal("a crate-level move target (not inside another crate's src/) must not be a consolidation")
	}
}

func TestDetectConsolidation_ExplicitOverrideWins(t *testing.T) {
	truth := true
	if !DetectConsolidation("/repo/anything", &truth) {
		t.Fatal("explicit options.consolidate=true must be honored even without a src/ subtree match")
	}
	lie := false
	if DetectConsolidation("/repo/crates/widgets/src/old_widget", &lie) {
		t.Fatal("explicit options.consolidate=false must override the heuristic")
	}
}

func TestDetectCycle_FindsCycle(t *testing.T) {
	edges := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}
	cycle := DetectCycle(edges)
	if cycle == nil {
		t.Fatal("expected a cycle to be detected")
	}
}

func TestDetectCycle_NoCycleInDAG(t *testing.T) {
	edges := map[string][]string{
		"a": {"b", "c"},
		"b": {"c"},
		"c": {},
	}
	if cyc := DetectCycle(edges); cyc != nil {
		t.Fatalf("expected no cycle in a DAG, got %v", cyc)
	}
}

func TestRecordChecksum_DeterministicForSameContent(t *testing.T) {
	p := NewPlan(KindRename, DefaultOptions())
	p.RecordChecksum("a.go", []byte("package a\n"))
	p.RecordChecksum("b.go", []byte("package a\n"))
	if p.FileChecksums["a.go"] != p.FileChecksums["b.go"] {
		t.Fatal("expected identical content to produce identical checksums")
	}
}
