package enhance

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/amarbel-llc/codebuddy/internal/lsp"
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

func TestFindWorkspaceRoot_WalksUpToMarker(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module example\n")
	nested := filepath.Join(root, "internal", "pkg", "file.go")
	writeFile(t, nested, "package pkg\n")

	got := FindWorkspaceRoot(nested)
	want, _ := filepath.EvalSymlinks(root)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != want {
		t.Fatalf("FindWorkspaceRoot(%q) = %q, want %q", nested, got, want)
	}
}

func TestFindWorkspaceRoot_FallsBackToParent(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "file.go")
	writeFile(t, nested, "package b\n")

	got := FindWorkspaceRoot(nested)
	want := filepath.Dir(nested)
	if got != want {
		t.Fatalf("FindWorkspaceRoot(%q) = %q, want %q", nested, got, want)
	}
}

func TestExtractSymbolAt_WidestRun(t *testing.T) {
	content := "const myVariable = 1;\n"
	got := ExtractSymbolAt(content, 0, 8)
	if got != "myVariable" {
		t.Fatalf("ExtractSymbolAt = %q, want %q", got, "myVariable")
	}
}

func TestExtractSymbolAt_RejectsLeadingDigit(t *testing.T) {
	content := "x = 123abc;\n"
	got := ExtractSymbolAt(content, 0, 5)
	if got == "123abc" {
		t.Fatalf("ExtractSymbolAt must not return an identifier with a leading digit, got %q", got)
	}
}

func TestCandidateFiles_SkipsIgnoredDirsAndExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "a.ts"), "export const a = 1;\n")
	writeFile(t, filepath.Join(root, "node_modules", "dep", "b.ts"), "export const b = 1;\n")
	writeFile(t, filepath.Join(root, "README.md"), "docs\n")
	writeFile(t, filepath.Join(root, "src", "a.ts"), "export const a = 1;\n")

	files := CandidateFiles(root, filepath.Join(root, "src", "a.ts"))
	for _, f := range files {
		if filepath.Base(filepath.Dir(f)) == "dep" {
			t.Fatalf("expected node_modules to be skipped, got %v", files)
		}
		if filepath.Ext(f) == ".md" {
			t.Fatalf("expected non-searchable extensions to be skipped, got %v", files)
		}
		if f == filepath.Join(root, "src", "a.ts") {
			t.Fatalf("expected excludePath to be omitted, got %v", files)
		}
	}
}

func TestCandidateFiles_HonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "generated/\n*.gen.go\n")
	writeFile(t, filepath.Join(root, "generated", "x.go"), "package generated\n")
	writeFile(t, filepath.Join(root, "keep.gen.go"), "package main\n")
	writeFile(t, filepath.Join(root, "keep.go"), "package main\n")

	files := CandidateFiles(root, "")
	for _, f := range files {
		if filepath.Base(filepath.Dir(f)) == "generated" {
			t.Fatalf("expected generated/ to be ignored, got %v", files)
		}
		if filepath.Base(f) == "keep.gen.go" {
			t.Fatalf("expected *.gen.go to be ignored, got %v", files)
		}
	}
}

func TestSelectCandidates_RequiresSymbolMarkerAndReference(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src", "util.ts")
	writeFile(t, src, "export function widgetFactory() {}\n")

	matching := filepath.Join(root, "src", "app.ts")
	writeFile(t, matching, "import { widgetFactory } from './util';\nwidgetFactory();\n")

	noMarker := filepath.Join(root, "src", "unrelated.ts")
	writeFile(t, noMarker, "widgetFactory lives here as text only, with no marker of any kind.\n")

	noReference := filepath.Join(root, "src", "other.ts")
	writeFile(t, noReference, "import { somethingElse } from './somewhere';\n")

	candidates, err := SelectCandidates(context.Background(), []string{matching, noMarker, noReference}, "widgetFactory", src, root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Path != matching {
		t.Fatalf("expected only %q to be selected, got %v", matching, candidates)
	}
}

func TestScanOccurrences_SkipsStringLiteralsAndRequiresWordBoundary(t *testing.T) {
	content := `x("notfoo_bar");
foo_baz(foo);
"foo" + foo;
` + "`template ${foo} literal`" + `
`
	occs := ScanOccurrences(content, "foo")

	var sawLine1Standalone, sawLine2Standalone, sawTemplateMatch int
	for _, o := range occs {
		switch o.Line {
		case 0:
			t.Fatalf("expected no match on line 0, \"foo\" only appears inside the string literal, got %v", occs)
		case 1:
			sawLine1Standalone++
		case 2:
			sawLine2Standalone++
		case 3:
			sawTemplateMatch++
		}
	}
	if sawLine1Standalone != 1 {
		t.Fatalf("expected exactly one standalone foo match on line 1 (the call argument), got %v", occs)
	}
	if sawLine2Standalone != 1 {
		t.Fatalf("expected exactly one standalone foo match on line 2 outside the quoted string, got %v", occs)
	}
	if sawTemplateMatch != 0 {
		t.Fatalf("template-literal interpolation is still inside backtick string state in this scanner, should not match, got %v", occs)
	}
}

func TestScanOccurrences_NoMatchOnPartialIdentifier(t *testing.T) {
	occs := ScanOccurrences("foobar and foo_baz and barfoo\n", "foo")
	if len(occs) != 0 {
		t.Fatalf("expected no whole-word matches, got %v", occs)
	}
}

func TestMergeLocations_KeepsLSPEntriesAndDedupsScanned(t *testing.T) {
	lspLocs := []lsp.Location{
		{URI: "file:///a.go", Range: lsp.Range{Start: lsp.Position{Line: 1, Character: 2}, End: lsp.Position{Line: 1, Character: 5}}},
	}
	scanned := map[lsp.DocumentURI][]Occurrence{
		"file:///a.go": {{Line: 1, StartChar: 2, EndChar: 5}},
		"file:///b.go": {{Line: 3, StartChar: 0, EndChar: 3}},
	}

	merged := MergeLocations(lspLocs, scanned)
	if len(merged) != 2 {
		t.Fatalf("expected dedup against identical LSP entry plus one new entry, got %d: %v", len(merged), merged)
	}
}

func TestMergeRenameEdits_NeverOverwritesLSPEntry(t *testing.T) {
	changes := map[string][]lsp.TextEdit{
		"file:///a.go": {{Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 0}, End: lsp.Position{Line: 0, Character: 3}}, NewText: "bar"}},
	}
	scanned := map[lsp.DocumentURI][]Occurrence{
		"file:///a.go": {{Line: 5, StartChar: 0, EndChar: 3}},
		"file:///b.go": {{Line: 2, StartChar: 0, EndChar: 3}},
	}

	MergeRenameEdits(changes, scanned, "bar")

	if len(changes["file:///a.go"]) != 1 {
		t.Fatalf("expected file:///a.go LSP edit to remain untouched, got %v", changes["file:///a.go"])
	}
	if len(changes["file:///b.go"]) != 1 {
		t.Fatalf("expected a new entry for file:///b.go, got %v", changes["file:///b.go"])
	}
}
