package plugin

import (
	"errors"
	"testing"

	"github.com/amarbel-llc/codebuddy/internal/codeerr"
)

type fakePlugin struct {
	name       string
	version    string
	priority   int
	extensions []string
	custom     map[string]ToolScope
}

func (f *fakePlugin) Metadata() Metadata {
	return Metadata{Name: f.name, Version: f.version, Priority: f.priority}
}
func (f *fakePlugin) Capabilities() CapabilitySet {
	return CapabilitySet{Navigation: true, CustomMethod: f.custom}
}
func (f *fakePlugin) SupportedExtensions() []string       { return f.extensions }
func (f *fakePlugin) ManifestFilenames() []string         { return nil }
func (f *fakePlugin) Parse(src []byte) (ParsedSource, error) { return ParsedSource{}, nil }
func (f *fakePlugin) ImportMutationSupport() ImportMutator { return nil }
func (f *fakePlugin) ReferenceDetector() ReferenceDetector { return nil }
func (f *fakePlugin) ConsolidationPostProcessor() ConsolidationPostProcessor { return nil }

func newFake(name string, priority int, exts ...string) *fakePlugin {
	return &fakePlugin{name: name, version: "1.0.0", priority: priority, extensions: exts}
}

func TestFindBestPlugin_SingleCapablePlugin(t *testing.T) {
	r := NewRegistry()
	rustPlugin := newFake("rust-lsp", 0, "rs")
	if err := r.Register(rustPlugin); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := r.FindBestPlugin("src/lib.rs", "find_definition")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Metadata().Name != "rust-lsp" {
		t.Fatalf("got %s, want rust-lsp", got.Metadata().Name)
	}
}

func TestFindBestPlugin_NotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.FindBestPlugin("src/lib.rs", "find_definition")

	var notFound *codeerr.PluginNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected PluginNotFound, got %v", err)
	}
}

func TestFindBestPlugin_ExtensionFiltersOutNonMatching(t *testing.T) {
	r := NewRegistry()
	fileScoped := map[string]ToolScope{"find_definition": ScopeFile}
	rustPlugin := newFake("rust-lsp", 0, "rs")
	rustPlugin.custom = fileScoped
	tsPlugin := newFake("ts-lsp", 0, "ts", "tsx")
	tsPlugin.custom = fileScoped
	r.Register(rustPlugin)
	r.Register(tsPlugin)

	got, err := r.FindBestPlugin("src/app.ts", "find_definition")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Metadata().Name != "ts-lsp" {
		t.Fatalf("got %s, want ts-lsp", got.Metadata().Name)
	}
}

func TestFindBestPlugin_Ambiguous_StrictMode(t *testing.T) {
	r := NewRegistry()
	r.ErrorOnAmbiguity = true
	r.Register(newFake("a-ts-lsp", 50, "ts"))
	r.Register(newFake("b-ts-lsp", 50, "ts"))

	_, err := r.FindBestPlugin("src/app.ts", "find_definition")

	var ambiguous *codeerr.AmbiguousPluginSelection
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected AmbiguousPluginSelection, got %v", err)
	}
	if ambiguous.Priority != 50 {
		t.Fatalf("priority = %d, want 50", ambiguous.Priority)
	}
	if len(ambiguous.Plugins) != 2 {
		t.Fatalf("plugins = %v, want 2 entries", ambiguous.Plugins)
	}
}

func TestFindBestPlugin_Ambiguous_LenientMode_BreaksTieByName(t *testing.T) {
	r := NewRegistry()
	r.Register(newFake("b-ts-lsp", 50, "ts"))
	r.Register(newFake("a-ts-lsp", 50, "ts"))

	got, err := r.FindBestPlugin("src/app.ts", "find_definition")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Metadata().Name != "a-ts-lsp" {
		t.Fatalf("got %s, want a-ts-lsp (lexicographically first)", got.Metadata().Name)
	}
}

func TestFindBestPlugin_PriorityOverrideWins(t *testing.T) {
	r := NewRegistry()
	r.Register(newFake("low", 10, "go"))
	r.Register(newFake("high", 90, "go"))
	r.SetPriorityOverride("low", 100)

	got, err := r.FindBestPlugin("main.go", "find_definition")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Metadata().Name != "low" {
		t.Fatalf("got %s, want low (overridden to priority 100)", got.Metadata().Name)
	}
}

func TestRegister_DuplicateName_ReplacesPreviousEntry(t *testing.T) {
	r := NewRegistry()
	r.Register(newFake("dup", 10, "go"))
	r.Register(newFake("dup", 90, "go"))

	if r.Stats().TotalPlugins != 1 {
		t.Fatalf("expected exactly one plugin entry after duplicate registration, got %d", r.Stats().TotalPlugins)
	}

	got, err := r.FindBestPlugin("main.go", "find_definition")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Metadata().Priority != 90 {
		t.Fatalf("expected the replacement registration's priority 90, got %d", got.Metadata().Priority)
	}
}

func TestRegister_RejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&fakePlugin{name: "", version: "1.0.0"})

	var invalid *codeerr.InvalidRequest
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}
}

func TestRegister_RejectsVersionWithoutDigit(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&fakePlugin{name: "x", version: "unreleased"})

	var invalid *codeerr.InvalidRequest
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}
}

func TestUnregister_RemovesAllIndexEntries(t *testing.T) {
	r := NewRegistry()
	r.Register(newFake("x", 50, "go"))
	r.Unregister("x")

	_, err := r.FindBestPlugin("main.go", "find_definition")
	var notFound *codeerr.PluginNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected PluginNotFound after unregister, got %v", err)
	}
	if r.Stats().TotalPlugins != 0 {
		t.Fatalf("expected zero plugins after unregister, got %d", r.Stats().TotalPlugins)
	}
}

func TestCapabilitySet_CustomMethodScope(t *testing.T) {
	c := CapabilitySet{CustomMethod: map[string]ToolScope{"workspace.find_replace": ScopeWorkspace, "organize_imports": ScopeFile}}
	if c.Scope("organize_imports") != ScopeFile {
		t.Fatalf("expected organize_imports to be File-scoped")
	}
	if c.Scope("workspace.find_replace") != ScopeWorkspace {
		t.Fatalf("expected workspace.find_replace to be Workspace-scoped")
	}
	if c.Scope("get_hover") != ScopeWorkspace {
		t.Fatalf("expected an unlisted method to default to Workspace scope")
	}
}
