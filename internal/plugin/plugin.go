// Package plugin holds the per-language plugin registry: the index that
// resolves a (file, method) pair to the language plugin responsible for
// handling it, plus the LanguagePlugin contract every language
// implementation (Rust, TypeScript, Python, Go, …) fulfills.
package plugin

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/amarbel-llc/codebuddy/internal/codeerr"
)

// SystemVersion is the plugin-system protocol version this registry
// enforces against a plugin's MinSystemVersion.
const SystemVersion = "1.0.0"

// ToolScope says whether a method requires a file-extension match (File) or
// applies regardless of extension (Workspace).
type ToolScope int

const (
	ScopeUnknown ToolScope = iota
	ScopeFile
	ScopeWorkspace
)

// CapabilitySet groups a plugin's advertised behavior into named buckets
// plus a map of custom methods to their scope.
type CapabilitySet struct {
	Navigation   bool
	Editing      bool
	Refactoring  bool
	Intelligence bool
	Diagnostics  bool
	CustomMethod map[string]ToolScope
}

// Scope reports the ToolScope for method, defaulting to Workspace for any
// method not listed in CustomMethod (matching the base navigation/editing
// methods, which are extension-agnostic at the registry level — the file
// extension filter is applied by the Plugin Registry via SupportedExtensions,
// not by the capability set itself).
func (c CapabilitySet) Scope(method string) ToolScope {
	if c.CustomMethod == nil {
		return ScopeWorkspace
	}
	if scope, ok := c.CustomMethod[method]; ok {
		return scope
	}
	return ScopeWorkspace
}

// Metadata identifies a plugin for registration, logging, and tie-breaking.
type Metadata struct {
	Name              string
	Version           string
	Description       string
	Priority          int // default 50 when zero
	MinSystemVersion  string
}

// EffectivePriority returns Priority, or 50 if unset.
func (m Metadata) EffectivePriority() int {
	if m.Priority == 0 {
		return 50
	}
	return m.Priority
}

var versionHasDigit = regexp.MustCompile(`\d`)

// Validate checks the registration-time requirements from §4.B: non-empty
// name and version, version must contain a digit, and MinSystemVersion must
// not exceed SystemVersion.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return &codeerr.InvalidRequest{Msg: "plugin metadata: name is required"}
	}
	if strings.TrimSpace(m.Version) == "" {
		return &codeerr.InvalidRequest{Msg: fmt.Sprintf("plugin %q: version is required", m.Name)}
	}
	if !versionHasDigit.MatchString(m.Version) {
		return &codeerr.InvalidRequest{Msg: fmt.Sprintf("plugin %q: version %q must contain a digit", m.Name, m.Version)}
	}
	if m.MinSystemVersion != "" && compareVersions(m.MinSystemVersion, SystemVersion) > 0 {
		return &codeerr.InvalidRequest{Msg: fmt.Sprintf("plugin %q: requires system version %s, have %s", m.Name, m.MinSystemVersion, SystemVersion)}
	}
	return nil
}

// compareVersions does a naive dotted-numeric comparison sufficient for
// "1.2.0" style strings; non-numeric components compare as equal.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			fmt.Sscanf(as[i], "%d", &av)
		}
		if i < len(bs) {
			fmt.Sscanf(bs[i], "%d", &bv)
		}
		if av != bv {
			if av > bv {
				return 1
			}
			return -1
		}
	}
	return 0
}

// ParsedSource is the best-effort structural parse of a source file, used by
// the Analysis Orchestrator and by reference/import mutation.
type ParsedSource struct {
	Symbols []ParsedSymbol
	Imports []ParsedImport
}

type ParsedSymbol struct {
	Name  string
	Kind  string
	Start int // byte offset
	End   int
}

type ParsedImport struct {
	Module string
	Names  []string
	Start  int
	End    int
}

// ImportMutator supports removing a named import from a single line and
// finding the insertion point for a new import.
type ImportMutator interface {
	RemoveImport(src []byte, module string) ([]byte, bool)
	InsertionPoint(src []byte) int
}

// ReferenceDetector answers "which files, other than the moved one, must be
// edited for this rename/move to stay correct" per §4.C.
type ReferenceDetector interface {
	FindAffectedFiles(oldPath, newPath, projectRoot string, projectFiles []string) ([]string, error)
}

// ConsolidationPostProcessor is the optional per-language hook invoked by
// §4.H after a directory move lands inside another package's source tree.
type ConsolidationPostProcessor interface {
	PostProcess(sourcePath, targetPath, projectRoot string) error
}

// LanguagePlugin is the uniform contract every language implementation
// fulfills. It is a bundle of capabilities, not a base class: there is no
// inheritance hierarchy, only composition of the optional hooks.
type LanguagePlugin interface {
	Metadata() Metadata
	Capabilities() CapabilitySet
	SupportedExtensions() []string
	ManifestFilenames() []string
	Parse(src []byte) (ParsedSource, error)
	ImportMutationSupport() ImportMutator // nil if unsupported
	ReferenceDetector() ReferenceDetector
	ConsolidationPostProcessor() ConsolidationPostProcessor // nil if unsupported
}

// Registry holds the plugin table and the three indices used to resolve a
// (file, method) pair to the plugin responsible for handling it. Built once
// at startup and thereafter read-mostly; Register/Unregister take the write
// lock, FindBestPlugin and the stats accessors take the read lock.
type Registry struct {
	mu               sync.RWMutex
	plugins          map[string]LanguagePlugin
	extensionIndex   map[string][]string // extension (no dot) -> plugin names
	methodIndex      map[string][]string // method -> plugin names
	priorityOverride map[string]int
	ErrorOnAmbiguity bool
}

func NewRegistry() *Registry {
	return &Registry{
		plugins:          make(map[string]LanguagePlugin),
		extensionIndex:   make(map[string][]string),
		methodIndex:      make(map[string][]string),
		priorityOverride: make(map[string]int),
	}
}

// SetPriorityOverride pins a plugin's effective priority regardless of its
// own metadata.
func (r *Registry) SetPriorityOverride(pluginName string, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.priorityOverride[pluginName] = priority
}

// knownMethods lists the built-in navigation/editing/intelligence/diagnostics
// methods every plugin implicitly answers for, beyond its CustomMethod map,
// so the method index always has entries for the base tool set.
var knownMethods = []string{
	"find_definition", "find_references", "find_implementations", "find_type_definition",
	"search_workspace_symbols", "get_document_symbols", "prepare_call_hierarchy",
	"get_call_hierarchy_incoming_calls", "get_call_hierarchy_outgoing_calls",
	"get_hover", "get_completions", "get_signature_help", "get_diagnostics",
	"organize_imports", "get_code_actions", "format_document", "rename",
}

// Register adds plugin to the registry, validating its metadata first.
// Registering a duplicate name replaces the previous entry (BuildRegistry
// reports it as a warning; the registry itself is silent).
func (r *Registry) Register(p LanguagePlugin) error {
	meta := p.Metadata()
	if err := meta.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[meta.Name]; exists {
		r.unregisterLocked(meta.Name)
	}

	r.plugins[meta.Name] = p

	for _, ext := range p.SupportedExtensions() {
		ext = strings.TrimPrefix(ext, ".")
		r.extensionIndex[ext] = appendUnique(r.extensionIndex[ext], meta.Name)
	}

	methods := append([]string{}, knownMethods...)
	for method := range p.Capabilities().CustomMethod {
		methods = append(methods, method)
	}
	for _, method := range methods {
		r.methodIndex[method] = appendUnique(r.methodIndex[method], meta.Name)
	}

	return nil
}

// Unregister removes name and all its index entries.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(name)
}

func (r *Registry) unregisterLocked(name string) {
	delete(r.plugins, name)
	for ext, names := range r.extensionIndex {
		r.extensionIndex[ext] = removeString(names, name)
	}
	for method, names := range r.methodIndex {
		r.methodIndex[method] = removeString(names, name)
	}
}

// FindBestPlugin implements §4.B's selection algorithm.
func (r *Registry) FindBestPlugin(file, method string) (LanguagePlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.methodIndex[method]
	if len(candidates) == 0 {
		return nil, &codeerr.PluginNotFound{File: file, Method: method}
	}

	first := r.plugins[candidates[0]]
	scope := first.Capabilities().Scope(method)

	filtered := candidates
	if scope == ScopeFile {
		ext := strings.TrimPrefix(extOf(file), ".")
		extCandidates := r.extensionIndex[ext]
		filtered = intersect(candidates, extCandidates)
	}

	if len(filtered) == 0 {
		return nil, &codeerr.PluginNotFound{File: file, Method: method}
	}

	bestPriority := -1
	var best []string
	for _, name := range filtered {
		p := effectivePriority(r, name)
		if p > bestPriority {
			bestPriority = p
			best = []string{name}
		} else if p == bestPriority {
			best = append(best, name)
		}
	}

	if len(best) > 1 {
		if r.ErrorOnAmbiguity {
			sorted := append([]string{}, best...)
			sort.Strings(sorted)
			return nil, &codeerr.AmbiguousPluginSelection{Method: method, Plugins: sorted, Priority: bestPriority}
		}
		sort.Strings(best)
	}

	return r.plugins[best[0]], nil
}

func effectivePriority(r *Registry, name string) int {
	if override, ok := r.priorityOverride[name]; ok {
		return override
	}
	return r.plugins[name].Metadata().EffectivePriority()
}

// Stats are derived on demand, never stored.
type Stats struct {
	TotalPlugins          int
	SupportedExtensions   int
	Methods               int
	AverageMethodsPerPlugin float64
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methodsPerPlugin := make(map[string]int)
	for method, names := range r.methodIndex {
		_ = method
		for _, name := range names {
			methodsPerPlugin[name]++
		}
	}

	total := 0
	for _, count := range methodsPerPlugin {
		total += count
	}
	avg := 0.0
	if len(r.plugins) > 0 {
		avg = float64(total) / float64(len(r.plugins))
	}

	return Stats{
		TotalPlugins:            len(r.plugins),
		SupportedExtensions:     len(r.extensionIndex),
		Methods:                 len(r.methodIndex),
		AverageMethodsPerPlugin: avg,
	}
}

func (r *Registry) Get(name string) (LanguagePlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

func extOf(file string) string {
	i := strings.LastIndexByte(file, '.')
	if i < 0 {
		return ""
	}
	return file[i:]
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, existing := range list {
		if existing != v {
			out = append(out, existing)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	var out []string
	for _, v := range a {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}
