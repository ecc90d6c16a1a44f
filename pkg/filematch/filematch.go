// Package filematch resolves a file path, extension, or LSP language ID to
// the name of the filetype/plugin entry that claims it.
//
// A MatcherSet holds one matcher per registered name. Matching tries, in
// order, language ID (when one is given), exact extension, and glob pattern
// against the full path. The first registered name wins ties in Match; MatchByExtension and
// MatchByLanguageID report ambiguity by returning the first registrant too,
// since the base dispatchers above this package apply their own priority
// rules (see internal/plugin) when more than one candidate is possible.
package filematch

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

type entry struct {
	name        string
	extensions  map[string]bool
	patterns    []glob.Glob
	languageIDs map[string]bool
}

// MatcherSet is safe for concurrent reads once built; Add is not
// goroutine-safe and is expected to run during single-threaded setup.
type MatcherSet struct {
	entries []*entry
	byExt   map[string][]*entry
	byLang  map[string][]*entry
}

func NewMatcherSet() *MatcherSet {
	return &MatcherSet{
		byExt:  make(map[string][]*entry),
		byLang: make(map[string][]*entry),
	}
}

// Add registers name for the given extensions, glob patterns, and LSP
// language IDs. Extensions are matched without regard to a leading dot.
func (m *MatcherSet) Add(name string, extensions, patterns, languageIDs []string) error {
	e := &entry{
		name:        name,
		extensions:  make(map[string]bool, len(extensions)),
		languageIDs: make(map[string]bool, len(languageIDs)),
	}

	for _, ext := range extensions {
		e.extensions[normalizeExt(ext)] = true
	}
	for _, langID := range languageIDs {
		e.languageIDs[langID] = true
	}
	for _, pat := range patterns {
		g, err := glob.Compile(pat, '/')
		if err != nil {
			return fmt.Errorf("compiling pattern %q for %s: %w", pat, name, err)
		}
		e.patterns = append(e.patterns, g)
	}

	m.entries = append(m.entries, e)
	for ext := range e.extensions {
		m.byExt[ext] = append(m.byExt[ext], e)
	}
	for langID := range e.languageIDs {
		m.byLang[langID] = append(m.byLang[langID], e)
	}
	return nil
}

// Match returns the name of the first registered entry whose extension,
// path pattern, or language ID matches. An empty langID is ignored.
func (m *MatcherSet) Match(path, ext, langID string) string {
	ext = normalizeExt(ext)

	if langID != "" {
		if es, ok := m.byLang[langID]; ok && len(es) > 0 {
			return es[0].name
		}
	}

	if es, ok := m.byExt[ext]; ok && len(es) > 0 {
		return es[0].name
	}

	for _, e := range m.entries {
		for _, g := range e.patterns {
			if g.Match(path) {
				return e.name
			}
		}
	}

	return ""
}

func (m *MatcherSet) MatchByExtension(ext string) string {
	ext = normalizeExt(ext)
	if es, ok := m.byExt[ext]; ok && len(es) > 0 {
		return es[0].name
	}
	return ""
}

func (m *MatcherSet) MatchByLanguageID(langID string) string {
	if es, ok := m.byLang[langID]; ok && len(es) > 0 {
		return es[0].name
	}
	return ""
}

// Candidates returns every registered name whose extension matches ext,
// used by the plugin registry's ambiguity resolution (internal/plugin).
func (m *MatcherSet) Candidates(ext string) []string {
	ext = normalizeExt(ext)
	es, ok := m.byExt[ext]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(es))
	for _, e := range es {
		names = append(names, e.name)
	}
	return names
}

func normalizeExt(ext string) string {
	return strings.TrimPrefix(ext, ".")
}
