// Package enhance implements the Reference/Import Enhancer: LSP only sees
// opened files, so this package walks the workspace and augments
// textDocument/references and textDocument/rename results with matches in
// files the LSP never opened.
package enhance

import (
	"bufio"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/amarbel-llc/codebuddy/internal/lsp"
)

// MaxConcurrentReads bounds the in-flight candidate-file reads during a
// single enhancement pass.
const MaxConcurrentReads = 50

var searchableExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
	".mts": true, ".cts": true, ".rs": true, ".py": true, ".go": true, ".java": true,
	".cs": true, ".swift": true,
}

var skipDirs = map[string]bool{
	"node_modules": true, "target": true, ".git": true, "dist": true,
	"build": true, ".next": true, "coverage": true,
}

var importMarkers = []string{"import ", "require(", "use ", "from ", `import "`}

var symbolRun = regexp.MustCompile(`[A-Za-z0-9_]+`)

// FindWorkspaceRoot walks upward from path looking for a project marker.
// Falls back to the file's own parent directory.
func FindWorkspaceRoot(path string) string {
	dir := path
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		dir = filepath.Dir(path)
	}

	for {
		for _, marker := range []string{"Cargo.toml", "package.json", ".git", "go.mod", "pyproject.toml"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return filepath.Dir(path)
		}
		dir = parent
	}
}

// ExtractSymbolAt returns the widest identifier run ([A-Za-z0-9_]+,
// first char not numeric) covering the given 0-based line/character
// position in content.
func ExtractSymbolAt(content string, line, character int) string {
	lines := strings.SplitAfter(content, "\n")
	if line < 0 || line >= len(lines) {
		return ""
	}
	lineText := lines[line]
	// character is a UTF-16 code-unit offset in LSP; for the ASCII
	// identifier runs this enhancer cares about, byte offset coincides with
	// code-unit offset except inside multibyte runs, which never form part
	// of a [A-Za-z0-9_]+ match anyway.
	if character > len(lineText) {
		character = len(lineText)
	}

	for _, loc := range symbolRun.FindAllStringIndex(lineText, -1) {
		start, end := loc[0], loc[1]
		if character >= start && character <= end {
			word := lineText[start:end]
			if len(word) > 0 && !unicode.IsDigit(rune(word[0])) {
				return word
			}
		}
	}
	return ""
}

// CandidateFiles walks root honoring the fixed skip-dir list and a
// best-effort .gitignore, keeping files with a searchable extension that
// are not excludePath.
func CandidateFiles(root, excludePath string) []string {
	ignore := loadGitignore(root)
	excludePath = canonicalPath(excludePath)

	var out []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return fs.SkipDir
			}
			if ignore.matches(path, true) {
				return fs.SkipDir
			}
			return nil
		}
		if !searchableExtensions[filepath.Ext(path)] {
			return nil
		}
		if ignore.matches(path, false) {
			return nil
		}
		if canonicalPath(path) == excludePath {
			return nil
		}
		out = append(out, path)
		return nil
	})
	return out
}

// Candidate is a workspace file selected as plausibly referencing the
// source file, per step 5 of the enhancement algorithm.
type Candidate struct {
	Path    string
	Content string
}

// SelectCandidates reads each of paths (bounded concurrency) and keeps those
// that contain symbol as a whole word, at least one import marker, and a
// textual reference to the source file (by relative path, path without
// extension, file name, or symbol name).
func SelectCandidates(ctx context.Context, paths []string, symbol, sourcePath, workspaceRoot string) ([]Candidate, error) {
	rel, err := filepath.Rel(workspaceRoot, sourcePath)
	if err != nil {
		rel = sourcePath
	}
	rel = filepath.ToSlash(rel)
	relNoExt := strings.TrimSuffix(rel, filepath.Ext(rel))
	fileName := filepath.Base(sourcePath)

	symbolPattern := wholeWordPattern(symbol)

	results := make([]Candidate, len(paths))
	found := make([]bool, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentReads)

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			data, err := os.ReadFile(p)
			if err != nil {
				return nil
			}
			content := string(data)

			if symbol != "" && !symbolPattern.MatchString(content) {
				return nil
			}
			if !hasAnyMarker(content) {
				return nil
			}
			if !referencesSource(content, rel, relNoExt, fileName, symbol) {
				return nil
			}

			results[i] = Candidate{Path: p, Content: content}
			found[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Candidate
	for i, ok := range found {
		if ok {
			out = append(out, results[i])
		}
	}
	return out, nil
}

func hasAnyMarker(content string) bool {
	for _, marker := range importMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

func referencesSource(content, rel, relNoExt, fileName, symbol string) bool {
	if rel != "" && strings.Contains(content, rel) {
		return true
	}
	if relNoExt != "" && strings.Contains(content, relNoExt) {
		return true
	}
	if fileName != "" && strings.Contains(content, fileName) {
		return true
	}
	if symbol != "" && wholeWordPattern(symbol).MatchString(content) {
		return true
	}
	return false
}

func wholeWordPattern(word string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
}

// IdentifierReferenced reports whether word appears as a whole-word match
// anywhere in content, outside of string literals.
func IdentifierReferenced(content, word string) bool {
	return len(ScanOccurrences(content, word)) > 0
}

// Occurrence is a symbol match found by ScanOccurrences, expressed as a
// 0-based line/character LSP position pair (start inclusive, end exclusive
// on the same line).
type Occurrence struct {
	Line      int
	StartChar int
	EndChar   int
}

// ScanOccurrences finds every whole-word occurrence of symbol in content
// using a scanner that tracks string-literal state (single, double,
// back-tick quotes, with backslash escapes) and skips matches inside
// string literals.
func ScanOccurrences(content, symbol string) []Occurrence {
	if symbol == "" {
		return nil
	}

	var occurrences []Occurrence
	line, col := 0, 0

	var inString byte // 0, '\'', '"', '`'
	escaped := false

	runes := []rune(content)
	n := len(runes)

	isWordChar := func(r rune) bool {
		return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
	}

	for i := 0; i < n; {
		r := runes[i]

		if r == '\n' {
			line++
			col = 0
			i++
			inString = 0
			escaped = false
			continue
		}

		if inString != 0 {
			if escaped {
				escaped = false
			} else if r == '\\' {
				escaped = true
			} else if byte(r) == inString {
				inString = 0
			}
			col++
			i++
			continue
		}

		if r == '\'' || r == '"' || r == '`' {
			inString = byte(r)
			col++
			i++
			continue
		}

		if isWordChar(r) && (col == 0 || !precededByWordChar(runes, i)) {
			j := i
			for j < n && isWordChar(runes[j]) {
				j++
			}
			word := string(runes[i:j])
			if word == symbol {
				occurrences = append(occurrences, Occurrence{Line: line, StartChar: col, EndChar: col + (j - i)})
			}
			col += j - i
			i = j
			continue
		}

		col++
		i++
	}

	return occurrences
}

func precededByWordChar(runes []rune, i int) bool {
	if i == 0 {
		return false
	}
	prev := runes[i-1]
	return prev == '_' || unicode.IsLetter(prev) || unicode.IsDigit(prev)
}

// MergeLocations deduplicates lspLocations and scanLocations on (uri,
// range), keeping every LSP-returned entry and appending only scan matches
// not already present. Never removes an LSP-returned entry.
func MergeLocations(lspLocations []lsp.Location, scanned map[lsp.DocumentURI][]Occurrence) []lsp.Location {
	seen := make(map[string]bool, len(lspLocations))
	key := func(uri lsp.DocumentURI, line, char int) string {
		return string(uri) + ":" + itoa(line) + ":" + itoa(char)
	}

	merged := append([]lsp.Location{}, lspLocations...)
	for _, loc := range lspLocations {
		seen[key(loc.URI, loc.Range.Start.Line, loc.Range.Start.Character)] = true
	}

	for uri, occs := range scanned {
		for _, occ := range occs {
			k := key(uri, occ.Line, occ.StartChar)
			if seen[k] {
				continue
			}
			seen[k] = true
			merged = append(merged, lsp.Location{
				URI: uri,
				Range: lsp.Range{
					Start: lsp.Position{Line: occ.Line, Character: occ.StartChar},
					End:   lsp.Position{Line: occ.Line, Character: occ.EndChar},
				},
			})
		}
	}
	return merged
}

// MergeRenameEdits appends a TextEdit per scanned occurrence into changes,
// never overwriting a URI entry the LSP already produced.
func MergeRenameEdits(changes map[string][]lsp.TextEdit, scanned map[lsp.DocumentURI][]Occurrence, newText string) {
	for uri, occs := range scanned {
		key := string(uri)
		if _, exists := changes[key]; exists {
			continue
		}
		var edits []lsp.TextEdit
		for _, occ := range occs {
			edits = append(edits, lsp.TextEdit{
				Range: lsp.Range{
					Start: lsp.Position{Line: occ.Line, Character: occ.StartChar},
					End:   lsp.Position{Line: occ.Line, Character: occ.EndChar},
				},
				NewText: newText,
			})
		}
		if len(edits) > 0 {
			changes[key] = edits
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// gitignoreRules is a minimal, best-effort .gitignore matcher: the spec
// requires honoring .gitignore during the workspace walk, but nothing in
// the example pool ships a gitignore-matching library (confirmed across
// every go.mod in the retrieval set), so this is a small hand-rolled
// prefix/glob matcher over the standard library's path/filepath, scoped to
// plain names, shell globs (matched against the base name or the root-
// relative path) and trailing-slash directory patterns; negation is not
// supported.
type gitignoreRules struct {
	root     string
	patterns []string
}

func loadGitignore(root string) gitignoreRules {
	rules := gitignoreRules{root: root}
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return rules
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules.patterns = append(rules.patterns, line)
	}
	return rules
}

func (g gitignoreRules) matches(path string, isDir bool) bool {
	if len(g.patterns) == 0 {
		return false
	}
	rel, err := filepath.Rel(g.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(rel)

	for _, pattern := range g.patterns {
		p := strings.TrimSuffix(pattern, "/")
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
		if strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}
