// Package diffrender turns a RefactorPlan's text edits into unified-diff
// previews, for the CLI's plan/apply commands to show a human a change
// before it lands.
package diffrender

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/amarbel-llc/codebuddy/internal/lsp"
	"github.com/amarbel-llc/codebuddy/internal/plan"
)

// contextLines is how many unchanged lines surround each hunk, matching
// the conventional unified-diff default.
const contextLines = 3

// Plan renders every file in p as a unified diff by reading the file's
// current content and emitting one hunk per edit: the lines the edit's
// range touches, and those same lines with the edit applied.
func Plan(p *plan.RefactorPlan) (string, error) {
	var out bytes.Buffer
	for _, set := range p.TextEdits {
		before, err := os.ReadFile(set.Path)
		if err != nil {
			fmt.Fprintf(&out, "--- %s (unreadable: %v)\n", set.Path, err)
			continue
		}
		fd, err := fileDiff(set.Path, string(before), set.Edits)
		if err != nil {
			return "", err
		}
		text, err := diff.PrintFileDiff(fd)
		if err != nil {
			return "", fmt.Errorf("rendering diff for %s: %w", set.Path, err)
		}
		out.Write(text)
	}
	for _, op := range p.ResourceOps {
		switch op.Kind {
		case plan.ResourceCreate:
			fmt.Fprintf(&out, "create %s\n", op.Path)
		case plan.ResourceRename:
			fmt.Fprintf(&out, "rename %s -> %s\n", op.Path, op.NewPath)
		case plan.ResourceDelete:
			fmt.Fprintf(&out, "delete %s\n", op.Path)
		}
	}
	return out.String(), nil
}

// fileDiff builds one *diff.FileDiff covering every edit for a file.
// Edits are already sorted descending by plan.SortEditsDescending; they are
// walked in reverse so hunks come out in ascending order, and each hunk's
// new-file start line is shifted by the line-count change of the hunks
// before it.
func fileDiff(path, content string, edits []lsp.TextEdit) (*diff.FileDiff, error) {
	lines := strings.Split(content, "\n")
	hunks := make([]*diff.Hunk, 0, len(edits))

	delta := 0
	for k := len(edits) - 1; k >= 0; k-- {
		edit := edits[k]
		startLine := edit.Range.Start.Line
		endLine := edit.Range.End.Line
		if startLine < 0 || endLine >= len(lines) || startLine > endLine {
			continue
		}

		ctxStart := startLine - contextLines
		if ctxStart < 0 {
			ctxStart = 0
		}
		ctxEnd := endLine + contextLines
		if ctxEnd >= len(lines) {
			ctxEnd = len(lines) - 1
		}

		var body bytes.Buffer
		for i := ctxStart; i < startLine; i++ {
			fmt.Fprintf(&body, " %s\n", lines[i])
		}
		for i := startLine; i <= endLine; i++ {
			fmt.Fprintf(&body, "-%s\n", lines[i])
		}
		startChar := min(max(edit.Range.Start.Character, 0), len(lines[startLine]))
		endChar := min(max(edit.Range.End.Character, 0), len(lines[endLine]))
		if startLine == endLine && endChar < startChar {
			endChar = startChar
		}
		newLines := strings.Split(lines[startLine][:startChar]+edit.NewText+lines[endLine][endChar:], "\n")
		for _, nl := range newLines {
			fmt.Fprintf(&body, "+%s\n", nl)
		}
		for i := endLine + 1; i <= ctxEnd; i++ {
			fmt.Fprintf(&body, " %s\n", lines[i])
		}

		before := ctxEnd - ctxStart + 1
		after := before - (endLine - startLine + 1) + len(newLines)

		hunks = append(hunks, &diff.Hunk{
			OrigStartLine: int32(ctxStart + 1),
			OrigLines:     int32(before),
			NewStartLine:  int32(ctxStart + 1 + delta),
			NewLines:      int32(after),
			Body:          body.Bytes(),
		})
		delta += len(newLines) - (endLine - startLine + 1)
	}

	return &diff.FileDiff{
		OrigName: path,
		NewName:  path,
		Hunks:    hunks,
	}, nil
}
