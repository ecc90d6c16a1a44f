package plan

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/amarbel-llc/codebuddy/internal/lsp"
)

// genPosition generates a line/character pair in a small enough range that
// gopter will reliably produce duplicates, which is exactly what the
// descending-order invariant needs to be exercised against.
func genPosition() gopter.Gen {
	return gen.Struct(reflect.TypeOf(lsp.Position{}), map[string]gopter.Gen{
		"Line":      gen.IntRange(0, 20),
		"Character": gen.IntRange(0, 20),
	})
}

func genTextEdit() gopter.Gen {
	return genPosition().Map(func(start lsp.Position) lsp.TextEdit {
		return lsp.TextEdit{Range: lsp.Range{Start: start, End: start}}
	})
}

func TestSortEditsDescendingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("sorted output is non-increasing by (line, character)", prop.ForAll(
		func(edits []lsp.TextEdit) bool {
			sorted := SortEditsDescending(edits)
			if len(sorted) != len(edits) {
				return false
			}
			for i := 1; i < len(sorted); i++ {
				a, b := sorted[i-1].Range.Start, sorted[i].Range.Start
				if a.Line < b.Line {
					return false
				}
				if a.Line == b.Line && a.Character < b.Character {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genTextEdit()),
	))

	properties.Property("sorting twice is idempotent", prop.ForAll(
		func(edits []lsp.TextEdit) bool {
			once := SortEditsDescending(edits)
			twice := SortEditsDescending(once)
			if len(once) != len(twice) {
				return false
			}
			for i := range once {
				if once[i].Range.Start != twice[i].Range.Start {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genTextEdit()),
	))

	properties.TestingRun(t)
}

func TestValidateBatchRenameTargetsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("rejects any target missing a new name", prop.ForAll(
		func(path string) bool {
			err := ValidateBatchRenameTargets([]RenameTarget{{Path: path, NewName: ""}})
			return err != nil
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
	))

	properties.Property("two distinct sources sharing a new name always collide", prop.ForAll(
		func(pathA, pathB, newName string) bool {
			if pathA == pathB {
				return true
			}
			err := ValidateBatchRenameTargets([]RenameTarget{
				{Path: pathA, NewName: newName},
				{Path: pathB, NewName: newName},
			})
			return err != nil
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
	))

	properties.Property("distinct new names never collide", prop.ForAll(
		func(pathA, pathB, nameA, nameB string) bool {
			if nameA == nameB {
				return true
			}
			err := ValidateBatchRenameTargets([]RenameTarget{
				{Path: pathA, NewName: nameA},
				{Path: pathB, NewName: nameB},
			})
			return err == nil
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
	))

	properties.TestingRun(t)
}
