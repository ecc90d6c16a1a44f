package exec

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/amarbel-llc/codebuddy/internal/codeerr"
	"github.com/amarbel-llc/codebuddy/internal/lsp"
	"github.com/amarbel-llc/codebuddy/internal/plan"
)

// TestExecuteRejectsStaleChecksumsProperty checks the checksum precondition
// from §4.G/§4.F: whenever a file's on-disk content at apply time differs
// from what the plan recorded at plan time, Execute must refuse to touch
// anything rather than applying a partial or stale edit.
func TestExecuteRejectsStaleChecksumsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("a file edited after planning is reported stale and nothing is applied", prop.ForAll(
		func(original, tamperedWith string) bool {
			if original == tamperedWith {
				return true
			}

			dir := t.TempDir()
			target := filepath.Join(dir, "a.txt")
			if err := os.WriteFile(target, []byte(original), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}

			p := plan.NewPlan(plan.KindRename, plan.Options{DryRun: false})
			p.RecordChecksum(target, []byte(original))
			p.AddTextEdits(target, []lsp.TextEdit{
				{Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 0}, End: lsp.Position{Line: 0, Character: 0}}, NewText: "x"},
			})

			// Simulate the file changing between plan time and apply time.
			if err := os.WriteFile(target, []byte(tamperedWith), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}

			_, err := Execute(p, dir, nil, nil, nil)
			if err == nil {
				return false
			}
			var stale *codeerr.StalePlan
			if !errors.As(err, &stale) {
				return false
			}

			after, readErr := os.ReadFile(target)
			if readErr != nil {
				return false
			}
			return string(after) == tamperedWith
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
