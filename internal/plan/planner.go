package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/amarbel-llc/codebuddy/internal/codeerr"
	"github.com/amarbel-llc/codebuddy/internal/enhance"
	"github.com/amarbel-llc/codebuddy/internal/lsp"
	"github.com/amarbel-llc/codebuddy/internal/plugin"
)

// SymbolRenamer asks an LSP server for a rename's raw workspace edit,
// keyed by file URI string. Implemented by internal/mcp.Bridge.
type SymbolRenamer interface {
	RenameEdit(ctx context.Context, uri lsp.DocumentURI, line, character int, newName string) (map[string][]lsp.TextEdit, error)
}

// RenameArgs is one rename call's decoded arguments.
type RenameArgs struct {
	URI       lsp.DocumentURI
	Line      int
	Character int
	NewName   string
}

// PlanRename builds a RefactorPlan for a single symbol rename per §4.F:
// it asks the LSP for the rename's workspace edit, then runs the Reference/
// Import Enhancer (§4.D) over the rest of the workspace so occurrences the
// LSP never saw — because it never opened that file — land in the same
// plan without displacing anything the LSP already found.
func PlanRename(ctx context.Context, renamer SymbolRenamer, args RenameArgs, opts Options) (*RefactorPlan, error) {
	sourcePath := args.URI.Path()
	if sourcePath == "" {
		return nil, &codeerr.InvalidRequest{Msg: "rename: uri is not a valid file:// URI"}
	}

	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, &codeerr.InvalidRequest{Msg: fmt.Sprintf("rename: reading %s: %v", sourcePath, err)}
	}
	symbol := enhance.ExtractSymbolAt(string(content), args.Line, args.Character)
	if symbol == "" {
		return nil, &codeerr.InvalidRequest{Msg: "rename: no symbol at the given position"}
	}

	changes, err := renamer.RenameEdit(ctx, args.URI, args.Line, args.Character, args.NewName)
	if err != nil {
		return nil, err
	}
	if changes == nil {
		changes = map[string][]lsp.TextEdit{}
	}

	workspaceRoot := enhance.FindWorkspaceRoot(sourcePath)
	candidates := enhance.CandidateFiles(workspaceRoot, sourcePath)
	selected, err := enhance.SelectCandidates(ctx, candidates, symbol, sourcePath, workspaceRoot)
	if err != nil {
		return nil, err
	}

	scanned := make(map[lsp.DocumentURI][]enhance.Occurrence, len(selected))
	for _, c := range selected {
		if occs := enhance.ScanOccurrences(c.Content, symbol); len(occs) > 0 {
			scanned[lsp.URIFromPath(c.Path)] = occs
		}
	}
	enhance.MergeRenameEdits(changes, scanned, args.NewName)

	p := NewPlan(KindRename, opts)
	for uriKey, edits := range changes {
		path := lsp.DocumentURI(uriKey).Path()
		if path == "" {
			path = uriKey
		}
		if data, err := os.ReadFile(path); err == nil {
			p.RecordChecksum(path, data)
		}
		p.AddTextEdits(path, edits)
	}
	return p, nil
}

// BatchRenameArgs bundles a batch rename call's target list plus the
// project context a ReferenceDetector needs to find affected files.
type BatchRenameArgs struct {
	Targets      []RenameTarget
	ProjectRoot  string
	ProjectFiles []string
}

// PlanBatchRename builds a RefactorPlan covering every target per §4.F:
// symbol targets are individually planned through PlanRename and merged;
// file/directory targets become a ResourceRename op, with a warning
// listing every file the plugin registry's reference detector says
// imports the old path, since a bare filesystem rename does not by itself
// rewrite those import statements the way a symbol rename's LSP edit does.
func PlanBatchRename(ctx context.Context, renamer SymbolRenamer, registry *plugin.Registry, args BatchRenameArgs, opts Options) (*RefactorPlan, error) {
	if err := ValidateBatchRenameTargets(args.Targets); err != nil {
		return nil, err
	}

	p := NewPlan(KindBatchRename, opts)
	for _, t := range args.Targets {
		if t.IsSymbol {
			if t.Position == nil {
				return nil, &codeerr.InvalidRequest{Msg: fmt.Sprintf("target %q is a symbol rename but has no position", t.Path)}
			}
			sub, err := PlanRename(ctx, renamer, RenameArgs{
				URI:       lsp.URIFromPath(t.Path),
				Line:      t.Position.Line,
				Character: t.Position.Character,
				NewName:   t.NewName,
			}, opts)
			if err != nil {
				return nil, err
			}
			for _, set := range sub.TextEdits {
				p.AddTextEdits(set.Path, set.Edits)
			}
			for path, sum := range sub.FileChecksums {
				p.FileChecksums[path] = sum
			}
			continue
		}

		newPath := filepath.Join(filepath.Dir(t.Path), t.NewName)
		isDir := false
		if info, err := os.Stat(t.Path); err == nil {
			isDir = info.IsDir()
		}
		p.ResourceOps = append(p.ResourceOps, ResourceOp{Kind: ResourceRename, Path: t.Path, NewPath: newPath, IsDir: isDir})
		warnAffectedFiles(p, registry, t.Path, newPath, args.ProjectRoot, args.ProjectFiles)

		if isDir && DetectConsolidation(newPath, opts.Consolidate) {
			markConsolidation(p, t.Path, newPath)
		}
	}
	return p, nil
}

// MoveArgs is a single file/directory move call's arguments.
type MoveArgs struct {
	SourcePath   string
	TargetPath   string
	ProjectRoot  string
	ProjectFiles []string
}

// PlanMove builds a RefactorPlan for a move, detecting the §6 consolidation
// case (moving a whole crate/module under another package's source tree)
// per §4.H's trigger condition.
func PlanMove(registry *plugin.Registry, args MoveArgs, opts Options) (*RefactorPlan, error) {
	if strings.TrimSpace(args.SourcePath) == "" || strings.TrimSpace(args.TargetPath) == "" {
		return nil, &codeerr.InvalidRequest{Msg: "move requires source_path and target_path"}
	}

	isDir := false
	if info, err := os.Stat(args.SourcePath); err == nil {
		isDir = info.IsDir()
	}

	p := NewPlan(KindMove, opts)
	p.ResourceOps = append(p.ResourceOps, ResourceOp{Kind: ResourceRename, Path: args.SourcePath, NewPath: args.TargetPath, IsDir: isDir})
	warnAffectedFiles(p, registry, args.SourcePath, args.TargetPath, args.ProjectRoot, args.ProjectFiles)

	if isDir && DetectConsolidation(args.TargetPath, opts.Consolidate) {
		markConsolidation(p, args.SourcePath, args.TargetPath)
	}
	return p, nil
}

// DeleteArgs is a delete call's decoded arguments: one or more resource
// paths to remove.
type DeleteArgs struct {
	Paths        []string
	ProjectRoot  string
	ProjectFiles []string
}

// PlanDelete builds a RefactorPlan removing every path in args.Paths,
// warning about any file the reference detector says still imports it.
func PlanDelete(registry *plugin.Registry, args DeleteArgs, opts Options) (*RefactorPlan, error) {
	if len(args.Paths) == 0 {
		return nil, &codeerr.InvalidRequest{Msg: "delete requires at least one path"}
	}

	p := NewPlan(KindDelete, opts)
	for _, path := range args.Paths {
		isDir := false
		if info, err := os.Stat(path); err == nil {
			isDir = info.IsDir()
		}
		p.ResourceOps = append(p.ResourceOps, ResourceOp{Kind: ResourceDelete, Path: path, IsDir: isDir})
		warnAffectedFiles(p, registry, path, "", args.ProjectRoot, args.ProjectFiles)
	}
	return p, nil
}

// markConsolidation flags the plan as a consolidation and attaches the
// fully resolved post-processing metadata. If the metadata cannot be
// resolved (no recognizable manifest at the source or above the target),
// the plan stays a plain move with a warning, since running the
// post-processor on zero-valued metadata would rewrite the wrong things.
func markConsolidation(p *RefactorPlan, sourcePath, targetPath string) {
	meta := consolidationMetadataFor(sourcePath, targetPath)
	if meta == nil {
		p.Warnings = append(p.Warnings, fmt.Sprintf("consolidation post-processing skipped for %s: could not resolve package manifests", targetPath))
		return
	}
	if p.Consolidation != nil {
		p.Warnings = append(p.Warnings, fmt.Sprintf("only the first consolidation target is post-processed; %s needs a separate move", targetPath))
		return
	}
	p.IsConsolidation = true
	p.Consolidation = meta
}

// consolidationMetadataFor resolves the post-processor's metadata for a
// directory move source → targetPath (e.g. crates/host/src/sub). The
// target crate root is the nearest ancestor of targetPath carrying a
// manifest of the source's language — targetPath itself is the module's
// destination inside that crate, not a crate root. Crate names come from
// the two manifests; returns nil when either side cannot be resolved.
func consolidationMetadataFor(sourcePath, targetPath string) *ConsolidationMetadata {
	srcLang, srcName := packageManifestName(sourcePath)
	if srcLang == "" || srcName == "" {
		return nil
	}

	var crateRoot, tgtName string
	for dir := filepath.Dir(targetPath); ; {
		if lang, name := packageManifestName(dir); lang == srcLang && name != "" {
			crateRoot, tgtName = dir, name
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if crateRoot == "" {
		return nil
	}

	moduleName := filepath.Base(targetPath)
	if srcLang == "rust" {
		moduleName = strings.ReplaceAll(moduleName, "-", "_")
	}

	return &ConsolidationMetadata{
		SourceCratePath:  sourcePath,
		SourceCrateName:  srcName,
		TargetCratePath:  crateRoot,
		TargetCrateName:  tgtName,
		TargetModulePath: targetPath,
		TargetModuleName: moduleName,
		Language:         srcLang,
	}
}

// packageManifestName reads the package name out of dir's manifest:
// Cargo.toml's name field (hyphens normalized to underscores, the form
// Rust import paths use) or package.json's "name".
func packageManifestName(dir string) (language, name string) {
	if data, err := os.ReadFile(filepath.Join(dir, "Cargo.toml")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "name") && strings.Contains(trimmed, "=") {
				_, value, _ := strings.Cut(trimmed, "=")
				return "rust", strings.ReplaceAll(strings.Trim(strings.TrimSpace(value), `"'`), "-", "_")
			}
		}
		return "rust", ""
	}
	if data, err := os.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		var pkg struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(data, &pkg) == nil {
			return "typescript", pkg.Name
		}
		return "typescript", ""
	}
	return "", ""
}

// warnAffectedFiles looks up the plugin responsible for path, runs its
// ReferenceDetector (if any) against the old/new path pair, and appends a
// plan warning naming every affected file. Silent (no-op) when the path's
// extension has no registered plugin or the plugin carries no detector —
// every planner that moves, renames, or deletes a resource calls this.
func warnAffectedFiles(p *RefactorPlan, registry *plugin.Registry, oldPath, newPath, projectRoot string, projectFiles []string) {
	if registry == nil {
		return
	}
	lp, err := registry.FindBestPlugin(oldPath, "rename")
	if err != nil {
		return
	}
	detector := lp.ReferenceDetector()
	if detector == nil {
		return
	}
	affected, err := detector.FindAffectedFiles(oldPath, newPath, projectRoot, projectFiles)
	if err != nil || len(affected) == 0 {
		return
	}
	p.Warnings = append(p.Warnings, fmt.Sprintf("%d file(s) reference %s and may need review: %v", len(affected), oldPath, affected))
}

// planFromEdits wraps a set of already-resolved text edits (typically an
// LSP code action's workspace edit) into a RefactorPlan, recording a
// checksum for every touched file. extract, inline, reorder, and transform
// share this shape: unlike rename, they have no enhancer pass because
// they operate on a single declaration's own file, not cross-file
// references.
func planFromEdits(kind Kind, edits map[string][]lsp.TextEdit, opts Options) *RefactorPlan {
	p := NewPlan(kind, opts)
	for key, es := range edits {
		path := lsp.DocumentURI(key).Path()
		if path == "" {
			path = key
		}
		if data, err := os.ReadFile(path); err == nil {
			p.RecordChecksum(path, data)
		}
		p.AddTextEdits(path, es)
	}
	return p
}

// PlanExtract builds a RefactorPlan from a resolved "extract" code action's
// edits (e.g. extract function/variable).
func PlanExtract(edits map[string][]lsp.TextEdit, opts Options) *RefactorPlan {
	return planFromEdits(KindExtract, edits, opts)
}

// PlanInline builds a RefactorPlan from a resolved "inline" code action's
// edits (e.g. inline variable/function).
func PlanInline(edits map[string][]lsp.TextEdit, opts Options) *RefactorPlan {
	return planFromEdits(KindInline, edits, opts)
}

// PlanReorder builds a RefactorPlan from a resolved declaration-reordering
// edit set (e.g. an organize-imports or member-reorder code action).
func PlanReorder(edits map[string][]lsp.TextEdit, opts Options) *RefactorPlan {
	return planFromEdits(KindReorder, edits, opts)
}

// PlanTransform builds a RefactorPlan from a resolved structural-transform
// edit set (e.g. a language server's "convert to..." code action).
func PlanTransform(edits map[string][]lsp.TextEdit, opts Options) *RefactorPlan {
	return planFromEdits(KindTransform, edits, opts)
}
