package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amarbel-llc/codebuddy/internal/consolidate"
	"github.com/amarbel-llc/codebuddy/internal/enhance"
	"github.com/amarbel-llc/codebuddy/internal/exec"
	"github.com/amarbel-llc/codebuddy/internal/lsp"
	"github.com/amarbel-llc/codebuddy/internal/plan"
)

// registerRefactorTools adds the refactor-pipeline tools: each one builds a
// plan.RefactorPlan through internal/plan, then — unless options.dry_run —
// applies it through internal/exec, handing the Consolidation Post-
// Processor (internal/consolidate) to the executor when the plan is a
// crate/module consolidation.
func (r *ToolRegistry) registerRefactorTools() {
	r.register("rename", "Rename a symbol across the whole workspace, including files the language server itself never opened. Builds a plan first; pass dry_run=false to apply it. This is the only rename tool; it covers symbols the language server knows about as well as references it cannot see (string literals, doc comments, files in a sibling package).",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string"},
				"line": {"type": "integer"},
				"character": {"type": "integer"},
				"new_name": {"type": "string"},
				"dry_run": {"type": "boolean", "default": true}
			},
			"required": ["uri", "line", "character", "new_name"]
		}`),
		r.handlePlannedRename)

	r.register("batch_rename", "Rename several symbols and/or files/directories in one atomic plan. Targets that collide on the same new_name are rejected before anything is touched.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"targets": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"path": {"type": "string"},
							"line": {"type": "integer"},
							"character": {"type": "integer"},
							"new_name": {"type": "string"},
							"is_symbol": {"type": "boolean", "default": false}
						},
						"required": ["path", "new_name"]
					}
				},
				"dry_run": {"type": "boolean", "default": true}
			},
			"required": ["targets"]
		}`),
		r.handleBatchRename)

	r.register("move", "Move or rename a file or directory, warning about every file that still imports its old path. Moving a whole package directory under another package's src tree is auto-detected as a consolidation and folds the two packages together.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"source_path": {"type": "string"},
				"target_path": {"type": "string"},
				"consolidate": {"type": "boolean"},
				"dry_run": {"type": "boolean", "default": true}
			},
			"required": ["source_path", "target_path"]
		}`),
		r.handleMove)

	r.register("delete", "Delete one or more files/directories, warning about any file that still references them.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"paths": {"type": "array", "items": {"type": "string"}},
				"dry_run": {"type": "boolean", "default": true}
			},
			"required": ["paths"]
		}`),
		r.handleDelete)

	r.register("extract", "Apply a language server's extract-function/extract-variable code action over a range.",
		codeActionToolSchema, r.handleCodeActionPlan("refactor.extract", plan.PlanExtract))
	r.register("inline", "Apply a language server's inline-variable/inline-function code action over a range.",
		codeActionToolSchema, r.handleCodeActionPlan("refactor.inline", plan.PlanInline))
	r.register("reorder", "Apply a language server's organize-imports or member-reorder code action over a range.",
		codeActionToolSchema, r.handleCodeActionPlan("source.organizeImports", plan.PlanReorder))
	r.register("transform", "Apply a language server's structural-transform code action (e.g. convert to arrow function, convert to named export) over a range.",
		codeActionToolSchema, r.handleCodeActionPlan("refactor.rewrite", plan.PlanTransform))

	r.register("apply_workspace_edit", "Apply a raw LSP WorkspaceEdit (a map of file URI to text edits), as produced by a tool call you already made and want to commit.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"changes": {"type": "object", "description": "map of file URI to array of LSP TextEdit"},
				"dry_run": {"type": "boolean", "default": true}
			},
			"required": ["changes"]
		}`),
		r.handleApplyWorkspaceEdit)
}

var codeActionToolSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"uri": {"type": "string"},
		"start_line": {"type": "integer"},
		"start_character": {"type": "integer"},
		"end_line": {"type": "integer"},
		"end_character": {"type": "integer"},
		"dry_run": {"type": "boolean", "default": true}
	},
	"required": ["uri", "start_line", "start_character", "end_line", "end_character"]
}`)

func planOptionsFrom(dryRun *bool, consolidate *bool) plan.Options {
	opts := plan.DefaultOptions()
	if dryRun != nil {
		opts.DryRun = *dryRun
	}
	opts.Consolidate = consolidate
	return opts
}

// projectFilesFor lists the workspace's candidate files around path, used
// by every planner that warns about cross-file references.
func projectFilesFor(path string) (root string, files []string) {
	root = enhance.FindWorkspaceRoot(path)
	return root, enhance.CandidateFiles(root, "")
}

// planResult is what every refactor tool returns as its JSON text content:
// the plan itself when dry_run, or the applied exec.Result otherwise.
type planResult struct {
	Plan    *plan.RefactorPlan `json:"plan,omitempty"`
	Applied *exec.Result       `json:"applied,omitempty"`
}

func (r *ToolRegistry) finish(p *plan.RefactorPlan, root string, files []string) (*ToolCallResult, error) {
	if p.DryRun {
		return jsonToolResult(planResult{Plan: p})
	}

	var meta *consolidate.Metadata
	if p.IsConsolidation && p.Consolidation != nil {
		meta = &consolidate.Metadata{
			SourceCratePath:  p.Consolidation.SourceCratePath,
			SourceCrateName:  p.Consolidation.SourceCrateName,
			TargetCratePath:  p.Consolidation.TargetCratePath,
			TargetCrateName:  p.Consolidation.TargetCrateName,
			TargetModulePath: p.Consolidation.TargetModulePath,
			TargetModuleName: p.Consolidation.TargetModuleName,
			Language:         p.Consolidation.Language,
		}
	}

	result, err := exec.Execute(p, root, meta, files, consolidate.Run)
	if err != nil {
		return ErrorResult(fmt.Sprintf("applying plan: %v", err)), nil
	}
	return jsonToolResult(planResult{Applied: result})
}

func jsonToolResult(v any) (*ToolCallResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ErrorResult(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return &ToolCallResult{Content: []ContentBlock{TextContent(string(data))}}, nil
}

type plannedRenameArgs struct {
	URI       string `json:"uri"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
	NewName   string `json:"new_name"`
	DryRun    *bool  `json:"dry_run"`
}

func (r *ToolRegistry) handlePlannedRename(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a plannedRenameArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	opts := planOptionsFrom(a.DryRun, nil)
	p, err := plan.PlanRename(ctx, r.bridge, plan.RenameArgs{
		URI:       lsp.DocumentURI(a.URI),
		Line:      a.Line,
		Character: a.Character,
		NewName:   a.NewName,
	}, opts)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	root, files := projectFilesFor(lsp.DocumentURI(a.URI).Path())
	return r.finish(p, root, files)
}

type batchRenameTargetArgs struct {
	Path      string `json:"path"`
	Line      *int   `json:"line"`
	Character *int   `json:"character"`
	NewName   string `json:"new_name"`
	IsSymbol  bool   `json:"is_symbol"`
}

type batchRenameArgs struct {
	Targets []batchRenameTargetArgs `json:"targets"`
	DryRun  *bool                   `json:"dry_run"`
}

func (r *ToolRegistry) handleBatchRename(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a batchRenameArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if len(a.Targets) == 0 {
		return ErrorResult("batch_rename requires at least one target"), nil
	}

	targets := make([]plan.RenameTarget, 0, len(a.Targets))
	for _, t := range a.Targets {
		var pos *lsp.Position
		if t.Line != nil && t.Character != nil {
			pos = &lsp.Position{Line: *t.Line, Character: *t.Character}
		}
		targets = append(targets, plan.RenameTarget{
			Path:     t.Path,
			Position: pos,
			NewName:  t.NewName,
			IsSymbol: t.IsSymbol,
		})
	}

	root, files := projectFilesFor(a.Targets[0].Path)
	opts := planOptionsFrom(a.DryRun, nil)
	p, err := plan.PlanBatchRename(ctx, r.bridge, r.plugins, plan.BatchRenameArgs{
		Targets:      targets,
		ProjectRoot:  root,
		ProjectFiles: files,
	}, opts)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	return r.finish(p, root, files)
}

type moveArgs struct {
	SourcePath  string `json:"source_path"`
	TargetPath  string `json:"target_path"`
	Consolidate *bool  `json:"consolidate"`
	DryRun      *bool  `json:"dry_run"`
}

func (r *ToolRegistry) handleMove(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a moveArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	root, files := projectFilesFor(a.SourcePath)
	opts := planOptionsFrom(a.DryRun, a.Consolidate)
	p, err := plan.PlanMove(r.plugins, plan.MoveArgs{
		SourcePath:   a.SourcePath,
		TargetPath:   a.TargetPath,
		ProjectRoot:  root,
		ProjectFiles: files,
	}, opts)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	return r.finish(p, root, files)
}

type deleteArgs struct {
	Paths  []string `json:"paths"`
	DryRun *bool    `json:"dry_run"`
}

func (r *ToolRegistry) handleDelete(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a deleteArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if len(a.Paths) == 0 {
		return ErrorResult("delete requires at least one path"), nil
	}

	root, files := projectFilesFor(a.Paths[0])
	opts := planOptionsFrom(a.DryRun, nil)
	p, err := plan.PlanDelete(r.plugins, plan.DeleteArgs{
		Paths:        a.Paths,
		ProjectRoot:  root,
		ProjectFiles: files,
	}, opts)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	return r.finish(p, root, files)
}

// handleCodeActionPlan returns a ToolHandler that resolves a code action
// over a range into edits, then wraps them with planFn (one of
// plan.PlanExtract/PlanInline/PlanReorder/PlanTransform).
func (r *ToolRegistry) handleCodeActionPlan(kindPrefix string, planFn func(map[string][]lsp.TextEdit, plan.Options) *plan.RefactorPlan) ToolHandler {
	return func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
		var a codeActionArgs
		var dryRun struct {
			DryRun *bool `json:"dry_run"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		json.Unmarshal(args, &dryRun)

		edits, err := r.bridge.CodeActionEdits(ctx, lsp.DocumentURI(a.URI), a.StartLine, a.StartCharacter, a.EndLine, a.EndCharacter, kindPrefix)
		if err != nil {
			return ErrorResult(err.Error()), nil
		}
		if len(edits) == 0 {
			return ErrorResult(fmt.Sprintf("no %s code action with an inline edit was available at that range", kindPrefix)), nil
		}

		opts := planOptionsFrom(dryRun.DryRun, nil)
		p := planFn(edits, opts)
		root, files := projectFilesFor(lsp.DocumentURI(a.URI).Path())
		return r.finish(p, root, files)
	}
}

type applyWorkspaceEditArgs struct {
	Changes map[string][]lsp.TextEdit `json:"changes"`
	DryRun  *bool                     `json:"dry_run"`
}

func (r *ToolRegistry) handleApplyWorkspaceEdit(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a applyWorkspaceEditArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if len(a.Changes) == 0 {
		return ErrorResult("apply_workspace_edit requires a non-empty changes map"), nil
	}

	opts := planOptionsFrom(a.DryRun, nil)
	p := plan.PlanTransform(a.Changes, opts)

	var anyPath string
	for uri := range a.Changes {
		anyPath = lsp.DocumentURI(uri).Path()
		break
	}
	root, files := projectFilesFor(anyPath)
	return r.finish(p, root, files)
}
