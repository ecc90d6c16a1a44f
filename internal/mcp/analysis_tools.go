package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amarbel-llc/codebuddy/internal/analysis"
)

// registerAnalysisTools wires the Analysis Orchestrator (internal/analysis)
// in as a single dispatch tool, per §4.I: one entry point keyed by
// category/kind rather than one MCP tool per detector.
func (r *ToolRegistry) registerAnalysisTools() {
	r.register("inspect_code", "Run a registered code analysis (category/kind pair, e.g. complexity/cyclomatic or smells/long_function) over a file or a globbed workspace scope.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"category": {"type": "string"},
				"kind": {"type": "string"},
				"scope_type": {"type": "string", "enum": ["file", "workspace"], "default": "file"},
				"path": {"type": "string"},
				"include": {"type": "array", "items": {"type": "string"}},
				"exclude": {"type": "array", "items": {"type": "string"}},
				"options": {"type": "object"}
			},
			"required": ["category", "kind", "path"]
		}`),
		r.handleInspectCode)
}

type inspectCodeArgs struct {
	Category  string         `json:"category"`
	Kind      string         `json:"kind"`
	ScopeType string         `json:"scope_type"`
	Path      string         `json:"path"`
	Include   []string       `json:"include"`
	Exclude   []string       `json:"exclude"`
	Options   map[string]any `json:"options"`
}

func (r *ToolRegistry) handleInspectCode(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a inspectCodeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if r.analysis == nil {
		return ErrorResult("analysis orchestrator is not configured"), nil
	}

	scopeType := analysis.ScopeFile
	if a.ScopeType == "workspace" {
		scopeType = analysis.ScopeWorkspace
	}

	result, err := r.analysis.Run(a.Category, a.Kind, analysis.Scope{
		Type:    scopeType,
		Path:    a.Path,
		Include: a.Include,
		Exclude: a.Exclude,
	}, a.Options)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return ErrorResult(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return &ToolCallResult{Content: []ContentBlock{TextContent(string(data))}}, nil
}
