package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/amarbel-llc/codebuddy/internal/analysis"
	"github.com/amarbel-llc/codebuddy/internal/lsp"
	"github.com/amarbel-llc/codebuddy/internal/plugin"
)

type ToolHandler func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error)

type ToolRegistry struct {
	tools    []Tool
	handlers map[string]ToolHandler
	bridge   *Bridge
	plugins  *plugin.Registry
	analysis *analysis.Orchestrator
	log      zerolog.Logger
}

func NewToolRegistry(bridge *Bridge, plugins *plugin.Registry, orchestrator *analysis.Orchestrator, log zerolog.Logger) *ToolRegistry {
	r := &ToolRegistry{
		handlers: make(map[string]ToolHandler),
		bridge:   bridge,
		plugins:  plugins,
		analysis: orchestrator,
		log:      log,
	}
	r.registerBuiltinTools()
	return r
}

func (r *ToolRegistry) List() []Tool {
	return r.tools
}

func (r *ToolRegistry) Call(ctx context.Context, name string, args json.RawMessage) (*ToolCallResult, error) {
	start := time.Now()
	handler, ok := r.handlers[name]
	if !ok {
		r.log.Warn().Str("tool", name).Msg("unknown tool")
		return ErrorResult(fmt.Sprintf("unknown tool: %s", name)), nil
	}

	result, err := handler(ctx, args)

	status := "ok"
	if err != nil || (result != nil && result.IsError) {
		status = "error"
	}
	r.log.Info().
		Str("tool", name).
		Dur("duration_ms", time.Since(start)).
		Str("status", status).
		Msg("tool call")

	return result, err
}

func (r *ToolRegistry) register(name, description string, schema json.RawMessage, handler ToolHandler) {
	r.tools = append(r.tools, Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	})
	r.handlers[name] = handler
}

func (r *ToolRegistry) registerBuiltinTools() {
	r.register("get_hover", "Get type information, documentation, and signatures for a symbol. Agents MUST use this tool instead of reading source files when you need to understand what a function/type does, its parameters, return types, or documentation. Unlike grep/read which show raw text, hover provides semantically-parsed information from the language server. DO NOT read files just to check function signatures or types - use this tool instead.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"},
				"line": {"type": "integer", "description": "0-indexed line number"},
				"character": {"type": "integer", "description": "0-indexed character offset"}
			},
			"required": ["uri", "line", "character"]
		}`),
		r.handleHover)

	r.register("find_definition", "Jump to the definition of any symbol (function, type, variable). Agents MUST use this tool instead of grep/search when you know a symbol name and need to find its definition or implementation. Uses semantic analysis to find the actual definition, not just string matches. DO NOT use grep or file searches to locate function/type definitions - this tool handles cross-file navigation, interface implementations, and import sources accurately.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"},
				"line": {"type": "integer", "description": "0-indexed line number"},
				"character": {"type": "integer", "description": "0-indexed character offset"}
			},
			"required": ["uri", "line", "character"]
		}`),
		r.handleDefinition)

	r.register("find_references", "Find ALL usages of a symbol throughout the codebase. Agents MUST use this tool instead of grep/search for finding where functions/types/variables are used - it understands scope and semantics, finding actual references not just string matches. DO NOT use grep to find usages of symbols - grep finds false positives (comments, strings, similar names). Critical for impact analysis before refactoring, understanding how functions are called, tracing data flow.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"},
				"line": {"type": "integer", "description": "0-indexed line number"},
				"character": {"type": "integer", "description": "0-indexed character offset"},
				"include_declaration": {"type": "boolean", "description": "Include the declaration in results", "default": true}
			},
			"required": ["uri", "line", "character"]
		}`),
		r.handleReferences)

	r.register("get_completions", "Get context-aware code completions at a cursor position. Agents should use this tool instead of reading documentation or source files when exploring available methods on a type, discovering struct fields, finding imported symbols, or understanding API surfaces. Shows only valid symbols, methods, and fields actually available in scope - more accurate than guessing from source.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"},
				"line": {"type": "integer", "description": "0-indexed line number"},
				"character": {"type": "integer", "description": "0-indexed character offset"}
			},
			"required": ["uri", "line", "character"]
		}`),
		r.handleCompletion)

	r.register("format_document", "Get formatting edits for a document according to language-standard style. Agents should use this tool to get proper formatting instead of manually adjusting whitespace or running external formatters. Returns text edits needed to properly format the file. Note: returns edits but does not apply them - use Edit tool to apply the returned changes.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"}
			},
			"required": ["uri"]
		}`),
		r.handleFormat)

	r.register("get_document_symbols", "Get a structured outline of all symbols in a file. Agents MUST use this tool instead of reading entire files when you need to understand file structure or find what functions/types exist in a file. Returns hierarchical symbols: function/method names, type definitions, nested structures, top-level constants. DO NOT read and parse files manually to find symbol names - this tool is faster and more accurate.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"}
			},
			"required": ["uri"]
		}`),
		r.handleDocumentSymbols)

	r.register("get_code_actions", "Get suggested fixes, refactorings, and improvements for code at a range. Agents should use this tool to get language-server suggested fixes instead of manually writing fixes for common issues. Provides quick fixes for errors, refactoring operations (extract function, inline variable), import organization, and code generation (implement interface). Use after get_diagnostics to get fixes for reported issues.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"},
				"start_line": {"type": "integer", "description": "0-indexed start line"},
				"start_character": {"type": "integer", "description": "0-indexed start character"},
				"end_line": {"type": "integer", "description": "0-indexed end line"},
				"end_character": {"type": "integer", "description": "0-indexed end character"}
			},
			"required": ["uri", "start_line", "start_character", "end_line", "end_character"]
		}`),
		r.handleCodeAction)

	r.register("find_implementations", "Find all implementations of an interface or abstract method. Agents MUST use this tool instead of grep when tracing which concrete types satisfy an interface - string search cannot tell an implementation from an unrelated method with the same name.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"},
				"line": {"type": "integer", "description": "0-indexed line number"},
				"character": {"type": "integer", "description": "0-indexed character offset"}
			},
			"required": ["uri", "line", "character"]
		}`),
		r.handleImplementation)

	r.register("find_type_definition", "Jump to the definition of the TYPE of the symbol under the cursor (not the symbol itself). Useful when a variable's declared type is an alias or inferred and you need the underlying type declaration.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"},
				"line": {"type": "integer", "description": "0-indexed line number"},
				"character": {"type": "integer", "description": "0-indexed character offset"}
			},
			"required": ["uri", "line", "character"]
		}`),
		r.handleTypeDefinition)

	r.register("get_signature_help", "Get parameter information for the call expression surrounding a position. Shows each overload's signature with the active one marked. Use while reasoning about a call site instead of re-reading the callee's source.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"},
				"line": {"type": "integer", "description": "0-indexed line number"},
				"character": {"type": "integer", "description": "0-indexed character offset"}
			},
			"required": ["uri", "line", "character"]
		}`),
		r.handleSignatureHelp)

	r.register("prepare_call_hierarchy", "Resolve the function at a position into call-hierarchy items. Returns the items as JSON; pass one item unchanged to get_call_hierarchy_incoming_calls or get_call_hierarchy_outgoing_calls to expand it.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"},
				"line": {"type": "integer", "description": "0-indexed line number"},
				"character": {"type": "integer", "description": "0-indexed character offset"}
			},
			"required": ["uri", "line", "character"]
		}`),
		r.handlePrepareCallHierarchy)

	r.register("get_call_hierarchy_incoming_calls", "List every caller of a call-hierarchy item returned by prepare_call_hierarchy. Pass the item back verbatim.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"item": {"type": "object", "description": "A call hierarchy item from prepare_call_hierarchy, unchanged"}
			},
			"required": ["item"]
		}`),
		r.handleIncomingCalls)

	r.register("get_call_hierarchy_outgoing_calls", "List every callee of a call-hierarchy item returned by prepare_call_hierarchy. Pass the item back verbatim.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"item": {"type": "object", "description": "A call hierarchy item from prepare_call_hierarchy, unchanged"}
			},
			"required": ["item"]
		}`),
		r.handleOutgoingCalls)

	r.register("organize_imports", "Sort and clean up the import block of a file using the language server's source.organizeImports action. Returns the edit; it is not applied.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"}
			},
			"required": ["uri"]
		}`),
		r.handleOrganizeImports)

	r.register("search_workspace_symbols", "Search for symbols (functions, types, constants) across the entire workspace by name pattern. Agents MUST use this tool instead of grep/glob when searching for symbol definitions by name. DO NOT use grep to find function or type definitions - grep returns all text matches including usages, comments, and strings. This tool returns only actual symbol definitions with their locations.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Symbol name pattern to search for"},
				"uri": {"type": "string", "description": "Any file URI in the workspace (used to identify which LSP to query)"}
			},
			"required": ["query", "uri"]
		}`),
		r.handleWorkspaceSymbols)

	r.register("get_diagnostics", "Get compiler/linter diagnostics (errors, warnings, hints) for a file. Agents should use this tool instead of running build commands when checking for errors in a specific file. Provides precise error locations and messages. Use to understand issues before making edits or to verify changes are correct without running a full build.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"}
			},
			"required": ["uri"]
		}`),
		r.handleDiagnostics)

	r.register("notify_file_opened", "Tell the matching language server that the agent has started working in a file. Warms the document so subsequent navigation and diagnostics requests are fast and complete.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"}
			},
			"required": ["uri"]
		}`),
		r.handleNotifyOpened)

	r.register("notify_file_saved", "Tell the matching language server that a file was written to disk, so servers that re-index on save pick up the new content.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"}
			},
			"required": ["uri"]
		}`),
		r.handleNotifySaved)

	r.register("notify_file_closed", "Tell the matching language server that the agent is done with a file. Releases the server's open-document state for it.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"uri": {"type": "string", "description": "File URI (e.g., file:///path/to/file.go)"}
			},
			"required": ["uri"]
		}`),
		r.handleNotifyClosed)

	r.registerRefactorTools()
	r.registerFileTools()
	r.registerAnalysisTools()
}

type positionArgs struct {
	URI       string `json:"uri"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
}

type referencesArgs struct {
	positionArgs
	IncludeDeclaration bool `json:"include_declaration"`
}

type formatArgs struct {
	URI string `json:"uri"`
}

type codeActionArgs struct {
	URI            string `json:"uri"`
	StartLine      int    `json:"start_line"`
	StartCharacter int    `json:"start_character"`
	EndLine        int    `json:"end_line"`
	EndCharacter   int    `json:"end_character"`
}

type callHierarchyArgs struct {
	Item lsp.CallHierarchyItem `json:"item"`
}

type workspaceSymbolsArgs struct {
	Query string `json:"query"`
	URI   string `json:"uri"`
}

type diagnosticsArgs struct {
	URI string `json:"uri"`
}

func (r *ToolRegistry) handleHover(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a positionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.Hover(ctx, lsp.DocumentURI(a.URI), a.Line, a.Character)
}

func (r *ToolRegistry) handleDefinition(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a positionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.Definition(ctx, lsp.DocumentURI(a.URI), a.Line, a.Character)
}

func (r *ToolRegistry) handleReferences(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a referencesArgs
	a.IncludeDeclaration = true // default
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.References(ctx, lsp.DocumentURI(a.URI), a.Line, a.Character, a.IncludeDeclaration)
}

func (r *ToolRegistry) handleCompletion(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a positionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.Completion(ctx, lsp.DocumentURI(a.URI), a.Line, a.Character)
}

func (r *ToolRegistry) handleFormat(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a formatArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.Format(ctx, lsp.DocumentURI(a.URI))
}

func (r *ToolRegistry) handleDocumentSymbols(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a formatArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.DocumentSymbols(ctx, lsp.DocumentURI(a.URI))
}

func (r *ToolRegistry) handleCodeAction(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a codeActionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.CodeAction(ctx, lsp.DocumentURI(a.URI),
		a.StartLine, a.StartCharacter, a.EndLine, a.EndCharacter)
}

func (r *ToolRegistry) handleImplementation(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a positionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.Implementation(ctx, lsp.DocumentURI(a.URI), a.Line, a.Character)
}

func (r *ToolRegistry) handleTypeDefinition(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a positionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.TypeDefinition(ctx, lsp.DocumentURI(a.URI), a.Line, a.Character)
}

func (r *ToolRegistry) handleSignatureHelp(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a positionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.SignatureHelp(ctx, lsp.DocumentURI(a.URI), a.Line, a.Character)
}

func (r *ToolRegistry) handlePrepareCallHierarchy(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a positionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.PrepareCallHierarchy(ctx, lsp.DocumentURI(a.URI), a.Line, a.Character)
}

func (r *ToolRegistry) handleIncomingCalls(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a callHierarchyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.CallHierarchyIncomingCalls(ctx, a.Item)
}

func (r *ToolRegistry) handleOutgoingCalls(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a callHierarchyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.CallHierarchyOutgoingCalls(ctx, a.Item)
}

func (r *ToolRegistry) handleOrganizeImports(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a formatArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.OrganizeImports(ctx, lsp.DocumentURI(a.URI))
}

func (r *ToolRegistry) handleNotifyOpened(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a formatArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := r.bridge.NotifyOpened(ctx, lsp.DocumentURI(a.URI)); err != nil {
		return ErrorResult(err.Error()), nil
	}
	return &ToolCallResult{Content: []ContentBlock{TextContent("opened")}}, nil
}

func (r *ToolRegistry) handleNotifySaved(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a formatArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := r.bridge.NotifySaved(ctx, lsp.DocumentURI(a.URI)); err != nil {
		return ErrorResult(err.Error()), nil
	}
	return &ToolCallResult{Content: []ContentBlock{TextContent("saved")}}, nil
}

func (r *ToolRegistry) handleNotifyClosed(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a formatArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := r.bridge.NotifyClosed(lsp.DocumentURI(a.URI)); err != nil {
		return ErrorResult(err.Error()), nil
	}
	return &ToolCallResult{Content: []ContentBlock{TextContent("closed")}}, nil
}

func (r *ToolRegistry) handleWorkspaceSymbols(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a workspaceSymbolsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.WorkspaceSymbols(ctx, lsp.DocumentURI(a.URI), a.Query)
}

func (r *ToolRegistry) handleDiagnostics(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a diagnosticsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return r.bridge.Diagnostics(ctx, lsp.DocumentURI(a.URI))
}
