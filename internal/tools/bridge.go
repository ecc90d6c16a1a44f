package tools

import (
	"context"
	"strconv"
	"strings"

	"code.linenisgreat.com/purse-first/libs/go-mcp/command"
	"github.com/amarbel-llc/codebuddy/internal/lsp"
	"github.com/amarbel-llc/codebuddy/internal/mcp"
)

// Bridge adapts the MCP server's LSP bridge to the CLI command surface, so
// "codebuddy hover", "codebuddy references" and friends share one code path
// with the tools/call handlers instead of carrying a second LSP client.
type Bridge struct {
	mcp *mcp.Bridge
}

func NewBridge(b *mcp.Bridge) *Bridge {
	return &Bridge{mcp: b}
}

// toCommandResult flattens a tool-call result's text content into a CLI
// result, preserving the error flag.
func toCommandResult(res *mcp.ToolCallResult, err error) (*command.Result, error) {
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	for _, c := range res.Content {
		sb.WriteString(c.Text)
	}
	if res.IsError {
		return command.TextErrorResult(sb.String()), nil
	}
	return command.TextResult(sb.String()), nil
}

func (b *Bridge) Hover(ctx context.Context, uri lsp.DocumentURI, line, character int) (*command.Result, error) {
	return toCommandResult(b.mcp.Hover(ctx, uri, line, character))
}

func (b *Bridge) Definition(ctx context.Context, uri lsp.DocumentURI, line, character int) (*command.Result, error) {
	return toCommandResult(b.mcp.Definition(ctx, uri, line, character))
}

func (b *Bridge) Completion(ctx context.Context, uri lsp.DocumentURI, line, character int) (*command.Result, error) {
	return toCommandResult(b.mcp.Completion(ctx, uri, line, character))
}

func (b *Bridge) Format(ctx context.Context, uri lsp.DocumentURI) (*command.Result, error) {
	return toCommandResult(b.mcp.Format(ctx, uri))
}

func (b *Bridge) DocumentSymbols(ctx context.Context, uri lsp.DocumentURI) (*command.Result, error) {
	return toCommandResult(b.mcp.DocumentSymbols(ctx, uri))
}

func (b *Bridge) Diagnostics(ctx context.Context, uri lsp.DocumentURI) (*command.Result, error) {
	return toCommandResult(b.mcp.Diagnostics(ctx, uri))
}

func (b *Bridge) References(ctx context.Context, uri lsp.DocumentURI, line, character int, includeDecl bool) (*command.Result, error) {
	return toCommandResult(b.mcp.References(ctx, uri, line, character, includeDecl))
}

func (b *Bridge) CodeAction(ctx context.Context, uri lsp.DocumentURI, startLine, startChar, endLine, endChar int) (*command.Result, error) {
	return toCommandResult(b.mcp.CodeAction(ctx, uri, startLine, startChar, endLine, endChar))
}

func (b *Bridge) WorkspaceSymbols(ctx context.Context, uri lsp.DocumentURI, query string) (*command.Result, error) {
	return toCommandResult(b.mcp.WorkspaceSymbols(ctx, uri, query))
}

func (b *Bridge) Rename(ctx context.Context, uri lsp.DocumentURI, line, character int, newName string) (*command.Result, error) {
	changes, err := b.mcp.RenameEdit(ctx, uri, line, character, newName)
	if err != nil {
		return command.TextErrorResult(err.Error()), nil
	}
	if len(changes) == 0 {
		return command.TextResult("No rename edits produced"), nil
	}

	var sb strings.Builder
	for fileURI, edits := range changes {
		path := lsp.DocumentURI(fileURI).Path()
		if path == "" {
			path = fileURI
		}
		sb.WriteString(path)
		sb.WriteString(":\n")
		for _, e := range edits {
			sb.WriteString("  line ")
			sb.WriteString(strconv.Itoa(e.Range.Start.Line + 1))
			sb.WriteString(": ")
			sb.WriteString(e.NewText)
			sb.WriteString("\n")
		}
	}
	return command.TextResult(sb.String()), nil
}
