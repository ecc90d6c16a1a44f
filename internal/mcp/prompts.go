package mcp

import "fmt"

const codeExplorationPrompt = `When exploring an unfamiliar codebase, use codebuddy LSP tools strategically:

1. START WITH STRUCTURE: Use get_document_symbols on key files to understand the file's API surface - what functions, types, and constants are defined.

2. UNDERSTAND TYPES: Use get_hover on type names to see their full definition and documentation without navigating away.

3. FOLLOW DEFINITIONS: Use find_definition to jump to where symbols are defined. This is faster and more accurate than grep for finding implementations.

4. TRACE USAGE: Use find_references to understand how a function or type is used throughout the codebase. Essential before modifying public APIs.

5. EXPLORE APIS: Use get_completions to discover available methods and fields on types you're working with.

WHEN TO USE LSP vs GREP:
- Use find_references instead of grep when searching for symbol usage
- Use find_definition instead of grep when finding where something is defined
- Use get_document_symbols instead of reading files to understand structure
- Use grep when searching for string literals, comments, or patterns

SUPPORTED FILES:
Read the codebuddy://languages resource to see which file types have LSP support.
Read the codebuddy://files resource to see all supported files in the current project.`

const refactoringGuidePrompt = `For safe, comprehensive refactoring using codebuddy:

RENAMING:
1. First use find_references to see all usages of the symbol
2. Review the references to understand the impact
3. Use rename to rename across all files semantically
4. The rename operation handles scoping - it won't rename unrelated symbols

BEFORE MODIFYING A FUNCTION:
1. Use find_references to find all callers
2. Use get_hover on call sites to understand expected behavior
3. Check if function is part of an interface with find_definition

FINDING IMPLEMENTATIONS:
- Use find_definition on interface methods to find implementations
- Use find_references on types to find where they're instantiated

CODE ACTIONS:
Use get_code_actions to discover automated fixes and refactorings available at a specific code location. LSPs can suggest:
- Extracting code to functions
- Inlining variables
- Organizing imports
- Implementing interface methods

DIAGNOSTICS:
Use get_diagnostics to check for errors and warnings before and after making changes.`

// PromptRegistry serves the server's canned guidance prompts. The set is
// fixed at construction; Get resolves by name.
type PromptRegistry struct {
	prompts  []Prompt
	handlers map[string]func(args map[string]string) (*PromptGetResult, error)
}

func NewPromptRegistry() *PromptRegistry {
	r := &PromptRegistry{handlers: make(map[string]func(args map[string]string) (*PromptGetResult, error))}
	r.register(Prompt{
		Name:        "code-exploration",
		Description: "Best practices for exploring and understanding code using LSP tools",
	}, func(args map[string]string) (*PromptGetResult, error) {
		return &PromptGetResult{
			Description: "Best practices for exploring and understanding code using LSP tools",
			Messages: []PromptMessage{
				{Role: "user", Content: TextContent(codeExplorationPrompt)},
			},
		}, nil
	})
	r.register(Prompt{
		Name:        "refactoring-guide",
		Description: "How to safely refactor code using LSP-assisted tools",
	}, func(args map[string]string) (*PromptGetResult, error) {
		return &PromptGetResult{
			Description: "How to safely refactor code using LSP-assisted tools",
			Messages: []PromptMessage{
				{Role: "user", Content: TextContent(refactoringGuidePrompt)},
			},
		}, nil
	})
	return r
}

func (r *PromptRegistry) register(p Prompt, handler func(args map[string]string) (*PromptGetResult, error)) {
	r.prompts = append(r.prompts, p)
	r.handlers[p.Name] = handler
}

func (r *PromptRegistry) List() []Prompt {
	return r.prompts
}

func (r *PromptRegistry) Get(name string, args map[string]string) (*PromptGetResult, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt: %s", name)
	}
	return handler(args)
}
