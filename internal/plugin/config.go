package plugin

import (
	"fmt"
	"strings"

	"github.com/amarbel-llc/codebuddy/internal/config"
	"github.com/amarbel-llc/codebuddy/internal/refdetect"
)

// BuildRegistry constructs the Registry described in §4.E steps 1-4 from a
// loaded config: one LspAdapterPlugin per configured LSP, plus a single
// SystemToolsPlugin for the filesystem-level tools no LSP backs. Shared by
// mcp.Server.New (the live dispatcher) and the CLI's doctor/plan/apply
// commands, which need the same plugin set without spinning up an LSP
// pool.
func BuildRegistry(lsps []config.LSP) (*Registry, []error) {
	registry := NewRegistry()
	var errs []error

	for _, l := range lsps {
		name := l.Name
		if len(l.Extensions) > 0 {
			name = strings.TrimPrefix(l.Extensions[0], ".")
		}
		name += "-lsp"
		if _, exists := registry.Get(name); exists {
			errs = append(errs, fmt.Errorf("plugin %q registered more than once; the later registration replaces the earlier", name))
		}
		adapter := NewLspAdapterPlugin(name, l.Extensions, nil, DetectorForExtensions(l.Extensions), nil, nil)
		if err := registry.Register(adapter); err != nil {
			errs = append(errs, err)
		}
	}
	if err := registry.Register(NewSystemToolsPlugin()); err != nil {
		errs = append(errs, err)
	}
	return registry, errs
}

// DetectorForExtensions picks the internal/refdetect implementation that
// matches a configured LSP's file extensions, per §4.C: Rust and
// TypeScript/JavaScript are the two languages with a grounded reference
// detector today. Any other language gets a nil detector.
func DetectorForExtensions(extensions []string) ReferenceDetector {
	for _, ext := range extensions {
		switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
		case "rs":
			return refdetect.NewRust()
		case "ts", "tsx", "js", "jsx":
			return refdetect.NewTypeScript()
		}
	}
	return nil
}
