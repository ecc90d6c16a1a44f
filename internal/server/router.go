package server

import (
	"encoding/json"
	"sync"

	"github.com/amarbel-llc/codebuddy/internal/config"
	"github.com/amarbel-llc/codebuddy/internal/config/filetype"
	"github.com/amarbel-llc/codebuddy/internal/lsp"
	"github.com/amarbel-llc/codebuddy/pkg/filematch"
)

// Router maps an open document, extension, or LSP language ID to the name
// of the LSP server configured to handle it, per a workspace's filetype
// configs.
type Router struct {
	matchers    *filematch.MatcherSet
	filetypes   map[string]*filetype.Config
	languageMap map[lsp.DocumentURI]string
	mu          sync.RWMutex
}

func NewRouter(filetypes []*filetype.Config) (*Router, error) {
	matchers := filematch.NewMatcherSet()
	byName := make(map[string]*filetype.Config, len(filetypes))

	for _, ft := range filetypes {
		if err := matchers.Add(ft.Name, ft.Extensions, ft.Patterns, ft.LanguageIDs); err != nil {
			return nil, err
		}
		byName[ft.Name] = ft
	}

	return &Router{
		matchers:    matchers,
		filetypes:   byName,
		languageMap: make(map[lsp.DocumentURI]string),
	}, nil
}

// NewRouterFromConfig builds a router straight from the LSP server entries
// of an lsps.toml, for callers that route on the LSP config alone without a
// filetype layer in between.
func NewRouterFromConfig(cfg *config.Config) (*Router, error) {
	matchers := filematch.NewMatcherSet()
	byName := make(map[string]*filetype.Config, len(cfg.LSPs))
	for _, l := range cfg.LSPs {
		if err := matchers.Add(l.Name, l.Extensions, l.Patterns, l.LanguageIDs); err != nil {
			return nil, err
		}
		byName[l.Name] = &filetype.Config{Name: l.Name, LSP: l.Name}
	}

	return &Router{
		matchers:    matchers,
		filetypes:   byName,
		languageMap: make(map[lsp.DocumentURI]string),
	}, nil
}

func (r *Router) Route(method string, params json.RawMessage) string {
	var paramsMap map[string]any
	if err := json.Unmarshal(params, &paramsMap); err != nil {
		return ""
	}

	uri := lsp.ExtractURI(method, paramsMap)
	if uri == "" {
		return ""
	}

	if method == lsp.MethodTextDocumentDidOpen {
		langID := lsp.ExtractLanguageID(paramsMap)
		if langID != "" {
			r.SetLanguageID(uri, langID)
		}
	}

	if method == lsp.MethodTextDocumentDidClose {
		r.mu.Lock()
		delete(r.languageMap, uri)
		r.mu.Unlock()
	}

	return r.RouteByURI(uri)
}

func (r *Router) RouteByURI(uri lsp.DocumentURI) string {
	ft := r.FiletypeByURI(uri)
	if ft == nil {
		return ""
	}
	return ft.LSP
}

// FiletypeByURI returns the filetype config claiming uri, or nil.
func (r *Router) FiletypeByURI(uri lsp.DocumentURI) *filetype.Config {
	r.mu.RLock()
	langID := r.languageMap[uri]
	r.mu.RUnlock()

	name := r.matchers.Match(uri.Path(), uri.Extension(), langID)
	if name == "" {
		return nil
	}
	return r.filetypes[name]
}

func (r *Router) RouteByExtension(ext string) string {
	name := r.matchers.MatchByExtension(ext)
	if name == "" {
		return ""
	}
	if ft, ok := r.filetypes[name]; ok {
		return ft.LSP
	}
	return ""
}

func (r *Router) RouteByLanguageID(langID string) string {
	name := r.matchers.MatchByLanguageID(langID)
	if name == "" {
		return ""
	}
	if ft, ok := r.filetypes[name]; ok {
		return ft.LSP
	}
	return ""
}

func (r *Router) SetLanguageID(uri lsp.DocumentURI, langID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.languageMap[uri] = langID
}

func (r *Router) GetLanguageID(uri lsp.DocumentURI) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.languageMap[uri]
}
