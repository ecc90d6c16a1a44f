package lsp

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// DocumentURI is a file:// URI as used throughout the LSP wire protocol.
type DocumentURI string

// Path returns the filesystem path encoded by the URI, or "" if it is not
// a well-formed file:// URI.
func (u DocumentURI) Path() string {
	s := string(u)
	if s == "" {
		return ""
	}

	parsed, err := url.Parse(s)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "" && parsed.Scheme != "file" {
		return ""
	}

	path := parsed.Path
	if path == "" {
		path = parsed.Opaque
	}

	if runtime.GOOS == "windows" {
		path = strings.TrimPrefix(path, "/")
	}

	return path
}

// Extension returns the file extension including the leading dot, or "".
func (u DocumentURI) Extension() string {
	return filepath.Ext(u.Path())
}

// URIFromPath converts an absolute filesystem path into a file:// URI.
func URIFromPath(path string) DocumentURI {
	path = filepath.ToSlash(path)
	if runtime.GOOS == "windows" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u := url.URL{Scheme: "file", Path: path}
	return DocumentURI(u.String())
}

// ExtractURI pulls the textDocument.uri field out of a decoded LSP params
// object, falling back to a top-level uri field for shapes where the URI
// is not nested under textDocument. The method argument is not consulted.
func ExtractURI(method string, params map[string]any) DocumentURI {
	if td, ok := params["textDocument"].(map[string]any); ok {
		if uri, ok := td["uri"].(string); ok {
			return DocumentURI(uri)
		}
	}
	if uri, ok := params["uri"].(string); ok {
		return DocumentURI(uri)
	}
	return ""
}

// ExtractLanguageID pulls textDocument.languageId out of a decoded
// didOpen-shaped params object.
func ExtractLanguageID(params map[string]any) string {
	td, ok := params["textDocument"].(map[string]any)
	if !ok {
		return ""
	}
	langID, _ := td["languageId"].(string)
	return langID
}
