package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// registerFileTools adds the filesystem-level tools backed by
// internal/plugin's SystemToolsPlugin capability set: these have no LSP
// counterpart, so they act directly on disk rather than going through
// internal/plan/internal/exec.
func (r *ToolRegistry) registerFileTools() {
	r.register("create_file", "Create a new file with the given content. Fails if the file already exists.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"content": {"type": "string"}
			},
			"required": ["path"]
		}`),
		r.handleCreateFile)

	r.register("read_file", "Read a file's full contents.",
		json.RawMessage(`{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`),
		r.handleReadFile)

	r.register("write_file", "Overwrite a file's full contents.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"content": {"type": "string"}
			},
			"required": ["path", "content"]
		}`),
		r.handleWriteFile)

	r.register("delete_file", "Delete a single file.",
		json.RawMessage(`{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`),
		r.handleDeleteFile)

	r.register("rename_file", "Rename or move a single file on disk, without touching any imports that reference it. Use move instead if you also want affected-file warnings.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"old_path": {"type": "string"},
				"new_path": {"type": "string"}
			},
			"required": ["old_path", "new_path"]
		}`),
		r.handleRenameFile)

	r.register("rename_directory", "Rename or move a whole directory on disk.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"old_path": {"type": "string"},
				"new_path": {"type": "string"}
			},
			"required": ["old_path", "new_path"]
		}`),
		r.handleRenameDirectory)

	r.register("list_files", "List files under a directory, optionally filtered by extension.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"extensions": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["path"]
		}`),
		r.handleListFiles)

	r.register("workspace.find_replace", "Find and replace a regular expression across every file in a directory tree.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"pattern": {"type": "string"},
				"replacement": {"type": "string"},
				"extensions": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["path", "pattern", "replacement"]
		}`),
		r.handleFindReplace)
}

type pathArgs struct {
	Path string `json:"path"`
}

type pathContentArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (r *ToolRegistry) handleCreateFile(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a pathContentArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if _, err := os.Stat(a.Path); err == nil {
		return ErrorResult(fmt.Sprintf("%s already exists", a.Path)), nil
	}
	if dir := filepath.Dir(a.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ErrorResult(fmt.Sprintf("creating parent directories: %v", err)), nil
		}
	}
	if err := os.WriteFile(a.Path, []byte(a.Content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("creating %s: %v", a.Path, err)), nil
	}
	return &ToolCallResult{Content: []ContentBlock{TextContent(fmt.Sprintf("created %s", a.Path))}}, nil
}

func (r *ToolRegistry) handleReadFile(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("reading %s: %v", a.Path, err)), nil
	}
	return &ToolCallResult{Content: []ContentBlock{TextContent(string(data))}}, nil
}

func (r *ToolRegistry) handleWriteFile(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a pathContentArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := os.WriteFile(a.Path, []byte(a.Content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("writing %s: %v", a.Path, err)), nil
	}
	return &ToolCallResult{Content: []ContentBlock{TextContent(fmt.Sprintf("wrote %s", a.Path))}}, nil
}

func (r *ToolRegistry) handleDeleteFile(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := os.Remove(a.Path); err != nil {
		return ErrorResult(fmt.Sprintf("deleting %s: %v", a.Path, err)), nil
	}
	return &ToolCallResult{Content: []ContentBlock{TextContent(fmt.Sprintf("deleted %s", a.Path))}}, nil
}

type renamePathArgs struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

func (r *ToolRegistry) handleRenameFile(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a renamePathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := os.Rename(a.OldPath, a.NewPath); err != nil {
		return ErrorResult(fmt.Sprintf("renaming %s to %s: %v", a.OldPath, a.NewPath, err)), nil
	}
	return &ToolCallResult{Content: []ContentBlock{TextContent(fmt.Sprintf("renamed %s to %s", a.OldPath, a.NewPath))}}, nil
}

func (r *ToolRegistry) handleRenameDirectory(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a renamePathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	info, err := os.Stat(a.OldPath)
	if err != nil {
		return ErrorResult(fmt.Sprintf("stat %s: %v", a.OldPath, err)), nil
	}
	if !info.IsDir() {
		return ErrorResult(fmt.Sprintf("%s is not a directory", a.OldPath)), nil
	}
	if err := os.Rename(a.OldPath, a.NewPath); err != nil {
		return ErrorResult(fmt.Sprintf("renaming %s to %s: %v", a.OldPath, a.NewPath, err)), nil
	}
	return &ToolCallResult{Content: []ContentBlock{TextContent(fmt.Sprintf("renamed directory %s to %s", a.OldPath, a.NewPath))}}, nil
}

type listFilesArgs struct {
	Path       string   `json:"path"`
	Extensions []string `json:"extensions"`
}

func (r *ToolRegistry) handleListFiles(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a listFilesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	allow := map[string]bool{}
	for _, ext := range a.Extensions {
		allow[ext] = true
	}

	var files []string
	err := filepath.WalkDir(a.Path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" || d.Name() == "target" {
				return filepath.SkipDir
			}
			return nil
		}
		if len(allow) > 0 && !allow[filepath.Ext(p)] {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("listing %s: %v", a.Path, err)), nil
	}

	data, _ := json.MarshalIndent(files, "", "  ")
	return &ToolCallResult{Content: []ContentBlock{TextContent(string(data))}}, nil
}

type findReplaceArgs struct {
	Path        string   `json:"path"`
	Pattern     string   `json:"pattern"`
	Replacement string   `json:"replacement"`
	Extensions  []string `json:"extensions"`
}

func (r *ToolRegistry) handleFindReplace(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
	var a findReplaceArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	re, err := regexp.Compile(a.Pattern)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	allow := map[string]bool{}
	for _, ext := range a.Extensions {
		allow[ext] = true
	}

	var touched []string
	err = filepath.WalkDir(a.Path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" || d.Name() == "target" {
				return filepath.SkipDir
			}
			return nil
		}
		if len(allow) > 0 && !allow[filepath.Ext(p)] {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		replaced := re.ReplaceAllString(string(data), a.Replacement)
		if replaced == string(data) {
			return nil
		}
		if err := os.WriteFile(p, []byte(replaced), 0o644); err != nil {
			return err
		}
		touched = append(touched, p)
		return nil
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("find/replace under %s: %v", a.Path, err)), nil
	}

	data, _ := json.MarshalIndent(touched, "", "  ")
	return &ToolCallResult{Content: []ContentBlock{TextContent(string(data))}}, nil
}
