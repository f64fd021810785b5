package tool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tark/pkg/types"
)

const defaultReadLimit = 2000

// ReadTool reads a text file, optionally a line window.
type ReadTool struct{ workDir string }

func NewReadTool(workDir string) *ReadTool { return &ReadTool{workDir: workDir} }

func (t *ReadTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "read",
		Description: "Reads a file from the filesystem, optionally a line range.",
		Parameters: jsonSchema(`{
			"filePath": {"type": "string", "description": "Absolute path to the file"},
			"offset": {"type": "integer", "description": "Number of lines to skip before reading"},
			"limit": {"type": "integer", "description": "Number of lines to read"}
		}`, "filePath"),
	}
}

func (t *ReadTool) Execute(ctx context.Context, callCtx *Context, args types.JSONValue) (*Result, error) {
	path, _ := args["filePath"].(string)
	if path == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	limit := defaultReadLimit
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}
	offset := 0
	if v, ok := args["offset"].(float64); ok && v > 0 {
		offset = int(v)
	}

	info, err := os.Stat(path)
	if err != nil {
		return &Result{Output: err.Error(), IsError: true}, nil
	}
	if info.IsDir() {
		return &Result{Output: fmt.Sprintf("%s is a directory", path), IsError: true}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return &Result{Output: err.Error(), IsError: true}, nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)

	var b strings.Builder
	lineNum := 0
	collected := 0
	for scanner.Scan() {
		lineNum++
		if lineNum <= offset {
			continue
		}
		if collected >= limit {
			break
		}
		fmt.Fprintf(&b, "%6d\t%s\n", lineNum, scanner.Text())
		collected++
	}
	return &Result{Output: b.String(), Title: filepath.Base(path)}, nil
}

// WriteTool creates or overwrites a file, creating parent directories.
type WriteTool struct{ workDir string }

func NewWriteTool(workDir string) *WriteTool { return &WriteTool{workDir: workDir} }

func (t *WriteTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "write",
		Description: "Writes content to a file, overwriting it if it exists.",
		Parameters: jsonSchema(`{
			"filePath": {"type": "string", "description": "Absolute path to the file"},
			"content": {"type": "string", "description": "Content to write"}
		}`, "filePath", "content"),
	}
}

func (t *WriteTool) Execute(ctx context.Context, callCtx *Context, args types.JSONValue) (*Result, error) {
	path, _ := args["filePath"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &Result{Output: err.Error(), IsError: true}, nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return &Result{Output: err.Error(), IsError: true}, nil
	}
	return &Result{Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path), Title: filepath.Base(path)}, nil
}

// EditTool performs an exact string replacement within a file.
type EditTool struct{ workDir string }

func NewEditTool(workDir string) *EditTool { return &EditTool{workDir: workDir} }

func (t *EditTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "edit",
		Description: "Replaces an exact string match in a file with new text.",
		Parameters: jsonSchema(`{
			"filePath": {"type": "string", "description": "Absolute path to the file"},
			"oldString": {"type": "string", "description": "Exact text to replace"},
			"newString": {"type": "string", "description": "Replacement text"},
			"replaceAll": {"type": "boolean", "description": "Replace every occurrence"}
		}`, "filePath", "oldString", "newString"),
	}
}

func (t *EditTool) Execute(ctx context.Context, callCtx *Context, args types.JSONValue) (*Result, error) {
	path, _ := args["filePath"].(string)
	oldString, _ := args["oldString"].(string)
	newString, _ := args["newString"].(string)
	replaceAll, _ := args["replaceAll"].(bool)
	if path == "" || oldString == "" {
		return nil, fmt.Errorf("filePath and oldString are required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &Result{Output: err.Error(), IsError: true}, nil
	}
	content := string(data)

	count := strings.Count(content, oldString)
	if count == 0 {
		return &Result{Output: "oldString not found in file", IsError: true}, nil
	}
	if count > 1 && !replaceAll {
		return &Result{Output: fmt.Sprintf("oldString matches %d times; set replaceAll or pass more context", count), IsError: true}, nil
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(content, oldString, newString)
	} else {
		updated = strings.Replace(content, oldString, newString, 1)
	}

	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return &Result{Output: err.Error(), IsError: true}, nil
	}
	return &Result{Output: fmt.Sprintf("edited %s", path), Title: filepath.Base(path)}, nil
}

// ListTool lists the immediate contents of a directory.
type ListTool struct{ workDir string }

func NewListTool(workDir string) *ListTool { return &ListTool{workDir: workDir} }

func (t *ListTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "list",
		Description: "Lists files and directories at a path.",
		Parameters:  jsonSchema(`{"path": {"type": "string", "description": "Directory to list"}}`),
	}
}

func (t *ListTool) Execute(ctx context.Context, callCtx *Context, args types.JSONValue) (*Result, error) {
	path, _ := args["path"].(string)
	if path == "" {
		path = t.workDir
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return &Result{Output: err.Error(), IsError: true}, nil
	}
	var b strings.Builder
	for _, e := range entries {
		kind := "file"
		if e.IsDir() {
			kind = "dir"
		}
		fmt.Fprintf(&b, "%s\t%s\n", kind, e.Name())
	}
	return &Result{Output: b.String(), Title: path}, nil
}
