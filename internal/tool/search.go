package tool

import (
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"

	"tark/pkg/types"
)

// GrepTool searches file contents, shelling out to ripgrep when
// available and falling back to grep -rn otherwise.
type GrepTool struct{ workDir string }

func NewGrepTool(workDir string) *GrepTool { return &GrepTool{workDir: workDir} }

func (t *GrepTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "grep",
		Description: "Searches file contents for a regex pattern.",
		Parameters: jsonSchema(`{
			"pattern": {"type": "string", "description": "Regex pattern to search for"},
			"path": {"type": "string", "description": "Directory or file to search"},
			"include": {"type": "string", "description": "Glob of files to include, e.g. *.go"}
		}`, "pattern"),
	}
}

func (t *GrepTool) Execute(ctx context.Context, callCtx *Context, args types.JSONValue) (*Result, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	path, _ := args["path"].(string)
	if path == "" {
		path = t.workDir
	}
	include, _ := args["include"].(string)

	var cmd *exec.Cmd
	if rg, err := exec.LookPath("rg"); err == nil {
		cmdArgs := []string{"--line-number", "--no-heading"}
		if include != "" {
			cmdArgs = append(cmdArgs, "--glob", include)
		}
		cmdArgs = append(cmdArgs, pattern, path)
		cmd = exec.CommandContext(ctx, rg, cmdArgs...)
	} else {
		cmd = exec.CommandContext(ctx, "grep", "-rn", pattern, path)
	}

	out, err := cmd.CombinedOutput()
	if err != nil && len(out) == 0 {
		return &Result{Output: "no matches"}, nil
	}
	return &Result{Output: truncate(string(out), maxBashOutput)}, nil
}

// GlobTool finds files by name pattern.
type GlobTool struct{ workDir string }

func NewGlobTool(workDir string) *GlobTool { return &GlobTool{workDir: workDir} }

func (t *GlobTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "glob",
		Description: "Finds files matching a glob pattern, e.g. **/*.go.",
		Parameters: jsonSchema(`{
			"pattern": {"type": "string", "description": "Glob pattern"},
			"path": {"type": "string", "description": "Directory to search under"}
		}`, "pattern"),
	}
}

func (t *GlobTool) Execute(ctx context.Context, callCtx *Context, args types.JSONValue) (*Result, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	root, _ := args["path"].(string)
	if root == "" {
		root = t.workDir
	}

	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return &Result{Output: err.Error(), IsError: true}, nil
	}
	return &Result{Output: strings.Join(matches, "\n")}, nil
}
