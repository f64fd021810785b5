package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"tark/pkg/types"
)

const (
	defaultBashTimeout = 2 * time.Minute
	maxBashTimeout     = 10 * time.Minute
	maxBashOutput      = 30000
)

const bashDescription = `Executes a shell command in the session's working directory.

Usage:
- command is required
- optional timeout in milliseconds (max 600000)
- stdout and stderr are captured together, truncated past 30000 bytes`

// BashTool runs a shell command. The policy engine classifies and
// gates every invocation before the agent loop calls Execute; this
// tool performs no approval logic of its own.
type BashTool struct {
	workDir string
	shell   string
}

func NewBashTool(workDir string) *BashTool {
	return &BashTool{workDir: workDir, shell: detectShell()}
}

func detectShell() string {
	if runtime.GOOS == "windows" {
		return "cmd.exe"
	}
	if path, err := exec.LookPath("bash"); err == nil {
		return path
	}
	return "/bin/sh"
}

func (t *BashTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "bash",
		Description: bashDescription,
		Parameters: jsonSchema(`{
			"command": {"type": "string", "description": "The shell command to run"},
			"timeout": {"type": "integer", "description": "Timeout in milliseconds"},
			"description": {"type": "string", "description": "What this command does"}
		}`, "command"),
	}
}

func (t *BashTool) Execute(ctx context.Context, callCtx *Context, args types.JSONValue) (*Result, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}

	timeout := defaultBashTimeout
	if ms, ok := args["timeout"].(float64); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
		if timeout > maxBashTimeout {
			timeout = maxBashTimeout
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var flag string
	if runtime.GOOS == "windows" {
		flag = "/C"
	} else {
		flag = "-c"
	}
	cmd := exec.CommandContext(runCtx, t.shell, flag, command)
	cmd.Dir = t.workDir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	done := make(chan error, 1)
	go func() { done <- cmd.Run() }()

	select {
	case <-callCtx.AbortCh:
		cancel()
		return &Result{Output: "command aborted", IsError: true}, nil
	case err := <-done:
		output := truncate(out.String(), maxBashOutput)
		if err != nil {
			return &Result{Output: output + "\n" + err.Error(), IsError: true}, nil
		}
		return &Result{Output: output, Title: command}, nil
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
