package policy

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Command is one parsed invocation out of a (possibly compound) shell
// command line.
type Command struct {
	Name       string
	Args       []string
	Subcommand string
}

// ParseCommand splits a shell command line into its constituent
// invocations, handling &&, ||, and ; compound operators so each leg
// of a compound command is classified on its own.
func ParseCommand(command string) ([]Command, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(false))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}

	var commands []Command
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})
	return commands, nil
}

func extractCommand(call *syntax.CallExpr) *Command {
	if len(call.Args) == 0 {
		return nil
	}
	cmd := &Command{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}
	for _, arg := range call.Args[1:] {
		argStr := wordToString(arg)
		cmd.Args = append(cmd.Args, argStr)
		if cmd.Subcommand == "" && !strings.HasPrefix(argStr, "-") {
			cmd.Subcommand = argStr
		}
	}
	return cmd
}

func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// writeCommands are commands whose arguments name paths the Policy
// Engine must check for workdir locality before classifying the
// action's risk.
var writeCommands = map[string]bool{
	"rm": true, "cp": true, "mv": true, "mkdir": true,
	"touch": true, "chmod": true, "chown": true, "rmdir": true, "dd": true,
}

// IsWriteCommand reports whether name is a filesystem-mutating
// command requiring path-locality classification.
func IsWriteCommand(name string) bool {
	return writeCommands[name]
}

// ExtractPaths pulls the non-flag arguments out of cmd, skipping
// chmod's mode argument since it is never a path.
func ExtractPaths(cmd Command) []string {
	var paths []string
	for _, arg := range cmd.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if cmd.Name == "chmod" && len(arg) > 0 {
			c := arg[0]
			if (c >= '0' && c <= '9') || c == 'u' || c == 'g' || c == 'o' || c == 'a' || c == '+' || c == '=' {
				continue
			}
		}
		paths = append(paths, arg)
	}
	return paths
}

// ResolvePath resolves path to an absolute path relative to workDir,
// without invoking a subprocess (unlike the teacher's realpath-based
// resolver) so classification never shells out mid-classification.
func ResolvePath(path, workDir string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if strings.HasPrefix(path, "~") {
		return path
	}
	return filepath.Clean(filepath.Join(workDir, path))
}

// IsWithinDir reports whether path is dir or a descendant of it.
func IsWithinDir(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

// lookupExecutable reports whether name resolves on the host's PATH.
// Nothing in this package calls it; production classification never
// depends on PATH contents.
func lookupExecutable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
