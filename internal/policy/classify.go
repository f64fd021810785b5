package policy

import (
	"strings"

	"tark/pkg/types"
)

// riskByCommand seeds the dangerous/moderate tiers for well-known
// commands; anything unlisted defaults to moderate for write commands
// and safe for read-only ones.
var riskByCommand = map[string]types.RiskLevel{
	"rm": types.RiskDangerous, "dd": types.RiskDangerous,
	"chmod": types.RiskModerate, "chown": types.RiskModerate,
	"mv": types.RiskModerate, "cp": types.RiskModerate,
	"mkdir": types.RiskSafe, "touch": types.RiskSafe, "rmdir": types.RiskModerate,
}

// ClassifyBash classifies a full (possibly compound) bash command
// line. Per-leg classifications combine monotonically: the resulting
// operation and risk are never weaker than any individual leg's, so
// "echo hi && rm -rf /" classifies as a delete, not a no-op.
func ClassifyBash(command, workDir string) types.CommandClassification {
	commands, err := ParseCommand(command)
	if err != nil || len(commands) == 0 {
		return types.CommandClassification{ID: "bash:unparsed", Operation: types.OpExecute, InWorkdir: false, Risk: types.RiskDangerous}
	}

	result := types.CommandClassification{Operation: types.OpRead, InWorkdir: true, Risk: types.RiskSafe}
	for _, cmd := range commands {
		leg := classifyOne(cmd, workDir)
		result.Operation = types.StrongerOperation(result.Operation, leg.Operation)
		result.Risk = types.StrongerRisk(result.Risk, leg.Risk)
		if !leg.InWorkdir {
			result.InWorkdir = false
		}
	}
	// The rule table is keyed by operation, not by command name: a
	// compound command is only as trustworthy as its strongest leg, so
	// "echo hi && rm -rf /" classifies as "bash:delete", not "bash:read".
	result.ID = "bash:" + string(result.Operation)
	return result
}

func classifyOne(cmd Command, workDir string) types.CommandClassification {
	op := types.OpExecute
	risk := types.RiskModerate
	inWorkdir := true

	if cmd.Name == "rm" || cmd.Name == "rmdir" {
		op = types.OpDelete
	} else if IsWriteCommand(cmd.Name) {
		op = types.OpWrite
	} else {
		op = types.OpRead
		risk = types.RiskSafe
	}

	if r, ok := riskByCommand[cmd.Name]; ok {
		risk = r
	}

	if IsWriteCommand(cmd.Name) {
		for _, raw := range ExtractPaths(cmd) {
			abs := ResolvePath(raw, workDir)
			if !IsWithinDir(abs, workDir) {
				inWorkdir = false
				risk = types.StrongerRisk(risk, types.RiskDangerous)
			}
		}
	}

	// A bare "sudo" always escalates to dangerous regardless of the
	// wrapped command, since classification of the wrapped command is
	// only a best-effort parse.
	if cmd.Name == "sudo" || strings.HasPrefix(cmd.Name, "sudo") {
		risk = types.RiskDangerous
	}

	return types.CommandClassification{ID: "bash:" + cmd.Name, Operation: op, InWorkdir: inWorkdir, Risk: risk}
}

// ClassifyFileTool classifies a non-bash tool call (read, write, edit,
// and any other registered tool) by its name and the target path's
// workdir locality: a name containing "delete" is a delete, one
// containing "write" or "edit" is a write, and anything else is a read.
func ClassifyFileTool(toolName, path, workDir string) types.CommandClassification {
	op := types.OpRead
	risk := types.RiskSafe
	switch {
	case strings.Contains(toolName, "delete"):
		op, risk = types.OpDelete, types.RiskDangerous
	case strings.Contains(toolName, "write"), strings.Contains(toolName, "edit"):
		op, risk = types.OpWrite, types.RiskModerate
	}

	abs := ResolvePath(path, workDir)
	inWorkdir := IsWithinDir(abs, workDir)
	if !inWorkdir && op != types.OpRead {
		risk = types.RiskDangerous
	}
	return types.CommandClassification{ID: "file:" + toolName, Operation: op, InWorkdir: inWorkdir, Risk: risk}
}
