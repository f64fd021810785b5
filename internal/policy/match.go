package policy

import (
	"path/filepath"

	"tark/pkg/types"
)

// MatchCommand reports whether command (e.g. "git push --force")
// matches pattern under matchType. Prefix and Glob both operate on
// the space-joined "name arg1 arg2..." form of command.
func MatchCommand(pattern, command string, matchType types.MatchType) bool {
	switch matchType {
	case types.MatchExact:
		return pattern == command
	case types.MatchPrefix:
		return len(command) >= len(pattern) && command[:len(pattern)] == pattern
	case types.MatchGlob:
		ok, err := filepath.Match(pattern, command)
		return err == nil && ok
	default:
		return false
	}
}
