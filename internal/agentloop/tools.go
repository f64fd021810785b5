package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"tark/internal/conversation"
	"tark/internal/metrics"
	"tark/internal/tool"
	"tark/pkg/types"
)

// runToolCalls executes every ToolUsePart on msg in emission order,
// gating each through the policy engine, and appends a matching tool
// result message per call before the loop resumes streaming.
func (l *Loop) runToolCalls(ctx context.Context, mgr *conversation.Manager, sessionID string, msg *types.Message) error {
	calls := msg.ToolUseParts()
	if len(calls) == 0 {
		return nil
	}

	for _, call := range calls {
		metrics.ToolCalls.WithLabelValues(call.Name).Inc()
		result, err := l.runOneToolCall(ctx, sessionID, call)
		if err != nil {
			result = fmt.Sprintf("error: %s", err.Error())
		}
		toolMsg := mgr.AddToolMessage(call.ID, result)
		if err := l.sessions.AddMessage(ctx, sessionID, toolMsg); err != nil {
			return fmt.Errorf("persist tool result: %w", err)
		}
	}
	return nil
}

func (l *Loop) runOneToolCall(ctx context.Context, sessionID string, call types.ToolUsePart) (string, error) {
	t, ok := l.tools.Get(call.Name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}

	sess, err := l.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load session for tool dispatch: %w", err)
	}

	command := commandForAudit(call)
	decision, err := l.policy.Decide(ctx, sessionID, call.Name, command, sess.Directory)
	if err != nil {
		return "", fmt.Errorf("policy decision: %w", err)
	}

	looping := l.policy.CheckDoomLoop(sessionID, call.Name, call.Input)
	if looping {
		decision.NeedsApproval = true
		decision.Rationale = "identical call repeated; forcing approval to break a possible loop"
	}

	if decision.MatchedPattern != nil && decision.MatchedPattern.IsDenial {
		return "denied by saved policy pattern", nil
	}

	if decision.NeedsApproval {
		approved, pattern, err := l.requestApproval(ctx, sessionID, decision, call.Name, command)
		if err != nil {
			return "", fmt.Errorf("approval: %w", err)
		}
		if !approved {
			return "denied by user", nil
		}
		if pattern != nil && decision.AllowSavePattern {
			if _, err := l.policy.SavePattern(ctx, *pattern); err != nil {
				return "", fmt.Errorf("save approval pattern: %w", err)
			}
		}
	}

	callCtx := &tool.Context{
		SessionID: sessionID,
		CallID:    call.ID,
		WorkDir:   sess.Directory,
		AbortCh:   l.sessions.AbortChannel(sessionID),
	}

	result, err := t.Execute(ctx, callCtx, call.Input)
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

func (l *Loop) requestApproval(ctx context.Context, sessionID string, decision *types.ApprovalDecision, toolName, command string) (bool, *types.ApprovalPattern, error) {
	if l.approve == nil {
		return false, nil, nil
	}
	return l.approve(ctx, sessionID, decision, toolName, command)
}

// commandForAudit renders a ToolUsePart into the string form the
// policy engine classifies and the audit log records: the raw shell
// command for bash, the path argument for file tools, or the JSON
// arguments for anything else.
func commandForAudit(call types.ToolUsePart) string {
	if call.Name == "bash" {
		if cmd, ok := call.Input["command"].(string); ok {
			return cmd
		}
	}
	if path, ok := call.Input["filePath"].(string); ok {
		return path
	}
	if path, ok := call.Input["path"].(string); ok {
		return path
	}
	raw, _ := json.Marshal(call.Input)
	return string(raw)
}
