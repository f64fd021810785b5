package provider

import "tark/pkg/types"

// SanitizeMessages repairs a message history so every tool_use block
// has a matching tool_result and vice versa before it is handed to a
// provider, since providers reject requests where the pairing is
// broken (a common outcome of auto-compaction slicing a transcript
// mid-turn, or a tool call that errored before the loop recorded its
// result).
//
// Pass one collects every tool_use id emitted by assistant messages
// and every tool_use id answered by a tool message. Pass two drops
// assistant tool_use blocks with no answering result and drops any
// tool message whose id has no matching tool_use, so the two sets are
// always equal on return.
func SanitizeMessages(messages []*types.Message) []*types.Message {
	used := make(map[string]bool)
	answered := make(map[string]bool)

	for _, msg := range messages {
		if msg.Role == types.RoleAssistant {
			for _, p := range msg.ToolUseParts() {
				used[p.ID] = true
			}
		}
		if msg.Role == types.RoleTool && msg.ToolCallID != "" {
			answered[msg.ToolCallID] = true
		}
	}

	out := make([]*types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == types.RoleAssistant {
			filtered := filterUnansweredToolUse(msg, answered)
			if filtered == nil {
				continue
			}
			out = append(out, filtered)
			continue
		}
		if msg.Role == types.RoleTool && msg.ToolCallID != "" && !used[msg.ToolCallID] {
			continue
		}
		out = append(out, msg)
	}

	for id := range used {
		if !answered[id] {
			// No tool message answers this tool_use: the loop crashed,
			// was interrupted, or the call errored before recording a
			// result. Drop it; filterUnansweredToolUse already removed
			// the corresponding block from the assistant message.
			continue
		}
	}
	return out
}

// filterUnansweredToolUse returns msg with any tool_use part lacking
// an answer removed. If msg becomes empty (no text, no thinking, no
// remaining parts) it returns nil so the caller drops it entirely,
// since providers reject empty assistant turns.
func filterUnansweredToolUse(msg *types.Message, answered map[string]bool) *types.Message {
	hasUnanswered := false
	for _, p := range msg.ToolUseParts() {
		if !answered[p.ID] {
			hasUnanswered = true
			break
		}
	}
	if !hasUnanswered {
		return msg
	}

	clone := *msg
	clone.Parts = nil
	for _, part := range msg.Parts {
		if tu, ok := part.(types.ToolUsePart); ok && !answered[tu.ID] {
			continue
		}
		clone.Parts = append(clone.Parts, part)
	}
	if clone.Text == "" && clone.Thinking == "" && len(clone.Parts) == 0 {
		return nil
	}
	return &clone
}
