package provider

import (
	"encoding/json"

	"tark/pkg/types"
)

// toolCallTracker accumulates fragmented tool-call argument JSON as it
// streams in, keyed by the provider's own per-stream index (Anthropic
// content_block index, OpenAI tool_calls array index) rather than the
// canonical call ID, since some providers only assign the ID on the
// start event and the index is stable from the first byte.
type toolCallTracker struct {
	calls map[int]*pendingToolCall
}

type pendingToolCall struct {
	id        string
	name      string
	argsBuf   []byte
}

func newToolCallTracker() *toolCallTracker {
	return &toolCallTracker{calls: make(map[int]*pendingToolCall)}
}

// StartCall registers a new call at index with its canonical id and
// name, both of which providers send exactly once at call start.
func (t *toolCallTracker) StartCall(index int, id, name string) {
	t.calls[index] = &pendingToolCall{id: id, name: name}
}

// AppendArgs appends a raw JSON fragment to the call at index.
func (t *toolCallTracker) AppendArgs(index int, fragment string) {
	c, ok := t.calls[index]
	if !ok {
		return
	}
	c.argsBuf = append(c.argsBuf, fragment...)
}

// CompleteCall parses the accumulated argument buffer and returns the
// finished ToolCall, removing it from the tracker. An empty buffer
// parses as an empty argument object rather than failing, since
// providers omit the buffer entirely for zero-argument tools.
func (t *toolCallTracker) CompleteCall(index int) (*types.ToolCall, bool) {
	c, ok := t.calls[index]
	if !ok {
		return nil, false
	}
	delete(t.calls, index)

	args := types.JSONValue{}
	if len(c.argsBuf) > 0 {
		_ = json.Unmarshal(c.argsBuf, &args)
	}
	return &types.ToolCall{ID: c.id, Name: c.name, Arguments: args}, true
}

// Pending reports whether any call at index is still open.
func (t *toolCallTracker) Pending(index int) bool {
	_, ok := t.calls[index]
	return ok
}
