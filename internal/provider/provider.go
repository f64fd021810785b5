// Package provider normalizes the wire formats of several LLM APIs
// into one streaming event contract so the agent loop never branches
// on which vendor it is talking to.
package provider

import (
	"context"

	"tark/pkg/types"
)

// CompletionRequest is the provider-agnostic request the agent loop
// builds once per turn.
type CompletionRequest struct {
	Model           string
	System          string
	Messages        []*types.Message
	Tools           []types.ToolDefinition
	Think           types.ThinkSettings
	MaxOutputTokens int
	Temperature     float64
}

// EventKind discriminates StreamEvent.
type EventKind string

const (
	EventTextDelta        EventKind = "text_delta"
	EventThinkingDelta    EventKind = "thinking_delta"
	EventToolCallStart    EventKind = "tool_call_start"
	EventToolCallDelta    EventKind = "tool_call_delta"
	EventToolCallComplete EventKind = "tool_call_complete"
	EventDone             EventKind = "done"
	EventError            EventKind = "error"
)

// StreamEvent is the single normalized unit every adapter emits.
// Exactly one payload field is meaningful, selected by Kind.
type StreamEvent struct {
	Kind EventKind

	Text         string          // EventTextDelta / EventThinkingDelta
	ToolCallID   string          // EventToolCallStart / Delta / Complete
	ToolCallName string          // EventToolCallStart
	ArgsDelta    string          // EventToolCallDelta: raw JSON fragment
	ToolCall     *types.ToolCall // EventToolCallComplete: fully parsed
	Usage        *types.TokenUsage
	FinishReason string // EventDone: "stop" | "tool_use" | "length" | "error"
	Err          error  // EventError
}

// CompletionStream is what an adapter's Stream call returns. Callers
// range over Events until the channel closes; a terminal EventDone or
// EventError is always the last value sent.
type CompletionStream struct {
	Events <-chan StreamEvent
}

// Provider is the uniform interface every adapter implements.
type Provider interface {
	// ID is the stable provider identifier used in config and model
	// routing, e.g. "anthropic", "openai", "gemini".
	ID() string

	// Stream issues req and returns a channel of normalized events.
	// The returned stream is closed when the underlying connection
	// ends, whether by completion, cancellation, or error.
	Stream(ctx context.Context, req CompletionRequest) (*CompletionStream, error)
}
