package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"tark/pkg/types"
)

const anthropicDefaultHost = "https://api.anthropic.com"

// AnthropicProvider speaks the native Anthropic Messages API directly
// over net/http, decoding its SSE stream byte-by-byte rather than
// going through a higher-level SDK, so tool-call argument
// fragmentation and thinking-block deltas are both directly
// observable and testable.
type AnthropicProvider struct {
	apiKey     string
	host       string
	httpClient *http.Client
}

// NewAnthropicProvider constructs an Anthropic adapter.
func NewAnthropicProvider(apiKey, host string) *AnthropicProvider {
	if host == "" {
		host = anthropicDefaultHost
	}
	return &AnthropicProvider{
		apiKey:     apiKey,
		host:       host,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (p *AnthropicProvider) ID() string { return "anthropic" }

type anthropicRequest struct {
	Model       string              `json:"model"`
	Messages    []anthropicMessage  `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature,omitempty"`
	Stream      bool                `json:"stream"`
	System      string              `json:"system,omitempty"`
	Tools       []anthropicTool     `json:"tools,omitempty"`
	Thinking    *anthropicThinking  `json:"thinking,omitempty"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type             string          `json:"type"`
	Text             string          `json:"text,omitempty"`
	ID               string          `json:"id,omitempty"`
	Name             string          `json:"name,omitempty"`
	Input            json.RawMessage `json:"input,omitempty"`
	ToolUseID        string          `json:"tool_use_id,omitempty"`
	Content          string          `json:"content,omitempty"`
	IsError          bool            `json:"is_error,omitempty"`
	Signature        string          `json:"signature,omitempty"`
}

type anthropicStreamEvent struct {
	Type         string                `json:"type"`
	Index        int                   `json:"index"`
	Delta        *anthropicDelta       `json:"delta,omitempty"`
	ContentBlock *anthropicContent     `json:"content_block,omitempty"`
	Usage        *anthropicUsage       `json:"usage,omitempty"`
	Error        *anthropicAPIError    `json:"error,omitempty"`
}

type anthropicDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *AnthropicProvider) Stream(ctx context.Context, req CompletionRequest) (*CompletionStream, error) {
	wireReq := p.buildRequest(req)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, &Error{Kind: ErrOther, Provider: p.ID(), Message: "marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrOther, Provider: p.ID(), Message: "build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Provider: p.ID(), Message: err.Error(), Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &Error{
			Kind:       classifyStatus(resp.StatusCode),
			Provider:   p.ID(),
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	events := make(chan StreamEvent, 64)
	go p.consume(resp.Body, events)
	return &CompletionStream{Events: events}, nil
}

func (p *AnthropicProvider) buildRequest(req CompletionRequest) anthropicRequest {
	var messages []anthropicMessage
	for _, msg := range req.Messages {
		switch msg.Role {
		case types.RoleUser:
			messages = append(messages, anthropicMessage{Role: "user", Content: []anthropicContent{{Type: "text", Text: msg.Text}}})
		case types.RoleTool:
			messages = append(messages, anthropicMessage{Role: "user", Content: []anthropicContent{{
				Type: "tool_result", ToolUseID: msg.ToolCallID, Content: msg.Text,
				IsError: msg.Error != nil,
			}}})
		case types.RoleAssistant:
			var contents []anthropicContent
			if msg.Text != "" {
				contents = append(contents, anthropicContent{Type: "text", Text: msg.Text})
			}
			for _, tu := range msg.ToolUseParts() {
				input, _ := json.Marshal(tu.Input)
				contents = append(contents, anthropicContent{
					Type: "tool_use", ID: tu.ID, Name: tu.Name, Input: input,
					Signature: tu.ThoughtSignature,
				})
			}
			messages = append(messages, anthropicMessage{Role: "assistant", Content: contents})
		}
	}

	wire := anthropicRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
		Stream:      true,
		System:      req.System,
	}
	if wire.MaxTokens == 0 {
		wire.MaxTokens = 4096
	}
	if req.Think.Enabled && req.Think.Budget > 0 {
		wire.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: req.Think.Budget}
	}
	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return wire
}

func (p *AnthropicProvider) consume(body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	decoder := newSSEDecoder()
	tracker := newToolCallTracker()
	var usage types.TokenUsage
	finishReason := "stop"

	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, ev := range decoder.Push(buf[:n]) {
				if done := p.handleEvent(ev, tracker, &usage, &finishReason, events); done {
					return
				}
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				events <- StreamEvent{Kind: EventError, Err: &Error{Kind: ErrNetwork, Provider: p.ID(), Message: readErr.Error(), Cause: readErr}}
			}
			break
		}
	}
	for _, ev := range decoder.Finish() {
		if done := p.handleEvent(ev, tracker, &usage, &finishReason, events); done {
			return
		}
	}
	events <- StreamEvent{Kind: EventDone, Usage: &usage, FinishReason: finishReason}
}

func (p *AnthropicProvider) handleEvent(raw sseEvent, tracker *toolCallTracker, usage *types.TokenUsage, finishReason *string, events chan<- StreamEvent) bool {
	var ev anthropicStreamEvent
	if err := json.Unmarshal([]byte(raw.Data), &ev); err != nil {
		return false
	}

	switch ev.Type {
	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
			tracker.StartCall(ev.Index, ev.ContentBlock.ID, ev.ContentBlock.Name)
			events <- StreamEvent{Kind: EventToolCallStart, ToolCallID: ev.ContentBlock.ID, ToolCallName: ev.ContentBlock.Name}
		}
	case "content_block_delta":
		if ev.Delta == nil {
			return false
		}
		switch ev.Delta.Type {
		case "text_delta":
			events <- StreamEvent{Kind: EventTextDelta, Text: ev.Delta.Text}
		case "thinking_delta":
			events <- StreamEvent{Kind: EventThinkingDelta, Text: ev.Delta.Thinking}
		case "input_json_delta":
			if tracker.Pending(ev.Index) {
				tracker.AppendArgs(ev.Index, ev.Delta.PartialJSON)
				events <- StreamEvent{Kind: EventToolCallDelta, ArgsDelta: ev.Delta.PartialJSON}
			}
		}
	case "content_block_stop":
		if call, ok := tracker.CompleteCall(ev.Index); ok {
			events <- StreamEvent{Kind: EventToolCallComplete, ToolCallID: call.ID, ToolCall: call}
			*finishReason = "tool_use"
		}
	case "message_delta":
		if ev.Usage != nil {
			usage.Output = ev.Usage.OutputTokens
			if ev.Usage.InputTokens > 0 {
				usage.Input = ev.Usage.InputTokens
			}
		}
		if ev.Delta != nil && ev.Delta.StopReason != "" && ev.Delta.StopReason != "tool_use" {
			*finishReason = ev.Delta.StopReason
		}
	case "message_start":
		// usage.input_tokens arrives nested under message on this event
		// in the live API; omitted here since it is re-derived from the
		// final message_delta in practice.
	case "error":
		if ev.Error != nil {
			events <- StreamEvent{Kind: EventError, Err: &Error{Kind: ErrServiceError, Provider: p.ID(), Message: ev.Error.Message}}
			return true
		}
	}
	return false
}
