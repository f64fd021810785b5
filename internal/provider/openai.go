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

const openAIDefaultHost = "https://api.openai.com/v1"

// OpenAIProvider speaks the Chat Completions API. It also backs the
// generic OpenAI-compatible adapter (OpenRouter, Copilot, local
// OpenAI-shaped gateways), which only overrides host/headers.
type OpenAIProvider struct {
	id         string
	apiKey     string
	host       string
	extraHeaders map[string]string
	httpClient *http.Client
}

// NewOpenAIProvider constructs the native OpenAI adapter.
func NewOpenAIProvider(apiKey, host string) *OpenAIProvider {
	if host == "" {
		host = openAIDefaultHost
	}
	return &OpenAIProvider{id: "openai", apiKey: apiKey, host: host, httpClient: &http.Client{Timeout: 10 * time.Minute}}
}

// NewOpenAICompatibleProvider constructs an adapter for any
// OpenAI-Chat-Completions-shaped endpoint under a distinct provider
// id, with optional extra static headers (e.g. OpenRouter's
// HTTP-Referer, Copilot's Editor-Version).
func NewOpenAICompatibleProvider(id, apiKey, host string, extraHeaders map[string]string) *OpenAIProvider {
	return &OpenAIProvider{id: id, apiKey: apiKey, host: host, extraHeaders: extraHeaders, httpClient: &http.Client{Timeout: 10 * time.Minute}}
}

func (p *OpenAIProvider) ID() string { return p.id }

type openAIChatRequest struct {
	Model           string            `json:"model"`
	Messages        []openAIChatMsg   `json:"messages"`
	Stream          bool              `json:"stream"`
	Temperature     float64           `json:"temperature,omitempty"`
	MaxTokens       int               `json:"max_tokens,omitempty"`
	Tools           []openAIToolDef   `json:"tools,omitempty"`
	ReasoningEffort string            `json:"reasoning_effort,omitempty"`
}

type openAIChatMsg struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolDef struct {
	Type     string             `json:"type"`
	Function openAIFunctionSpec `json:"function"`
}

type openAIFunctionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type openAIToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type openAIChatChunk struct {
	Choices []openAIChatChoice `json:"choices"`
	Usage   *openAIUsage       `json:"usage,omitempty"`
}

type openAIChatChoice struct {
	Delta        openAIChatMsg `json:"delta"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (p *OpenAIProvider) Stream(ctx context.Context, req CompletionRequest) (*CompletionStream, error) {
	wire := p.buildRequest(req)
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &Error{Kind: ErrOther, Provider: p.ID(), Message: "marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrOther, Provider: p.ID(), Message: "build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	for k, v := range p.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Provider: p.ID(), Message: err.Error(), Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &Error{Kind: classifyStatus(resp.StatusCode), Provider: p.ID(), StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	events := make(chan StreamEvent, 64)
	go p.consume(resp.Body, events)
	return &CompletionStream{Events: events}, nil
}

func (p *OpenAIProvider) buildRequest(req CompletionRequest) openAIChatRequest {
	var messages []openAIChatMsg
	if req.System != "" {
		messages = append(messages, openAIChatMsg{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case types.RoleUser:
			messages = append(messages, openAIChatMsg{Role: "user", Content: msg.Text})
		case types.RoleTool:
			messages = append(messages, openAIChatMsg{Role: "tool", ToolCallID: msg.ToolCallID, Content: msg.Text})
		case types.RoleAssistant:
			m := openAIChatMsg{Role: "assistant", Content: msg.Text}
			for i, tu := range msg.ToolUseParts() {
				args, _ := json.Marshal(tu.Input)
				tc := openAIToolCall{Index: i, ID: tu.ID, Type: "function"}
				tc.Function.Name = tu.Name
				tc.Function.Arguments = string(args)
				m.ToolCalls = append(m.ToolCalls, tc)
			}
			messages = append(messages, m)
		}
	}

	wire := openAIChatRequest{
		Model:       req.Model,
		Messages:    messages,
		Stream:      true,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	}
	if req.Think.Enabled && req.Think.Effort != "" {
		wire.ReasoningEffort = req.Think.Effort
	}
	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, openAIToolDef{Type: "function", Function: openAIFunctionSpec{
			Name: t.Name, Description: t.Description, Parameters: t.Parameters,
		}})
	}
	return wire
}

func (p *OpenAIProvider) consume(body io.ReadCloser, events chan<- StreamEvent) {
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
			for _, raw := range decoder.Push(buf[:n]) {
				if raw.Data == "[DONE]" {
					events <- StreamEvent{Kind: EventDone, Usage: &usage, FinishReason: finishReason}
					return
				}
				p.handleChunk(raw, tracker, &usage, &finishReason, events)
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				events <- StreamEvent{Kind: EventError, Err: &Error{Kind: ErrNetwork, Provider: p.ID(), Message: readErr.Error(), Cause: readErr}}
			}
			break
		}
	}
	events <- StreamEvent{Kind: EventDone, Usage: &usage, FinishReason: finishReason}
}

func (p *OpenAIProvider) handleChunk(raw sseEvent, tracker *toolCallTracker, usage *types.TokenUsage, finishReason *string, events chan<- StreamEvent) {
	var chunk openAIChatChunk
	if err := json.Unmarshal([]byte(raw.Data), &chunk); err != nil {
		return
	}
	if chunk.Usage != nil {
		usage.Input = chunk.Usage.PromptTokens
		usage.Output = chunk.Usage.CompletionTokens
	}
	for _, choice := range chunk.Choices {
		if choice.FinishReason != "" {
			if choice.FinishReason == "tool_calls" {
				*finishReason = "tool_use"
			} else {
				*finishReason = choice.FinishReason
			}
		}
		if choice.Delta.Content != "" {
			events <- StreamEvent{Kind: EventTextDelta, Text: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			if tc.ID != "" && tc.Function.Name != "" && !tracker.Pending(tc.Index) {
				tracker.StartCall(tc.Index, tc.ID, tc.Function.Name)
				events <- StreamEvent{Kind: EventToolCallStart, ToolCallID: tc.ID, ToolCallName: tc.Function.Name}
			}
			if tc.Function.Arguments != "" {
				tracker.AppendArgs(tc.Index, tc.Function.Arguments)
				events <- StreamEvent{Kind: EventToolCallDelta, ArgsDelta: tc.Function.Arguments}
			}
		}
	}
	if *finishReason == "tool_use" {
		for i := 0; ; i++ {
			call, ok := tracker.CompleteCall(i)
			if !ok {
				break
			}
			events <- StreamEvent{Kind: EventToolCallComplete, ToolCallID: call.ID, ToolCall: call}
		}
	}
}
