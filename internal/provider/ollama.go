package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"tark/pkg/types"
)

const ollamaDefaultHost = "http://localhost:11434"

// OllamaProvider speaks Ollama's /api/chat endpoint, which streams
// newline-delimited JSON objects rather than SSE. Locally hosted
// open-weight models rarely expose a native thinking channel, so text
// deltas are additionally run through thinkTagParser to recover
// <think> blocks some of them emit inline.
type OllamaProvider struct {
	host       string
	httpClient *http.Client
}

func NewOllamaProvider(host string) *OllamaProvider {
	if host == "" {
		host = ollamaDefaultHost
	}
	return &OllamaProvider{host: host, httpClient: &http.Client{Timeout: 10 * time.Minute}}
}

func (p *OllamaProvider) ID() string { return "ollama" }

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
}

type ollamaMessage struct {
	Role      string       `json:"role"`
	Content   string       `json:"content,omitempty"`
	ToolCalls []ollamaCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaFunctionSpec `json:"function"`
}

type ollamaFunctionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type ollamaCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments types.JSONValue `json:"arguments"`
	} `json:"function"`
}

type ollamaChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	PromptEvalCount int   `json:"prompt_eval_count"`
	EvalCount       int   `json:"eval_count"`
}

func (p *OllamaProvider) Stream(ctx context.Context, req CompletionRequest) (*CompletionStream, error) {
	wire := p.buildRequest(req)
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &Error{Kind: ErrOther, Provider: p.ID(), Message: "marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrOther, Provider: p.ID(), Message: "build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

func (p *OllamaProvider) buildRequest(req CompletionRequest) ollamaRequest {
	var messages []ollamaMessage
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case types.RoleUser:
			messages = append(messages, ollamaMessage{Role: "user", Content: msg.Text})
		case types.RoleTool:
			messages = append(messages, ollamaMessage{Role: "tool", Content: msg.Text})
		case types.RoleAssistant:
			m := ollamaMessage{Role: "assistant", Content: msg.Text}
			for _, tu := range msg.ToolUseParts() {
				var c ollamaCall
				c.Function.Name = tu.Name
				c.Function.Arguments = tu.Input
				m.ToolCalls = append(m.ToolCalls, c)
			}
			messages = append(messages, m)
		}
	}

	wire := ollamaRequest{Model: req.Model, Messages: messages, Stream: true}
	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, ollamaTool{Type: "function", Function: ollamaFunctionSpec{Name: t.Name, Description: t.Description, Parameters: t.Parameters}})
	}
	return wire
}

func (p *OllamaProvider) consume(body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	think := newThinkTagParser()
	var usage types.TokenUsage
	finishReason := "stop"
	callIndex := 0

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Message.Content != "" {
			frag := think.Push(chunk.Message.Content)
			if frag.Text != "" {
				events <- StreamEvent{Kind: EventTextDelta, Text: frag.Text}
			}
			if frag.Thinking != "" {
				events <- StreamEvent{Kind: EventThinkingDelta, Text: frag.Thinking}
			}
		}
		for _, tc := range chunk.Message.ToolCalls {
			id := syntheticToolCallID(callIndex)
			callIndex++
			events <- StreamEvent{Kind: EventToolCallStart, ToolCallID: id, ToolCallName: tc.Function.Name}
			events <- StreamEvent{Kind: EventToolCallComplete, ToolCallID: id, ToolCall: &types.ToolCall{ID: id, Name: tc.Function.Name, Arguments: tc.Function.Arguments}}
			finishReason = "tool_use"
		}
		if chunk.Done {
			usage.Input = chunk.PromptEvalCount
			usage.Output = chunk.EvalCount
			break
		}
	}
	if err := scanner.Err(); err != nil {
		events <- StreamEvent{Kind: EventError, Err: &Error{Kind: ErrNetwork, Provider: p.ID(), Message: err.Error(), Cause: err}}
		return
	}
	events <- StreamEvent{Kind: EventDone, Usage: &usage, FinishReason: finishReason}
}

func syntheticToolCallID(index int) string {
	return "ollama-call-" + strconv.Itoa(index)
}
