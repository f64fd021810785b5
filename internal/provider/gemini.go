package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tark/pkg/types"
)

const geminiDefaultHost = "https://generativelanguage.googleapis.com"

// GeminiProvider speaks the native Gemini generateContent API over
// net/http+SSE, the same raw-wire approach used for Anthropic and
// OpenAI, rather than the google.golang.org/genai SDK: that SDK
// hides exactly the byte-level streaming and function-call-argument
// fragmentation this package exists to make directly testable, and
// pulling it in would mean two incompatible streaming styles in one
// package.
//
// OAuth-based access (Cloud Code Assist) reuses this type with the
// bearer field set to an OAuth token instead of an API key; see
// NewGeminiOAuthProvider.
type GeminiProvider struct {
	id         string
	apiKey     string
	bearer     string
	host       string
	httpClient *http.Client
}

// NewGeminiProvider constructs the API-key-authenticated adapter.
func NewGeminiProvider(apiKey, host string) *GeminiProvider {
	if host == "" {
		host = geminiDefaultHost
	}
	return &GeminiProvider{id: "gemini", apiKey: apiKey, host: host, httpClient: &http.Client{Timeout: 10 * time.Minute}}
}

// NewGeminiOAuthProvider constructs an adapter authenticated with an
// OAuth bearer token, for the Cloud Code Assist surface used when no
// API key is configured.
func NewGeminiOAuthProvider(bearer, host string) *GeminiProvider {
	if host == "" {
		host = geminiDefaultHost
	}
	return &GeminiProvider{id: "gemini", bearer: bearer, host: host, httpClient: &http.Client{Timeout: 10 * time.Minute}}
}

func (p *GeminiProvider) ID() string { return p.id }

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiToolDecl        `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float64              `json:"temperature,omitempty"`
	MaxOutputTokens int                  `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int  `json:"thinkingBudget"`
	IncludeThoughts bool `json:"includeThoughts"`
}

type geminiToolDecl struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	Thought          bool                `json:"thought,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFuncResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiFuncResponse struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type geminiStreamChunk struct {
	Candidates    []geminiCandidate   `json:"candidates"`
	UsageMetadata *geminiUsage        `json:"usageMetadata,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

func (p *GeminiProvider) Stream(ctx context.Context, req CompletionRequest) (*CompletionStream, error) {
	wire := p.buildRequest(req)
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &Error{Kind: ErrOther, Provider: p.ID(), Message: "marshal request", Cause: err}
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", p.host, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrOther, Provider: p.ID(), Message: "build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.bearer)
	} else {
		httpReq.Header.Set("x-goog-api-key", p.apiKey)
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

func (p *GeminiProvider) buildRequest(req CompletionRequest) geminiRequest {
	var contents []geminiContent
	for _, msg := range req.Messages {
		switch msg.Role {
		case types.RoleUser:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: msg.Text}}})
		case types.RoleTool:
			resp, _ := json.Marshal(map[string]string{"result": msg.Text})
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{
				FunctionResponse: &geminiFuncResponse{Name: msg.ToolCallID, Response: resp},
			}}})
		case types.RoleAssistant:
			var parts []geminiPart
			if msg.Text != "" {
				parts = append(parts, geminiPart{Text: msg.Text})
			}
			for _, tu := range msg.ToolUseParts() {
				args, _ := json.Marshal(tu.Input)
				parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tu.Name, Args: args}})
			}
			contents = append(contents, geminiContent{Role: "model", Parts: parts})
		}
	}

	wire := geminiRequest{Contents: contents}
	if req.System != "" {
		wire.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if len(req.Tools) > 0 {
		decl := geminiToolDecl{}
		for _, t := range req.Tools {
			decl.FunctionDeclarations = append(decl.FunctionDeclarations, geminiFunctionDecl{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
		wire.Tools = []geminiToolDecl{decl}
	}
	cfg := &geminiGenerationConfig{Temperature: req.Temperature, MaxOutputTokens: req.MaxOutputTokens}
	if req.Think.Enabled && req.Think.Budget > 0 {
		cfg.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: req.Think.Budget, IncludeThoughts: true}
	}
	wire.GenerationConfig = cfg
	return wire
}

func (p *GeminiProvider) consume(body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	decoder := newSSEDecoder()
	var usage types.TokenUsage
	finishReason := "stop"
	callIndex := 0

	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, raw := range decoder.Push(buf[:n]) {
				p.handleChunk(raw, &usage, &finishReason, &callIndex, events)
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

func (p *GeminiProvider) handleChunk(raw sseEvent, usage *types.TokenUsage, finishReason *string, callIndex *int, events chan<- StreamEvent) {
	var chunk geminiStreamChunk
	if err := json.Unmarshal([]byte(raw.Data), &chunk); err != nil {
		return
	}
	if chunk.UsageMetadata != nil {
		usage.Input = chunk.UsageMetadata.PromptTokenCount
		usage.Output = chunk.UsageMetadata.CandidatesTokenCount
	}
	for _, cand := range chunk.Candidates {
		if cand.FinishReason != "" {
			*finishReason = mapGeminiFinish(cand.FinishReason)
		}
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				id := fmt.Sprintf("gemini-call-%d", *callIndex)
				*callIndex++
				events <- StreamEvent{Kind: EventToolCallStart, ToolCallID: id, ToolCallName: part.FunctionCall.Name}
				args := types.JSONValue{}
				_ = json.Unmarshal(part.FunctionCall.Args, &args)
				events <- StreamEvent{Kind: EventToolCallComplete, ToolCallID: id, ToolCall: &types.ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: args}}
				*finishReason = "tool_use"
			case part.Thought:
				events <- StreamEvent{Kind: EventThinkingDelta, Text: part.Text}
			default:
				events <- StreamEvent{Kind: EventTextDelta, Text: part.Text}
			}
		}
	}
}

func mapGeminiFinish(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	default:
		return "stop"
	}
}
