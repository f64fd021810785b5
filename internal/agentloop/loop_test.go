package agentloop

import (
	"context"
	"path/filepath"
	"testing"

	"tark/internal/conversation"
	"tark/internal/policy"
	"tark/internal/provider"
	"tark/internal/sessionstore"
	"tark/internal/tool"
	"tark/internal/usage"
	"tark/pkg/types"
)

// fakeProvider replays one canned stream per call, in order; a turn
// that calls Stream more times than there are scripted streams panics,
// which surfaces test setup bugs immediately rather than hanging.
type fakeProvider struct {
	id      string
	streams [][]provider.StreamEvent
	calls   int
}

func (p *fakeProvider) ID() string { return p.id }

func (p *fakeProvider) Stream(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionStream, error) {
	events := p.streams[p.calls]
	p.calls++
	ch := make(chan provider.StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &provider.CompletionStream{Events: ch}, nil
}

func textStream(text, finish string) []provider.StreamEvent {
	return []provider.StreamEvent{
		{Kind: provider.EventTextDelta, Text: text},
		{Kind: provider.EventDone, FinishReason: finish, Usage: &types.TokenUsage{Input: 10, Output: 5}},
	}
}

func toolCallStream(callID, toolName string, args types.JSONValue) []provider.StreamEvent {
	return []provider.StreamEvent{
		{Kind: provider.EventToolCallComplete, ToolCall: &types.ToolCall{ID: callID, Name: toolName, Arguments: args}},
		{Kind: provider.EventDone, FinishReason: "tool_use", Usage: &types.TokenUsage{Input: 10, Output: 5}},
	}
}

// fakeTool echoes its input back as output and records every call it
// received, so tests can assert on dispatch without touching disk.
type fakeTool struct {
	name  string
	calls []types.JSONValue
}

func (t *fakeTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{Name: t.name, Description: "test tool", Parameters: []byte(`{"type":"object"}`)}
}

func (t *fakeTool) Execute(ctx context.Context, callCtx *tool.Context, args types.JSONValue) (*tool.Result, error) {
	t.calls = append(t.calls, args)
	return &tool.Result{Output: "ok"}, nil
}

type testHarness struct {
	loop     *Loop
	sessions *sessionstore.Store
	policy   *policy.Engine
	usage    *usage.Store
	tools    *tool.Registry
}

func newTestHarness(t *testing.T, prov provider.Provider, approve ApprovalWaiter) *testHarness {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	sessions := sessionstore.New(filepath.Join(dir, "sessions"))

	pol, err := policy.Open(ctx, filepath.Join(dir, "policy.db"), "default", "trusted")
	if err != nil {
		t.Fatalf("policy.Open: %v", err)
	}
	t.Cleanup(func() { pol.Close() })

	usageStore, err := usage.Open(ctx, filepath.Join(dir, "usage.db"), usage.NewPricingSource(""))
	if err != nil {
		t.Fatalf("usage.Open: %v", err)
	}
	t.Cleanup(func() { usageStore.Close() })

	tools := tool.NewRegistry(dir)

	providers := provider.NewRegistry()
	providers.Register(prov)

	loop := New(providers, pol, sessions, usageStore, tools, approve)
	return &testHarness{loop: loop, sessions: sessions, policy: pol, usage: usageStore, tools: tools}
}

func (h *testHarness) newSession(t *testing.T, directory string) (*types.Session, *conversation.Manager) {
	t.Helper()
	sess, err := h.sessions.Create(context.Background(), directory, "fake", "fake-model")
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}
	mgr := conversation.New(sess.ID)
	return sess, mgr
}

func TestTurn_SimpleStop(t *testing.T) {
	prov := &fakeProvider{id: "fake", streams: [][]provider.StreamEvent{textStream("hello there", "stop")}}
	h := newTestHarness(t, prov, nil)
	sess, mgr := h.newSession(t, t.TempDir())
	mgr.AddUserMessage("hi")

	msg, err := h.loop.Turn(context.Background(), mgr, sess.ID, "fake", "fake-model", types.ThinkSettings{})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if msg.Role != types.RoleAssistant {
		t.Fatalf("Role = %q, want assistant", msg.Role)
	}
	if msg.Text != "hello there" {
		t.Fatalf("Text = %q, want %q", msg.Text, "hello there")
	}
}

func TestTurn_ToolUseRoundTrip(t *testing.T) {
	workDir := t.TempDir()
	prov := &fakeProvider{id: "fake", streams: [][]provider.StreamEvent{
		toolCallStream("call-1", "bash", types.JSONValue{"command": "ls"}),
		textStream("done", "stop"),
	}}
	h := newTestHarness(t, prov, nil)
	echo := &fakeTool{name: "bash"}
	h.tools.Register(echo)

	sess, mgr := h.newSession(t, workDir)
	msg, err := h.loop.Turn(context.Background(), mgr, sess.ID, "fake", "fake-model", types.ThinkSettings{})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if msg.Text != "done" {
		t.Fatalf("Text = %q, want %q", msg.Text, "done")
	}
	if len(echo.calls) != 1 {
		t.Fatalf("expected the tool to be invoked once, got %d calls", len(echo.calls))
	}
}

func TestTurn_MaxStepsExceeded(t *testing.T) {
	var streams [][]provider.StreamEvent
	for i := 0; i < MaxSteps+1; i++ {
		streams = append(streams, toolCallStream("call", "bash", types.JSONValue{"command": "ls"}))
	}
	prov := &fakeProvider{id: "fake", streams: streams}
	h := newTestHarness(t, prov, nil)
	h.tools.Register(&fakeTool{name: "bash"})

	sess, mgr := h.newSession(t, t.TempDir())
	_, err := h.loop.Turn(context.Background(), mgr, sess.ID, "fake", "fake-model", types.ThinkSettings{})
	if err == nil {
		t.Fatal("expected a max-steps error")
	}
}

func TestTurn_ApprovalDeniedSkipsTool(t *testing.T) {
	workDir := t.TempDir()
	prov := &fakeProvider{id: "fake", streams: [][]provider.StreamEvent{
		toolCallStream("call-1", "bash", types.JSONValue{"command": "rm -rf build"}),
		textStream("acknowledged", "stop"),
	}}
	deny := func(ctx context.Context, sessionID string, decision *types.ApprovalDecision, toolName, command string) (bool, *types.ApprovalPattern, error) {
		return false, nil, nil
	}
	h := newTestHarness(t, prov, deny)
	bash := &fakeTool{name: "bash"}
	h.tools.Register(bash)

	sess, mgr := h.newSession(t, workDir)
	_, err := h.loop.Turn(context.Background(), mgr, sess.ID, "fake", "fake-model", types.ThinkSettings{})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if len(bash.calls) != 0 {
		t.Fatal("expected the denied tool call to never execute")
	}
}
