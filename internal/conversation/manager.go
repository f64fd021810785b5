package conversation

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"tark/pkg/types"
)

// streamBuffer accumulates an in-flight assistant turn.
type streamBuffer struct {
	text      string
	thinking  string
	toolCalls []types.ToolUsePart
}

// Manager holds the ordered message history and the current streaming
// state for one session. A Manager is not safe for concurrent turns;
// the agent loop guarantees at most one active turn per session.
type Manager struct {
	mu sync.Mutex

	sessionID string
	messages  []*types.Message
	state     State
	buffer    streamBuffer
	history   []transitionRecord
}

// New creates a Manager for a fresh or freshly-loaded session.
func New(sessionID string) *Manager {
	return &Manager{
		sessionID: sessionID,
		state:     Idle,
	}
}

// State returns the current streaming state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Messages returns the live (non-archived-pending) message history.
func (m *Manager) Messages() []*types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *Manager) append(msg *types.Message) {
	msg.SessionID = m.sessionID
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().UnixMilli()
	}
	m.messages = append(m.messages, msg)
}

// AddUserMessage appends a user turn.
func (m *Manager) AddUserMessage(text string) *types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := &types.Message{Role: types.RoleUser, Text: text}
	m.append(msg)
	return msg
}

// AddSystemMessage appends a system turn.
func (m *Manager) AddSystemMessage(text string) *types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := &types.Message{Role: types.RoleSystem, Text: text}
	m.append(msg)
	return msg
}

// AddAssistantMessage appends a finished assistant turn directly
// (used for non-streaming providers and tests).
func (m *Manager) AddAssistantMessage(text string, thinking string) *types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := &types.Message{Role: types.RoleAssistant, Text: text, Thinking: thinking}
	m.append(msg)
	return msg
}

// AddToolMessage appends a tool-result turn answering toolCallID.
func (m *Manager) AddToolMessage(toolCallID, content string) *types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := &types.Message{Role: types.RoleTool, ToolCallID: toolCallID, Text: content}
	m.append(msg)
	return msg
}

func (m *Manager) transition(to State) error {
	if err := checkTransition(m.state, to); err != nil {
		log.Error().Str("from", string(m.state)).Str("to", string(to)).Msg("invalid streaming state transition")
		return err
	}
	m.history = append(m.history, transitionRecord{From: m.state, To: to, At: time.Now().UnixMilli()})
	if len(m.history) > maxTransitionHistory {
		m.history = m.history[len(m.history)-maxTransitionHistory:]
	}
	m.state = to
	return nil
}

// StartStreaming transitions Idle/Completed/Error/AwaitTool -> RecvText.
func (m *Manager) StartStreaming() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(RecvText)
}

// StartStreamingThinking transitions Idle -> RecvThink.
func (m *Manager) StartStreamingThinking() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(RecvThink)
}

// AppendStreamingContent appends a text chunk. Only legal while in
// RecvText; any other state fails with InvalidStateTransition,
// without mutating the buffer.
func (m *Manager) AppendStreamingContent(chunk string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != RecvText {
		return &InvalidStateTransition{From: m.state, To: RecvText}
	}
	m.buffer.text += chunk
	return nil
}

// AppendStreamingThinking appends a thinking chunk. Only legal while
// in RecvThink.
func (m *Manager) AppendStreamingThinking(chunk string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != RecvThink {
		return &InvalidStateTransition{From: m.state, To: RecvThink}
	}
	m.buffer.thinking += chunk
	return nil
}

// BeginToolCall transitions RecvText -> ToolPend -> AwaitTool, marking
// that a tool call has been observed on the stream and the loop is
// now waiting for its result. call is recorded on the turn's buffer so
// FinalizeStreaming can attach it to the committed assistant message.
func (m *Manager) BeginToolCall(call types.ToolUsePart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transition(ToolPend); err != nil {
		return err
	}
	m.buffer.toolCalls = append(m.buffer.toolCalls, call)
	return m.transition(AwaitTool)
}

// FinalizeStreaming commits the accumulated buffer as an assistant
// message, transitions to Completed, and clears the buffer.
func (m *Manager) FinalizeStreaming() (*types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transition(Completed); err != nil {
		return nil, err
	}
	msg := &types.Message{
		Role:     types.RoleAssistant,
		Text:     m.buffer.text,
		Thinking: m.buffer.thinking,
	}
	if len(m.buffer.text) > 0 {
		msg.Parts = append(msg.Parts, types.TextPart{Text: m.buffer.text})
	}
	for _, tc := range m.buffer.toolCalls {
		msg.Parts = append(msg.Parts, tc)
	}
	m.append(msg)
	m.buffer = streamBuffer{}
	return msg, nil
}

// ClearStreaming abandons any partial buffer and resets to Idle. This
// is a reset, not a transition in the legal-set sense, and is always
// permitted.
func (m *Manager) ClearStreaming() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = streamBuffer{}
	m.state = Idle
}

// Fail transitions the current state to Error, which absorbs from any
// state.
func (m *Manager) Fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, transitionRecord{From: m.state, To: Error, At: time.Now().UnixMilli()})
	m.state = Error
}

// RestoreFromSession replaces history with a session's persisted
// messages and resets streaming to Idle.
func (m *Manager) RestoreFromSession(s *types.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionID = s.ID
	m.messages = append([]*types.Message(nil), s.Messages...)
	m.state = Idle
	m.buffer = streamBuffer{}
	m.history = nil
}

// ToLLMMessages serializes history for provider consumption, dropping
// archived (context-transient) messages.
func (m *Manager) ToLLMMessages() []*types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Message, 0, len(m.messages))
	for _, msg := range m.messages {
		if msg.ContextTransient {
			continue
		}
		out = append(out, msg)
	}
	return out
}
