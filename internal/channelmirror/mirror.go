package channelmirror

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tark/internal/agentloop"
	"tark/internal/conversation"
	"tark/internal/event"
	"tark/internal/metrics"
	"tark/internal/pluginhost"
	"tark/internal/sessionstore"
	"tark/pkg/types"
)

// Mirror drives one or more Channel plugins: it turns their inbound
// webhooks into Agent Loop turns, and mirrors the loop's replies back
// out through the plugin's send entry point. Turn failures are
// published on bus as event.ChannelTurnFailed so a server-side
// subscriber (logging, alerting) can react without Mirror knowing
// about it.
type Mirror struct {
	host     *pluginhost.Host
	loop     *agentloop.Loop
	sessions *sessionstore.Store
	bus      *event.Bus

	defaultProvider, defaultModel string
	debounce                      time.Duration

	mu      sync.Mutex
	pending map[string]*pendingTurn // sessionID -> in-flight batch
}

// TurnFailure is the Data payload of an event.ChannelTurnFailed event.
type TurnFailure struct {
	PluginID       string `json:"pluginId"`
	ConversationID string `json:"conversationId"`
	SessionID      string `json:"sessionId"`
	Error          string `json:"error"`
}

type pendingTurn struct {
	texts []string
	timer *time.Timer
}

// Config controls Mirror's default model selection and inbound
// coalescing window.
type Config struct {
	DefaultProvider string
	DefaultModel    string
	Debounce        time.Duration
}

func New(host *pluginhost.Host, loop *agentloop.Loop, sessions *sessionstore.Store, cfg Config) *Mirror {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 750 * time.Millisecond
	}
	return &Mirror{
		host:            host,
		loop:            loop,
		sessions:        sessions,
		bus:             event.NewBus(),
		defaultProvider: cfg.DefaultProvider,
		defaultModel:    cfg.DefaultModel,
		debounce:        cfg.Debounce,
		pending:         make(map[string]*pendingTurn),
	}
}

func (m *Mirror) Close() error {
	return m.bus.Close()
}

// HandleWebhook dispatches an inbound webhook to pluginID's Channel
// plugin, returns its immediate HTTP-layer response, and schedules an
// Agent Loop turn for every extracted inbound message.
func (m *Mirror) HandleWebhook(ctx context.Context, pluginID string, req types.ChannelWebhookRequest) (types.ChannelWebhookResponse, error) {
	inst, ok := m.host.Get(pluginID)
	if !ok {
		return types.ChannelWebhookResponse{}, fmt.Errorf("channel plugin %s not loaded", pluginID)
	}
	channel, ok := inst.Channel()
	if !ok {
		return types.ChannelWebhookResponse{}, fmt.Errorf("plugin %s does not implement the channel interface", pluginID)
	}

	resp, err := channel.HandleWebhook(req)
	if err != nil {
		return types.ChannelWebhookResponse{}, fmt.Errorf("plugin %s webhook handler: %w", pluginID, err)
	}

	for _, inbound := range resp.Messages {
		m.enqueue(pluginID, inbound)
	}

	return resp, nil
}

// enqueue coalesces inbound messages for the same conversation into a
// single turn if they arrive within the debounce window, rather than
// starting one loop turn per webhook delivery.
func (m *Mirror) enqueue(pluginID string, inbound types.ChannelInboundMessage) {
	sessionID := DeriveSessionID(pluginID, inbound.ConversationID)

	m.mu.Lock()
	batch, ok := m.pending[sessionID]
	if !ok {
		batch = &pendingTurn{}
		m.pending[sessionID] = batch
	}
	batch.texts = append(batch.texts, inbound.Text)
	if batch.timer != nil {
		batch.timer.Stop()
	}
	batch.timer = time.AfterFunc(m.debounce, func() {
		m.flush(pluginID, inbound.ConversationID, sessionID)
	})
	m.mu.Unlock()
}

func (m *Mirror) flush(pluginID, conversationID, sessionID string) {
	m.mu.Lock()
	batch, ok := m.pending[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.pending, sessionID)
	m.mu.Unlock()

	text := strings.Join(batch.texts, "\n")
	ctx := context.Background()

	if err := m.runTurn(ctx, pluginID, conversationID, sessionID, text); err != nil {
		metrics.ChannelTurns.WithLabelValues("error").Inc()
		m.bus.Publish(event.Event{
			Type: event.ChannelTurnFailed,
			Data: TurnFailure{
				PluginID:       pluginID,
				ConversationID: conversationID,
				SessionID:      sessionID,
				Error:          err.Error(),
			},
		})
		return
	}
	metrics.ChannelTurns.WithLabelValues("ok").Inc()
}

// OnTurnFailed subscribes fn to every failed turn. Returns an
// unsubscribe function.
func (m *Mirror) OnTurnFailed(fn func(TurnFailure)) func() {
	return m.bus.Subscribe(event.ChannelTurnFailed, func(e event.Event) {
		if failure, ok := e.Data.(TurnFailure); ok {
			fn(failure)
		}
	})
}

func (m *Mirror) runTurn(ctx context.Context, pluginID, conversationID, sessionID, text string) error {
	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		sess = &types.Session{
			ID:        sessionID,
			Provider:  m.defaultProvider,
			Model:     m.defaultModel,
			Mode:      "channel",
			Directory: "channel:" + pluginID,
		}
		if err := m.sessions.Put(ctx, sess); err != nil {
			return fmt.Errorf("create channel session %s: %w", sessionID, err)
		}
	}

	mgr := conversation.New(sessionID)
	mgr.RestoreFromSession(sess)
	mgr.AddUserMessage(text)

	reply, err := m.loop.Turn(ctx, mgr, sessionID, m.defaultProvider, m.defaultModel, types.ThinkSettings{})
	if err != nil {
		return fmt.Errorf("agent loop turn for session %s: %w", sessionID, err)
	}

	return m.send(pluginID, conversationID, reply)
}

func (m *Mirror) send(pluginID, conversationID string, reply *types.Message) error {
	inst, ok := m.host.Get(pluginID)
	if !ok {
		return fmt.Errorf("channel plugin %s not loaded", pluginID)
	}
	channel, ok := inst.Channel()
	if !ok {
		return fmt.Errorf("plugin %s does not implement the channel interface", pluginID)
	}

	_, err := channel.Send(types.ChannelSendRequest{
		ConversationID: conversationID,
		Text:           reply.Text,
		MessageID:      uuid.NewString(),
		IsFinal:        true,
	})
	return err
}
