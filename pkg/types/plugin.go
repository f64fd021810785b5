package types

// PluginType distinguishes the three typed plugin interfaces the
// plugin host instantiates.
type PluginType string

const (
	PluginChannel  PluginType = "channel"
	PluginAuth     PluginType = "auth"
	PluginProvider PluginType = "provider"
)

// PluginManifest describes an installed plugin.
type PluginManifest struct {
	ID           string             `json:"id"`
	Type         PluginType         `json:"type"`
	Version      string             `json:"version"`
	Capabilities PluginCapabilities `json:"capabilities"`
	OAuth        *PluginOAuthConfig `json:"oauth,omitempty"`

	// BinaryPath is the on-disk path to the compiled plugin artifact
	// the host launches as a subprocess.
	BinaryPath string `json:"binaryPath"`
}

// PluginCapabilities are feature flags a plugin manifest advertises.
type PluginCapabilities struct {
	HasChannelAuthInit bool `json:"hasChannelAuthInit"`
	SupportsEdits      bool `json:"supportsEdits"`
	SupportsStreaming  bool `json:"supportsStreaming"`
}

// PluginOAuthConfig names where a plugin's OAuth credentials live.
type PluginOAuthConfig struct {
	CredentialsPath string `json:"credentialsPath"`
}

// ChannelWebhookRequest is the inbound contract from host to a
// Channel plugin's handle_webhook entry point.
type ChannelWebhookRequest struct {
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"body"`
	Query   map[string]string `json:"query"`
}

// ChannelWebhookResponse is what a Channel plugin returns from
// handle_webhook: an immediate HTTP-layer response plus zero or more
// inbound messages to route into the Agent Loop.
type ChannelWebhookResponse struct {
	Status   int               `json:"status"`
	Headers  map[string]string `json:"headers"`
	Body     []byte            `json:"body"`
	Messages []ChannelInboundMessage `json:"messages"`
}

// ChannelInboundMessage is one conversation turn a Channel plugin
// extracted from an inbound webhook payload.
type ChannelInboundMessage struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	MetadataJSON   string `json:"metadataJson,omitempty"`
}

// ChannelSendRequest is the host-to-plugin outbound send contract.
type ChannelSendRequest struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	MessageID      string `json:"messageId,omitempty"`
	IsFinal        bool   `json:"isFinal"`
	MetadataJSON   string `json:"metadataJson,omitempty"`
}

// ChannelSendResult is returned by a plugin's send entry point.
type ChannelSendResult struct {
	MessageID string `json:"messageId,omitempty"`
}

// AuthRefreshRequest carries the stored refresh token to an Auth
// plugin's refresh entry point.
type AuthRefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthRefreshResponse is the renewed credential set an Auth plugin
// returns. ExpiresAt is a Unix timestamp, not a time.Time, to keep
// the RPC payload gob/json-encodable without custom marshaling.
type AuthRefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
}

// PluginMessage is a flattened, RPC-safe stand-in for Message: plugin
// transport crosses a process boundary by gob encoding, which cannot
// carry Message's Parts []Part interface slice, so only the resolved
// text survives the trip.
type PluginMessage struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ProviderCompletionRequest/Response let a Provider plugin stand in
// for a built-in internal/provider adapter. Plugin-backed providers
// are non-streaming: the host buffers a plugin's full reply into one
// response rather than crossing the RPC boundary with a live stream.
type ProviderCompletionRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system"`
	Messages    []PluginMessage `json:"messages"`
	MaxOutput   int             `json:"maxOutput,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type ProviderCompletionResponse struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
}
