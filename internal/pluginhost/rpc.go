package pluginhost

import (
	"fmt"
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"

	"tark/pkg/types"
)

// Handshake identifies a compatible plugin binary before any RPC call
// is attempted, mirroring go-plugin's standard cookie pattern.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "TARK_PLUGIN",
	MagicCookieValue: "tark_plugin_v1",
}

// PluginMapKey is the name a plugin binary must Dispense under for
// its declared PluginType.
func PluginMapKey(t types.PluginType) string {
	return string(t)
}

// pluginMapFor returns the go-plugin Plugin implementation the host
// should use to dispense a client for the given type.
func pluginMapFor(t types.PluginType) (map[string]goplugin.Plugin, error) {
	switch t {
	case types.PluginChannel:
		return map[string]goplugin.Plugin{PluginMapKey(t): &ChannelRPCPlugin{}}, nil
	case types.PluginAuth:
		return map[string]goplugin.Plugin{PluginMapKey(t): &AuthRPCPlugin{}}, nil
	case types.PluginProvider:
		return map[string]goplugin.Plugin{PluginMapKey(t): &ProviderRPCPlugin{}}, nil
	default:
		return nil, fmt.Errorf("unsupported plugin type %q", t)
	}
}

// ChannelPlugin is the interface a Channel plugin binary implements
// and that the host calls over RPC once dispensed.
type ChannelPlugin interface {
	HandleWebhook(req types.ChannelWebhookRequest) (types.ChannelWebhookResponse, error)
	Send(req types.ChannelSendRequest) (types.ChannelSendResult, error)
}

// ChannelRPCPlugin adapts ChannelPlugin to go-plugin's net/rpc
// transport. Server is only ever invoked inside a plugin binary
// process, never by this host.
type ChannelRPCPlugin struct {
	Impl ChannelPlugin
}

func (p *ChannelRPCPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &channelRPCServer{impl: p.Impl}, nil
}

func (p *ChannelRPCPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &channelRPCClient{client: c}, nil
}

type channelRPCServer struct {
	impl ChannelPlugin
}

func (s *channelRPCServer) HandleWebhook(req types.ChannelWebhookRequest, resp *types.ChannelWebhookResponse) error {
	r, err := s.impl.HandleWebhook(req)
	if err != nil {
		return err
	}
	*resp = r
	return nil
}

func (s *channelRPCServer) Send(req types.ChannelSendRequest, resp *types.ChannelSendResult) error {
	r, err := s.impl.Send(req)
	if err != nil {
		return err
	}
	*resp = r
	return nil
}

// channelRPCClient is the host-side stub dispensed from a Channel
// plugin's subprocess.
type channelRPCClient struct {
	client *rpc.Client
}

func (c *channelRPCClient) HandleWebhook(req types.ChannelWebhookRequest) (types.ChannelWebhookResponse, error) {
	var resp types.ChannelWebhookResponse
	err := c.client.Call("Plugin.HandleWebhook", req, &resp)
	return resp, err
}

func (c *channelRPCClient) Send(req types.ChannelSendRequest) (types.ChannelSendResult, error) {
	var resp types.ChannelSendResult
	err := c.client.Call("Plugin.Send", req, &resp)
	return resp, err
}

// AuthPlugin is the interface an Auth plugin binary implements to
// refresh a stored OAuth credential on the host's behalf.
type AuthPlugin interface {
	Refresh(req types.AuthRefreshRequest) (types.AuthRefreshResponse, error)
}

type AuthRPCPlugin struct {
	Impl AuthPlugin
}

func (p *AuthRPCPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &authRPCServer{impl: p.Impl}, nil
}

func (p *AuthRPCPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &authRPCClient{client: c}, nil
}

type authRPCServer struct {
	impl AuthPlugin
}

func (s *authRPCServer) Refresh(req types.AuthRefreshRequest, resp *types.AuthRefreshResponse) error {
	r, err := s.impl.Refresh(req)
	if err != nil {
		return err
	}
	*resp = r
	return nil
}

type authRPCClient struct {
	client *rpc.Client
}

func (c *authRPCClient) Refresh(req types.AuthRefreshRequest) (types.AuthRefreshResponse, error) {
	var resp types.AuthRefreshResponse
	err := c.client.Call("Plugin.Refresh", req, &resp)
	return resp, err
}

// ProviderPlugin is the interface a Provider plugin binary implements
// to stand in for a built-in internal/provider adapter.
type ProviderPlugin interface {
	Complete(req types.ProviderCompletionRequest) (types.ProviderCompletionResponse, error)
}

type ProviderRPCPlugin struct {
	Impl ProviderPlugin
}

func (p *ProviderRPCPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &providerRPCServer{impl: p.Impl}, nil
}

func (p *ProviderRPCPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &providerRPCClient{client: c}, nil
}

type providerRPCServer struct {
	impl ProviderPlugin
}

func (s *providerRPCServer) Complete(req types.ProviderCompletionRequest, resp *types.ProviderCompletionResponse) error {
	r, err := s.impl.Complete(req)
	if err != nil {
		return err
	}
	*resp = r
	return nil
}

type providerRPCClient struct {
	client *rpc.Client
}

func (c *providerRPCClient) Complete(req types.ProviderCompletionRequest) (types.ProviderCompletionResponse, error) {
	var resp types.ProviderCompletionResponse
	err := c.client.Call("Plugin.Complete", req, &resp)
	return resp, err
}
