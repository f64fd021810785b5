package pluginhost

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/google/uuid"
	goplugin "github.com/hashicorp/go-plugin"
	"github.com/hashicorp/go-hclog"

	"tark/internal/logging"
	"tark/pkg/types"
)

// Instance is one running plugin subprocess, correlated by a random
// id so logs and audit entries can be tied back to a specific launch
// even if the same plugin ID is reloaded.
type Instance struct {
	ID       string
	Manifest types.PluginManifest

	client *goplugin.Client
	raw    interface{}
}

func (inst *Instance) Channel() (ChannelPlugin, bool) {
	p, ok := inst.raw.(ChannelPlugin)
	return p, ok
}

func (inst *Instance) Auth() (AuthPlugin, bool) {
	p, ok := inst.raw.(AuthPlugin)
	return p, ok
}

func (inst *Instance) Provider() (ProviderPlugin, bool) {
	p, ok := inst.raw.(ProviderPlugin)
	return p, ok
}

// Kill terminates the plugin subprocess.
func (inst *Instance) Kill() {
	inst.client.Kill()
}

// Host loads and tracks plugin subprocesses for the Channel Mirror
// and the provider registry. Enabling a plugin is a host-level
// allowlist decision: Discover finds everything on disk, Load only
// launches the ids the caller explicitly enables.
type Host struct {
	mu        sync.Mutex
	instances map[string]*Instance // keyed by manifest ID
}

func NewHost() *Host {
	return &Host{instances: make(map[string]*Instance)}
}

// Load discovers plugins under dir and launches every manifest whose
// ID is in enabled. A plugin present on disk but not enabled is left
// unlaunched.
func (h *Host) Load(dir string, enabled []string) error {
	discovered, err := Discover(dir)
	if err != nil {
		return err
	}

	allow := make(map[string]bool, len(enabled))
	for _, id := range enabled {
		allow[id] = true
	}

	for _, d := range discovered {
		if !allow[d.Manifest.ID] {
			continue
		}
		if err := h.launch(d); err != nil {
			return fmt.Errorf("launch plugin %s: %w", d.Manifest.ID, err)
		}
	}
	return nil
}

func (h *Host) launch(d DiscoveredPlugin) error {
	pluginMap, err := pluginMapFor(d.Manifest.Type)
	if err != nil {
		return err
	}

	instanceID := uuid.NewString()
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "tark-plugin-" + d.Manifest.ID,
		Level:  hclog.Warn,
		Output: logging.With().Str("pluginInstance", instanceID).Logger(),
	})

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          pluginMap,
		Cmd:              exec.Command(d.BinaryAbsPath()),
		Logger:           logger,
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return fmt.Errorf("rpc client: %w", err)
	}

	raw, err := rpcClient.Dispense(PluginMapKey(d.Manifest.Type))
	if err != nil {
		client.Kill()
		return fmt.Errorf("dispense: %w", err)
	}

	inst := &Instance{ID: instanceID, Manifest: d.Manifest, client: client, raw: raw}

	h.mu.Lock()
	if prev, ok := h.instances[d.Manifest.ID]; ok {
		prev.Kill()
	}
	h.instances[d.Manifest.ID] = inst
	h.mu.Unlock()

	return nil
}

// Get returns the running instance for a plugin ID, if loaded.
func (h *Host) Get(id string) (*Instance, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.instances[id]
	return inst, ok
}

// Channels returns every loaded Channel-type instance.
func (h *Host) Channels() []*Instance {
	return h.byType(types.PluginChannel)
}

func (h *Host) byType(t types.PluginType) []*Instance {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*Instance
	for _, inst := range h.instances {
		if inst.Manifest.Type == t {
			out = append(out, inst)
		}
	}
	return out
}

// Close terminates every loaded plugin subprocess.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, inst := range h.instances {
		inst.Kill()
		delete(h.instances, id)
	}
}
