package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"tark/internal/agent"
	"tark/internal/mcp"
)

// ProviderConfig holds the per-provider settings read from config.toml.
type ProviderConfig struct {
	APIKey       string            `toml:"api_key"`
	BaseURL      string            `toml:"base_url"`
	ExtraHeaders map[string]string `toml:"extra_headers"`
}

// PolicyConfig holds the approval engine's mode and trust dial.
type PolicyConfig struct {
	Mode  string `toml:"mode"`
	Trust string `toml:"trust"`
}

// PluginsConfig controls the Plugin Host: where to look for manifests
// and which discovered plugin ids are allowed to launch.
type PluginsConfig struct {
	Dir     string   `toml:"dir"`
	Enabled []string `toml:"enabled"`
}

// Config is tark's fully merged configuration: global layer, then
// project layer, then environment overrides.
type Config struct {
	Model            string                    `toml:"model"`
	SmallModel       string                    `toml:"small_model"`
	EnabledProviders []string                  `toml:"enabled_providers"`
	Provider         map[string]ProviderConfig `toml:"provider"`
	Agent            map[string]agent.AgentConfig
	Policy           PolicyConfig          `toml:"policy"`
	MCP              map[string]mcp.Config `toml:"mcp"`
	Plugins          PluginsConfig         `toml:"plugins"`
}

func newConfig() *Config {
	return &Config{
		Provider: make(map[string]ProviderConfig),
		Agent:    make(map[string]agent.AgentConfig),
		MCP:      make(map[string]mcp.Config),
		Policy:   PolicyConfig{Mode: "standard", Trust: "normal"},
	}
}

// Load builds the merged configuration for directory: global config
// under the XDG config home, overlaid by directory's .tark/config.toml,
// overlaid by per-agent TOML files from both layers, overlaid by
// environment variables. Array-valued keys (EnabledProviders)
// concatenate across layers rather than replace.
func Load(directory string) (*Config, error) {
	cfg := newConfig()

	if directory != "" {
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	loadLayer(cfg, GlobalConfigPath())
	loadAgentsDir(cfg, GetPaths().GlobalAgentsDir())

	if directory != "" {
		loadLayer(cfg, ProjectConfigPath(directory))
		loadAgentsDir(cfg, ProjectAgentsDir(directory))
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadLayer decodes path (if present) and merges it into cfg. A
// missing file is not an error — it simply contributes nothing.
func loadLayer(cfg *Config, path string) {
	var layer Config
	layer.Provider = make(map[string]ProviderConfig)
	layer.MCP = make(map[string]mcp.Config)
	if _, err := toml.DecodeFile(path, &layer); err != nil {
		return
	}
	mergeConfig(cfg, &layer)
}

// mergeConfig overlays source onto target. Scalars replace; the
// EnabledProviders slice concatenates (deduplicated); maps merge key
// by key with source winning on conflicts.
func mergeConfig(target, source *Config) {
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}
	if source.Policy.Mode != "" {
		target.Policy.Mode = source.Policy.Mode
	}
	if source.Policy.Trust != "" {
		target.Policy.Trust = source.Policy.Trust
	}
	if source.Plugins.Dir != "" {
		target.Plugins.Dir = source.Plugins.Dir
	}
	for _, id := range source.Plugins.Enabled {
		if !contains(target.Plugins.Enabled, id) {
			target.Plugins.Enabled = append(target.Plugins.Enabled, id)
		}
	}

	for _, id := range source.EnabledProviders {
		if !contains(target.EnabledProviders, id) {
			target.EnabledProviders = append(target.EnabledProviders, id)
		}
	}

	if target.Provider == nil {
		target.Provider = make(map[string]ProviderConfig)
	}
	for k, v := range source.Provider {
		target.Provider[k] = v
	}

	if target.MCP == nil {
		target.MCP = make(map[string]mcp.Config)
	}
	for k, v := range source.MCP {
		target.MCP[k] = v
	}

	if target.Agent == nil {
		target.Agent = make(map[string]agent.AgentConfig)
	}
	for k, v := range source.Agent {
		target.Agent[k] = v
	}
}

// loadAgentsDir loads every *.toml file in dir as an agent.AgentConfig
// keyed by its filename (without extension), merging into cfg.Agent.
func loadAgentsDir(cfg *Config, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	if cfg.Agent == nil {
		cfg.Agent = make(map[string]agent.AgentConfig)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".toml")
		var ac agent.AgentConfig
		if _, err := toml.DecodeFile(filepath.Join(dir, entry.Name()), &ac); err != nil {
			continue
		}
		cfg.Agent[name] = ac
	}
}

// applyEnvOverrides applies environment variables last. TARK_MODEL and
// TARK_SMALL_MODEL replace the configured values; a provider variable
// is applied only to a provider that has no API key set by a file
// layer.
func applyEnvOverrides(cfg *Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"gemini":    "GOOGLE_API_KEY",
		"ollama":    "OLLAMA_HOST",
	}

	for providerID, envVar := range providerEnvMap {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}
		p := cfg.Provider[providerID]
		if p.APIKey == "" {
			if providerID == "ollama" {
				p.BaseURL = value
			} else {
				p.APIKey = value
			}
			cfg.Provider[providerID] = p
		}
	}

	if model := os.Getenv("TARK_MODEL"); model != "" {
		cfg.Model = model
	}
	if smallModel := os.Getenv("TARK_SMALL_MODEL"); smallModel != "" {
		cfg.SmallModel = smallModel
	}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
