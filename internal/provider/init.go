package provider

// Settings is the minimal per-provider configuration the registry
// needs to construct an adapter. It mirrors internal/config.ProviderConfig
// without importing it, since internal/config depends on internal/agent,
// not the other way around.
type Settings struct {
	APIKey       string
	BaseURL      string
	ExtraHeaders map[string]string
}

// InitializeProviders builds a Registry from settings, constructing
// exactly the adapters that have credentials configured, then applies
// enabledProviders as an allowlist filter (empty means no filter).
func InitializeProviders(settings map[string]Settings, enabledProviders []string) *Registry {
	reg := NewRegistry()

	if s, ok := settings["anthropic"]; ok && s.APIKey != "" {
		reg.Register(NewAnthropicProvider(s.APIKey, s.BaseURL))
	}
	if s, ok := settings["openai"]; ok && s.APIKey != "" {
		reg.Register(NewOpenAIProvider(s.APIKey, s.BaseURL))
	}
	if s, ok := settings["gemini"]; ok && s.APIKey != "" {
		reg.Register(NewGeminiProvider(s.APIKey, s.BaseURL))
	}
	if s, ok := settings["gemini-oauth"]; ok && s.APIKey != "" {
		reg.Register(NewGeminiOAuthProvider(s.APIKey, s.BaseURL))
	}
	if s, ok := settings["ollama"]; ok {
		host := s.BaseURL
		if host == "" {
			host = "http://localhost:11434"
		}
		reg.Register(NewOllamaProvider(host))
	}

	// Any remaining entries are treated as OpenAI-compatible gateways
	// (OpenRouter, Copilot, local proxies) keyed by their own id.
	for id, s := range settings {
		switch id {
		case "anthropic", "openai", "gemini", "gemini-oauth", "ollama":
			continue
		}
		if s.APIKey == "" || s.BaseURL == "" {
			continue
		}
		reg.Register(NewOpenAICompatibleProvider(id, s.APIKey, s.BaseURL, s.ExtraHeaders))
	}

	reg.FilterEnabled(enabledProviders)
	return reg
}
