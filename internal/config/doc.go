// Package config loads tark's configuration from layered TOML files.
//
// Layers, lowest to highest priority:
//
//	~/.config/tark/config.toml           global defaults
//	~/.config/tark/agents/*.toml         global per-agent overrides
//	<project>/.tark/config.toml          project overrides
//	<project>/.tark/agents/*.toml        project per-agent overrides
//	environment variables                 (ANTHROPIC_API_KEY, TARK_MODEL, ...)
//
// Scalar keys (model, provider API keys) are replaced by the higher
// layer; the enabled_providers list concatenates across layers
// instead of being replaced, so a project file can add a provider to
// the global allowlist without having to restate it. Among the
// environment variables, TARK_MODEL and TARK_SMALL_MODEL replace the
// file values, while a provider key such as ANTHROPIC_API_KEY is used
// only when no file layer set that provider's API key.
//
//	cfg, err := config.Load(workDir)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Watch follows .tark/ for changes via fsnotify and triggers a
// caller-supplied reload callback, supporting the hot-reload behavior
// the original implementation provides.
package config
