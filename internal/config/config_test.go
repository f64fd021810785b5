package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withIsolatedHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	os.Unsetenv("XDG_CONFIG_HOME")
	t.Cleanup(func() { os.Setenv("HOME", oldHome) })
	return tmpDir
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestLoad_ProjectOverlaysGlobal(t *testing.T) {
	home := withIsolatedHome(t)
	projectDir := t.TempDir()

	writeFile(t, GlobalConfigPath(), `
model = "anthropic/claude-sonnet-4"
enabled_providers = ["anthropic"]

[provider.anthropic]
api_key = "global-key"
`)
	writeFile(t, ProjectConfigPath(projectDir), `
enabled_providers = ["openai"]

[provider.openai]
api_key = "project-key"
`)
	_ = home

	cfg, err := Load(projectDir)
	require.NoError(t, err)

	assert.Equal(t, "anthropic/claude-sonnet-4", cfg.Model)
	assert.ElementsMatch(t, []string{"anthropic", "openai"}, cfg.EnabledProviders)
	assert.Equal(t, "global-key", cfg.Provider["anthropic"].APIKey)
	assert.Equal(t, "project-key", cfg.Provider["openai"].APIKey)
}

func TestLoad_ProjectOverridesScalar(t *testing.T) {
	withIsolatedHome(t)
	projectDir := t.TempDir()

	writeFile(t, GlobalConfigPath(), `model = "anthropic/claude-sonnet-4"`)
	writeFile(t, ProjectConfigPath(projectDir), `model = "openai/gpt-4o"`)

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", cfg.Model)
}

func TestLoad_EnvDoesNotOverrideFileKey(t *testing.T) {
	withIsolatedHome(t)
	projectDir := t.TempDir()

	writeFile(t, ProjectConfigPath(projectDir), `
[provider.anthropic]
api_key = "file-key"
`)

	old := os.Getenv("ANTHROPIC_API_KEY")
	os.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Cleanup(func() { os.Setenv("ANTHROPIC_API_KEY", old) })

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	// file-set keys are not clobbered by env; env only fills gaps.
	assert.Equal(t, "file-key", cfg.Provider["anthropic"].APIKey)
}

func TestLoad_AgentsDir(t *testing.T) {
	withIsolatedHome(t)
	projectDir := t.TempDir()

	writeFile(t, filepath.Join(ProjectAgentsDir(projectDir), "reviewer.toml"), `
description = "Reviews diffs"
mode = "subagent"
temperature = 0.2
`)

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	require.Contains(t, cfg.Agent, "reviewer")
	assert.Equal(t, "Reviews diffs", cfg.Agent["reviewer"].Description)
	assert.Equal(t, 0.2, cfg.Agent["reviewer"].Temperature)
}

func TestLoad_MissingFilesIsNotAnError(t *testing.T) {
	withIsolatedHome(t)
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "standard", cfg.Policy.Mode)
}
