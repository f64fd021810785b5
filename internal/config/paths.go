// Package config loads tark's layered TOML configuration: a global
// file under the XDG config home, overlaid by a project-local
// .tark/ directory, overlaid by environment variables.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard XDG paths for tark's own data, plus the
// project-local .tark/ directory layout.
type Paths struct {
	Data   string // ~/.local/share/tark
	Config string // ~/.config/tark
	Cache  string // ~/.cache/tark
	State  string // ~/.local/state/tark
}

// GetPaths returns the standard paths for tark's global data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "tark"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "tark"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "tark"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "tark"),
	}
}

// EnsurePaths creates all required global directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath returns the path to the session/file storage directory.
func (p *Paths) StoragePath() string {
	return filepath.Join(p.Data, "storage")
}

// AuthPath returns the path to the auth file.
func (p *Paths) AuthPath() string {
	return filepath.Join(p.Data, "auth.json")
}

// PolicyDBPath returns the path to the approval policy SQLite database.
func (p *Paths) PolicyDBPath() string {
	return filepath.Join(p.Data, "policy.db")
}

// UsageDBPath returns the path to the usage accounting SQLite database.
func (p *Paths) UsageDBPath() string {
	return filepath.Join(p.Data, "usage.db")
}

// GlobalAgentsDir returns the directory holding global per-agent TOML files.
func (p *Paths) GlobalAgentsDir() string {
	return filepath.Join(p.Config, "agents")
}

// PluginsDir returns the default directory the Plugin Host scans for
// manifest.json-described plugin subdirectories.
func (p *Paths) PluginsDir() string {
	return filepath.Join(p.Data, "plugins")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "config.toml")
}

// ProjectDir returns the project-local .tark directory for directory.
func ProjectDir(directory string) string {
	return filepath.Join(directory, ".tark")
}

// ProjectConfigPath returns the path to the project config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(ProjectDir(directory), "config.toml")
}

// ProjectAgentsDir returns the directory holding project-local
// per-agent TOML files.
func ProjectAgentsDir(directory string) string {
	return filepath.Join(ProjectDir(directory), "agents")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}
