package pluginhost

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tark/pkg/types"
)

// DiscoveredPlugin pairs a parsed manifest with the directory it was
// found in, so BinaryPath can be resolved relative to the manifest.
type DiscoveredPlugin struct {
	Manifest types.PluginManifest
	Dir      string
}

// BinaryAbsPath resolves Manifest.BinaryPath against Dir if it isn't
// already absolute.
func (d DiscoveredPlugin) BinaryAbsPath() string {
	if filepath.IsAbs(d.Manifest.BinaryPath) {
		return d.Manifest.BinaryPath
	}
	return filepath.Join(d.Dir, d.Manifest.BinaryPath)
}

// Discover scans dir for manifest.json files, one per plugin
// subdirectory, and returns every one found. Subdirectories without a
// readable manifest.json are skipped; a manifest that fails to parse or
// validate (missing id or binaryPath, unknown type) fails the whole
// scan with an error. The binary itself is not checked. A missing dir
// is not an error — it contributes no plugins.
func Discover(dir string) ([]DiscoveredPlugin, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read plugin dir: %w", err)
	}

	var found []DiscoveredPlugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pluginDir := filepath.Join(dir, entry.Name())
		manifestPath := filepath.Join(pluginDir, "manifest.json")
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}

		var manifest types.PluginManifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", manifestPath, err)
		}
		if err := validateManifest(manifest); err != nil {
			return nil, fmt.Errorf("invalid manifest %s: %w", manifestPath, err)
		}

		found = append(found, DiscoveredPlugin{Manifest: manifest, Dir: pluginDir})
	}

	return found, nil
}

func validateManifest(m types.PluginManifest) error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("missing id")
	}
	if strings.TrimSpace(m.BinaryPath) == "" {
		return fmt.Errorf("missing binaryPath")
	}
	switch m.Type {
	case types.PluginChannel, types.PluginAuth, types.PluginProvider:
	default:
		return fmt.Errorf("unknown plugin type %q", m.Type)
	}
	return nil
}
