// Package pluginhost process-isolates third-party Channel, Auth, and
// Provider plugins behind hashicorp/go-plugin's net/rpc transport: one
// OS subprocess per loaded plugin, speaking the typed request/response
// contract in pkg/types rather than sharing memory or the filesystem
// with the host process.
//
// A plugin binary links hashicorp/go-plugin itself and calls
// plugin.Serve with a ServeConfig exposing one of ChannelRPCPlugin,
// AuthRPCPlugin, or ProviderRPCPlugin (whichever matches its
// manifest's PluginType) under the name returned by PluginMapKey.
// Host discovers a plugin's manifest.json, launches the binary named
// in PluginManifest.BinaryPath, and dispenses the matching typed
// client.
package pluginhost
