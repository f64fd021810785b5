package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"tark/internal/agentloop"
	"tark/internal/channelmirror"
	"tark/internal/config"
	"tark/internal/logging"
	"tark/internal/mcp"
	"tark/internal/pluginhost"
	"tark/internal/policy"
	"tark/internal/sessionstore"
	"tark/internal/tool"
	"tark/internal/usage"
	"tark/pkg/types"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tark headless server",
	Long: `Start a headless HTTP server exposing tark's usage accounting
API (spend summaries, per-model/per-mode/per-session breakdowns, and
storage cleanup) and, when plugins are configured, Channel plugin
webhook ingress wired into the Agent Loop.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	logging.Info().Str("version", Version).Msg("starting tark server")
	logging.Info().Str("directory", workDir).Msg("working directory")

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if model := GetGlobalModel(); model != "" {
		appConfig.Model = model
	}

	ctx := context.Background()

	toolReg := tool.DefaultRegistry(workDir)

	mcpClient := mcp.NewClient()
	for name, mcfg := range appConfig.MCP {
		if !mcfg.Enabled {
			continue
		}
		cfgCopy := mcfg
		if err := mcpClient.AddServer(ctx, name, &cfgCopy); err != nil {
			logging.Warn().Err(err).Str("server", name).Msg("failed to connect mcp server")
			continue
		}
	}
	if mcpClient.ServerCount() > 0 {
		mcp.RegisterTools(mcpClient, toolReg)
		logging.Info().
			Int("mcpToolCount", len(mcpClient.Tools())).
			Msg("registered mcp tools in tool registry")
	}
	defer mcpClient.Close()

	pricing := usage.NewPricingSource("")
	usageStore, err := usage.Open(ctx, paths.UsageDBPath(), pricing)
	if err != nil {
		return fmt.Errorf("failed to open usage store: %w", err)
	}
	defer usageStore.Close()

	router := chi.NewRouter()
	router.Mount("/", usageStore.NewHTTPHandler())
	router.Handle("/metrics", promhttp.Handler())

	pluginsDir := appConfig.Plugins.Dir
	if pluginsDir == "" {
		pluginsDir = paths.PluginsDir()
	}

	host := pluginhost.NewHost()
	if err := host.Load(pluginsDir, appConfig.Plugins.Enabled); err != nil {
		logging.Warn().Err(err).Msg("failed to load some plugins")
	}
	defer host.Close()

	if len(host.Channels()) > 0 {
		providerReg := buildProviderRegistry(appConfig)
		pol, err := policy.Open(ctx, paths.PolicyDBPath(), appConfig.Policy.Mode, appConfig.Policy.Trust)
		if err != nil {
			return fmt.Errorf("failed to open policy engine: %w", err)
		}
		defer pol.Close()

		sessions := sessionstore.New(paths.StoragePath())

		loop := agentloop.New(providerReg, pol, sessions, usageStore, toolReg, headlessDeny)

		var defaultProviderID, defaultModelID string
		if appConfig.Model != "" {
			parts := strings.SplitN(appConfig.Model, "/", 2)
			if len(parts) == 2 {
				defaultProviderID, defaultModelID = parts[0], parts[1]
			}
		}

		mirror := channelmirror.New(host, loop, sessions, channelmirror.Config{
			DefaultProvider: defaultProviderID,
			DefaultModel:    defaultModelID,
		})
		defer mirror.Close()

		mirror.OnTurnFailed(func(failure channelmirror.TurnFailure) {
			logging.Error().
				Str("plugin", failure.PluginID).
				Str("session_id", failure.SessionID).
				Str("error", failure.Error).
				Msg("channel turn failed")
		})

		router.Handle("/channels/*", mirror.NewHTTPHandler())
		logging.Info().Int("channelPlugins", len(host.Channels())).Msg("channel mirror routes mounted")
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", serveHostname, servePort),
		Handler: router,
	}

	go func() {
		logging.Info().
			Str("hostname", serveHostname).
			Int("port", servePort).
			Str("url", fmt.Sprintf("http://%s:%d", serveHostname, servePort)).
			Msg("server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
	return nil
}

// headlessDeny implements agentloop.ApprovalWaiter for unattended
// server runs: nothing requiring interactive approval is allowed to
// proceed, since there is no operator to ask.
func headlessDeny(ctx context.Context, sessionID string, decision *types.ApprovalDecision, toolName, command string) (bool, *types.ApprovalPattern, error) {
	logging.Warn().
		Str("session_id", sessionID).
		Str("tool", toolName).
		Str("command", command).
		Msg("denying tool call requiring approval in headless mode")
	return false, nil, nil
}
