package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tark/internal/agent"
	"tark/internal/agentloop"
	"tark/internal/config"
	"tark/internal/conversation"
	"tark/internal/policy"
	"tark/internal/provider"
	"tark/internal/sessionstore"
	"tark/internal/tool"
	"tark/internal/usage"
	"tark/pkg/types"
)

var (
	runModel        string
	runAgent        string
	runContinue     bool
	runSession      string
	runFormat       string
	runFiles        []string
	runTitle        string
	runPrompt       string
	runPromptFile   string
	runPromptInline string
	runDir          string
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Start an interactive tark session",
	Long: `Start an interactive tark session with the specified message.

Examples:
  tark run "Fix the bug in main.go"
  tark run --model anthropic/claude-sonnet-4 "Explain this code"
  tark run --continue  # Continue last session
  tark run --file main.go "Review this file"`,
	RunE: runInteractive,
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model to use (provider/model format)")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "Agent to use")
	runCmd.Flags().BoolVarP(&runContinue, "continue", "c", false, "Continue the last session")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Session ID to continue")
	runCmd.Flags().StringVar(&runFormat, "format", "default", "Output format (default|json)")
	runCmd.Flags().StringArrayVarP(&runFiles, "file", "f", nil, "File(s) to attach to message")
	runCmd.Flags().StringVar(&runTitle, "title", "", "Session title")
	runCmd.Flags().StringVar(&runPrompt, "prompt", "", "Custom prompt template")
	runCmd.Flags().StringVar(&runPromptFile, "prompt-file", "", "Custom prompt from file")
	runCmd.Flags().StringVar(&runPromptInline, "prompt-inline", "", "Custom prompt as inline text")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
}

func runInteractive(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	if runModel != "" {
		appConfig.Model = runModel
	} else if model := GetGlobalModel(); model != "" {
		appConfig.Model = model
	}

	message := strings.Join(args, " ")
	if message == "" && !runContinue && runSession == "" {
		return fmt.Errorf("message required. Usage: tark run \"your message\"")
	}

	ctx := context.Background()

	providerReg := buildProviderRegistry(appConfig)
	toolReg := tool.DefaultRegistry(workDir)

	pol, err := policy.Open(ctx, paths.PolicyDBPath(), appConfig.Policy.Mode, appConfig.Policy.Trust)
	if err != nil {
		return fmt.Errorf("failed to open policy engine: %w", err)
	}
	defer pol.Close()

	sessions := sessionstore.New(paths.StoragePath())

	pricing := usage.NewPricingSource("")
	usageStore, err := usage.Open(ctx, paths.UsageDBPath(), pricing)
	if err != nil {
		return fmt.Errorf("failed to open usage store: %w", err)
	}
	defer usageStore.Close()

	loop := agentloop.New(providerReg, pol, sessions, usageStore, toolReg, interactiveApprove)

	agentReg := agent.NewRegistry()
	agentReg.LoadFromConfig(appConfig.Agent)
	agentName := runAgent
	if agentName == "" {
		agentName = "build"
	}
	selectedAgent, err := agentReg.Get(agentName)
	if err != nil {
		return fmt.Errorf("unknown agent %q: %w", agentName, err)
	}

	// Handle custom prompt override (file, inline, or path-or-text).
	switch {
	case runPromptFile != "":
		data, err := os.ReadFile(runPromptFile)
		if err != nil {
			return fmt.Errorf("failed to read prompt file: %w", err)
		}
		selectedAgent.Prompt = string(data)
	case runPromptInline != "":
		selectedAgent.Prompt = runPromptInline
	case runPrompt != "":
		if data, err := os.ReadFile(runPrompt); err == nil {
			selectedAgent.Prompt = string(data)
		} else {
			selectedAgent.Prompt = runPrompt
		}
	}

	var fileContent strings.Builder
	for _, file := range runFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", file, err)
		}
		fileContent.WriteString(fmt.Sprintf("\n\n--- File: %s ---\n%s", file, string(content)))
	}
	if fileContent.Len() > 0 {
		message += fileContent.String()
	}

	var defaultProviderID, defaultModelID string
	if appConfig.Model != "" {
		parts := strings.SplitN(appConfig.Model, "/", 2)
		if len(parts) == 2 {
			defaultProviderID, defaultModelID = parts[0], parts[1]
		}
	}

	sessionID, mgr, err := resolveSession(ctx, sessions, workDir, defaultProviderID, defaultModelID, runSession, runContinue, runTitle)
	if err != nil {
		return err
	}

	mgr.AddUserMessage(message)

	fmt.Printf("Starting session %s...\n", sessionID)
	fmt.Printf("Model: %s/%s\n", defaultProviderID, defaultModelID)
	fmt.Printf("Agent: %s\n", selectedAgent.Name)
	fmt.Printf("Message: %s\n\n", truncate(message, 100))

	msg, err := loop.Turn(ctx, mgr, sessionID, defaultProviderID, defaultModelID, types.ThinkSettings{})
	if err != nil {
		return fmt.Errorf("processing error: %w", err)
	}

	fmt.Print(msg.Text)
	fmt.Println()
	return nil
}

// resolveSession finds or creates the session to run against, and
// returns a conversation.Manager primed from its persisted history.
func resolveSession(ctx context.Context, sessions *sessionstore.Store, workDir, providerID, modelID, explicit string, cont bool, title string) (string, *conversation.Manager, error) {
	var sessionID string
	switch {
	case explicit != "":
		sessionID = explicit
	case cont:
		existing, err := sessions.List(ctx, workDir)
		if err != nil {
			return "", nil, fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(existing) > 0 {
			sessionID = existing[len(existing)-1].ID
		}
	}

	if sessionID == "" {
		sess, err := sessions.Create(ctx, workDir, providerID, modelID)
		if err != nil {
			return "", nil, fmt.Errorf("failed to create session: %w", err)
		}
		if title != "" {
			sess.Name = title
		}
		if err := sessions.Put(ctx, sess); err != nil {
			return "", nil, fmt.Errorf("failed to persist session: %w", err)
		}
		sessionID = sess.ID
	}

	sess, err := sessions.Get(ctx, sessionID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load session: %w", err)
	}

	mgr := conversation.New(sessionID)
	mgr.RestoreFromSession(sess)
	return sessionID, mgr, nil
}

// buildProviderRegistry adapts config.Config's provider map into the
// provider package's own Settings shape and initializes every adapter
// that has credentials configured.
func buildProviderRegistry(cfg *config.Config) *provider.Registry {
	settings := make(map[string]provider.Settings, len(cfg.Provider))
	for id, p := range cfg.Provider {
		settings[id] = provider.Settings{APIKey: p.APIKey, BaseURL: p.BaseURL, ExtraHeaders: p.ExtraHeaders}
	}
	return provider.InitializeProviders(settings, cfg.EnabledProviders)
}

// interactiveApprove implements agentloop.ApprovalWaiter by prompting
// the terminal operator directly.
func interactiveApprove(ctx context.Context, sessionID string, decision *types.ApprovalDecision, toolName, command string) (bool, *types.ApprovalPattern, error) {
	fmt.Printf("\nApproval required for %s: %s\n", toolName, command)
	fmt.Printf("Rationale: %s\n", decision.Rationale)
	fmt.Print("Allow? [y/N] ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, nil, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
