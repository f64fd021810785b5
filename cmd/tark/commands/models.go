package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tark/internal/config"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured providers",
	Long: `List the providers tark currently has credentials for.

Examples:
  tark models              # List all configured providers`,
	RunE: runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
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

	providerReg := buildProviderRegistry(appConfig)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tBASE URL\t")
	for _, id := range providerReg.IDs() {
		baseURL := appConfig.Provider[id].BaseURL
		fmt.Fprintf(w, "%s\t%s\t\n", id, baseURL)
	}

	return w.Flush()
}
