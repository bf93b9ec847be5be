package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/agentbridge/pkg/coretools"
)

var toolsNamesOnly bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the registry tool schemas",
	Long: `Print the tool schemas offered to the model as JSON.
generate_recipe is included only when agent.features.recipe is on.`,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsNamesOnly, "names", false, "print tool names only")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	schemas := coretools.Schemas(coretools.Features{Recipe: cfg.Agent.Features.Recipe})
	out := cmd.OutOrStdout()

	if toolsNamesOnly {
		for _, schema := range schemas {
			fmt.Fprintln(out, schema.Name)
		}
		return nil
	}

	data, err := json.MarshalIndent(schemas, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode schemas: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}
