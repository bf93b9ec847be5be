package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harun/agentbridge/internal/config"
)

var (
	initDefaults bool
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file",
	Long: `Write an agentbridge configuration file.
Runs an interactive configuration wizard unless --defaults is given.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initDefaults, "defaults", false, "write the default configuration without prompting")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
	}

	var cfg *config.Config
	if initDefaults {
		cfg = config.DefaultConfig()
	} else {
		var err error
		cfg, err = config.NewWizardWithIO(cmd.InOrStdin(), cmd.OutOrStdout()).Run()
		if err != nil {
			return fmt.Errorf("configuration failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nConfiguration saved to: %s\n", configPath)
	fmt.Fprintln(out, "\nYou can now start agentbridge with: agentbridge serve")

	return nil
}
