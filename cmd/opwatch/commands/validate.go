package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opwatch/opwatch/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		Long: `Load and validate the config file without contacting the control plane.

Exits non-zero when the file is missing, malformed or fails validation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			fmt.Printf("Config %s is valid\n", configPath)
			fmt.Printf("  control plane: %s (connection %s)\n",
				cfg.ControlPlane.BaseURL, cfg.ControlPlane.ConnectionID)
			fmt.Printf("  poll interval: %s\n", cfg.Tracker.PollInterval.Std())
			fmt.Printf("  history:       %v\n", cfg.History.Enabled)
			fmt.Printf("  policy:        %v\n", cfg.Policy.Enabled)
			return nil
		},
	}

	return cmd
}
