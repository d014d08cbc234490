package commands

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/opwatch/opwatch/pkg/config"
	"github.com/opwatch/opwatch/pkg/policy"
	"github.com/opwatch/opwatch/pkg/tracker"
)

func newPoliciesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Inspect and dry-run submission policies",
	}

	cmd.AddCommand(newPoliciesListCommand())
	cmd.AddCommand(newPoliciesCheckCommand())

	return cmd
}

// buildEngine loads the configured policy set without the rest of the app.
func buildEngine(cmd *cobra.Command) (*policy.Engine, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	engine, err := policy.NewEngine(zerolog.Nop())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create policy engine: %w", err)
	}
	if cfg.Policy.Dir != "" {
		if err := engine.LoadPolicies(cmd.Context(), []string{cfg.Policy.Dir}); err != nil {
			return nil, nil, fmt.Errorf("failed to load policies: %w", err)
		}
	}

	return engine, cfg, nil
}

func newPoliciesListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded policies, builtin and custom",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := buildEngine(cmd)
			if err != nil {
				return err
			}

			policies := engine.ListPolicies()
			if jsonOutput {
				payload, _ := json.MarshalIndent(policies, "", "  ")
				fmt.Println(string(payload))
				return nil
			}

			for _, p := range policies {
				state := "enabled"
				if !p.Enabled {
					state = "disabled"
				}
				fmt.Printf("%-30s %-8s %-8s %s\n", p.Name, p.Severity, state, p.Description)
			}
			return nil
		},
	}

	return cmd
}

func newPoliciesCheckCommand() *cobra.Command {
	var (
		operation    string
		resourceType string
		resourceID   string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Dry-run a submission against the policy set",
		Example: `  # Would a delete of a protected type be allowed?
  opwatch policies check --op delete --type network:vpn_gateway --id vpn-1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cfg, err := buildEngine(cmd)
			if err != nil {
				return err
			}

			guard := policy.NewGuard(engine,
				policy.WithProtectedTypes(cfg.Policy.ProtectedResourceTypes),
				policy.WithAllowedConnections(cfg.Policy.AllowedConnections))

			err = guard.Authorize(cmd.Context(), tracker.SubmissionRequest{
				ConnectionID: cfg.ControlPlane.ConnectionID,
				Operation:    tracker.OperationKind(operation),
				ResourceType: resourceType,
				ResourceID:   resourceID,
			})
			if err != nil {
				fmt.Printf("denied: %v\n", err)
				return nil
			}

			fmt.Println("allowed")
			return nil
		},
	}

	cmd.Flags().StringVar(&operation, "op", "create", "operation kind (create, update, delete)")
	cmd.Flags().StringVarP(&resourceType, "type", "t", "", "resource type")
	cmd.Flags().StringVarP(&resourceID, "id", "i", "", "resource identifier")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}
