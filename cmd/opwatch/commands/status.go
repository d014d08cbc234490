package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opwatch/opwatch/pkg/config"
	"github.com/opwatch/opwatch/pkg/controlplane"
	"github.com/opwatch/opwatch/pkg/tracker"
)

func newStatusCommand() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status <token>",
		Short: "Query the progress of a submitted mutation",
		Long: `Query the control plane for the current status of a progress token.

With --watch the command polls until the mutation reaches a terminal state.
A token the control plane no longer recognizes ends the watch with an
error.`,
		Args: cobra.ExactArgs(1),
		Example: `  # One-shot status query
  opwatch status 6f1c9c0e-8e2a-4b3f-9d7a-1a2b3c4d5e6f

  # Poll until terminal
  opwatch status 6f1c9c0e-8e2a-4b3f-9d7a-1a2b3c4d5e6f --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := args[0]
			ctx := cmd.Context()

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			client, err := controlplane.NewClient(controlplane.ClientConfig{
				BaseURL:        cfg.ControlPlane.BaseURL,
				AuthToken:      cfg.ControlPlane.AuthToken,
				RequestTimeout: cfg.ControlPlane.RequestTimeout.Std(),
			})
			if err != nil {
				return err
			}

			// An explicit --interval pins the cadence. Otherwise the
			// configured poll interval applies, and while watching, config
			// file edits take effect on the next tick.
			source := newIntervalSource(interval)
			if interval <= 0 {
				source.set(cfg.Tracker.PollInterval.Std())
				if watch {
					watcher, watched, err := watchPollInterval(configPath, cfg.Tracker.PollInterval.Std(), log.Logger)
					if err != nil {
						log.Warn().Err(err).Msg("Config hot-reload unavailable, keeping the configured interval")
					} else {
						defer func() { _ = watcher.Stop() }()
						source = watched
					}
				}
			}

			for {
				descriptor, err := client.Status(ctx, token)
				switch {
				case tracker.IsTokenNotFound(err):
					return fmt.Errorf("control plane no longer recognizes token %s", token)
				case tracker.IsTransient(err) && watch:
					// Transient faults are retried on the next tick.
				case err != nil:
					return err
				default:
					printDescriptor(descriptor)
					if !watch || descriptor.Status.IsTerminal() {
						return nil
					}
				}

				select {
				case <-time.After(source.get()):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "poll until the mutation is terminal")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (defaults to the configured one)")

	return cmd
}

func printDescriptor(d tracker.ProgressDescriptor) {
	if jsonOutput {
		payload, _ := json.MarshalIndent(d, "", "  ")
		fmt.Println(string(payload))
		return
	}

	line := fmt.Sprintf("%s  %s  %s", d.Token, d.Operation, d.Status)
	if d.ResourceID != "" {
		line += "  " + d.ResourceType + "/" + d.ResourceID
	} else {
		line += "  " + d.ResourceType
	}
	if d.Message != "" {
		line += "  " + d.Message
	}
	fmt.Println(line)
}
