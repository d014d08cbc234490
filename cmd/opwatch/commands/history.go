package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opwatch/opwatch/pkg/history"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the audit trail of completed mutations",
		Long: `Inspect the SQLite audit trail of terminal mutation outcomes.

Requires history to be enabled in the config file.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistorySummaryCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var (
		resourceType string
		status       string
		limit        int
		offset       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded outcomes, newest first",
		Example: `  # Last 20 outcomes
  opwatch history list --limit 20

  # Failed router mutations
  opwatch history list --type network:router --status failed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, cfg, err := buildHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			records, err := store.List(ctx, history.Filter{
				ConnectionID: cfg.ControlPlane.ConnectionID,
				ResourceType: resourceType,
				Status:       status,
				Limit:        limit,
				Offset:       offset,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				payload, _ := json.MarshalIndent(records, "", "  ")
				fmt.Println(string(payload))
				return nil
			}

			for _, r := range records {
				printRecord(r)
			}
			fmt.Printf("%d record(s)\n", len(records))
			return nil
		},
	}

	cmd.Flags().StringVarP(&resourceType, "type", "t", "", "filter by resource type")
	cmd.Flags().StringVar(&status, "status", "", "filter by terminal status")
	cmd.Flags().IntVar(&limit, "limit", 50, "max records to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <token>",
		Short: "Show the recorded outcome for a progress token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, _, err := buildHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			record, err := store.GetByToken(ctx, args[0])
			if err != nil {
				return err
			}

			payload, _ := json.MarshalIndent(record, "", "  ")
			fmt.Println(string(payload))
			return nil
		},
	}

	return cmd
}

func newHistorySummaryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate outcome counts per terminal status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, _, err := buildHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			summary, err := store.Summarize(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				payload, _ := json.MarshalIndent(summary, "", "  ")
				fmt.Println(string(payload))
				return nil
			}

			fmt.Printf("Total: %d\n", summary.Total)
			for status, count := range summary.ByStatus {
				fmt.Printf("  %-16s %d\n", status, count)
			}
			return nil
		},
	}

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete outcomes older than a retention window",
		Example: `  # Drop everything older than 30 days
  opwatch history prune --older-than 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, _, err := buildHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			removed, err := store.PruneBefore(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}

			fmt.Printf("Pruned %d record(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "retention window")

	return cmd
}

func printRecord(r *history.Record) {
	result := "failed"
	if r.Succeeded {
		result = "ok"
	}
	resource := r.ResourceType
	if r.ResourceID != "" {
		resource += "/" + r.ResourceID
	}
	fmt.Printf("%s  %-6s %-15s %-7s %s  %dms  %s\n",
		r.CompletedAt.Format(time.RFC3339), r.Operation, r.Status, result,
		resource, r.DurationMS, r.Token)
}
