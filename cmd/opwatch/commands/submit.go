package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opwatch/opwatch/pkg/tracker"
)

func newSubmitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a mutation and track it to completion",
		Long: `Submit a create, update or delete mutation to the control plane.

The control plane accepts the mutation and returns a progress token; opwatch
then polls the token until the mutation reaches a terminal state. With
--no-wait the command returns as soon as the submission is accepted.`,
	}

	cmd.AddCommand(newSubmitCreateCommand())
	cmd.AddCommand(newSubmitUpdateCommand())
	cmd.AddCommand(newSubmitDeleteCommand())

	return cmd
}

func newSubmitCreateCommand() *cobra.Command {
	var (
		resourceType string
		stateFile    string
		noWait       bool
		waitTimeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new resource",
		Example: `  # Create a router from a desired-state file
  opwatch submit create --type network:router --state router.json

  # Fire and forget
  opwatch submit create --type network:router --state router.json --no-wait`,
		RunE: func(cmd *cobra.Command, args []string) error {
			desiredState, err := os.ReadFile(stateFile)
			if err != nil {
				return fmt.Errorf("failed to read state file: %w", err)
			}

			return runSubmit(cmd.Context(), noWait, waitTimeout,
				func(ctx context.Context, a *app) error {
					return a.tracker.SubmitCreate(ctx,
						a.cfg.ControlPlane.ConnectionID, resourceType, string(desiredState))
				})
		},
	}

	cmd.Flags().StringVarP(&resourceType, "type", "t", "", "resource type, e.g. network:router")
	cmd.Flags().StringVarP(&stateFile, "state", "s", "", "desired state JSON file")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return once the submission is accepted")
	cmd.Flags().DurationVar(&waitTimeout, "timeout", 10*time.Minute, "max time to wait for completion")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("state")

	return cmd
}

func newSubmitUpdateCommand() *cobra.Command {
	var (
		resourceType string
		resourceID   string
		patchFile    string
		noWait       bool
		waitTimeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update an existing resource",
		Example: `  # Patch a router
  opwatch submit update --type network:router --id rtr-42 --patch mtu.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := os.ReadFile(patchFile)
			if err != nil {
				return fmt.Errorf("failed to read patch file: %w", err)
			}

			return runSubmit(cmd.Context(), noWait, waitTimeout,
				func(ctx context.Context, a *app) error {
					return a.tracker.SubmitUpdate(ctx,
						a.cfg.ControlPlane.ConnectionID, resourceType, resourceID, string(patch))
				})
		},
	}

	cmd.Flags().StringVarP(&resourceType, "type", "t", "", "resource type")
	cmd.Flags().StringVarP(&resourceID, "id", "i", "", "resource identifier")
	cmd.Flags().StringVarP(&patchFile, "patch", "p", "", "patch JSON file")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return once the submission is accepted")
	cmd.Flags().DurationVar(&waitTimeout, "timeout", 10*time.Minute, "max time to wait for completion")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("patch")

	return cmd
}

func newSubmitDeleteCommand() *cobra.Command {
	var (
		resourceType string
		resourceID   string
		noWait       bool
		waitTimeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an existing resource",
		Example: `  # Delete a router and wait for the control plane to finish
  opwatch submit delete --type network:router --id rtr-42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), noWait, waitTimeout,
				func(ctx context.Context, a *app) error {
					return a.tracker.SubmitDelete(ctx,
						a.cfg.ControlPlane.ConnectionID, resourceType, resourceID)
				})
		},
	}

	cmd.Flags().StringVarP(&resourceType, "type", "t", "", "resource type")
	cmd.Flags().StringVarP(&resourceID, "id", "i", "", "resource identifier")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return once the submission is accepted")
	cmd.Flags().DurationVar(&waitTimeout, "timeout", 10*time.Minute, "max time to wait for completion")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

// runSubmit wires the app, registers a completion watcher, performs the
// submission and, unless noWait is set, blocks until the mutation reaches a
// terminal state.
func runSubmit(ctx context.Context, noWait bool, waitTimeout time.Duration, submit func(context.Context, *app) error) error {
	a, err := buildApp(ctx, "cli")
	if err != nil {
		return err
	}
	defer a.close(ctx)

	watcher := newCompletionWatcher()
	sub := a.tracker.Subscribe(watcher)
	defer sub.Cancel()

	if err := submit(ctx, a); err != nil {
		return err
	}

	for _, state := range a.tracker.States() {
		a.telemetry.Metrics.RecordSubmission(string(state.Operation), state.ResourceType)
		_ = a.telemetry.Events.PublishMutationSubmitted(
			state.Token, state.ConnectionID, state.ResourceType, string(state.Operation))
	}

	if noWait {
		fmt.Println("Submission accepted, not waiting for completion")
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	select {
	case state := <-watcher.terminal:
		printState(state)
		if state.Status != tracker.StatusSucceeded {
			return fmt.Errorf("mutation ended %s: %s", state.Status, state.Message)
		}
		return nil

	case <-waitCtx.Done():
		return fmt.Errorf("timed out waiting for the mutation to complete")
	}
}

// completionWatcher forwards terminal state changes to a channel. Progress
// states are printed as they happen.
type completionWatcher struct {
	terminal chan tracker.MutationState
}

func newCompletionWatcher() *completionWatcher {
	return &completionWatcher{
		terminal: make(chan tracker.MutationState, 1),
	}
}

func (w *completionWatcher) OnStateChanged(state tracker.MutationState) {
	if !state.Status.IsTerminal() {
		fmt.Fprintf(os.Stderr, "  %s %s\n", state.Token, state.Status)
		return
	}
	select {
	case w.terminal <- state:
	default:
	}
}

func (w *completionWatcher) OnPollingRoundComplete() {}

func printState(state tracker.MutationState) {
	if jsonOutput {
		payload, _ := json.MarshalIndent(state, "", "  ")
		fmt.Println(string(payload))
		return
	}

	fmt.Printf("Token:     %s\n", state.Token)
	fmt.Printf("Operation: %s\n", state.Operation)
	fmt.Printf("Resource:  %s", state.ResourceType)
	if state.ResourceID != "" {
		fmt.Printf("/%s", state.ResourceID)
	}
	fmt.Println()
	fmt.Printf("Status:    %s\n", state.Status)
	if state.Message != "" {
		fmt.Printf("Message:   %s\n", state.Message)
	}
}
