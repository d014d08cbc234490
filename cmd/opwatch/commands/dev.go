package commands

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opwatch/opwatch/pkg/controlplane"
	"github.com/opwatch/opwatch/pkg/tracker"
)

func newDevCommand() *cobra.Command {
	var (
		listen    string
		steps     int
		failTypes []string
	)

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Run an in-memory control plane for local development",
		Long: `Run an in-memory control plane that speaks the same API as a real one.

Every accepted mutation walks through pending and in_progress before
resolving, one step per status poll. Point base_url at the listen address
to exercise the full submit and poll path locally.`,
		Example: `  # Serve on the default port
  opwatch dev

  # Make every subnet mutation fail terminally
  opwatch dev --fail-type network:subnet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []controlplane.DevServerOption{
				controlplane.WithStepsToComplete(steps),
			}
			for _, t := range failTypes {
				opts = append(opts, controlplane.WithOutcome(t, tracker.StatusFailed))
			}

			server := &http.Server{
				Addr:              listen,
				Handler:           controlplane.NewDevServer(opts...).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				<-cmd.Context().Done()
				_ = server.Close()
			}()

			log.Info().Str("listen", listen).Msg("Dev control plane listening")
			fmt.Printf("Dev control plane on http://%s (base_url for opwatch.yaml)\n", listen)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8780", "listen address")
	cmd.Flags().IntVar(&steps, "steps", 2, "status polls before a mutation resolves")
	cmd.Flags().StringSliceVar(&failTypes, "fail-type", nil, "resource types that resolve to failed")

	return cmd
}
