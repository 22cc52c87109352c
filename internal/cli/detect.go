package cli

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/veloq/enginesync/internal/engine"
)

// NewDetectCommand creates the detect command. It starts a section detection
// run and polls until a terminal status, cancelling the run on interrupt.
func NewDetectCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		sportFilter  string
		pollInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:           "detect",
		Short:         "Run section detection across stored activities",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			if !app.client.StartSectionDetection(sportFilter) {
				return NewExitError(ExitFailure, "detection did not start (already running?)")
			}

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)
			defer signal.Stop(interrupt)

			ticker := time.NewTicker(pollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-interrupt:
					app.client.CancelSectionDetection()
					return NewExitError(ExitFailure, "detection cancelled")
				case <-ticker.C:
					switch app.client.PollSectionDetection() {
					case engine.DetectionComplete:
						f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
						if rootOpts.Format == "json" {
							return f.Success(map[string]any{
								"groups":   app.client.GroupCount(),
								"sections": app.client.SectionCount(sportFilter),
							})
						}
						return f.Success(fmt.Sprintf("detection complete: %d groups, %d sections",
							app.client.GroupCount(), app.client.SectionCount(sportFilter)))
					case engine.DetectionError:
						return NewExitError(ExitFailure, "detection failed")
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&sportFilter, "sport", "", "restrict detection to one sport type")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 200*time.Millisecond, "status poll interval")
	return cmd
}
