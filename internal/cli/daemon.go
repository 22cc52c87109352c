package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// NewDaemonCommand creates the daemon command: a long-running process that
// periodically syncs custom-section match caches on the configured cron
// schedule.
func NewDaemonCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "daemon",
		Short:         "Run periodic section sync on the configured schedule",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			runSync := func() {
				res := app.coord.Sync(app.client.ActivityIDs())
				if !res.Skipped {
					app.logger.Info("scheduled sync pass",
						"sections", res.SectionsSeen, "matches_added", res.MatchesAdded)
				}
			}

			c := cron.New()
			if _, err := c.AddFunc(app.cfg.SyncSchedule, runSync); err != nil {
				return WrapExitError(ExitCommandError, "invalid sync schedule", err)
			}

			app.logger.Info("daemon started", "schedule", app.cfg.SyncSchedule)
			runSync()
			c.Start()
			defer c.Stop()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			sig := <-stop
			app.logger.Info("daemon stopping", "signal", sig.String())
			return nil
		},
	}
}
