package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veloq/enginesync/internal/engine"
	"github.com/veloq/enginesync/internal/section"
)

// activityInput is one activity in an ingestion file.
type activityInput struct {
	ID         string                  `json:"id"`
	SportType  string                  `json:"sportType"`
	Track      []section.GeoPoint      `json:"track"`
	TimeStream []float64               `json:"timeStream,omitempty"`
	Metrics    *engine.ActivityMetrics `json:"metrics,omitempty"`
}

// NewActivitiesCommand creates the activities command group.
func NewActivitiesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activities",
		Short: "Ingest and manage engine activities",
	}
	cmd.AddCommand(newActivitiesAddCommand(rootOpts))
	cmd.AddCommand(newActivitiesListCommand(rootOpts))
	cmd.AddCommand(newActivitiesRemoveCommand(rootOpts))
	cmd.AddCommand(newActivitiesCleanupCommand(rootOpts))
	return cmd
}

func newActivitiesAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <activities.json>",
		Short: "Ingest activities from a JSON file and sync custom sections",
		Long: `Ingest activities from a JSON file.

The file holds an array of activities:
  [{"id": "act-1", "sportType": "Ride",
    "track": [{"latitude": 51.5, "longitude": -0.1}, ...],
    "timeStream": [0, 4, 9, ...],
    "metrics": {"activityId": "act-1", "distanceMeters": 12000, ...}}]

After ingestion the new activities are matched against every stored custom
section.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()
			return addActivities(app, rootOpts, cmd, args[0])
		},
	}
}

func addActivities(app *app, rootOpts *RootOptions, cmd *cobra.Command, path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read activities file", err)
	}
	var inputs []activityInput
	if err := json.Unmarshal(buf, &inputs); err != nil {
		return WrapExitError(ExitCommandError, "parse activities file", err)
	}
	if len(inputs) == 0 {
		return NewExitError(ExitCommandError, "activities file is empty")
	}

	ids := make([]string, len(inputs))
	sportTypes := make([]string, len(inputs))
	tracks := make([][]section.GeoPoint, len(inputs))
	for i, in := range inputs {
		ids[i] = in.ID
		sportTypes[i] = in.SportType
		tracks[i] = in.Track
	}
	coords, offsets := engine.FlattenTracks(tracks)
	if err := app.client.AddActivities(ids, coords, offsets, sportTypes); err != nil {
		return WrapExitError(ExitFailure, "add activities", err)
	}

	var streamIDs []string
	var streams [][]float64
	var metrics []engine.ActivityMetrics
	for _, in := range inputs {
		if len(in.TimeStream) > 0 {
			streamIDs = append(streamIDs, in.ID)
			streams = append(streams, in.TimeStream)
		}
		if in.Metrics != nil {
			m := *in.Metrics
			m.ActivityID = in.ID
			metrics = append(metrics, m)
		}
	}
	if len(streamIDs) > 0 {
		if err := app.client.SetTimeStreams(streamIDs, streams); err != nil {
			return WrapExitError(ExitFailure, "set time streams", err)
		}
	}
	if len(metrics) > 0 {
		if err := app.client.SetActivityMetrics(metrics); err != nil {
			return WrapExitError(ExitFailure, "set activity metrics", err)
		}
	}

	res := app.coord.Sync(ids)

	f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	if rootOpts.Format == "json" {
		return f.Success(map[string]any{
			"added":        len(ids),
			"matchesAdded": res.MatchesAdded,
		})
	}
	return f.Success(fmt.Sprintf("added %d activities, %d new section matches", len(ids), res.MatchesAdded))
}

func newActivitiesListCommand(rootOpts *RootOptions) *cobra.Command {
	var limit uint32
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List recent activities",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			recent := app.client.RecentActivities(limit)
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return f.Success(recent)
			}
			if len(recent) == 0 {
				return f.Success("no activities")
			}
			var b strings.Builder
			for _, a := range recent {
				fmt.Fprintf(&b, "%s  %s  %.1f km\n", a.ID, a.SportType, a.DistanceMeters/1000)
			}
			return f.Success(strings.TrimRight(b.String(), "\n"))
		},
	}
	cmd.Flags().Uint32Var(&limit, "limit", 20, "maximum number of activities")
	return cmd
}

func newActivitiesRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <activity-id>...",
		Short:         "Remove activities and their derived state",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.client.RemoveActivities(args); err != nil {
				return WrapExitError(ExitFailure, "remove activities", err)
			}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(fmt.Sprintf("removed %d activities", len(args)))
		},
	}
}

func newActivitiesCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	var retentionDays uint32
	cmd := &cobra.Command{
		Use:           "cleanup",
		Short:         "Remove activities older than the retention window",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			days := retentionDays
			if days == 0 {
				days = app.cfg.RetentionDays
			}
			removed, err := app.client.CleanupOldActivities(days)
			if err != nil {
				return WrapExitError(ExitFailure, "cleanup activities", err)
			}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(fmt.Sprintf("removed %d activities older than %d days", removed, days))
		},
	}
	cmd.Flags().Uint32Var(&retentionDays, "retention-days", 0, "retention window (default from config)")
	return cmd
}
