package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veloq/enginesync/internal/section"
	"github.com/veloq/enginesync/internal/validate"
)

// NewSectionsCommand creates the sections command group for user-authored
// custom sections.
func NewSectionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sections",
		Short: "Manage custom sections and their match caches",
	}
	cmd.AddCommand(newSectionsListCommand(rootOpts))
	cmd.AddCommand(newSectionsShowCommand(rootOpts))
	cmd.AddCommand(newSectionsCreateCommand(rootOpts))
	cmd.AddCommand(newSectionsRenameCommand(rootOpts))
	cmd.AddCommand(newSectionsDeleteCommand(rootOpts))
	cmd.AddCommand(newSectionsMatchesCommand(rootOpts))
	return cmd
}

func newSectionsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List custom sections",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			all := app.store.LoadAllWithMatches()
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return f.Success(all)
			}
			if len(all) == 0 {
				return f.Success("no custom sections")
			}
			var b strings.Builder
			for _, s := range all {
				fmt.Fprintf(&b, "%s  %q  %s  %.0f m  %d matches\n",
					s.Section.ID, s.Section.Name, s.Section.SportType,
					s.Section.DistanceMeters, len(s.Matches))
			}
			return f.Success(strings.TrimRight(b.String(), "\n"))
		},
	}
}

func newSectionsShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <section-id>",
		Short:         "Show one custom section with its matches",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			s, ok := app.store.GetByIDWithMatches(args[0])
			if !ok {
				return NewExitError(ExitFailure, "section not found: "+args[0])
			}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return f.Success(s)
			}
			return f.Success(fmt.Sprintf(
				"%s %q\nsport: %s\ndistance: %.0f m\npoints: %d\nsource: %s [%d:%d]\nmatches: %d",
				s.Section.ID, s.Section.Name, s.Section.SportType, s.Section.DistanceMeters,
				len(s.Section.Polyline), s.Section.SourceActivityID,
				s.Section.StartIndex, s.Section.EndIndex, len(s.Matches)))
		},
	}
}

func newSectionsCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		fromActivity string
		startIndex   int
		endIndex     int
		name         string
		payloadFile  string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a custom section and match it against stored activities",
		Long: `Create a custom section.

Either cut a slice out of a stored activity's track:
  veloq sections create --from-activity act-1 --start 120 --end 410 --name "Canal Sprint"

or validate and store a complete JSON payload:
  veloq sections create --file section.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			var sec section.CustomSection
			switch {
			case payloadFile != "":
				buf, err := os.ReadFile(payloadFile)
				if err != nil {
					return WrapExitError(ExitCommandError, "read section payload", err)
				}
				sec, err = validate.CustomSectionPayload(string(buf))
				if err != nil {
					return WrapExitError(ExitFailure, "invalid section payload", err)
				}
			case fromActivity != "":
				sec, err = sectionFromActivity(app, fromActivity, startIndex, endIndex, name)
				if err != nil {
					return err
				}
			default:
				return NewExitError(ExitCommandError, "either --from-activity or --file is required")
			}

			if err := app.store.Add(sec); err != nil {
				return WrapExitError(ExitFailure, "store section", err)
			}

			// Match the new section against everything the engine holds.
			added := 0
			for _, m := range app.client.MatchCustomSection(sec, app.client.ActivityIDs()) {
				if err := app.store.AddMatch(sec.ID, m); err != nil {
					return WrapExitError(ExitFailure, "cache section match", err)
				}
				added++
			}

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return f.Success(map[string]any{"id": sec.ID, "name": sec.Name, "matches": added})
			}
			return f.Success(fmt.Sprintf("created %s %q with %d matches", sec.ID, sec.Name, added))
		},
	}
	cmd.Flags().StringVar(&fromActivity, "from-activity", "", "source activity id")
	cmd.Flags().IntVar(&startIndex, "start", 0, "start point index in the source track")
	cmd.Flags().IntVar(&endIndex, "end", 0, "end point index in the source track")
	cmd.Flags().StringVar(&name, "name", "", "section name (generated when empty)")
	cmd.Flags().StringVar(&payloadFile, "file", "", "complete section payload JSON file")
	return cmd
}

// sectionFromActivity cuts a section out of a stored activity's track and
// runs the result through payload validation before it is stored.
func sectionFromActivity(app *app, activityID string, startIndex, endIndex int, name string) (section.CustomSection, error) {
	var zero section.CustomSection
	track, err := app.client.GPSTrack(activityID)
	if err != nil {
		return zero, WrapExitError(ExitFailure, "load source track", err)
	}
	if startIndex < 0 || endIndex >= len(track) || startIndex >= endIndex {
		return zero, NewExitError(ExitCommandError,
			fmt.Sprintf("index range [%d:%d] is outside the %d-point track", startIndex, endIndex, len(track)))
	}

	if name == "" {
		name = app.store.GenerateUniqueName()
	}

	polyline := track[startIndex : endIndex+1]
	sec := section.CustomSection{
		ID:               section.NewID(),
		Name:             name,
		Polyline:         polyline,
		SourceActivityID: activityID,
		StartIndex:       startIndex,
		EndIndex:         endIndex,
		SportType:        sportTypeOf(app, activityID),
		DistanceMeters:   section.TrackDistance(polyline),
		CreatedAt:        section.Now(),
	}
	if _, err := validate.CustomSectionPayload(sec); err != nil {
		return zero, WrapExitError(ExitFailure, "invalid section", err)
	}
	return sec, nil
}

func sportTypeOf(app *app, activityID string) string {
	for _, a := range app.client.RecentActivities(^uint32(0)) {
		if a.ID == activityID {
			return a.SportType
		}
	}
	return "Ride"
}

func newSectionsRenameCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rename <section-id> <name>",
		Short:         "Rename a custom section",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			if err := validate.Name(args[1], "name"); err != nil {
				return WrapExitError(ExitFailure, "invalid name", err)
			}
			name := args[1]
			if err := app.store.Update(args[0], section.Update{Name: &name}); err != nil {
				return WrapExitError(ExitFailure, "rename section", err)
			}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(fmt.Sprintf("renamed %s to %q", args[0], name))
		},
	}
}

func newSectionsDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <section-id>",
		Short:         "Delete a custom section and its match cache",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.store.Delete(args[0]); err != nil {
				return WrapExitError(ExitFailure, "delete section", err)
			}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success("deleted " + args[0])
		},
	}
}

func newSectionsMatchesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "matches <section-id>",
		Short:         "List cached matches for a custom section",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			matches := app.store.LoadMatches(args[0])
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return f.Success(matches)
			}
			if len(matches) == 0 {
				return f.Success("no matches")
			}
			var b strings.Builder
			for _, m := range matches {
				fmt.Fprintf(&b, "%s  [%d:%d]  %s  %.0f m\n",
					m.ActivityID, m.StartIndex, m.EndIndex, m.Direction, m.DistanceMeters)
			}
			return f.Success(strings.TrimRight(b.String(), "\n"))
		},
	}
}
