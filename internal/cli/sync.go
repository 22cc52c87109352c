package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command. It matches every stored activity
// against every custom section, relying on the match caches to skip pairs
// that were already checked.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sync",
		Short:         "Sync custom-section match caches against all activities",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			res := app.coord.Sync(app.client.ActivityIDs())
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return f.Success(res)
			}
			if res.Skipped {
				return f.Success("nothing to sync")
			}
			return f.Success(fmt.Sprintf("checked %d sections, added %d matches",
				res.SectionsSeen, res.MatchesAdded))
		},
	}
}
