package cli

import (
	"github.com/spf13/cobra"
)

// NewClearCommand creates the clear command. It wipes both the engine state
// and the custom-section store; --engine-only keeps user-authored sections.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	var engineOnly bool
	cmd := &cobra.Command{
		Use:           "clear",
		Short:         "Wipe engine state and custom sections",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			app.client.Clear()
			if !engineOnly {
				if err := app.store.ClearAll(); err != nil {
					return WrapExitError(ExitCommandError, "clear section store", err)
				}
			}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success("cleared")
		},
	}
	cmd.Flags().BoolVar(&engineOnly, "engine-only", false, "keep custom sections and their caches")
	return cmd
}
