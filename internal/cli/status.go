package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// StatusData is the status command's payload.
type StatusData struct {
	EngineDB       string `json:"engineDb"`
	Activities     uint32 `json:"activities"`
	RouteGroups    uint32 `json:"routeGroups"`
	Sections       uint32 `json:"sections"`
	CustomSections int    `json:"customSections"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show engine and store counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.close()

			data := StatusData{
				EngineDB:       app.cfg.EngineDB,
				Activities:     app.client.ActivityCount(),
				RouteGroups:    app.client.GroupCount(),
				Sections:       app.client.SectionCount(""),
				CustomSections: len(app.store.LoadAll()),
			}

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return f.Success(data)
			}
			return f.Success(fmt.Sprintf(
				"engine: %s\nactivities: %d\nroute groups: %d\ndetected sections: %d\ncustom sections: %d",
				data.EngineDB, data.Activities, data.RouteGroups, data.Sections, data.CustomSections))
		},
	}
}
