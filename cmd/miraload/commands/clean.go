package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/miraload/pkg/pipeline"
)

// NewCleanCommand creates the clean command.
func NewCleanCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clean dashboard-id...",
		Short: "Delete the cells index and entry record of dashboards",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, ids []string) error {
			admin, err := app.Sink(false)
			if err != nil {
				return err
			}

			var errs []error

			for _, id := range ids {
				cleanErr := pipeline.Clean(cmd.Context(), admin, id)
				if cleanErr != nil {
					errs = append(errs, fmt.Errorf("clean %s: %w", id, cleanErr))

					continue
				}

				app.Logger.InfoContext(cmd.Context(), "cleaned dashboard", "dashboard_id", id)
			}

			return errors.Join(errs...)
		},
	}
}
