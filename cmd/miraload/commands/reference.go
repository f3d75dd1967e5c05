package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/miraload/pkg/markers"
	"github.com/Sumatoshi-tech/miraload/pkg/metadata"
	"github.com/Sumatoshi-tech/miraload/pkg/pipeline"
	"github.com/Sumatoshi-tech/miraload/pkg/sink"
)

// NewLoadMarkersCommand creates the load-markers command.
func NewLoadMarkersCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "load-markers <file-or-url>",
		Short: "Load the marker gene matrix into " + pipeline.MarkerGenesIndex,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := markers.Load(cmd.Context(), args[0], app.Logger)
			if err != nil {
				return err
			}

			out, err := app.Sink(false)
			if err != nil {
				return err
			}

			res, err := pipeline.LoadMarkers(cmd.Context(), out, records)

			return app.reportReference(cmd, pipeline.MarkerGenesIndex, res, err)
		},
	}
}

// NewLoadGenesCommand creates the load-genes command.
func NewLoadGenesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "load-genes <genes.tsv>",
		Short: "Load a gene list into " + pipeline.GenesIndex,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open gene list: %w", err)
			}
			defer f.Close()

			genes, err := metadata.ReadGeneTable(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			out, err := app.Sink(false)
			if err != nil {
				return err
			}

			res, err := pipeline.LoadGenes(cmd.Context(), out, genes)

			return app.reportReference(cmd, pipeline.GenesIndex, res, err)
		},
	}
}

func (a *App) reportReference(cmd *cobra.Command, index string, res sink.BulkResult, err error) error {
	if err != nil {
		return err
	}

	for _, failure := range res.Failed {
		a.Logger.WarnContext(cmd.Context(), "document rejected",
			"index", index, "position", failure.Position, "reason", failure.Reason)
	}

	if !a.Quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d indexed, %d failed\n", index, res.Indexed, len(res.Failed))
	}

	return nil
}
