// Package commands implements CLI command handlers for miraload.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/miraload/pkg/observability"
	"github.com/Sumatoshi-tech/miraload/pkg/version"
)

// NewRootCommand builds the miraload command tree.
func NewRootCommand() *cobra.Command {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "miraload",
		Short: "Load single-cell expression dashboards into a search index",
		Long: `miraload turns single-cell matrices and their cell, gene and sample
tables into one search document per cell, verifies the load and records a
dashboard entry.

Commands:
  load          Load dashboards by id or from a manifest
  check         Run a load against a discarding sink and report integrity
  clean         Delete the cells index and entry of dashboards
  fetch         Download dashboard inputs from object storage
  load-markers  Load the marker gene matrix
  load-genes    Load a gene list`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if manifest := cmd.Flags().Lookup("manifest"); manifest != nil && manifest.Changed {
				app.Mode = observability.ModeBatch
			}

			return app.Setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return app.Close(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.ConfigPath, "config", "", "config file (default .miraload.yaml in . or $HOME)")
	flags.BoolVarP(&app.Verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&app.Quiet, "quiet", "q", false, "suppress output")
	flags.BoolVar(&app.NoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		NewLoadCommand(app),
		NewCheckCommand(app),
		NewCleanCommand(app),
		NewFetchCommand(app),
		NewLoadMarkersCommand(app),
		NewLoadGenesCommand(app),
		versionCmd(),
	)

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// The version banner needs no configuration.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
