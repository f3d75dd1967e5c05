package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/miraload/pkg/pipeline"
	"github.com/Sumatoshi-tech/miraload/pkg/remote"
)

// NewFetchCommand creates the fetch command.
func NewFetchCommand(app *App) *cobra.Command {
	var (
		kind    string
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "fetch dashboard-id...",
		Short: "Download dashboard inputs from object storage",
		Long: `Fetch copies the files of each dashboard from
<remote.bucket>/<remote.prefix>/<dashboard-id>/ into the data directory,
laid out the way load expects them for the given kind.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, ids []string) error {
			k, err := pipeline.ParseKind(kind)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("data-dir") {
				dataDir = app.Config.Load.DataDir
			}

			rc := app.Config.Remote

			fetcher, err := remote.New(remote.Config{
				Endpoint:        rc.Endpoint,
				Bucket:          rc.Bucket,
				Prefix:          rc.Prefix,
				Region:          rc.Region,
				AccessKeyID:     rc.AccessKeyID,
				SecretAccessKey: rc.SecretAccessKey,
				UseSSL:          rc.UseSSL,
				Logger:          app.Logger,
			})
			if err != nil {
				return err
			}

			for _, id := range ids {
				res, fetchErr := fetcher.Fetch(cmd.Context(), k, dataDir, id)
				if fetchErr != nil {
					return fmt.Errorf("fetch %s: %w", id, fetchErr)
				}

				if !app.Quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files into %s\n", id, len(res.Files), res.Dir)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", string(pipeline.KindSample), "dashboard kind: sample, patient or cohort")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "destination data directory (overrides load.data_dir)")

	return cmd
}
