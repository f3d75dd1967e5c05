package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/miraload/pkg/checkpoint"
	"github.com/Sumatoshi-tech/miraload/pkg/config"
	"github.com/Sumatoshi-tech/miraload/pkg/pipeline"
	"github.com/Sumatoshi-tech/miraload/pkg/sink"
)

// Command errors.
var (
	ErrNoTargets     = errors.New("no dashboards given: pass ids or --manifest")
	ErrTargetsAndIDs = errors.New("ids and --manifest are mutually exclusive")
	ErrLoadFailed    = errors.New("dashboard loads failed")
	ErrInvalidFormat = errors.New("invalid output format")
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// loadCommand holds the flags shared by load and check.
type loadCommand struct {
	app    *App
	dryRun bool

	manifest     string
	kind         string
	date         string
	dataDir      string
	mode         string
	chunkSize    int
	memoryBudget string
	maxGeneIndex int
	strictCount  bool
	reload       bool
	noResume     bool
	format       string
}

// NewLoadCommand creates the load command.
func NewLoadCommand(app *App) *cobra.Command {
	lc := &loadCommand{app: app}

	cmd := &cobra.Command{
		Use:   "load [dashboard-id...]",
		Short: "Load dashboards into the configured sink",
		Long: `Load reads the cell, gene and sample tables and the expression matrix of
each dashboard, writes one document per cell into dashboard_cells_<id> and,
once the load verifies, records the dashboard in dashboard_entry.

Dashboards already recorded are skipped unless --reload is given. A failed
dashboard is cleaned up and the run continues with the next one.`,
		RunE: lc.run,
	}

	lc.bind(cmd)
	cmd.Flags().BoolVar(&lc.reload, "reload", false, "delete and reload dashboards that are already loaded")
	cmd.Flags().BoolVar(&lc.noResume, "no-resume", false, "ignore the checkpoint journal of an earlier manifest run")

	return cmd
}

// NewCheckCommand creates the check command.
func NewCheckCommand(app *App) *cobra.Command {
	lc := &loadCommand{app: app, dryRun: true}

	cmd := &cobra.Command{
		Use:   "check [dashboard-id...]",
		Short: "Run loads against a discarding sink and report integrity",
		Long: `Check runs the full pipeline, including document encoding and integrity
verification, without writing to any sink.`,
		RunE: lc.run,
	}

	lc.bind(cmd)

	return cmd
}

func (lc *loadCommand) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&lc.manifest, "manifest", "m", "", "YAML manifest listing dashboards")
	flags.StringVarP(&lc.kind, "kind", "k", string(pipeline.KindSample), "dashboard kind: sample, patient or cohort")
	flags.StringVar(&lc.date, "date", "", "entry date (RFC3339 or YYYY-MM-DD); older entries are reloaded")
	flags.StringVar(&lc.dataDir, "data-dir", "", "input data directory (overrides load.data_dir)")
	flags.StringVar(&lc.mode, "mode", "", "read mode: auto, chunked or whole (overrides load.mode)")
	flags.IntVar(&lc.chunkSize, "chunk-size", 0, "matrix rows per chunk (overrides load.chunk_size)")
	flags.StringVar(&lc.memoryBudget, "memory-budget", "", "memory budget for chunk planning, e.g. 512MB")
	flags.IntVar(&lc.maxGeneIndex, "max-gene-index", 0, "drop matrix rows above this gene index")
	flags.BoolVar(&lc.strictCount, "strict-entry-count", false, "fail when the emitted entry count differs from the header")
	flags.StringVarP(&lc.format, "format", "f", FormatTable, "report format: table or json")
}

// settings applies the flags that were set over the configured load settings.
func (lc *loadCommand) settings(cmd *cobra.Command) config.LoadSettings {
	settings := lc.app.Config.Load
	flags := cmd.Flags()

	if flags.Changed("data-dir") {
		settings.DataDir = lc.dataDir
	}

	if flags.Changed("mode") {
		settings.Mode = lc.mode
	}

	if flags.Changed("chunk-size") {
		settings.ChunkSize = lc.chunkSize
	}

	if flags.Changed("memory-budget") {
		settings.MemoryBudget = lc.memoryBudget
	}

	if flags.Changed("max-gene-index") {
		settings.MaxGeneIndex = lc.maxGeneIndex
	}

	if flags.Changed("strict-entry-count") {
		settings.StrictEntryCount = lc.strictCount
	}

	return settings
}

func (lc *loadCommand) run(cmd *cobra.Command, args []string) error {
	if lc.format != FormatTable && lc.format != FormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, lc.format)
	}

	kind, err := pipeline.ParseKind(lc.kind)
	if err != nil {
		return err
	}

	opts, err := lc.settings(cmd).Options()
	if err != nil {
		return err
	}

	err = opts.Validate()
	if err != nil {
		return err
	}

	targets, err := lc.targets(kind, args)
	if err != nil {
		return err
	}

	out, err := lc.app.Sink(lc.dryRun)
	if err != nil {
		return err
	}

	runner := &pipeline.Runner{
		Loader: lc.app.Loader(out, opts),
		Admin:  out,
		Reload: lc.reload || lc.dryRun,
		Logger: lc.app.Logger,
	}

	var tracker *checkpoint.Tracker

	if lc.manifest != "" && !lc.dryRun && lc.app.Config.Checkpoint.Enabled {
		tracker, err = lc.openTracker()
		if err != nil {
			return err
		}

		runner.Progress = tracker
	}

	outcomes := runner.Run(cmd.Context(), targets)

	err = lc.render(cmd.OutOrStdout(), outcomes, out)
	if err != nil {
		return err
	}

	if ctxErr := cmd.Context().Err(); ctxErr != nil {
		return fmt.Errorf("interrupted after %d of %d dashboards: %w", len(outcomes), len(targets), ctxErr)
	}

	if tracker != nil {
		err = tracker.Finish()
		if err != nil {
			return fmt.Errorf("clear checkpoint: %w", err)
		}
	}

	if failed := pipeline.Failed(outcomes); failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrLoadFailed, failed, len(outcomes))
	}

	return nil
}

func (lc *loadCommand) render(w io.Writer, outcomes []pipeline.Outcome, out sink.Sink) error {
	if lc.format == FormatJSON {
		return RenderJSON(w, outcomes)
	}

	if lc.app.Quiet {
		return nil
	}

	RenderTable(w, outcomes)

	if discard, ok := out.(*sink.Discard); ok {
		RenderDryRun(w, discard)
	}

	return nil
}

func (lc *loadCommand) targets(kind pipeline.Kind, ids []string) ([]pipeline.Target, error) {
	if lc.manifest != "" {
		if len(ids) > 0 {
			return nil, ErrTargetsAndIDs
		}

		m, err := config.ReadManifest(lc.manifest)
		if err != nil {
			return nil, err
		}

		return m.Targets(kind)
	}

	if len(ids) == 0 {
		return nil, ErrNoTargets
	}

	entries := make([]config.ManifestEntry, len(ids))
	for i, id := range ids {
		entries[i] = config.ManifestEntry{ID: id, Date: lc.date}
	}

	m := config.Manifest{Dashboards: entries}

	return m.Targets(kind)
}

func (lc *loadCommand) openTracker() (*checkpoint.Tracker, error) {
	manifest, err := filepath.Abs(lc.manifest)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}

	dir := lc.app.Config.Checkpoint.Dir
	if dir == "" {
		dir = checkpoint.DefaultDir()
	}

	manager := checkpoint.NewManager(dir, checkpoint.ManifestKey(manifest))

	if lc.noResume || lc.reload {
		err = manager.Clear()
		if err != nil {
			return nil, fmt.Errorf("clear checkpoint: %w", err)
		}
	}

	tracker, err := checkpoint.NewTracker(manager, manifest)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}

	if done := len(tracker.Journal().Completed); done > 0 {
		lc.app.Logger.Info("resuming manifest run", "manifest", manifest, "completed", done)
	}

	return tracker, nil
}
