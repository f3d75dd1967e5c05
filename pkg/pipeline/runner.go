package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/miraload/pkg/observability"
	"github.com/Sumatoshi-tech/miraload/pkg/sink"
)

// Status is the outcome of one target in a batch run.
type Status string

// Target statuses.
const (
	StatusLoaded  Status = "loaded"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome is the result of one target.
type Outcome struct {
	Target Target
	Status Status
	// Report is nil for skipped targets.
	Report *Report
	Err    error
}

// Progress persists which targets finished across interrupted runs.
// *checkpoint.Tracker satisfies it.
type Progress interface {
	Completed(id string) bool
	Record(id string, loadErr error) error
}

// Runner loads many dashboards and recovers from failures by deleting the
// partial data of the failed dashboard.
type Runner struct {
	Loader *Loader
	Admin  sink.Admin
	// Reload cleans every target before loading it instead of skipping
	// already loaded dashboards.
	Reload bool
	// Progress may be nil.
	Progress Progress
	Logger   *slog.Logger
}

// Run processes targets in order. A failed target is cleaned up and the run
// continues; only context cancellation stops it early.
func (r *Runner) Run(ctx context.Context, targets []Target) []Outcome {
	logger := observability.OrDiscard(r.Logger)
	outcomes := make([]Outcome, 0, len(targets))

	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}

		outcome := r.runOne(ctx, target, logger)
		outcomes = append(outcomes, outcome)

		if r.Progress != nil && outcome.Status != StatusSkipped {
			err := r.Progress.Record(target.ID, outcome.Err)
			if err != nil {
				logger.WarnContext(ctx, "runner: progress not saved", "dashboard_id", target.ID, "error", err)
			}
		}
	}

	return outcomes
}

func (r *Runner) runOne(ctx context.Context, target Target, logger *slog.Logger) Outcome {
	ctx = observability.WithLoad(ctx, observability.Load{DashboardID: target.ID, Kind: string(target.Kind)})

	skip, err := r.shouldSkip(ctx, target)
	if err != nil {
		return Outcome{Target: target, Status: StatusFailed, Err: err}
	}

	if skip {
		logger.InfoContext(ctx, "runner: already loaded, skipping")
		r.Loader.Metrics.RecordLoad(ctx, string(target.Kind), observability.StatusSkipped, 0)

		return Outcome{Target: target, Status: StatusSkipped}
	}

	if r.Reload {
		err = Clean(ctx, r.Admin, target.ID)
		if err != nil {
			return Outcome{Target: target, Status: StatusFailed, Err: fmt.Errorf("clean before reload: %w", err)}
		}
	}

	rep, err := r.Loader.Load(ctx, target)
	if err == nil {
		return Outcome{Target: target, Status: StatusLoaded, Report: rep}
	}

	logger.ErrorContext(ctx, "runner: load failed, cleaning up", "error", err)

	cleanErr := Clean(context.WithoutCancel(ctx), r.Admin, target.ID)
	if cleanErr != nil {
		logger.ErrorContext(ctx, "runner: cleanup failed", "error", cleanErr)
		err = errors.Join(err, fmt.Errorf("cleanup: %w", cleanErr))
	}

	return Outcome{Target: target, Status: StatusFailed, Report: rep, Err: err}
}

func (r *Runner) shouldSkip(ctx context.Context, target Target) (bool, error) {
	if r.Reload {
		return false, nil
	}

	if r.Progress != nil && r.Progress.Completed(target.ID) {
		return true, nil
	}

	loaded, err := r.Admin.DashboardLoaded(ctx, EntryIndex, target.ID, target.Date)
	if err != nil {
		return false, fmt.Errorf("check %s loaded: %w", target.ID, err)
	}

	return loaded, nil
}

// Clean deletes a dashboard's cells index and its entry records. Both steps
// run even if the first fails.
func Clean(ctx context.Context, admin sink.Admin, dashboardID string) error {
	return errors.Join(
		admin.DeleteIndex(ctx, CellsIndex(dashboardID)),
		admin.DeleteByDashboard(ctx, EntryIndex, dashboardID),
	)
}

// Failed counts the failed outcomes.
func Failed(outcomes []Outcome) int {
	n := 0

	for _, o := range outcomes {
		if o.Status == StatusFailed {
			n++
		}
	}

	return n
}
