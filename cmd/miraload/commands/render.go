package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/miraload/pkg/pipeline"
	"github.com/Sumatoshi-tech/miraload/pkg/sink"
)

var statusColors = map[pipeline.Status]*color.Color{
	pipeline.StatusLoaded:  color.New(color.FgGreen),
	pipeline.StatusSkipped: color.New(color.FgYellow),
	pipeline.StatusFailed:  color.New(color.FgRed),
}

// RenderTable writes one row per outcome and a totals footer.
func RenderTable(w io.Writer, outcomes []pipeline.Outcome) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{
		"Dashboard", "Kind", "Status", "Mode", "Chunks", "Batches",
		"Cells", "Entries", "Filtered", "Failed docs", "Entries match", "Duration",
	})

	var cells, entries, failedDocs int

	for _, o := range outcomes {
		rep := o.Report
		if rep == nil {
			rep = &pipeline.Report{}
		}

		cells += rep.Cells
		entries += rep.Entries
		failedDocs += rep.FailedDocuments

		tbl.AppendRow(table.Row{
			o.Target.ID,
			string(o.Target.Kind),
			statusColors[o.Status].Sprint(string(o.Status)),
			rep.Mode,
			rep.Chunks,
			rep.Batches,
			humanize.Comma(int64(rep.Cells)),
			humanize.Comma(int64(rep.Entries)),
			humanize.Comma(int64(rep.Filtered)),
			rep.FailedDocuments,
			entriesMatch(o, rep),
			rep.Duration.Round(time.Millisecond).String(),
		})
	}

	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%d dashboards", len(outcomes)), "", fmt.Sprintf("%d failed", pipeline.Failed(outcomes)),
		"", "", "", humanize.Comma(int64(cells)), humanize.Comma(int64(entries)), "", failedDocs, "", "",
	})

	tbl.Render()

	for _, o := range outcomes {
		if o.Err != nil {
			statusColors[pipeline.StatusFailed].Fprintf(w, "%s: %v\n", o.Target.ID, o.Err)
		}
	}
}

func entriesMatch(o pipeline.Outcome, rep *pipeline.Report) string {
	if o.Status != pipeline.StatusLoaded && rep.Mode == "" {
		return ""
	}

	if rep.EntriesMatch {
		return "yes"
	}

	return fmt.Sprintf("no (%s of %s)", humanize.Comma(int64(rep.Entries)), humanize.Comma(int64(rep.DeclaredEntries)))
}

// RenderDryRun summarizes what a discarding sink accepted.
func RenderDryRun(w io.Writer, discard *sink.Discard) {
	fmt.Fprintf(w, "dry run: %s encoded, nothing written\n", humanize.Bytes(uint64(max(discard.Bytes(), 0))))
}

type jsonOutcome struct {
	DashboardID string           `json:"dashboard_id"`
	Kind        pipeline.Kind    `json:"kind"`
	Status      pipeline.Status  `json:"status"`
	Error       string           `json:"error,omitempty"`
	Report      *pipeline.Report `json:"report,omitempty"`
}

// RenderJSON writes the outcomes as an indented JSON array.
func RenderJSON(w io.Writer, outcomes []pipeline.Outcome) error {
	out := make([]jsonOutcome, len(outcomes))

	for i, o := range outcomes {
		out[i] = jsonOutcome{DashboardID: o.Target.ID, Kind: o.Target.Kind, Status: o.Status, Report: o.Report}
		if o.Err != nil {
			out[i].Error = o.Err.Error()
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(out)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	return nil
}
