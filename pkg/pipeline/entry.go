package pipeline

import (
	"slices"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/miraload/pkg/metadata"
)

// Sample attribute keys summarized on the dashboard entry.
var entrySummaryKeys = []string{"sort", "site", "tumor_type", "therapy", "surgery"}

// Entry document fields.
const (
	entryDashboardID = "dashboard_id"
	entryType        = "type"
	entryDate        = "date"
	entrySamples     = "samples"
	entryPatientID   = "patient_id"
)

// BuildEntry returns the dashboard entry document. Its samples are the
// sample records referenced by at least one cell, ordered by sample id. A
// cell sample id without a record contributes a bare {sample_id} record.
func BuildEntry(dashboardID string, strategy Strategy, cells *metadata.CellTable, samples []metadata.Sample, date time.Time) map[string]any {
	byID := make(map[string]metadata.Sample, len(samples))
	for _, s := range samples {
		byID[s.ID()] = s
	}

	var used []metadata.Sample

	seen := make(map[string]bool)

	for _, cell := range cells.Cells() {
		if cell.SampleID == "" || seen[cell.SampleID] {
			continue
		}

		seen[cell.SampleID] = true

		s, ok := byID[cell.SampleID]
		if !ok {
			s = metadata.Sample{metadata.FieldSampleID: cell.SampleID}
		}

		used = append(used, s)
	}

	slices.SortFunc(used, func(a, b metadata.Sample) int { return strings.Compare(a.ID(), b.ID()) })

	entry := map[string]any{
		entryDashboardID: dashboardID,
		entryType:        string(strategy.Kind),
		entryDate:        date.UTC().Format(time.RFC3339),
		entrySamples:     used,
	}

	if used == nil {
		entry[entrySamples] = []metadata.Sample{}
	}

	if strategy.PatientEntry {
		for _, s := range used {
			if id := s.String(entryPatientID); id != "" {
				entry[entryPatientID] = id

				break
			}
		}
	}

	for _, key := range entrySummaryKeys {
		entry[key] = distinct(used, key)
	}

	return entry
}

// distinct returns the sorted non-empty values of key across samples.
func distinct(samples []metadata.Sample, key string) []string {
	values := []string{}

	for _, s := range samples {
		if v := s.String(key); v != "" {
			values = append(values, v)
		}
	}

	slices.Sort(values)

	return slices.Compact(values)
}
