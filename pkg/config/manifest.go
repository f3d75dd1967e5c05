package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/miraload/pkg/pipeline"
)

// Manifest errors.
var (
	ErrEmptyManifest   = errors.New("manifest lists no dashboards")
	ErrManifestEntry   = errors.New("invalid manifest entry")
	ErrDuplicateTarget = errors.New("dashboard listed twice")
)

// dateLayouts are the accepted manifest date formats.
var dateLayouts = []string{time.RFC3339, time.DateOnly}

// Manifest lists the dashboards of a batch load.
//
//	dashboards:
//	  - id: SPECTRUM-OV-002
//	    kind: patient
//	    date: 2026-01-15
//	  - id: cohort_all
//	    kind: cohort
//	    dir: /data/cohort
type Manifest struct {
	Dashboards []ManifestEntry `yaml:"dashboards"`
}

// ManifestEntry is one dashboard of a manifest. Kind defaults to the
// caller's kind; Dir defaults to load.data_dir.
type ManifestEntry struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
	Dir  string `yaml:"dir"`
	Date string `yaml:"date"`
}

// ReadManifest parses the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest

	err = yaml.Unmarshal(data, &m)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if len(m.Dashboards) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyManifest, path)
	}

	return &m, nil
}

// Targets converts the manifest entries into load targets, in file order.
func (m *Manifest) Targets(defaultKind pipeline.Kind) ([]pipeline.Target, error) {
	targets := make([]pipeline.Target, 0, len(m.Dashboards))
	seen := make(map[string]bool, len(m.Dashboards))

	for i, entry := range m.Dashboards {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: dashboard %d has no id", ErrManifestEntry, i+1)
		}

		if seen[id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTarget, id)
		}

		seen[id] = true

		kind := defaultKind

		if entry.Kind != "" {
			parsed, err := pipeline.ParseKind(entry.Kind)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrManifestEntry, id, err)
			}

			kind = parsed
		}

		date, err := parseDate(entry.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrManifestEntry, id, err)
		}

		targets = append(targets, pipeline.Target{ID: id, Kind: kind, DataDir: entry.Dir, Date: date})
	}

	return targets, nil
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}

	var firstErr error

	for _, layout := range dateLayouts {
		date, err := time.Parse(layout, value)
		if err == nil {
			return date.UTC(), nil
		}

		if firstErr == nil {
			firstErr = err
		}
	}

	return time.Time{}, fmt.Errorf("date %q: %w", value, firstErr)
}
