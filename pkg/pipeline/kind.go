package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/miraload/pkg/metadata"
)

// Kind is the dashboard variant a load produces.
type Kind string

// Dashboard kinds.
const (
	KindSample  Kind = "sample"
	KindPatient Kind = "patient"
	KindCohort  Kind = "cohort"
)

// ErrUnknownKind is returned by ParseKind.
var ErrUnknownKind = errors.New("unknown dashboard kind")

// Kinds lists every kind in display order.
var Kinds = []Kind{KindSample, KindPatient, KindCohort}

// ParseKind resolves a kind name, case-insensitively.
func ParseKind(name string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(name)))

	for _, known := range Kinds {
		if kind == known {
			return kind, nil
		}
	}

	return "", fmt.Errorf("%w: %q (want sample, patient or cohort)", ErrUnknownKind, name)
}

// Layout names the input files of one dashboard. Samples is empty when the
// dashboard has no sample attribute file.
type Layout struct {
	Cells   string
	Genes   string
	Matrix  string
	Samples string
}

// Input file names.
const (
	CellsFile   = "cells.tsv"
	GenesFile   = "genes.tsv"
	MatrixFile  = "matrix.mtx"
	SamplesFile = "sample_metadata.json"
)

// matrixVariants are tried in order when resolving the matrix file.
var matrixVariants = []string{MatrixFile, MatrixFile + ".gz", MatrixFile + ".zst"}

// Strategy holds everything that differs between dashboard kinds.
type Strategy struct {
	Kind Kind
	// Layout places the dashboard's files under dataDir.
	Layout func(dataDir, dashboardID string) Layout
	// Embeddings is the alias priority for the x/y columns.
	Embeddings []metadata.EmbeddingPair
	// PatientEntry puts patient_id on the dashboard entry.
	PatientEntry bool
}

func perDashboardLayout(dataDir, dashboardID string) Layout {
	dir := filepath.Join(dataDir, dashboardID)

	return Layout{
		Cells:   filepath.Join(dir, CellsFile),
		Genes:   filepath.Join(dir, GenesFile),
		Matrix:  resolveMatrix(dir),
		Samples: optional(filepath.Join(dir, SamplesFile)),
	}
}

func cohortLayout(dataDir, dashboardID string) Layout {
	return Layout{
		Cells:   filepath.Join(dataDir, dashboardID+"_"+CellsFile),
		Genes:   filepath.Join(dataDir, GenesFile),
		Matrix:  resolveMatrix(dataDir),
		Samples: optional(filepath.Join(dataDir, SamplesFile)),
	}
}

// resolveMatrix returns the first matrix variant present in dir, or the
// plain name so that opening it reports the missing file.
func resolveMatrix(dir string) string {
	for _, name := range matrixVariants {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return filepath.Join(dir, MatrixFile)
}

func optional(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}

	return path
}

var strategies = map[Kind]Strategy{
	KindSample: {
		Kind:         KindSample,
		Layout:       perDashboardLayout,
		Embeddings:   metadata.DefaultEmbeddings,
		PatientEntry: true,
	},
	KindPatient: {
		Kind:         KindPatient,
		Layout:       perDashboardLayout,
		Embeddings:   metadata.PreferEmbedding("scanorama_umap"),
		PatientEntry: true,
	},
	KindCohort: {
		Kind:       KindCohort,
		Layout:     cohortLayout,
		Embeddings: metadata.DefaultEmbeddings,
	},
}

// Strategy returns the strategy of k. Unknown kinds get the sample strategy.
func (k Kind) Strategy() Strategy {
	if s, ok := strategies[k]; ok {
		return s
	}

	return strategies[KindSample]
}

// LocalDir returns the directory the files of a dashboard of kind k live in.
func (k Kind) LocalDir(dataDir, dashboardID string) string {
	if k == KindCohort {
		return dataDir
	}

	return filepath.Join(dataDir, dashboardID)
}

// RemoteFiles lists the file names a dashboard of kind k needs. The first
// three are required; the matrix may also be stored compressed.
func (k Kind) RemoteFiles(dashboardID string) []string {
	cells := CellsFile
	if k == KindCohort {
		cells = dashboardID + "_" + CellsFile
	}

	return []string{cells, GenesFile, MatrixFile, SamplesFile}
}

// MatrixVariants lists the accepted matrix file names in lookup order.
func MatrixVariants() []string {
	return slices.Clone(matrixVariants)
}
