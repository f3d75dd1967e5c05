package pipeline_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// dashboard describes a synthetic dashboard written by writeDashboard.
type dashboard struct {
	cells int
	genes int
	// rowsPerCell returns how many leading genes cell (1-based) expresses.
	rowsPerCell func(cell int) int
	// dropLastCell leaves the last cell without matrix rows.
	dropLastCell bool
	// headerGenes overrides the declared gene count when non-zero.
	headerGenes int
}

func cycleRows(genes int) func(int) int {
	return func(cell int) int { return 1 + (cell*7)%genes }
}

func cellID(i int) string {
	return fmt.Sprintf("CELL-%03d", i)
}

// writeDashboard writes the files of a per-dashboard layout into dir and
// returns the number of matrix entries.
func writeDashboard(t *testing.T, dir string, d dashboard) int {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o750))

	var cells strings.Builder

	cells.WriteString("cell_id\tsample_id\tcell_type\tUMAP_1\tUMAP_2\n")

	for i := 1; i <= d.cells; i++ {
		fmt.Fprintf(&cells, "%s\tS%d\t%s\t%.1f\t%.1f\n", cellID(i), 1+i%2, []string{"T.cell", "B.cell", "Ovarian.cancer.cell"}[i%3], float64(i)/2, -float64(i))
	}

	var genes strings.Builder

	genes.WriteString("gene\n")

	for g := 1; g <= d.genes; g++ {
		fmt.Fprintf(&genes, "G%d\n", g)
	}

	var rows []string

	lastCell := d.cells
	if d.dropLastCell {
		lastCell--
	}

	for cell := 1; cell <= lastCell; cell++ {
		for gene := 1; gene <= d.rowsPerCell(cell); gene++ {
			rows = append(rows, fmt.Sprintf("%d %d %g", gene, cell, float64(gene*cell)/10))
		}
	}

	headerGenes := d.genes
	if d.headerGenes != 0 {
		headerGenes = d.headerGenes
	}

	mtx := fmt.Sprintf("%%%%MatrixMarket matrix coordinate real general\n%d %d %d\n%s\n",
		headerGenes, d.cells, len(rows), strings.Join(rows, "\n"))

	samples, err := json.Marshal([]map[string]any{
		{"sample_id": "S1", "patient_id": "SPECTRUM-OV-002", "site": "Right Adnexa", "sort": "CD45N", "therapy": "pre-Rx"},
		{"sample_id": "S2", "patient_id": "SPECTRUM-OV-002", "site": "Omentum", "sort": "CD45P", "therapy": "pre-Rx"},
	})
	require.NoError(t, err)

	files := map[string]string{
		"cells.tsv":            cells.String(),
		"genes.tsv":            genes.String(),
		"matrix.mtx":           mtx,
		"sample_metadata.json": string(samples),
	}

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	return len(rows)
}
