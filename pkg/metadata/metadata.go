// Package metadata builds the per-cell and per-gene lookup tables that the
// assembler joins against matrix indices.
//
// Both tables are read once, held in memory for the whole load and never
// mutated afterwards. Indices are 1-based and dense, matching the coordinate
// matrix convention.
package metadata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/miraload/pkg/matrix"
)

// Sentinel errors for table building.
var (
	// ErrSchema reports a table whose columns or shape cannot be used, including
	// a mismatch against the matrix header dimensions.
	ErrSchema = errors.New("metadata schema error")
	// ErrJoinIntegrity reports a sample join that would change the cell count.
	ErrJoinIntegrity = errors.New("metadata join integrity error")
)

// Canonical field names on cell records.
const (
	FieldCellID   = "cell_id"
	FieldCellIdx  = "cell_idx"
	FieldSampleID = "sample_id"
	FieldCellType = "cell_type"
	FieldX        = "x"
	FieldY        = "y"
	FieldGene     = "gene"
	FieldGeneIdx  = "gene_idx"
)

// rowNameColumn names the unlabeled leading column of R-style tables, where
// the header row is one field shorter than the data rows.
const rowNameColumn = "_rowname"

// Cell is one row of the cell table.
type Cell struct {
	Idx      int
	ID       string
	SampleID string
	// Fields holds every attribute emitted on the cell document other than
	// cell_id: sample_id, x, y, cell_type when present, remaining columns and
	// the joined sample attributes.
	Fields map[string]any
}

// CellTable is the ordered, read-only cell lookup.
type CellTable struct {
	cells []Cell
	byID  map[string]int
}

// NewCellTable builds a table from cells already sorted by Idx. It checks
// that indices are dense from 1 and that ids are unique.
func NewCellTable(cells []Cell) (*CellTable, error) {
	byID := make(map[string]int, len(cells))

	for i, cell := range cells {
		if cell.Idx != i+1 {
			return nil, fmt.Errorf("%w: cell_idx %d at position %d is not dense from 1", ErrSchema, cell.Idx, i+1)
		}

		if _, dup := byID[cell.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate cell_id %q", ErrSchema, cell.ID)
		}

		byID[cell.ID] = cell.Idx
	}

	return &CellTable{cells: cells, byID: byID}, nil
}

// Len returns the number of cells.
func (t *CellTable) Len() int {
	return len(t.cells)
}

// ByIdx returns the cell with the given 1-based index.
func (t *CellTable) ByIdx(idx int) (Cell, bool) {
	if idx < 1 || idx > len(t.cells) {
		return Cell{}, false
	}

	return t.cells[idx-1], true
}

// ByID returns the cell with the given id.
func (t *CellTable) ByID(id string) (Cell, bool) {
	idx, ok := t.byID[id]
	if !ok {
		return Cell{}, false
	}

	return t.cells[idx-1], true
}

// Cells returns the cells in index order. The slice must not be modified.
func (t *CellTable) Cells() []Cell {
	return t.cells
}

// Gene is one row of the gene table.
type Gene struct {
	Idx    int
	Symbol string
}

// GeneTable is the ordered, read-only gene lookup.
type GeneTable struct {
	genes []Gene
}

// NewGeneTable builds a table from genes sorted by Idx, with the same
// density and uniqueness checks as NewCellTable.
func NewGeneTable(genes []Gene) (*GeneTable, error) {
	seen := make(map[string]struct{}, len(genes))

	for i, gene := range genes {
		if gene.Idx != i+1 {
			return nil, fmt.Errorf("%w: gene_idx %d at position %d is not dense from 1", ErrSchema, gene.Idx, i+1)
		}

		if _, dup := seen[gene.Symbol]; dup {
			return nil, fmt.Errorf("%w: duplicate gene %q", ErrSchema, gene.Symbol)
		}

		seen[gene.Symbol] = struct{}{}
	}

	return &GeneTable{genes: genes}, nil
}

// Len returns the number of genes.
func (t *GeneTable) Len() int {
	return len(t.genes)
}

// ByIdx returns the gene with the given 1-based index.
func (t *GeneTable) ByIdx(idx int) (Gene, bool) {
	if idx < 1 || idx > len(t.genes) {
		return Gene{}, false
	}

	return t.genes[idx-1], true
}

// Genes returns the genes in index order. The slice must not be modified.
func (t *GeneTable) Genes() []Gene {
	return t.genes
}

// CheckDimensions asserts that the matrix header agrees with both tables.
func CheckDimensions(header matrix.Header, cells *CellTable, genes *GeneTable) error {
	if header.Genes != genes.Len() {
		return fmt.Errorf("%w: matrix declares %d genes, gene table has %d", ErrSchema, header.Genes, genes.Len())
	}

	if header.Cells != cells.Len() {
		return fmt.Errorf("%w: matrix declares %d cells, cell table has %d", ErrSchema, header.Cells, cells.Len())
	}

	return nil
}

// NormalizeColumn lowercases a column name and maps '-', '.' and spaces to
// underscores, so "UMAP-1" and "umap.1" both become "umap_1".
func NormalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '.', ' ':
			return '_'
		default:
			return r
		}
	}, name)
}
