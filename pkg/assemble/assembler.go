package assemble

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/miraload/pkg/matrix"
	"github.com/Sumatoshi-tech/miraload/pkg/metadata"
)

// ErrMetadataJoin reports a matrix index with no matching metadata row.
var ErrMetadataJoin = errors.New("metadata join error")

// Stats counts what one Assemble call produced.
type Stats struct {
	// Cells is the number of documents built.
	Cells int
	// Entries is the number of gene values placed on documents.
	Entries int
	// Filtered is the number of rows dropped by the gene index cap.
	Filtered int
}

// Assembler turns reconciled batches into cell documents. The tables are
// shared read-only across calls.
type Assembler struct {
	cells      *metadata.CellTable
	genes      *metadata.GeneTable
	maxGeneIdx int
}

// New returns an assembler. A positive maxGeneIdx drops rows whose gene index
// exceeds it; a cell whose rows are all dropped still gets a document.
func New(cells *metadata.CellTable, genes *metadata.GeneTable, maxGeneIdx int) *Assembler {
	return &Assembler{cells: cells, genes: genes, maxGeneIdx: maxGeneIdx}
}

// Assemble groups rows by cell and returns one document per distinct cell,
// ordered by cell index. Genes keep the row order of the batch.
func (a *Assembler) Assemble(rows []matrix.Entry) ([]CellDocument, Stats, error) {
	var stats Stats

	byCell := make(map[int]*CellDocument)

	var order []int

	for _, row := range rows {
		doc, ok := byCell[row.CellIdx]
		if !ok {
			cell, found := a.cells.ByIdx(row.CellIdx)
			if !found {
				return nil, stats, fmt.Errorf("%w: cell_idx %d has no cell row (table has %d)",
					ErrMetadataJoin, row.CellIdx, a.cells.Len())
			}

			doc = &CellDocument{CellID: cell.ID, Fields: cell.Fields, Genes: []GeneValue{}}
			byCell[row.CellIdx] = doc
			order = append(order, row.CellIdx)
		}

		if a.maxGeneIdx > 0 && row.GeneIdx > a.maxGeneIdx {
			stats.Filtered++

			continue
		}

		gene, found := a.genes.ByIdx(row.GeneIdx)
		if !found {
			return nil, stats, fmt.Errorf("%w: gene_idx %d has no gene row (table has %d)",
				ErrMetadataJoin, row.GeneIdx, a.genes.Len())
		}

		doc.Genes = append(doc.Genes, GeneValue{Gene: gene.Symbol, Value: row.Value})
		stats.Entries++
	}

	slices.Sort(order)

	docs := make([]CellDocument, 0, len(order))
	for _, idx := range order {
		docs = append(docs, *byCell[idx])
	}

	stats.Cells = len(docs)

	return docs, stats, nil
}
