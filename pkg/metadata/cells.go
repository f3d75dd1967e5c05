package metadata

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// EmbeddingPair names the two columns of a 2D embedding after normalization.
type EmbeddingPair struct {
	X string
	Y string
}

// DefaultEmbeddings lists the embedding column names produced by known tool
// versions, in the order they are tried.
var DefaultEmbeddings = []EmbeddingPair{
	{X: "x", Y: "y"},
	{X: "umap_1", Y: "umap_2"},
	{X: "umap1", Y: "umap2"},
	{X: "tsne_1", Y: "tsne_2"},
	{X: "scanorama_umap_1", Y: "scanorama_umap_2"},
}

// PreferEmbedding returns DefaultEmbeddings with the pair starting with
// prefix moved to the front.
func PreferEmbedding(prefix string) []EmbeddingPair {
	out := make([]EmbeddingPair, 0, len(DefaultEmbeddings))

	for _, pair := range DefaultEmbeddings {
		if strings.HasPrefix(pair.X, prefix) {
			out = append(out, pair)
		}
	}

	for _, pair := range DefaultEmbeddings {
		if !strings.HasPrefix(pair.X, prefix) {
			out = append(out, pair)
		}
	}

	return out
}

var (
	cellIDAliases   = []string{FieldCellID, "barcode", "barcodes", "cell", "cellid", rowNameColumn}
	sampleAliases   = []string{FieldSampleID, "sample", "sampleid"}
	cellTypeAliases = []string{FieldCellType, "celltype"}
)

// ReadCellTable parses a tab-delimited cell table. Column names are matched
// after NormalizeColumn; the first embedding pair in embeddings found in the
// header becomes x and y. cell_idx comes from a cell_idx column when present,
// otherwise from row order.
func ReadCellTable(r io.Reader, embeddings []EmbeddingPair) (*CellTable, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("cell table: %w", err)
	}

	if len(embeddings) == 0 {
		embeddings = DefaultEmbeddings
	}

	idCol, hasID := t.lookup(cellIDAliases...)
	sampleCol, hasSample := t.lookup(sampleAliases...)
	typeCol, hasType := t.lookup(cellTypeAliases...)
	idxCol, hasIdx := t.lookup(FieldCellIdx)

	xCol, yCol, hasEmbedding := -1, -1, false

	for _, pair := range embeddings {
		x, okX := t.lookup(pair.X)
		y, okY := t.lookup(pair.Y)

		if okX && okY {
			xCol, yCol, hasEmbedding = x, y, true

			break
		}
	}

	var absent []string

	if !hasID {
		absent = append(absent, FieldCellID)
	}

	if !hasSample {
		absent = append(absent, FieldSampleID)
	}

	if !hasEmbedding {
		absent = append(absent, FieldX, FieldY)
	}

	if len(absent) > 0 {
		return nil, fmt.Errorf("cell table: %w: missing required columns %v (have %v)", ErrSchema, absent, t.columns)
	}

	consumed := map[int]bool{idCol: true, sampleCol: true, xCol: true, yCol: true}

	if hasType {
		consumed[typeCol] = true
	}

	if hasIdx {
		consumed[idxCol] = true
	}

	for _, pair := range DefaultEmbeddings {
		for _, name := range []string{pair.X, pair.Y} {
			if pos, ok := t.index[name]; ok {
				consumed[pos] = true
			}
		}
	}

	if pos, ok := t.index[rowNameColumn]; ok {
		consumed[pos] = true
	}

	cells := make([]Cell, 0, len(t.rows))

	for i, row := range t.rows {
		line := i + 2

		cell := Cell{
			Idx:      i + 1,
			ID:       strings.TrimSpace(row[idCol]),
			SampleID: strings.TrimSpace(row[sampleCol]),
			Fields:   make(map[string]any, len(row)),
		}

		if cell.ID == "" {
			return nil, fmt.Errorf("cell table: %w: empty cell_id on line %d", ErrSchema, line)
		}

		if hasIdx {
			idx, convErr := strconv.Atoi(strings.TrimSpace(row[idxCol]))
			if convErr != nil {
				return nil, fmt.Errorf("cell table: %w: cell_idx %q on line %d", ErrSchema, row[idxCol], line)
			}

			cell.Idx = idx
		}

		x, xErr := parseFloat(row[xCol])
		y, yErr := parseFloat(row[yCol])

		if xErr != nil || yErr != nil {
			return nil, fmt.Errorf("cell table: %w: embedding (%q, %q) on line %d is not numeric",
				ErrSchema, row[xCol], row[yCol], line)
		}

		cell.Fields[FieldSampleID] = cell.SampleID
		cell.Fields[FieldX] = x
		cell.Fields[FieldY] = y

		if hasType && !missing(row[typeCol]) {
			cell.Fields[FieldCellType] = strings.TrimSpace(row[typeCol])
		}

		for pos, value := range row {
			if consumed[pos] || missing(value) {
				continue
			}

			cell.Fields[t.columns[pos]] = parseValue(value)
		}

		cells = append(cells, cell)
	}

	slices.SortStableFunc(cells, func(a, b Cell) int { return a.Idx - b.Idx })

	built, err := NewCellTable(cells)
	if err != nil {
		return nil, fmt.Errorf("cell table: %w", err)
	}

	return built, nil
}
