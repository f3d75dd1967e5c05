package metadata

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

var geneAliases = []string{FieldGene, "genes", "symbol", "gene_symbol", "gene_name", rowNameColumn}

// ReadGeneTable parses a tab-delimited gene table. The symbol column may be
// named gene, genes or symbol. gene_idx comes from a gene_idx column when
// present, otherwise from row order.
func ReadGeneTable(r io.Reader) (*GeneTable, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("gene table: %w", err)
	}

	symbolCol, ok := t.lookup(geneAliases...)
	if !ok {
		return nil, fmt.Errorf("gene table: %w: missing required column %s (have %v)", ErrSchema, FieldGene, t.columns)
	}

	idxCol, hasIdx := t.lookup(FieldGeneIdx)

	genes := make([]Gene, 0, len(t.rows))

	for i, row := range t.rows {
		gene := Gene{Idx: i + 1, Symbol: strings.TrimSpace(row[symbolCol])}

		if gene.Symbol == "" {
			return nil, fmt.Errorf("gene table: %w: empty gene on line %d", ErrSchema, i+2)
		}

		if hasIdx {
			idx, convErr := strconv.Atoi(strings.TrimSpace(row[idxCol]))
			if convErr != nil {
				return nil, fmt.Errorf("gene table: %w: gene_idx %q on line %d", ErrSchema, row[idxCol], i+2)
			}

			gene.Idx = idx
		}

		genes = append(genes, gene)
	}

	slices.SortStableFunc(genes, func(a, b Gene) int { return a.Idx - b.Idx })

	built, err := NewGeneTable(genes)
	if err != nil {
		return nil, fmt.Errorf("gene table: %w", err)
	}

	return built, nil
}
