package metadata

import (
	"fmt"
	"io"
	"os"
)

// Sources names the metadata files of one load. Samples may be empty.
type Sources struct {
	Cells   string
	Genes   string
	Samples string
}

// Tables is the complete metadata of one load.
type Tables struct {
	Cells   *CellTable
	Genes   *GeneTable
	Samples []Sample
}

// Build reads the cell, gene and sample files and joins sample attributes
// onto cells. Every error wraps ErrSchema or ErrJoinIntegrity, or is an I/O
// error from opening the files.
func Build(src Sources, embeddings []EmbeddingPair) (*Tables, error) {
	cells, err := readFile(src.Cells, func(r io.Reader) (*CellTable, error) {
		return ReadCellTable(r, embeddings)
	})
	if err != nil {
		return nil, err
	}

	genes, err := readFile(src.Genes, ReadGeneTable)
	if err != nil {
		return nil, err
	}

	tables := &Tables{Cells: cells, Genes: genes}

	if src.Samples == "" {
		return tables, nil
	}

	tables.Samples, err = readFile(src.Samples, ReadSamples)
	if err != nil {
		return nil, err
	}

	err = JoinSamples(cells, tables.Samples)
	if err != nil {
		return nil, err
	}

	return tables, nil
}

func readFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T

	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	out, err := parse(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}

	return out, nil
}
