package assemble_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/miraload/pkg/assemble"
	"github.com/Sumatoshi-tech/miraload/pkg/matrix"
	"github.com/Sumatoshi-tech/miraload/pkg/metadata"
)

func tables(t *testing.T) (*metadata.CellTable, *metadata.GeneTable) {
	t.Helper()

	cells, err := metadata.NewCellTable([]metadata.Cell{
		{Idx: 1, ID: "A", SampleID: "S1", Fields: map[string]any{"sample_id": "S1", "x": 1.0, "y": 2.0}},
		{Idx: 2, ID: "B", SampleID: "S1", Fields: map[string]any{"sample_id": "S1", "x": 3.0, "y": 4.0}},
		{Idx: 3, ID: "C", SampleID: "S2", Fields: map[string]any{"sample_id": "S2", "x": 5.0, "y": 6.0}},
	})
	require.NoError(t, err)

	genes, err := metadata.NewGeneTable([]metadata.Gene{{Idx: 1, Symbol: "G1"}, {Idx: 2, Symbol: "G2"}})
	require.NoError(t, err)

	return cells, genes
}

func TestAssemble_GroupsRowsByCell(t *testing.T) {
	t.Parallel()

	cells, genes := tables(t)

	docs, stats, err := assemble.New(cells, genes, 0).Assemble([]matrix.Entry{
		{GeneIdx: 2, CellIdx: 3, Value: 0.9},
		{GeneIdx: 1, CellIdx: 1, Value: 0.5},
		{GeneIdx: 1, CellIdx: 3, Value: 0.1},
	})
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "A", docs[0].CellID)
	assert.Equal(t, []assemble.GeneValue{{Gene: "G1", Value: 0.5}}, docs[0].Genes)
	assert.Equal(t, "C", docs[1].CellID)
	assert.Equal(t, []assemble.GeneValue{{Gene: "G2", Value: 0.9}, {Gene: "G1", Value: 0.1}}, docs[1].Genes)
	assert.Equal(t, assemble.Stats{Cells: 2, Entries: 3}, stats)
}

func TestAssemble_MaxGeneIndexKeepsEmptyCells(t *testing.T) {
	t.Parallel()

	cells, genes := tables(t)

	docs, stats, err := assemble.New(cells, genes, 1).Assemble([]matrix.Entry{
		{GeneIdx: 1, CellIdx: 1, Value: 0.5},
		{GeneIdx: 2, CellIdx: 1, Value: 0.6},
		{GeneIdx: 2, CellIdx: 2, Value: 0.7},
	})
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Len(t, docs[0].Genes, 1)
	assert.Empty(t, docs[1].Genes)
	assert.Equal(t, assemble.Stats{Cells: 2, Entries: 1, Filtered: 2}, stats)
}

func TestAssemble_UnknownIndicesFail(t *testing.T) {
	t.Parallel()

	cells, genes := tables(t)
	asm := assemble.New(cells, genes, 0)

	_, _, err := asm.Assemble([]matrix.Entry{{GeneIdx: 1, CellIdx: 4}})
	require.ErrorIs(t, err, assemble.ErrMetadataJoin)

	_, _, err = asm.Assemble([]matrix.Entry{{GeneIdx: 3, CellIdx: 1}})
	require.ErrorIs(t, err, assemble.ErrMetadataJoin)
}

func TestCellDocument_MarshalJSONIsDeterministic(t *testing.T) {
	t.Parallel()

	doc := assemble.CellDocument{
		CellID: "A",
		Fields: map[string]any{"y": 2.0, "sample_id": "S1", "x": 1.0, "cell_type": "T cell"},
		Genes:  []assemble.GeneValue{{Gene: "G1", Value: 0.5}},
	}

	want := `{"cell_id":"A","cell_type":"T cell","sample_id":"S1","x":1,"y":2,"genes":[{"gene":"G1","value":0.5}]}`

	for range 5 {
		data, err := json.Marshal(doc)
		require.NoError(t, err)
		assert.JSONEq(t, want, string(data))
		assert.Equal(t, want, string(data))
	}

	empty, err := json.Marshal(assemble.CellDocument{CellID: "B"})
	require.NoError(t, err)
	assert.Equal(t, `{"cell_id":"B","genes":[]}`, string(empty))
}
