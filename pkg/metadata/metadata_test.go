package metadata_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/miraload/pkg/matrix"
	"github.com/Sumatoshi-tech/miraload/pkg/metadata"
)

const cellsTSV = "cell_id\tcell_type\tUMAP-1\tUMAP-2\tsample\tcluster\n" +
	"AAAC\tT.cell\t1.5\t-2\tS1\t3\n" +
	"AAAG\tB.cell\t0.25\t4\tS2\tNA\n"

func TestNormalizeColumn(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"UMAP-1":           "umap_1",
		"umap.2":           "umap_2",
		" Cell Type ":      "cell_type",
		"scanorama_UMAP-1": "scanorama_umap_1",
		"sample_id":        "sample_id",
	}

	for in, want := range tests {
		assert.Equal(t, want, metadata.NormalizeColumn(in), in)
	}
}

func TestReadCellTable_AppliesAliasesAndTypesFields(t *testing.T) {
	t.Parallel()

	cells, err := metadata.ReadCellTable(strings.NewReader(cellsTSV), nil)
	require.NoError(t, err)
	require.Equal(t, 2, cells.Len())

	first, ok := cells.ByIdx(1)
	require.True(t, ok)
	assert.Equal(t, "AAAC", first.ID)
	assert.Equal(t, "S1", first.SampleID)
	assert.Equal(t, map[string]any{
		"sample_id": "S1",
		"x":         1.5,
		"y":         -2.0,
		"cell_type": "T.cell",
		"cluster":   3.0,
	}, first.Fields)

	second, ok := cells.ByID("AAAG")
	require.True(t, ok)
	assert.Equal(t, 2, second.Idx)
	assert.NotContains(t, second.Fields, "cluster")

	_, ok = cells.ByIdx(3)
	assert.False(t, ok)
}

func TestReadCellTable_RowNamesBecomeCellID(t *testing.T) {
	t.Parallel()

	input := "x\ty\tsample_id\nC1\t1\t2\tS1\nC2\t3\t4\tS1\n"

	cells, err := metadata.ReadCellTable(strings.NewReader(input), nil)
	require.NoError(t, err)

	cell, ok := cells.ByIdx(2)
	require.True(t, ok)
	assert.Equal(t, "C2", cell.ID)
	assert.NotContains(t, cell.Fields, "_rowname")
}

func TestReadCellTable_PreferredEmbeddingWins(t *testing.T) {
	t.Parallel()

	input := "cell_id\tsample_id\tUMAP-1\tUMAP-2\tscanorama_UMAP-1\tscanorama_UMAP-2\n" +
		"C1\tS1\t1\t2\t10\t20\n"

	plain, err := metadata.ReadCellTable(strings.NewReader(input), nil)
	require.NoError(t, err)

	cell, _ := plain.ByIdx(1)
	assert.Equal(t, 1.0, cell.Fields["x"])
	assert.NotContains(t, cell.Fields, "scanorama_umap_1")

	scanorama, err := metadata.ReadCellTable(strings.NewReader(input), metadata.PreferEmbedding("scanorama"))
	require.NoError(t, err)

	cell, _ = scanorama.ByIdx(1)
	assert.Equal(t, 10.0, cell.Fields["x"])
	assert.Equal(t, 20.0, cell.Fields["y"])
}

func TestReadCellTable_ExplicitCellIdxReorders(t *testing.T) {
	t.Parallel()

	input := "cell_idx\tcell_id\tsample_id\tx\ty\n2\tB\tS\t0\t0\n1\tA\tS\t0\t0\n"

	cells, err := metadata.ReadCellTable(strings.NewReader(input), nil)
	require.NoError(t, err)

	first, _ := cells.ByIdx(1)
	assert.Equal(t, "A", first.ID)
}

func TestReadCellTable_SchemaErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing embedding", "cell_id\tsample_id\nC\tS\n", "[x y]"},
		{"missing sample", "cell_id\tx\ty\nC\t1\t2\n", "sample_id"},
		{"missing id", "sample_id\tx\ty\n", "cell_id"},
		{"duplicate id", "cell_id\tsample_id\tx\ty\nC\tS\t1\t1\nC\tS\t2\t2\n", "duplicate cell_id"},
		{"sparse idx", "cell_idx\tcell_id\tsample_id\tx\ty\n1\tA\tS\t0\t0\n3\tB\tS\t0\t0\n", "not dense"},
		{"text embedding", "cell_id\tsample_id\tx\ty\nC\tS\tleft\t1\n", "not numeric"},
		{"ragged row", "cell_id\tsample_id\tx\ty\nC\tS\t1\n", "fields"},
		{"empty", "", "missing header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := metadata.ReadCellTable(strings.NewReader(tt.input), nil)
			require.ErrorIs(t, err, metadata.ErrSchema)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadGeneTable(t *testing.T) {
	t.Parallel()

	genes, err := metadata.ReadGeneTable(strings.NewReader("genes\nCD3E\nMS4A1\n"))
	require.NoError(t, err)
	require.Equal(t, 2, genes.Len())

	gene, ok := genes.ByIdx(2)
	require.True(t, ok)
	assert.Equal(t, metadata.Gene{Idx: 2, Symbol: "MS4A1"}, gene)

	_, err = metadata.ReadGeneTable(strings.NewReader("id\nX\n"))
	require.ErrorIs(t, err, metadata.ErrSchema)

	_, err = metadata.ReadGeneTable(strings.NewReader("gene\nA\nA\n"))
	require.ErrorIs(t, err, metadata.ErrSchema)
}

func TestReadSamples_ValidatesSchema(t *testing.T) {
	t.Parallel()

	samples, err := metadata.ReadSamples(strings.NewReader(
		`[{"sample_id":"S1","patient_id":"P1","site":"Adnexa"},{"sample_id":"S2","patient_id":"P1","site":null}]`))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "S1", samples[0].ID())
	assert.Equal(t, "Adnexa", samples[0].String("site"))
	assert.Empty(t, samples[1].String("site"))

	_, err = metadata.ReadSamples(strings.NewReader(`[{"patient_id":"P1"}]`))
	require.ErrorIs(t, err, metadata.ErrSchema)

	_, err = metadata.ReadSamples(strings.NewReader(`{"sample_id":"S1"}`))
	require.ErrorIs(t, err, metadata.ErrSchema)
}

func TestJoinSamples(t *testing.T) {
	t.Parallel()

	newCells := func() *metadata.CellTable {
		cells, err := metadata.ReadCellTable(strings.NewReader(cellsTSV), nil)
		require.NoError(t, err)

		return cells
	}

	t.Run("merges attributes keeping cell values", func(t *testing.T) {
		t.Parallel()

		cells := newCells()
		err := metadata.JoinSamples(cells, []metadata.Sample{
			{"sample_id": "S1", "site": "Omentum", "cell_type": "ignored"},
			{"sample_id": "S2", "site": "Adnexa"},
		})
		require.NoError(t, err)

		cell, _ := cells.ByIdx(1)
		assert.Equal(t, "Omentum", cell.Fields["site"])
		assert.Equal(t, "T.cell", cell.Fields["cell_type"])
		assert.Equal(t, 2, cells.Len())
	})

	t.Run("unknown sample leaves cells untouched", func(t *testing.T) {
		t.Parallel()

		cells := newCells()
		err := metadata.JoinSamples(cells, []metadata.Sample{{"sample_id": "S1", "site": "Omentum"}})
		require.ErrorIs(t, err, metadata.ErrJoinIntegrity)
		assert.Contains(t, err.Error(), "S2")

		cell, _ := cells.ByIdx(1)
		assert.NotContains(t, cell.Fields, "site")
	})

	t.Run("duplicate sample fans out", func(t *testing.T) {
		t.Parallel()

		err := metadata.JoinSamples(newCells(), []metadata.Sample{
			{"sample_id": "S1"}, {"sample_id": "S1"}, {"sample_id": "S2"},
		})
		require.ErrorIs(t, err, metadata.ErrJoinIntegrity)
	})

	t.Run("unreferenced duplicate is ignored", func(t *testing.T) {
		t.Parallel()

		cells := newCells()
		err := metadata.JoinSamples(cells, []metadata.Sample{
			{"sample_id": "S1"}, {"sample_id": "S2", "site": "Adnexa"},
			{"sample_id": "S9", "site": "Omentum"}, {"sample_id": "S9", "site": "Ovary"},
		})
		require.NoError(t, err)

		cell, _ := cells.ByIdx(2)
		assert.Equal(t, "Adnexa", cell.Fields["site"])
	})
}

func TestCheckDimensions(t *testing.T) {
	t.Parallel()

	cellRows := []metadata.Cell{}
	for i := 1; i <= 10; i++ {
		cellRows = append(cellRows, metadata.Cell{Idx: i, ID: strings.Repeat("c", i)})
	}

	cells, err := metadata.NewCellTable(cellRows)
	require.NoError(t, err)

	geneRows := []metadata.Gene{}
	for i := 1; i <= 49; i++ {
		geneRows = append(geneRows, metadata.Gene{Idx: i, Symbol: strings.Repeat("g", i)})
	}

	genes, err := metadata.NewGeneTable(geneRows)
	require.NoError(t, err)

	err = metadata.CheckDimensions(matrix.Header{Genes: 50, Cells: 10, Entries: 200}, cells, genes)
	require.ErrorIs(t, err, metadata.ErrSchema)
	assert.Contains(t, err.Error(), "50 genes")

	err = metadata.CheckDimensions(matrix.Header{Genes: 49, Cells: 11}, cells, genes)
	require.ErrorIs(t, err, metadata.ErrSchema)

	require.NoError(t, metadata.CheckDimensions(matrix.Header{Genes: 49, Cells: 10}, cells, genes))
}

func TestBuild_ReadsAndJoinsFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		return path
	}

	src := metadata.Sources{
		Cells:   write("cells.tsv", cellsTSV),
		Genes:   write("genes.tsv", "gene\nCD3E\n"),
		Samples: write("sample_metadata.json", `[{"sample_id":"S1","tumor_type":"HGSOC"},{"sample_id":"S2"}]`),
	}

	tables, err := metadata.Build(src, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, tables.Cells.Len())
	assert.Equal(t, 1, tables.Genes.Len())
	assert.Len(t, tables.Samples, 2)

	cell, _ := tables.Cells.ByIdx(1)
	assert.Equal(t, "HGSOC", cell.Fields["tumor_type"])

	src.Samples = ""
	tables, err = metadata.Build(src, nil)
	require.NoError(t, err)
	assert.Nil(t, tables.Samples)

	src.Genes = filepath.Join(dir, "absent.tsv")
	_, err = metadata.Build(src, nil)
	require.ErrorIs(t, err, os.ErrNotExist)
}
