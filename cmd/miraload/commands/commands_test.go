package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/miraload/cmd/miraload/commands"
	"github.com/Sumatoshi-tech/miraload/pkg/pipeline"
	"github.com/Sumatoshi-tech/miraload/pkg/sink/filesink"
)

type workspace struct {
	config  string
	dataDir string
	output  string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()

	root := t.TempDir()
	ws := workspace{
		config:  filepath.Join(root, "miraload.yaml"),
		dataDir: filepath.Join(root, "data"),
		output:  filepath.Join(root, "export"),
	}

	content := fmt.Sprintf(`sink:
  backend: file
  output_dir: %q
load:
  data_dir: %q
logging:
  level: error
checkpoint:
  dir: %q
`, ws.output, ws.dataDir, filepath.Join(root, "checkpoints"))
	require.NoError(t, os.WriteFile(ws.config, []byte(content), 0o600))

	return ws
}

// writeInputs writes a four-cell dashboard with two genes per cell.
func (ws workspace) writeInputs(t *testing.T, id string) {
	t.Helper()

	dir := filepath.Join(ws.dataDir, id)
	require.NoError(t, os.MkdirAll(dir, 0o750))

	var mtx strings.Builder

	mtx.WriteString("2 4 8\n")

	for cell := 1; cell <= 4; cell++ {
		fmt.Fprintf(&mtx, "1 %d 1.5\n2 %d 2.5\n", cell, cell)
	}

	files := map[string]string{
		"cells.tsv":  "cell_id\tsample_id\tcell_type\tUMAP_1\tUMAP_2\nA\tS1\tT.cell\t0\t0\nB\tS1\tB.cell\t1\t1\nC\tS2\tT.cell\t2\t2\nD\tS2\tB.cell\t3\t3\n",
		"genes.tsv":  "gene\nPTPRC\nCD3E\n",
		"matrix.mtx": mtx.String(),
	}

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
}

func (ws workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := commands.NewRootCommand()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", ws.config}, args...))

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func (ws workspace) records(t *testing.T, index string) []json.RawMessage {
	t.Helper()

	files, err := filesink.New(filesink.Config{Dir: ws.output})
	require.NoError(t, err)

	records, err := files.ReadIndex(index)
	require.NoError(t, err)

	return records
}

func TestLoad_WritesCellsAndEntry(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	ws.writeInputs(t, "D1")

	out, err := ws.run(t, "load", "D1", "--chunk-size", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "D1")
	assert.Contains(t, out, "loaded")
	assert.Len(t, ws.records(t, pipeline.CellsIndex("D1")), 4)
	assert.Len(t, ws.records(t, pipeline.EntryIndex), 1)

	out, err = ws.run(t, "load", "D1")
	require.NoError(t, err)
	assert.Contains(t, out, "skipped")
	assert.Len(t, ws.records(t, pipeline.CellsIndex("D1")), 4)
}

func TestLoad_JSONReportAndFailure(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	ws.writeInputs(t, "D1")

	out, err := ws.run(t, "load", "D1", "MISSING", "--format", "json")
	require.ErrorIs(t, err, commands.ErrLoadFailed)

	var outcomes []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &outcomes))
	require.Len(t, outcomes, 2)

	assert.Equal(t, "loaded", outcomes[0]["status"])
	assert.Equal(t, "failed", outcomes[1]["status"])
	assert.NotEmpty(t, outcomes[1]["error"])

	report, ok := outcomes[0]["report"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 4, report["cells"], 0)
	assert.InDelta(t, 8, report["entries"], 0)
}

func TestLoad_Manifest(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	ws.writeInputs(t, "D1")
	ws.writeInputs(t, "D2")

	manifest := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("dashboards:\n  - id: D1\n  - id: D2\n    kind: patient\n"), 0o600))

	_, err := ws.run(t, "load", "--manifest", manifest)
	require.NoError(t, err)

	assert.Len(t, ws.records(t, pipeline.CellsIndex("D2")), 4)
	assert.Len(t, ws.records(t, pipeline.EntryIndex), 2)

	_, err = ws.run(t, "load", "D1", "--manifest", manifest)
	require.ErrorIs(t, err, commands.ErrTargetsAndIDs)
}

func TestLoad_RejectsBadArguments(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)

	_, err := ws.run(t, "load")
	require.ErrorIs(t, err, commands.ErrNoTargets)

	_, err = ws.run(t, "load", "D1", "--format", "xml")
	require.ErrorIs(t, err, commands.ErrInvalidFormat)

	_, err = ws.run(t, "load", "D1", "--kind", "tissue")
	require.ErrorIs(t, err, pipeline.ErrUnknownKind)

	_, err = ws.run(t, "load", "D1", "--chunk-size", "1")
	require.Error(t, err)
}

func TestCheck_WritesNothing(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	ws.writeInputs(t, "D1")

	out, err := ws.run(t, "check", "D1")
	require.NoError(t, err)

	assert.Contains(t, out, "dry run:")
	assert.Empty(t, ws.records(t, pipeline.CellsIndex("D1")))
}

func TestClean_RemovesDashboard(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	ws.writeInputs(t, "D1")

	_, err := ws.run(t, "load", "D1")
	require.NoError(t, err)

	_, err = ws.run(t, "clean", "D1")
	require.NoError(t, err)

	assert.Empty(t, ws.records(t, pipeline.CellsIndex("D1")))
	assert.Empty(t, ws.records(t, pipeline.EntryIndex))
}

func TestLoadGenes(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	genes := filepath.Join(t.TempDir(), "genes.tsv")
	require.NoError(t, os.WriteFile(genes, []byte("gene\nPTPRC\nCD3E\nEPCAM\n"), 0o600))

	out, err := ws.run(t, "load-genes", genes)
	require.NoError(t, err)

	assert.Contains(t, out, "genes: 3 indexed, 0 failed")
	assert.Len(t, ws.records(t, pipeline.GenesIndex), 3)
}

func TestVersion_NeedsNoConfig(t *testing.T) {
	t.Parallel()

	cmd := commands.NewRootCommand()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "version"})

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "miraload "))
}
