package markers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/miraload/pkg/markers"
)

const markerCSV = `,B.cell,T.cell,Epithelial.cells
CD79A,1,0,0
CD3E,0,1,0
EPCAM,0,0,1
PTPRC,1,1,0
`

func TestParse_GroupsByCellTypeAndReplacesDots(t *testing.T) {
	t.Parallel()

	records, err := markers.Parse(strings.NewReader(markerCSV))
	require.NoError(t, err)

	assert.Equal(t, []markers.Record{
		{CellType: "B cell", Gene: "CD79A"},
		{CellType: "B cell", Gene: "PTPRC"},
		{CellType: "T cell", Gene: "CD3E"},
		{CellType: "T cell", Gene: "PTPRC"},
		{CellType: "Epithelial cells", Gene: "EPCAM"},
	}, records)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no cell types", "gene\nCD3E\n"},
		{"ragged", ",B.cell\nCD3E,1,0\n"},
		{"not numeric", ",B.cell\nCD3E,yes\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := markers.Parse(strings.NewReader(tt.input))
			require.ErrorIs(t, err, markers.ErrFormat)
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "markers.csv")
	require.NoError(t, os.WriteFile(path, []byte(markerCSV), 0o600))

	records, err := markers.Load(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestLoad_FromURLRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		_, _ = w.Write([]byte(markerCSV))
	}))
	t.Cleanup(srv.Close)

	records, err := markers.Load(context.Background(), srv.URL+"/hgsc_v5_major.csv", nil)
	require.NoError(t, err)
	assert.Len(t, records, 5)
	assert.Equal(t, int32(2), calls.Load())
}
