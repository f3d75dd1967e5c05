// Package markers parses the marker-gene matrix: a CSV whose first column
// holds gene names and whose other columns are cell types with 0/1 values.
package markers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/Sumatoshi-tech/miraload/pkg/observability"
)

// ErrFormat reports a marker matrix that cannot be parsed.
var ErrFormat = errors.New("malformed marker matrix")

// Record marks gene as a marker of cell type.
type Record struct {
	CellType string `json:"cell_type"`
	Gene     string `json:"gene"`
}

// Parse reads the matrix and returns one record per 1 value, grouped by cell
// type in column order, genes in row order. Dots in cell type names become
// spaces.
func Parse(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	if len(rows) == 0 || len(rows[0]) < 2 {
		return nil, fmt.Errorf("%w: need a gene column and at least one cell type", ErrFormat)
	}

	cellTypes := make([]string, 0, len(rows[0])-1)
	for _, name := range rows[0][1:] {
		cellTypes = append(cellTypes, strings.ReplaceAll(strings.TrimSpace(name), ".", " "))
	}

	var records []Record

	for col, cellType := range cellTypes {
		for line, row := range rows[1:] {
			marked, parseErr := isMarked(row[col+1])
			if parseErr != nil {
				return nil, fmt.Errorf("%w: line %d, column %q: %w", ErrFormat, line+2, cellType, parseErr)
			}

			if marked {
				records = append(records, Record{CellType: cellType, Gene: strings.TrimSpace(row[0])})
			}
		}
	}

	return records, nil
}

func isMarked(field string) (bool, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return false, nil
	}

	value, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return false, err
	}

	return value == 1, nil
}

// Load parses the marker matrix at source, a local path or an http(s) URL.
// Remote reads are retried on transport errors and 5xx answers.
func Load(ctx context.Context, source string, logger *slog.Logger) ([]Record, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open marker matrix: %w", err)
		}
		defer f.Close()

		return Parse(f)
	}

	client := retryablehttp.NewClient()
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = observability.OrDiscard(logger)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build marker request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch marker matrix: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch marker matrix: status %d", resp.StatusCode)
	}

	return Parse(resp.Body)
}
