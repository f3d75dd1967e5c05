package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// table is a parsed delimited file with normalized column names.
type table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// readTable parses a tab-delimited file with a header row. When data rows
// carry one more field than the header, the leading field is exposed as the
// "_rowname" column.
func readTable(r io.Reader) (*table, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: missing header row", ErrSchema)
	}

	header := records[0]
	rows := records[1:]

	if len(rows) > 0 && len(rows[0]) == len(header)+1 {
		header = append([]string{rowNameColumn}, header...)
	}

	t := &table{
		columns: make([]string, len(header)),
		index:   make(map[string]int, len(header)),
		rows:    rows,
	}

	for i, name := range header {
		norm := NormalizeColumn(name)
		if name == rowNameColumn {
			norm = rowNameColumn
		}

		if _, dup := t.index[norm]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrSchema, norm)
		}

		t.columns[i] = norm
		t.index[norm] = i
	}

	for i, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("%w: row %d has %d fields, header has %d", ErrSchema, i+1, len(row), len(header))
		}
	}

	return t, nil
}

// lookup returns the position of the first alias present in the table.
func (t *table) lookup(aliases ...string) (int, bool) {
	for _, alias := range aliases {
		if pos, ok := t.index[alias]; ok {
			return pos, true
		}
	}

	return 0, false
}

// missing reports whether a cell value is absent.
func missing(value string) bool {
	switch strings.TrimSpace(value) {
	case "", "NA", "NaN", "nan", "null":
		return true
	default:
		return false
	}
}

// parseValue types a free-form attribute. Finite numbers become float64,
// everything else stays a string.
func parseValue(value string) any {
	value = strings.TrimSpace(value)

	f, err := strconv.ParseFloat(value, 64)
	if err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}

	return value
}

var errNotFloat = errors.New("not a finite number")

func parseFloat(value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, err
	}

	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, errNotFloat
	}

	return f, nil
}
