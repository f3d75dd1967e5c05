package metadata

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed samples.schema.json
var samplesSchema []byte

// Sample is one record of the sample attribute file.
type Sample map[string]any

// ID returns the sample_id attribute.
func (s Sample) ID() string {
	id, _ := s[FieldSampleID].(string)

	return id
}

// String returns a string attribute, or "" when it is absent or not a string.
func (s Sample) String(key string) string {
	value, _ := s[key].(string)

	return value
}

// ReadSamples parses and validates a JSON array of sample records keyed by
// sample_id.
func ReadSamples(r io.Reader) ([]Sample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(samplesSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("samples: %w: %w", ErrSchema, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			problems = append(problems, resultErr.String())
		}

		return nil, fmt.Errorf("samples: %w: %s", ErrSchema, strings.Join(problems, "; "))
	}

	var samples []Sample

	err = json.Unmarshal(data, &samples)
	if err != nil {
		return nil, fmt.Errorf("samples: %w: %w", ErrSchema, err)
	}

	return samples, nil
}

// JoinSamples left-joins sample attributes onto every cell by sample_id.
// Attributes already present on a cell are kept. The join fails when a
// cell's sample has no record or more than one, since either would change
// the number of joined rows. Duplicates no cell references are ignored.
// On failure no cell is modified.
func JoinSamples(cells *CellTable, samples []Sample) error {
	byID := make(map[string]Sample, len(samples))
	dups := make(map[string]bool)

	for _, sample := range samples {
		id := sample.ID()
		if _, seen := byID[id]; seen {
			dups[id] = true
		}

		byID[id] = sample
	}

	for _, cell := range cells.cells {
		if _, ok := byID[cell.SampleID]; !ok {
			return fmt.Errorf("%w: cell %q references unknown sample_id %q", ErrJoinIntegrity, cell.ID, cell.SampleID)
		}

		if dups[cell.SampleID] {
			return fmt.Errorf("%w: cell %q references sample_id %q, which appears more than once",
				ErrJoinIntegrity, cell.ID, cell.SampleID)
		}
	}

	for _, cell := range cells.cells {
		for key, value := range byID[cell.SampleID] {
			if value == nil || key == FieldCellID {
				continue
			}

			if _, exists := cell.Fields[key]; !exists {
				cell.Fields[key] = value
			}
		}
	}

	return nil
}
