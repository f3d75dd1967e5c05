// Package assemble joins reconciled matrix rows with the metadata tables and
// groups them into one nested document per cell.
package assemble

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// GeneValue is one observed expression value on a cell document.
type GeneValue struct {
	Gene  string  `json:"gene"`
	Value float64 `json:"value"`
}

// CellDocument is the output record for one cell. It is not mutated after
// it is handed to a sink.
type CellDocument struct {
	CellID string
	// Fields holds the flattened cell metadata.
	Fields map[string]any
	Genes  []GeneValue
}

// MarshalJSON encodes cell_id first, then metadata fields in sorted key
// order, then genes, so equal documents always encode to equal bytes.
func (d CellDocument) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(`{"cell_id":`)

	err := writeJSON(&buf, d.CellID)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(d.Fields))
	for key := range d.Fields {
		if key != "cell_id" && key != "genes" {
			keys = append(keys, key)
		}
	}

	slices.Sort(keys)

	for _, key := range keys {
		buf.WriteByte(',')

		err = writeJSON(&buf, key)
		if err != nil {
			return nil, err
		}

		buf.WriteByte(':')

		err = writeJSON(&buf, d.Fields[key])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
	}

	genes := d.Genes
	if genes == nil {
		genes = []GeneValue{}
	}

	buf.WriteString(`,"genes":`)

	err = writeJSON(&buf, genes)
	if err != nil {
		return nil, err
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	buf.Write(data)

	return nil
}
