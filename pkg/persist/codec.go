// Package persist stores small state documents, such as the checkpoint
// journal and index mappings, and provides the stream compressions used by
// file outputs. Every write is atomic.
package persist

import (
	"encoding/json"
	"fmt"
	"io"
)

const (
	jsonExtension = ".json"
	jsonIndent    = "  "
)

// Codec serializes one state value.
type Codec interface {
	Encode(w io.Writer, state any) error
	// Decode reads into state, which must be a pointer.
	Decode(r io.Reader, state any) error
	// Extension is the file suffix, for example ".json".
	Extension() string
}

// JSONCodec encodes state as JSON.
type JSONCodec struct {
	// Indent is the per-level indentation. Empty writes compact JSON.
	Indent string
	// Strict rejects documents with fields the target does not declare.
	Strict bool
}

// NewJSONCodec returns a codec writing two-space indented JSON, which keeps
// journals and mappings readable when inspected by hand.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: jsonIndent}
}

func (c *JSONCodec) Encode(w io.Writer, state any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", c.Indent)

	err := enc.Encode(state)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

func (c *JSONCodec) Decode(r io.Reader, state any) error {
	dec := json.NewDecoder(r)
	if c.Strict {
		dec.DisallowUnknownFields()
	}

	err := dec.Decode(state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

func (c *JSONCodec) Extension() string { return jsonExtension }
