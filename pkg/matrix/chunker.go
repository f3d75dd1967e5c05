package matrix

import (
	"errors"
	"fmt"
	"io"
)

// Chunk is a fixed-row-count slice of the matrix in file order. A chunk does
// not respect cell boundaries; only the final chunk may be shorter than the
// requested size.
type Chunk struct {
	Index   int
	Entries []Entry
	Final   bool
}

// Chunker yields chunks lazily. It is finite and cannot be restarted.
type Chunker struct {
	reader *Reader
	size   int
	index  int
	done   bool
}

// Chunks returns a chunker over the remaining entries. Sizes below
// MinChunkRows are rejected before anything is read. From here on a cell
// index lower than the previous row's fails with ErrUnsortedMatrix.
func (r *Reader) Chunks(size int) (*Chunker, error) {
	if size < MinChunkRows {
		return nil, fmt.Errorf("%w: %d rows (minimum %d)", ErrChunkTooSmall, size, MinChunkRows)
	}

	r.cellOrder = true

	return &Chunker{reader: r, size: size}, nil
}

// Size returns the configured rows per chunk.
func (c *Chunker) Size() int {
	return c.size
}

// Next returns the next chunk, or io.EOF once the matrix is exhausted.
// A chunk other than the final one that holds a single distinct cell fails
// with ErrChunkTooSmall.
func (c *Chunker) Next() (Chunk, error) {
	if c.done {
		return Chunk{}, io.EOF
	}

	entries := make([]Entry, 0, c.size)

	for len(entries) < c.size {
		entry, err := c.reader.next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			c.done = true

			return Chunk{}, err
		}

		entries = append(entries, entry)
	}

	more, err := c.reader.more()
	if err != nil {
		c.done = true

		return Chunk{}, err
	}

	if len(entries) == 0 {
		c.done = true

		return Chunk{}, io.EOF
	}

	chunk := Chunk{Index: c.index, Entries: entries, Final: !more}
	c.index++
	c.done = chunk.Final

	if !chunk.Final && singleCell(entries) {
		c.done = true

		return Chunk{}, fmt.Errorf("%w: chunk %d of %d rows holds only cell %d",
			ErrChunkTooSmall, chunk.Index, c.size, entries[0].CellIdx)
	}

	return chunk, nil
}

func singleCell(entries []Entry) bool {
	return entries[0].CellIdx == entries[len(entries)-1].CellIdx
}
