// Package reconcile regroups matrix chunks so that no cell's rows are split
// across two emitted batches.
//
// Rows of one cell are contiguous in the matrix, but a chunk boundary may
// fall inside a cell. The rows of the chunk's last cell are held back as
// pending state and prepended to the next chunk. Every other row is complete
// and released immediately. After the final chunk the pending rows form the
// last batch.
package reconcile

import (
	"errors"
	"io"

	"github.com/Sumatoshi-tech/miraload/pkg/matrix"
)

// Batch is a set of rows whose cells are all complete.
type Batch struct {
	// Seq numbers emitted batches from zero.
	Seq int
	// Rows holds the pending carry-over first, then the chunk's complete rows.
	Rows []matrix.Entry
}

// ChunkSource yields chunks until io.EOF. *matrix.Chunker satisfies it.
type ChunkSource interface {
	Next() (matrix.Chunk, error)
}

// Reconciler owns the carry-over state between chunks.
type Reconciler struct {
	pending []matrix.Entry
	seq     int
}

// Pending returns the rows currently held back for the next chunk.
func (r *Reconciler) Pending() []matrix.Entry {
	return r.pending
}

// Push partitions the pending rows plus a new chunk on the cell of the
// chunk's last row. Rows of that cell become the new pending state; every
// other row is complete and returned. ok is false when nothing is ready,
// which happens when the chunk only continues the pending cell.
func (r *Reconciler) Push(entries []matrix.Entry) (batch Batch, ok bool) {
	if len(entries) == 0 {
		return Batch{}, false
	}

	lastCell := entries[len(entries)-1].CellIdx

	ready := make([]matrix.Entry, 0, len(r.pending)+len(entries))

	var tail []matrix.Entry

	for _, rows := range [2][]matrix.Entry{r.pending, entries} {
		for _, entry := range rows {
			if entry.CellIdx == lastCell {
				tail = append(tail, entry)
			} else {
				ready = append(ready, entry)
			}
		}
	}

	r.pending = tail

	return r.emit(ready)
}

// Flush releases the pending rows as the final batch.
func (r *Reconciler) Flush() (batch Batch, ok bool) {
	ready := r.pending
	r.pending = nil

	return r.emit(ready)
}

func (r *Reconciler) emit(rows []matrix.Entry) (Batch, bool) {
	if len(rows) == 0 {
		return Batch{}, false
	}

	batch := Batch{Seq: r.seq, Rows: rows}
	r.seq++

	return batch, true
}

// Run folds every chunk from src through a fresh Reconciler and hands each
// ready batch to emit, ending with the flushed carry-over. It returns the
// number of chunks consumed.
func Run(src ChunkSource, emit func(Batch) error) (int, error) {
	var rec Reconciler

	chunks := 0

	for {
		chunk, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return chunks, err
		}

		chunks++

		batch, ok := rec.Push(chunk.Entries)
		if !ok {
			continue
		}

		emitErr := emit(batch)
		if emitErr != nil {
			return chunks, emitErr
		}
	}

	batch, ok := rec.Flush()
	if !ok {
		return chunks, nil
	}

	return chunks, emit(batch)
}
