// Package streaming decides whether a matrix is read whole or in chunks and
// sizes the chunks from a memory budget.
package streaming

import "errors"

// Mode represents the read mode setting.
type Mode int

// Read mode constants.
const (
	ModeAuto Mode = iota
	ModeChunked
	ModeWhole
)

// ErrInvalidMode is returned when parsing an invalid mode string.
var ErrInvalidMode = errors.New("invalid read mode")

// ParseMode converts a string to a Mode value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "auto":
		return ModeAuto, nil
	case "chunked":
		return ModeChunked, nil
	case "whole":
		return ModeWhole, nil
	default:
		return ModeAuto, ErrInvalidMode
	}
}

// String returns the mode name accepted by ParseMode.
func (m Mode) String() string {
	switch m {
	case ModeChunked:
		return "chunked"
	case ModeWhole:
		return "whole"
	default:
		return "auto"
	}
}

// Decision is the resolved read plan of one load. ChunkRows is zero in
// whole-file mode.
type Decision struct {
	Chunked   bool
	ChunkRows int
}

// Decide resolves the read plan. An explicit requested size always selects
// chunked mode unless mode is ModeWhole. In ModeAuto without a requested
// size the Detector decides and the Planner sizes the chunks.
func Decide(mode Mode, requested int, entries, genes int, budget int64) Decision {
	if mode == ModeWhole {
		return Decision{}
	}

	if requested > 0 {
		return Decision{Chunked: true, ChunkRows: requested}
	}

	planner := Planner{TotalEntries: entries, Genes: genes, MemoryBudget: budget}

	if mode == ModeChunked {
		return Decision{Chunked: true, ChunkRows: planner.ChunkRows()}
	}

	detector := Detector{Entries: entries, MemoryBudget: budget}
	if !detector.ShouldStream() {
		return Decision{}
	}

	return Decision{Chunked: true, ChunkRows: planner.ChunkRows()}
}
