// Package matrix reads sparse coordinate-format expression matrices, either
// wholly into memory or as a lazy sequence of fixed-row-count chunks.
package matrix

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Sentinel errors for matrix reading.
var (
	// ErrMalformed reports an unparsable header or entry line.
	ErrMalformed = errors.New("malformed matrix")
	// ErrUnsortedMatrix reports a cell index that decreased between rows
	// while reading chunks, which need each cell's rows to be contiguous.
	ErrUnsortedMatrix = errors.New("matrix rows are not grouped by cell")
	// ErrChunkTooSmall reports a chunk size that cannot hold two distinct cells.
	ErrChunkTooSmall = errors.New("chunk size too small")
)

// MinChunkRows is the smallest chunk size that can ever contain two cells.
const MinChunkRows = 2

// maxLineSize bounds a single matrix line.
const maxLineSize = 1 << 20

// maxPrealloc caps the entries ReadAll reserves up front from the declared
// header count.
const maxPrealloc = 1 << 16

// Entry is one observed (gene, cell, value) triple. Indices are 1-based.
type Entry struct {
	GeneIdx int
	CellIdx int
	Value   float64
}

// Header holds the dimensions declared on the first data line of the file.
type Header struct {
	Genes   int
	Cells   int
	Entries int
}

// Reader parses a coordinate matrix stream. It is not safe for concurrent use.
type Reader struct {
	scanner *bufio.Scanner
	header  Header

	line      int
	read      int
	lastCell  int
	cellOrder bool

	peeked  *Entry
	peekErr error
}

// NewReader parses the header from r and returns a reader positioned at the
// first entry. Lines starting with '%' and blank lines are skipped.
func NewReader(r io.Reader) (*Reader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	rd := &Reader{scanner: scanner}

	fields, err := rd.nextFields()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing dimension header", ErrMalformed)
	}

	if err != nil {
		return nil, err
	}

	header, err := parseHeader(fields)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", rd.line, err)
	}

	rd.header = header

	return rd, nil
}

// Header returns the dimensions declared by the file.
func (r *Reader) Header() Header {
	return r.header
}

// EntriesRead returns how many entries have been consumed so far.
func (r *Reader) EntriesRead() int {
	return r.read
}

// ReadAll returns every remaining entry in file order. Rows may come in any
// order, e.g. grouped by gene.
func (r *Reader) ReadAll() ([]Entry, error) {
	entries := make([]Entry, 0, min(max(r.header.Entries-r.read, 0), maxPrealloc))

	for {
		entry, err := r.next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}

		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}
}

// next returns the next entry, consuming a peeked one first.
func (r *Reader) next() (Entry, error) {
	if r.peeked != nil {
		entry := *r.peeked
		r.peeked = nil

		return entry, nil
	}

	if r.peekErr != nil {
		return Entry{}, r.peekErr
	}

	return r.scanEntry()
}

// more reports whether another entry follows, buffering it for next.
func (r *Reader) more() (bool, error) {
	if r.peeked != nil {
		return true, nil
	}

	if r.peekErr != nil {
		if errors.Is(r.peekErr, io.EOF) {
			return false, nil
		}

		return false, r.peekErr
	}

	entry, err := r.scanEntry()
	if err != nil {
		r.peekErr = err

		if errors.Is(err, io.EOF) {
			return false, nil
		}

		return false, err
	}

	r.peeked = &entry

	return true, nil
}

func (r *Reader) scanEntry() (Entry, error) {
	fields, err := r.nextFields()
	if err != nil {
		return Entry{}, err
	}

	entry, err := r.parseEntry(fields)
	if err != nil {
		return Entry{}, fmt.Errorf("line %d: %w", r.line, err)
	}

	if r.cellOrder && entry.CellIdx < r.lastCell {
		return Entry{}, fmt.Errorf("%w: line %d has cell %d after cell %d",
			ErrUnsortedMatrix, r.line, entry.CellIdx, r.lastCell)
	}

	r.lastCell = entry.CellIdx
	r.read++

	return entry, nil
}

func (r *Reader) nextFields() ([]string, error) {
	for r.scanner.Scan() {
		r.line++

		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "%") {
			continue
		}

		return strings.Fields(text), nil
	}

	err := r.scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("scan matrix: %w", err)
	}

	return nil, io.EOF
}

func parseHeader(fields []string) (Header, error) {
	if len(fields) < 3 {
		return Header{}, fmt.Errorf("%w: header needs 3 integers, got %d fields", ErrMalformed, len(fields))
	}

	var dims [3]int

	for i := range dims {
		v, err := strconv.Atoi(fields[i])
		if err != nil || v < 0 {
			return Header{}, fmt.Errorf("%w: header field %q", ErrMalformed, fields[i])
		}

		dims[i] = v
	}

	return Header{Genes: dims[0], Cells: dims[1], Entries: dims[2]}, nil
}

func (r *Reader) parseEntry(fields []string) (Entry, error) {
	if len(fields) < 3 {
		return Entry{}, fmt.Errorf("%w: entry needs 3 fields, got %d", ErrMalformed, len(fields))
	}

	gene, err := strconv.Atoi(fields[0])
	if err != nil {
		return Entry{}, fmt.Errorf("%w: gene index %q", ErrMalformed, fields[0])
	}

	cell, err := strconv.Atoi(fields[1])
	if err != nil {
		return Entry{}, fmt.Errorf("%w: cell index %q", ErrMalformed, fields[1])
	}

	value, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: value %q", ErrMalformed, fields[2])
	}

	if gene < 1 || gene > r.header.Genes {
		return Entry{}, fmt.Errorf("%w: gene index %d outside 1..%d", ErrMalformed, gene, r.header.Genes)
	}

	if cell < 1 || cell > r.header.Cells {
		return Entry{}, fmt.Errorf("%w: cell index %d outside 1..%d", ErrMalformed, cell, r.header.Cells)
	}

	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return Entry{}, fmt.Errorf("%w: value %v is not a non-negative number", ErrMalformed, value)
	}

	return Entry{GeneIdx: gene, CellIdx: cell, Value: value}, nil
}
