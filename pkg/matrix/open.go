package matrix

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// File is a Reader bound to an open file and its decompressor.
type File struct {
	*Reader

	closers []io.Closer
}

// Open opens a matrix file. Files ending in ".gz" or ".zst" are decompressed
// transparently.
func Open(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open matrix: %w", err)
	}

	f := &File{closers: []io.Closer{file}}

	var src io.Reader = file

	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, gzErr := gzip.NewReader(file)
		if gzErr != nil {
			f.Close()

			return nil, fmt.Errorf("open gzip matrix: %w", gzErr)
		}

		f.closers = append(f.closers, gz)
		src = gz
	case strings.HasSuffix(path, ".zst"):
		dec, zErr := zstd.NewReader(file)
		if zErr != nil {
			f.Close()

			return nil, fmt.Errorf("open zstd matrix: %w", zErr)
		}

		f.closers = append(f.closers, dec.IOReadCloser())
		src = dec
	}

	reader, err := NewReader(src)
	if err != nil {
		f.Close()

		return nil, fmt.Errorf("read matrix %s: %w", path, err)
	}

	f.Reader = reader

	return f, nil
}

// Close releases the decompressor and the underlying file.
func (f *File) Close() error {
	var firstErr error

	for i := len(f.closers) - 1; i >= 0; i-- {
		err := f.closers[i].Close()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	f.closers = nil

	return firstErr
}
