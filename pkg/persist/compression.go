package persist

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrUnknownCompression is returned by ParseCompression for unsupported names.
var ErrUnknownCompression = errors.New("unknown compression")

// Compression wraps byte streams with a framing compressor.
type Compression interface {
	// Name returns the configuration name ("none", "lz4", "zstd").
	Name() string
	// Extension returns the suffix appended to file names, "" for none.
	Extension() string
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// Compression names accepted by ParseCompression.
const (
	CompressionNone = "none"
	CompressionLZ4  = "lz4"
	CompressionZstd = "zstd"
)

// ParseCompression resolves a configured compression name. The empty string
// means none.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CompressionNone:
		return noCompression{}, nil
	case CompressionLZ4:
		return lz4Compression{}, nil
	case CompressionZstd:
		return zstdCompression{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

type noCompression struct{}

func (noCompression) Name() string      { return CompressionNone }
func (noCompression) Extension() string { return "" }

func (noCompression) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (noCompression) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type lz4Compression struct{}

func (lz4Compression) Name() string      { return CompressionLZ4 }
func (lz4Compression) Extension() string { return ".lz4" }

func (lz4Compression) NewWriter(w io.Writer) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)

	err := zw.Apply(lz4.ChecksumOption(true))
	if err != nil {
		return nil, fmt.Errorf("lz4 writer: %w", err)
	}

	return zw, nil
}

func (lz4Compression) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

type zstdCompression struct{}

func (zstdCompression) Name() string      { return CompressionZstd }
func (zstdCompression) Extension() string { return ".zst" }

func (zstdCompression) NewWriter(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}

	return enc, nil
}

func (zstdCompression) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}

	return dec.IOReadCloser(), nil
}
