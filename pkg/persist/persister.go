package persist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Persister stores one value of type T per directory, in a file named
// basename plus the codec extension.
type Persister[T any] struct {
	basename string
	codec    Codec
}

// NewPersister returns a persister for basename.
func NewPersister[T any](basename string, codec Codec) *Persister[T] {
	return &Persister[T]{basename: basename, codec: codec}
}

// Path returns the file p uses in dir.
func (p *Persister[T]) Path(dir string) string {
	return filepath.Join(dir, p.basename+p.codec.Extension())
}

// Exists reports whether dir holds a stored value.
func (p *Persister[T]) Exists(dir string) bool {
	_, err := os.Stat(p.Path(dir))

	return err == nil
}

// Save writes state into dir, creating dir when needed.
func (p *Persister[T]) Save(dir string, state *T) error {
	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	return WriteAtomic(p.Path(dir), func(w io.Writer) error {
		encErr := p.codec.Encode(w, state)
		if encErr != nil {
			return fmt.Errorf("encode %s: %w", p.basename, encErr)
		}

		return nil
	})
}

// Load reads the value stored in dir. A missing file matches
// [os.ErrNotExist].
func (p *Persister[T]) Load(dir string) (*T, error) {
	path := p.Path(dir)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var state T

	err = p.codec.Decode(file, &state)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return &state, nil
}

// Remove deletes the stored value. Removing a missing value is not an error.
func (p *Persister[T]) Remove(dir string) error {
	err := os.Remove(p.Path(dir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p.basename, err)
	}

	return nil
}
