package persist

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// WriteAtomic creates path through a sibling temporary file that is renamed
// into place once write succeeds. On failure the previous file, if any, is
// left untouched and the temporary file is removed.
func WriteAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	committed := false

	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	err = write(tmp)
	if err != nil {
		return err
	}

	err = tmp.Chmod(filePerm)
	if err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}

	committed = true

	return nil
}

// WriteCompressed atomically writes the output of write to path through comp.
func WriteCompressed(path string, comp Compression, write func(io.Writer) error) error {
	return WriteAtomic(path, func(w io.Writer) error {
		cw, err := comp.NewWriter(w)
		if err != nil {
			return err
		}

		err = write(cw)
		if err != nil {
			cw.Close()

			return err
		}

		err = cw.Close()
		if err != nil {
			return fmt.Errorf("finish %s: %w", path, err)
		}

		return nil
	})
}
