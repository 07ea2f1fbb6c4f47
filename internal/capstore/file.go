package capstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Observe-l/tdc-polar/polar"
)

// FileStore keeps one record file per key in Dir.
type FileStore struct {
	Dir string
}

// Path returns the record file of key.
func (s FileStore) Path(key polar.CapacityKey) string {
	return filepath.Join(s.Dir, FileName(key))
}

// Load reads the ranking of key. A missing file is not an error.
func (s FileStore) Load(_ context.Context, key polar.CapacityKey) (polar.Ranking, bool, error) {
	f, err := os.Open(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()
	r, err := ReadRecords(f, key.CodeLength)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// Save replaces the record file of key atomically.
func (s FileStore) Save(_ context.Context, key polar.CapacityKey, r polar.Ranking) error {
	return writeAtomic(s.Path(key), func(f *os.File) error { return WriteRecords(f, r) })
}

// writeAtomic writes path through a temporary file in the same directory.
func writeAtomic(path string, write func(*os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path))
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
