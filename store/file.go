package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
)

// FileSlots stores each slot as a file named after its key.
type FileSlots struct {
	dir string
}

// NewFileSlots stores each slot as a JSON file in dir, creating dir if needed.
func NewFileSlots(dir string) (*FileSlots, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create slot dir: %w", err)
	}
	return &FileSlots{dir: dir}, nil
}

func (f *FileSlots) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Put writes to a temp file and renames it over the slot.
func (f *FileSlots) Put(ctx context.Context, key string, data []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, os.Remove(tmp.Name()))
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err = tmp.Sync(); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(key))
}

// Get returns ErrSlotNotFound when the slot file does not exist.
func (f *FileSlots) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSlotNotFound
	}
	return data, err
}
