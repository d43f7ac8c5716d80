package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/roster/internal/model"
)

// File is a Directory persisted as a JSON array of DownstreamEntity.
//
// The file is read once by OpenFile and rewritten after every successful
// mutation, so a crashed run leaves the file consistent with the calls that
// were acknowledged.
type File struct {
	*Memory
	path string

	writeMu sync.Mutex
}

// OpenFile loads path into a File directory named name.
// A missing file is an empty directory.
func OpenFile(name, path string) (*File, error) {
	var records []model.DownstreamEntity

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, NewError(KindSourceUnavailable, OpFetch, "", err)
	default:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, NewError(KindSourceUnavailable, OpFetch, "", fmt.Errorf("parse %s: %w", path, err))
		}
	}

	return &File{Memory: NewMemory(name, records...), path: path}, nil
}

// Path returns the backing file.
func (f *File) Path() string { return f.path }

// Create implements Directory.
func (f *File) Create(ctx context.Context, payload map[string]string) (string, error) {
	id, err := f.Memory.Create(ctx, payload)
	if err != nil {
		return "", err
	}
	return id, f.flush(OpCreate, id)
}

// Update implements Directory.
func (f *File) Update(ctx context.Context, id string, patch model.Patch) error {
	if err := f.Memory.Update(ctx, id, patch); err != nil {
		return err
	}
	return f.flush(OpUpdate, id)
}

// Suspend implements Directory.
func (f *File) Suspend(ctx context.Context, id string) error {
	if err := f.Memory.Suspend(ctx, id); err != nil {
		return err
	}
	return f.flush(OpSuspend, id)
}

// Remove implements Directory.
func (f *File) Remove(ctx context.Context, id string) error {
	if err := f.Memory.Remove(ctx, id); err != nil {
		return err
	}
	return f.flush(OpRemove, id)
}

// flush writes the current snapshot through a temp file and rename.
func (f *File) flush(op, id string) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	data, err := json.MarshalIndent(f.Snapshot(), "", "  ")
	if err != nil {
		return NewError(KindInternal, op, id, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".roster-*.json")
	if err != nil {
		return NewError(KindInternal, op, id, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return NewError(KindInternal, op, id, err)
	}
	if err := tmp.Close(); err != nil {
		return NewError(KindInternal, op, id, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return NewError(KindInternal, op, id, err)
	}
	return nil
}
