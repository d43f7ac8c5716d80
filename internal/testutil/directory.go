package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/model"
)

// Fault makes a FlakyDirectory fail a matching call.
type Fault struct {
	// Op is the directory operation: create, update, suspend or remove.
	Op string `yaml:"op"`

	// ID matches the external id for create and the downstream id otherwise.
	// Empty matches every call of Op.
	ID string `yaml:"id,omitempty"`

	// Kind is the error kind returned. Ignored when Panic is set.
	Kind directory.Kind `yaml:"kind,omitempty"`

	// Times limits how often the fault fires; 0 means always.
	Times int `yaml:"times,omitempty"`

	// Panic makes the call panic instead of returning an error.
	Panic bool `yaml:"panic,omitempty"`
}

// FlakyDirectory wraps a Directory and injects faults.
//
// Thread-safety: safe for concurrent use.
type FlakyDirectory struct {
	directory.Directory

	mu     sync.Mutex
	faults []Fault
	fired  []int
}

// NewFlakyDirectory wraps next with faults.
func NewFlakyDirectory(next directory.Directory, faults ...Fault) *FlakyDirectory {
	return &FlakyDirectory{
		Directory: next,
		faults:    faults,
		fired:     make([]int, len(faults)),
	}
}

// Fired returns how often each fault fired, aligned with the constructor
// arguments.
func (d *FlakyDirectory) Fired() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.fired...)
}

// check returns the injected error for (op, id) or nil. It panics for
// faults with Panic set.
func (d *FlakyDirectory) check(op, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, f := range d.faults {
		if f.Op != op || (f.ID != "" && f.ID != id) {
			continue
		}
		if f.Times > 0 && d.fired[i] >= f.Times {
			continue
		}
		d.fired[i]++
		if f.Panic {
			panic("injected panic in " + op + " " + id)
		}
		kind := f.Kind
		if kind == "" {
			kind = directory.KindTransient
		}
		return directory.NewError(kind, op, id, errors.New("injected fault"))
	}
	return nil
}

// Create implements directory.Directory.
func (d *FlakyDirectory) Create(ctx context.Context, payload map[string]string) (string, error) {
	if err := d.check(directory.OpCreate, payload[model.FieldExternalID]); err != nil {
		return "", err
	}
	return d.Directory.Create(ctx, payload)
}

// Update implements directory.Directory.
func (d *FlakyDirectory) Update(ctx context.Context, id string, patch model.Patch) error {
	if err := d.check(directory.OpUpdate, id); err != nil {
		return err
	}
	return d.Directory.Update(ctx, id, patch)
}

// Suspend implements directory.Directory.
func (d *FlakyDirectory) Suspend(ctx context.Context, id string) error {
	if err := d.check(directory.OpSuspend, id); err != nil {
		return err
	}
	return d.Directory.Suspend(ctx, id)
}

// Remove implements directory.Directory.
func (d *FlakyDirectory) Remove(ctx context.Context, id string) error {
	if err := d.check(directory.OpRemove, id); err != nil {
		return err
	}
	return d.Directory.Remove(ctx, id)
}
