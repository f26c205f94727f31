// Package outdir owns a run's output directory and keeps other runs out of it.
package outdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockName is the lock file created inside every output directory.
const LockName = ".scflow.lock"

// ErrLocked is returned when another run holds the directory.
var ErrLocked = errors.New("output directory is in use by another run")

// Dir is an output directory locked for the lifetime of a run.
type Dir struct {
	root string
	lock *flock.Flock
}

// Open creates dir if needed and takes its lock without waiting.
func Open(dir string) (*Dir, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	lockPath := filepath.Join(dir, LockName)
	l := flock.New(lockPath)
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("cannot acquire %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock: %s)", ErrLocked, lockPath)
	}
	return &Dir{root: dir, lock: l}, nil
}

// Root is the directory path.
func (d *Dir) Root() string { return d.root }

// Path joins name onto the directory.
func (d *Dir) Path(name string) string { return filepath.Join(d.root, name) }

// Create truncates or creates name inside the directory.
func (d *Dir) Create(name string) (*os.File, error) {
	f, err := os.Create(d.Path(name))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return f, nil
}

// Close releases the lock. The lock file itself is left behind.
func (d *Dir) Close() error {
	if d == nil || d.lock == nil {
		return nil
	}
	return d.lock.Unlock()
}
