package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockName is the lock file created inside a dataset directory.
const LockName = ".targetview.lock"

const lockRetry = 50 * time.Millisecond

// DirLock serializes writers of one dataset directory across processes. Two
// hosts pointed at the same directory share the lock file.
type DirLock struct {
	f *flock.Flock
}

// NewDirLock prepares the lock for dir, creating the directory if needed.
func NewDirLock(dir string) (*DirLock, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("dataset directory %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("dataset directory %q: %w", dir, err)
	}
	return &DirLock{f: flock.New(filepath.Join(abs, LockName))}, nil
}

// Path is the lock file.
func (l *DirLock) Path() string { return l.f.Path() }

// Acquire waits for the lock until ctx ends and returns the function that
// releases it.
func (l *DirLock) Acquire(ctx context.Context) (release func(), err error) {
	ok, err := l.f.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", l.f.Path(), err)
	}
	if !ok {
		Log.Debugf("Dataset directory is locked by another writer, waiting on %s", l.f.Path())
		if ok, err = l.f.TryLockContext(ctx, lockRetry); err != nil {
			return nil, fmt.Errorf("lock %s: %w", l.f.Path(), err)
		}
		if !ok {
			return nil, fmt.Errorf("lock %s: not acquired", l.f.Path())
		}
	}
	return func() {
		if err := l.f.Unlock(); err != nil {
			Log.Warnf("Releasing %s: %v", l.f.Path(), err)
		}
	}, nil
}
