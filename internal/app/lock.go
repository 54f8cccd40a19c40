package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"nowa-go/internal/errs"
)

// LockFileName is the single-writer lock inside the archive root.
const LockFileName = ".nowa.lock"

// ArchiveLock keeps a second process from mutating the same archive.
type ArchiveLock struct {
	path string
	lock *flock.Flock
}

// AcquireArchiveLock takes the exclusive lock for archiveRoot without
// waiting. A held lock fails with errs.ErrConflict.
func AcquireArchiveLock(archiveRoot string) (*ArchiveLock, error) {
	if err := os.MkdirAll(archiveRoot, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating archive root: %w", errs.ErrIO, err)
	}
	path := filepath.Join(archiveRoot, LockFileName)
	l := flock.New(path)

	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: another nowa process is using %s", errs.ErrConflict, archiveRoot)
	}
	return &ArchiveLock{path: path, lock: l}, nil
}

// Path returns the lock file location.
func (l *ArchiveLock) Path() string {
	return l.path
}

// Release unlocks. The lock file itself is left in place.
func (l *ArchiveLock) Release() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
