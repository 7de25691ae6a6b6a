package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
)

// DirLock is an exclusive cross-process lock on an index directory.
// The lock file lives inside the directory at .lock and survives
// ResetHNSWIndex so a rebuilding owner never loses it.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// AcquireDirLock takes the lock on dir without blocking. It returns an
// IndexLockedError when another owner holds it.
func AcquireDirLock(dir string) (*DirLock, error) {
	return acquireDirLockWithin(dir, 0)
}

// Release unlocks. Safe to call more than once.
func (l *DirLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release index lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string { return l.path }

// acquireDirLockWithin polls for the lock until grace has elapsed, giving
// a previous holder time to let go.
func acquireDirLockWithin(dir string, grace time.Duration) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	path := filepath.Join(dir, LockFileName)
	l := &DirLock{path: path, flock: flock.New(path)}

	deadline := time.Now().Add(grace)
	for {
		acquired, err := l.flock.TryLock()
		if err != nil {
			return nil, amerrors.IndexLockedError(dir, err)
		}
		if acquired {
			l.locked = true
			return l, nil
		}
		if !time.Now().Before(deadline) {
			_ = l.flock.Close()
			return nil, amerrors.IndexLockedError(dir, nil)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func removeIndexFiles(dir string) error {
	for _, name := range []string{GraphFileName, MetaFileName} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}
