package syncer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the working copy lock.
var ErrLocked = errors.New("working copy locked")

// lockFile is created inside the working copy's .git directory so it is
// never staged.
const lockFile = "ontowatch.lock"

// workingCopyLock guards a working copy against concurrent sync processes.
type workingCopyLock struct {
	flock *flock.Flock
}

func newWorkingCopyLock(root string) *workingCopyLock {
	return &workingCopyLock{flock: flock.New(filepath.Join(root, ".git", lockFile))}
}

func (l *workingCopyLock) Lock() error {
	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock working copy: %w", err)
	}
	if !locked {
		return ErrLocked
	}
	return nil
}

func (l *workingCopyLock) Unlock() error {
	// if this process hasn't locked the working copy, leave the file alone
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock working copy: %w", err)
	}
	return os.Remove(l.flock.Path())
}
