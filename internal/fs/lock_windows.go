//go:build windows

package fs

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

// Lock takes an exclusive, non-blocking lock on the first byte of f.
// It returns ErrLocked if another handle already holds the lock.
func Lock(f File) error {
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, ol)
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return ErrLocked
	}
	if err != nil {
		return fmt.Errorf("LockFileEx: %w", err)
	}
	return nil
}

// Unlock releases a lock taken with Lock.
func Unlock(f File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
}
