//go:build unix

package fs

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Lock takes an exclusive, non-blocking advisory lock on f.
// It returns ErrLocked if another handle already holds the lock.
func Lock(f File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrLocked
	}
	if err != nil {
		return fmt.Errorf("flock: %w", err)
	}
	return nil
}

// Unlock releases a lock taken with Lock.
func Unlock(f File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
