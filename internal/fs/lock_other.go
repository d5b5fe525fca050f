//go:build !unix && !windows

package fs

// Lock is a no-op on platforms without advisory file locks.
func Lock(File) error { return nil }

// Unlock is a no-op on platforms without advisory file locks.
func Unlock(File) error { return nil }
