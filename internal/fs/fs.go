package fs

import (
	"errors"
	"io"
	"os"
)

// File is an open volume, journal or restore target. Volumes use positional
// reads and writes only; the journal appends with Write and replays with Read.
type File interface {
	io.Reader
	io.Writer
	io.ReaderAt
	io.WriterAt
	io.Closer
	Sync() error
	Stat() (os.FileInfo, error)
	// Fd backs Lock.
	Fd() uintptr
}

// FileSystem is the set of calls refdb makes on a database or restore
// directory. Tests substitute FaultyFS.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	ReadDir(name string) ([]os.DirEntry, error)

	// Rename publishes a restored file or blob written under a temporary name.
	Rename(oldpath, newpath string) error
	Remove(name string) error

	// Truncate cuts a torn journal tail.
	Truncate(name string, size int64) error
}

// OS is the FileSystem of the host.
type OS struct{}

var _ FileSystem = OS{}

func (OS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		// Keep a nil interface on failure.
		return nil, err
	}
	return f, nil
}

func (OS) Stat(name string) (os.FileInfo, error)        { return os.Stat(name) }
func (OS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (OS) ReadDir(name string) ([]os.DirEntry, error)   { return os.ReadDir(name) }
func (OS) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }
func (OS) Remove(name string) error                     { return os.Remove(name) }
func (OS) Truncate(name string, size int64) error       { return os.Truncate(name, size) }

// Default is the host file system.
var Default FileSystem = OS{}

// Exists reports whether name exists. Stat failures other than a missing
// file are returned.
func Exists(fsys FileSystem, name string) (bool, error) {
	_, err := fsys.Stat(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
