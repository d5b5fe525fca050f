package store

import "errors"

var (
	// ErrCorrupt is returned when the superblock or a directory block fails validation.
	ErrCorrupt = errors.New("store: corrupt volume")
	// ErrClosed is returned by operations on a closed volume.
	ErrClosed = errors.New("store: volume closed")
	// ErrOutOfBounds is returned for reads or writes past the allocated size.
	ErrOutOfBounds = errors.New("store: access out of bounds")
	// ErrNameTooLong is returned by Root for names longer than MaxNameLen.
	ErrNameTooLong = errors.New("store: root name too long")
)
