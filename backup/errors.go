package backup

import "errors"

var (
	// ErrNotFound is returned when a backup has no manifest.
	ErrNotFound = errors.New("backup: not found")
	// ErrExists is returned when a backup name or a restore target is taken.
	ErrExists = errors.New("backup: already exists")
	// ErrCorrupt is returned for unreadable or inconsistent manifests.
	ErrCorrupt = errors.New("backup: corrupt manifest")
	// ErrChecksum is returned when restored bytes do not match the manifest.
	ErrChecksum = errors.New("backup: checksum mismatch")
	// ErrInvalidName is returned for unusable backup names.
	ErrInvalidName = errors.New("backup: invalid name")
)
