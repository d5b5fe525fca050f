package diskmap

import "errors"

var (
	// ErrNotFound is returned when a key or record id does not resolve to a live record.
	ErrNotFound = errors.New("diskmap: not found")
	// ErrCleared is returned to readers that started before a Clear and touched the map after it.
	ErrCleared = errors.New("diskmap: map cleared during read")
	// ErrCorrupt is returned when a header or node fails validation.
	ErrCorrupt = errors.New("diskmap: corrupt structure")
	// ErrStructureMismatch is returned when a root holds a different structure type.
	ErrStructureMismatch = errors.New("diskmap: structure type mismatch")
	// ErrInvalidLoadFactor is returned for load factors outside [1, 24].
	ErrInvalidLoadFactor = errors.New("diskmap: invalid load factor")
)
