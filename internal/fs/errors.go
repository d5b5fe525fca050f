package fs

import "errors"

// ErrLocked is returned by Lock when the file is held by another handle.
var ErrLocked = errors.New("file is locked by another process")
