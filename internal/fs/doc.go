// Package fs is the file layer under the volume store, the journal and
// restore. Everything refdb touches on disk goes through a [FileSystem] so
// that tests can swap in [FaultyFS] and fail a write, read, sync or close at a
// chosen point.
//
// [Default] is the host file system. Volumes are locked with [Lock] after
// open; a second process opening the same database gets [ErrLocked].
//
// No call takes a context.Context. Local I/O cannot be cancelled mid-syscall;
// remote copies go through blobstore, which can.
package fs
