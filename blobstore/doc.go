// Package blobstore provides the storage abstraction backups are written to.
//
// BlobStore is the interface for reading and writing named blobs (volume
// copies, manifests). Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local directory, atomic writes via rename
//   - MemoryStore: in-memory, for tests
//   - s3.Store: Amazon S3 with multipart uploads and range reads
//   - minio.Store: MinIO and other S3-compatible services
package blobstore
