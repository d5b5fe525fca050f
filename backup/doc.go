// Package backup copies the files of a database directory into a
// blobstore.BlobStore and back.
//
// A backup is a set of blobs below "<name>/": one blob per file, compressed
// with LZ4 or zstd, and a JSON MANIFEST listing every file with its size and
// CRC32C checksum. Restore verifies each checksum before a file is renamed
// into place. An optional blobstore.Catalog records the committed backup
// names in order.
package backup
