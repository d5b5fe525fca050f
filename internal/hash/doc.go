// Package hash provides the hashing primitives used by the storage layer.
//
// # CRC32-Castagnoli (CRC32C)
//
// Volume superblocks, map headers and journal records are protected with
// CRC32C, which is hardware accelerated on x86 (SSE4.2) and ARM (CRC
// extension):
//
//	checksum := hash.CRC32C(data)
//
// # Bucket addressing
//
// Disk maps address buckets with the low loadFactor bits of a 64-bit
// murmur3 hash of the encoded key:
//
//	bucket := hash.Bucket(key, loadFactor) // 0 <= bucket < 1<<loadFactor
package hash
