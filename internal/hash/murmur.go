package hash

import "github.com/spaolacci/murmur3"

// Key returns the 64-bit murmur3 hash of key.
func Key(key []byte) uint64 {
	return murmur3.Sum64(key)
}

// Bucket maps key onto one of 2^loadFactor buckets using the low bits of Key.
func Bucket(key []byte, loadFactor uint8) uint64 {
	return Key(key) & (uint64(1)<<loadFactor - 1)
}
