// Package diskmap implements the disk-resident associative structures that
// back entity storage, indexes and relationships.
//
// # Hash map
//
// [HashMap] hashes keys with murmur3 and keeps the low loadFactor bits as the
// bucket number. A [Directory] maps each bucket to a reference:
//
//   - 0: the bucket was never populated
//   - a data node: the bucket holds exactly one key
//   - a head node: the bucket holds an ordered skip list of colliding keys
//
// Lookups cost one directory read plus the depth of the bucket's skip list,
// never a walk of the whole table. The directory also keeps an iteration
// list (position -> bucket) so full iteration visits populated buckets only,
// in the order they were first populated.
//
// [CachedDirectory] overlays the directory with bounded caches. It writes the
// cache before the disk and therefore offers no crash consistency between the
// two; the store has no write-ahead log for this layer.
//
// # Skip list
//
// [SkipList] is a standalone ordered map over the same node format, used for
// attribute indexes that need range scans.
//
// # Record ids
//
// A record id is the offset of its data node. Ids are stable across value
// updates (values live in separate blocks) and become invalid when the key is
// deleted.
package diskmap
