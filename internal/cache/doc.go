// Package cache provides the bounded in-memory overlay used by cached disk maps.
//
// [Cache] is sharded 16 ways with a per-shard LRU and a mutex per shard, so
// reads on different shards never contend. [Cache.GetOrCompute] collapses
// concurrent misses on the same key into one compute call via singleflight.
//
// The cache is never authoritative: entries may vanish at any moment through
// eviction or memory pressure reported by the resource controller, and a
// vanished entry is rebuilt from disk on the next access.
package cache
