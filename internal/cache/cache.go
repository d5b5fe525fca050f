package cache

import (
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/refdb/internal/resource"
)

const numShards = 16

// Cache is a bounded, sharded cache from uint64 keys to values of type V.
//
// Entries may be dropped at any time, either by LRU eviction or because the
// resource controller refused the memory. Callers must treat a miss as
// "unknown" and rebuild the value from the authoritative source.
type Cache[V any] struct {
	shards [numShards]*lru[V]
	group  singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache holding at most capacity entries (at least one per shard).
// If rc is non-nil, every retained entry is accounted against its memory budget.
func New[V any](capacity int, rc *resource.Controller) *Cache[V] {
	shardCapacity := capacity / numShards
	if shardCapacity < 1 {
		shardCapacity = 1
	}
	c := &Cache[V]{}
	for i := range numShards {
		c.shards[i] = newLRU[V](shardCapacity, rc)
	}
	return c
}

// shard picks a shard with a splitmix64 finalizer so sequential keys spread evenly.
func (c *Cache[V]) shard(key uint64) *lru[V] {
	z := key + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return c.shards[z%numShards]
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key uint64) (V, bool) {
	v, ok := c.shard(key).get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores v under key.
func (c *Cache[V]) Set(key uint64, v V) {
	c.shard(key).set(key, v)
}

// Remove drops key.
func (c *Cache[V]) Remove(key uint64) {
	c.shard(key).remove(key)
}

// GetOrCompute returns the cached value for key, or calls compute and caches
// its result. Concurrent callers for the same key share a single compute call;
// callers for different keys never wait on each other. Errors are not cached.
func (c *Cache[V]) GetOrCompute(key uint64, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		if v, ok := c.shard(key).get(key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	for i := range numShards {
		c.shards[i].purge()
	}
}

// Len returns the number of retained entries.
func (c *Cache[V]) Len() int {
	n := 0
	for i := range numShards {
		n += c.shards[i].len()
	}
	return n
}

// Stats returns hit/miss counters.
func (c *Cache[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
