package diskmap

import (
	"github.com/hupe1980/refdb/internal/cache"
	"github.com/hupe1980/refdb/internal/resource"
)

// CachedDirectory overlays a Directory with two in-memory caches:
// bucket -> reference and iteration index -> bucket.
//
// Writes update the cache before the wrapped directory. If the process dies
// between the two steps the disk state is whatever the wrapped directory
// last persisted; this layer gives no crash-consistency guarantee of its own.
// A failed disk write drops the cache entry so the process never serves a
// value the disk refused.
//
// The owning map must exclude readers while a write is in flight, otherwise a
// read-through could re-populate the cache with a stale value.
type CachedDirectory struct {
	disk Directory
	refs *cache.Cache[int64]
	ids  *cache.Cache[uint64]
}

// NewCachedDirectory wraps disk with caches of the given capacity each.
func NewCachedDirectory(disk Directory, capacity int, rc *resource.Controller) *CachedDirectory {
	return &CachedDirectory{
		disk: disk,
		refs: cache.New[int64](capacity, rc),
		ids:  cache.New[uint64](capacity, rc),
	}
}

func (c *CachedDirectory) InsertReference(bucket uint64, ref int64) error {
	c.refs.Set(bucket, ref)
	if err := c.disk.InsertReference(bucket, ref); err != nil {
		c.refs.Remove(bucket)
		return err
	}
	return nil
}

func (c *CachedDirectory) UpdateReference(bucket uint64, ref int64) error {
	c.refs.Set(bucket, ref)
	if err := c.disk.UpdateReference(bucket, ref); err != nil {
		c.refs.Remove(bucket)
		return err
	}
	return nil
}

func (c *CachedDirectory) GetReference(bucket uint64) (int64, error) {
	return c.refs.GetOrCompute(bucket, func() (int64, error) {
		return c.disk.GetReference(bucket)
	})
}

func (c *CachedDirectory) AddIterationList(bucket uint64) error {
	index := c.disk.IterationCount()
	c.ids.Set(index, bucket)
	if err := c.disk.AddIterationList(bucket); err != nil {
		c.ids.Remove(index)
		return err
	}
	return nil
}

func (c *CachedDirectory) GetMapIdentifier(index uint64) (uint64, error) {
	return c.ids.GetOrCompute(index, func() (uint64, error) {
		return c.disk.GetMapIdentifier(index)
	})
}

func (c *CachedDirectory) IterationCount() uint64 {
	return c.disk.IterationCount()
}

// Clear invalidates every cache entry, then clears the wrapped directory.
func (c *CachedDirectory) Clear() error {
	c.refs.Clear()
	c.ids.Clear()
	return c.disk.Clear()
}

// Purge drops every cache entry without touching the disk.
func (c *CachedDirectory) Purge() {
	c.refs.Clear()
	c.ids.Clear()
}

// Stats returns combined hit/miss counters of both caches.
func (c *CachedDirectory) Stats() (hits, misses int64) {
	h1, m1 := c.refs.Stats()
	h2, m2 := c.ids.Stats()
	return h1 + h2, m1 + m2
}
