package cache

import (
	"container/list"
	"sync"

	"github.com/hupe1980/refdb/internal/resource"
)

// entryCost is the accounted memory per cached entry (key, value, list node).
const entryCost = 64

// lru is a single bounded LRU shard.
type lru[V any] struct {
	mu        sync.Mutex
	capacity  int
	items     map[uint64]*list.Element
	evictList *list.List
	rc        *resource.Controller
}

type entry[V any] struct {
	key   uint64
	value V
}

func newLRU[V any](capacity int, rc *resource.Controller) *lru[V] {
	return &lru[V]{
		capacity:  capacity,
		items:     make(map[uint64]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

func (c *lru[V]) get(key uint64) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry[V]).value, true
	}
	var zero V
	return zero, false
}

func (c *lru[V]) set(key uint64, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		ent.Value.(*entry[V]).value = v
		return
	}

	for len(c.items) >= c.capacity {
		if back := c.evictList.Back(); back != nil {
			c.removeElement(back)
		} else {
			break
		}
	}

	// Under global memory pressure the entry is simply not retained.
	if c.rc != nil && c.rc.AcquireMemory(entryCost) != nil {
		return
	}

	c.items[key] = c.evictList.PushFront(&entry[V]{key: key, value: v})
}

func (c *lru[V]) remove(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)
	}
}

func (c *lru[V]) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rc != nil {
		c.rc.ReleaseMemory(int64(len(c.items)) * entryCost)
	}
	c.items = make(map[uint64]*list.Element)
	c.evictList.Init()
}

func (c *lru[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *lru[V]) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	delete(c.items, e.Value.(*entry[V]).key)
	if c.rc != nil {
		c.rc.ReleaseMemory(entryCost)
	}
}
