package diskmap

import (
	"bytes"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/refdb/internal/hash"
	"github.com/hupe1980/refdb/internal/store"
)

// HashMap is a persistent map from byte keys to byte values.
//
// Keys hash into 2^loadFactor buckets. A bucket holding one key references
// that key's data node directly; the first collision converts the bucket into
// a skip list ordered by key. Record ids are data node offsets and stay valid
// until the key is deleted.
type HashMap struct {
	mu     sync.RWMutex
	st     *store.Store
	name   string
	hdr    *header
	hdrOff int64
	dir    Directory
	gen    atomic.Uint64
}

// OpenHashMap opens or creates the hash map registered under name.
func OpenHashMap(st *store.Store, name string, optFns ...Option) (*HashMap, error) {
	opts := applyOptions(optFns)

	hdrOff, _, err := st.Root(name)
	if err != nil {
		return nil, err
	}
	hdr, err := loadHeader(st, hdrOff)
	if err != nil {
		return nil, err
	}

	if hdr == nil {
		if opts.loadFactor < 1 || opts.loadFactor > 24 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidLoadFactor, opts.loadFactor)
		}
		buckets, err := st.AllocateZeroed(8 << opts.loadFactor)
		if err != nil {
			return nil, err
		}
		hdr = &header{structure: structureHashMap, loadFactor: opts.loadFactor, rootOffset: buckets}
		if err := hdr.save(st, hdrOff); err != nil {
			return nil, err
		}
	} else if hdr.structure != structureHashMap {
		return nil, fmt.Errorf("%w: %q is structure %d", ErrStructureMismatch, name, hdr.structure)
	}

	disk, err := newDiskDirectory(st, hdr, hdrOff)
	if err != nil {
		return nil, err
	}

	m := &HashMap{st: st, name: name, hdr: hdr, hdrOff: hdrOff, dir: disk}
	if opts.cacheCapacity > 0 {
		m.dir = NewCachedDirectory(disk, opts.cacheCapacity, opts.rc)
	}
	return m, nil
}

// Name returns the root name.
func (m *HashMap) Name() string { return m.name }

// LoadFactor returns log2 of the bucket count.
func (m *HashMap) LoadFactor() uint8 { return m.hdr.loadFactor }

// Directory exposes the bucket directory, cached or not.
func (m *HashMap) Directory() Directory { return m.dir }

// Len returns the number of live keys.
func (m *HashMap) Len() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hdr.recordCount
}

func (m *HashMap) bucket(key []byte) uint64 {
	return hash.Bucket(key, m.hdr.loadFactor)
}

// locate returns the node for key, or nil. Callers hold m.mu.
func (m *HashMap) locate(key []byte) (*node, error) {
	ref, err := m.dir.GetReference(m.bucket(key))
	if err != nil || ref == 0 {
		return nil, err
	}
	n, err := readNode(m.st, ref)
	if err != nil {
		return nil, err
	}
	switch n.kind {
	case kindData:
		if bytes.Equal(n.key, key) {
			return n, nil
		}
		return nil, nil
	case kindHead:
		return list{st: m.st, head: ref}.find(key)
	default:
		return nil, fmt.Errorf("%w: bucket of %q references free node %d", ErrCorrupt, m.name, ref)
	}
}

// Put inserts or updates key and returns its record id and whether it was inserted.
func (m *HashMap) Put(key, value []byte) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.bucket(key)
	ref, err := m.dir.GetReference(b)
	if err != nil {
		return 0, false, err
	}

	if ref == 0 {
		n, err := newNode(m.st, kindData, randomLevel(), key, value)
		if err != nil {
			return 0, false, err
		}
		if err := m.dir.InsertReference(b, n.off); err != nil {
			return 0, false, err
		}
		if err := m.dir.AddIterationList(b); err != nil {
			return 0, false, err
		}
		return uint64(n.off), true, m.incr(1)
	}

	first, err := readNode(m.st, ref)
	if err != nil {
		return 0, false, err
	}

	l := list{st: m.st, head: ref}
	switch first.kind {
	case kindData:
		if bytes.Equal(first.key, key) {
			return uint64(first.off), false, updateValue(m.st, first, value)
		}
		// First collision: move the inline node under a fresh skip list.
		head, err := newHead(m.st)
		if err != nil {
			return 0, false, err
		}
		l.head = head.off
		if err := l.link(first); err != nil {
			return 0, false, err
		}
		if err := m.dir.UpdateReference(b, head.off); err != nil {
			return 0, false, err
		}
	case kindHead:
		existing, err := l.find(key)
		if err != nil {
			return 0, false, err
		}
		if existing != nil {
			return uint64(existing.off), false, updateValue(m.st, existing, value)
		}
	default:
		return 0, false, fmt.Errorf("%w: bucket %d of %q references free node %d", ErrCorrupt, b, m.name, ref)
	}

	n, err := newNode(m.st, kindData, randomLevel(), key, value)
	if err != nil {
		return 0, false, err
	}
	if err := l.link(n); err != nil {
		return 0, false, err
	}
	return uint64(n.off), true, m.incr(1)
}

func (m *HashMap) incr(delta int) error {
	m.hdr.recordCount = uint64(int64(m.hdr.recordCount) + int64(delta))
	return m.hdr.save(m.st, m.hdrOff)
}

// Get returns the record id and value stored under key.
func (m *HashMap) Get(key []byte) (uint64, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := m.locate(key)
	if err != nil {
		return 0, nil, err
	}
	if n == nil {
		return 0, nil, ErrNotFound
	}
	v, err := readValue(m.st, n)
	return uint64(n.off), v, err
}

// ID returns the record id of key.
func (m *HashMap) ID(key []byte) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := m.locate(key)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return 0, ErrNotFound
	}
	return uint64(n.off), nil
}

func (m *HashMap) liveNode(id uint64) (*node, error) {
	if id == 0 {
		return nil, ErrNotFound
	}
	n, err := readNode(m.st, int64(id))
	if err != nil {
		return nil, err
	}
	if n.kind != kindData {
		return nil, fmt.Errorf("%w: record %d in %q", ErrNotFound, id, m.name)
	}
	return n, nil
}

// Value returns the value of the record with the given id.
func (m *HashMap) Value(id uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := m.liveNode(id)
	if err != nil {
		return nil, err
	}
	return readValue(m.st, n)
}

// Key returns the key of the record with the given id.
func (m *HashMap) Key(id uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := m.liveNode(id)
	if err != nil {
		return nil, err
	}
	return n.key, nil
}

// Delete removes key and returns the record id it had.
func (m *HashMap) Delete(key []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.bucket(key)
	ref, err := m.dir.GetReference(b)
	if err != nil {
		return 0, err
	}
	if ref == 0 {
		return 0, ErrNotFound
	}
	first, err := readNode(m.st, ref)
	if err != nil {
		return 0, err
	}

	var victim *node
	switch first.kind {
	case kindData:
		if !bytes.Equal(first.key, key) {
			return 0, ErrNotFound
		}
		// A populated bucket stays populated: swap in an empty skip list so
		// the iteration list never records the bucket twice.
		head, err := newHead(m.st)
		if err != nil {
			return 0, err
		}
		if err := m.dir.UpdateReference(b, head.off); err != nil {
			return 0, err
		}
		victim = first
	case kindHead:
		if victim, err = (list{st: m.st, head: ref}).unlink(key); err != nil {
			return 0, err
		}
		if victim == nil {
			return 0, ErrNotFound
		}
	default:
		return 0, fmt.Errorf("%w: bucket %d of %q references free node %d", ErrCorrupt, b, m.name, ref)
	}

	if err := freeNode(m.st, victim); err != nil {
		return 0, err
	}
	return uint64(victim.off), m.incr(-1)
}

// bucketIDs returns the record ids of the bucket at iteration position index.
func (m *HashMap) bucketIDs(index uint64, gen uint64) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.gen.Load() != gen {
		return nil, ErrCleared
	}
	if index >= m.dir.IterationCount() {
		return nil, nil
	}
	b, err := m.dir.GetMapIdentifier(index)
	if err != nil {
		return nil, err
	}
	ref, err := m.dir.GetReference(b)
	if err != nil || ref == 0 {
		return nil, err
	}
	first, err := readNode(m.st, ref)
	if err != nil {
		return nil, err
	}
	if first.kind == kindData {
		return []uint64{uint64(first.off)}, nil
	}

	var ids []uint64
	err = list{st: m.st, head: ref}.walk(nil, func(n *node) (bool, error) {
		ids = append(ids, uint64(n.off))
		return true, nil
	})
	return ids, err
}

// All yields every record id, walking populated buckets in the order they
// were first populated and keys in key order within a bucket.
//
// The map is not locked between buckets. If Clear runs during the iteration,
// the sequence ends with ErrCleared instead of mixing pre- and post-clear state.
func (m *HashMap) All() iter.Seq2[uint64, error] {
	return func(yield func(uint64, error) bool) {
		m.mu.RLock()
		gen := m.gen.Load()
		count := m.dir.IterationCount()
		m.mu.RUnlock()

		for i := range count {
			ids, err := m.bucketIDs(i, gen)
			if err != nil {
				yield(0, err)
				return
			}
			for _, id := range ids {
				if !yield(id, nil) {
					return
				}
			}
		}
	}
}

// Clear removes every key, frees their nodes and resets the directory.
func (m *HashMap) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen.Add(1)

	for i := range m.dir.IterationCount() {
		b, err := m.dir.GetMapIdentifier(i)
		if err != nil {
			return err
		}
		ref, err := m.dir.GetReference(b)
		if err != nil {
			return err
		}
		if ref == 0 {
			continue
		}
		for off := ref; off != 0; {
			n, err := readNode(m.st, off)
			if err != nil {
				return err
			}
			next := int64(0)
			if n.kind == kindHead || n.kind == kindData && off != ref {
				next = n.next[0]
			}
			if err := freeNode(m.st, n); err != nil {
				return err
			}
			off = next
		}
	}

	if err := m.dir.Clear(); err != nil {
		return err
	}
	m.hdr.recordCount = 0
	return m.hdr.save(m.st, m.hdrOff)
}
