package diskmap

import (
	"fmt"
	"sync"

	"github.com/hupe1980/refdb/internal/store"
)

// Entry is one key of a SkipList together with its stable record id.
type Entry struct {
	ID  uint64
	Key []byte
}

// SkipList is a persistent ordered map from byte keys to byte values.
// Keys compare with bytes.Compare. It is safe for concurrent use.
type SkipList struct {
	mu     sync.RWMutex
	st     *store.Store
	name   string
	hdr    *header
	hdrOff int64
}

// OpenSkipList opens or creates the skip list registered under name.
func OpenSkipList(st *store.Store, name string) (*SkipList, error) {
	hdrOff, _, err := st.Root(name)
	if err != nil {
		return nil, err
	}
	hdr, err := loadHeader(st, hdrOff)
	if err != nil {
		return nil, err
	}

	if hdr == nil {
		head, err := newHead(st)
		if err != nil {
			return nil, err
		}
		hdr = &header{structure: structureSkipList, rootOffset: head.off}
		if err := hdr.save(st, hdrOff); err != nil {
			return nil, err
		}
	} else if hdr.structure != structureSkipList {
		return nil, fmt.Errorf("%w: %q is structure %d", ErrStructureMismatch, name, hdr.structure)
	}

	return &SkipList{st: st, name: name, hdr: hdr, hdrOff: hdrOff}, nil
}

func (s *SkipList) list() list {
	return list{st: s.st, head: s.hdr.rootOffset}
}

// Name returns the root name.
func (s *SkipList) Name() string { return s.name }

// Len returns the number of keys.
func (s *SkipList) Len() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hdr.recordCount
}

// Put inserts or updates key. The returned id is stable across updates.
func (s *SkipList) Put(key, value []byte) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.list()
	n, err := l.find(key)
	if err != nil {
		return 0, false, err
	}
	if n != nil {
		return uint64(n.off), false, updateValue(s.st, n, value)
	}

	n, err = newNode(s.st, kindData, randomLevel(), key, value)
	if err != nil {
		return 0, false, err
	}
	if err := l.link(n); err != nil {
		return 0, false, err
	}
	s.hdr.recordCount++
	return uint64(n.off), true, s.hdr.save(s.st, s.hdrOff)
}

// Get returns the id and value stored under key.
func (s *SkipList) Get(key []byte) (uint64, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.list().find(key)
	if err != nil {
		return 0, nil, err
	}
	if n == nil {
		return 0, nil, ErrNotFound
	}
	v, err := readValue(s.st, n)
	return uint64(n.off), v, err
}

// Delete removes key and returns the id it had.
func (s *SkipList) Delete(key []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.list().unlink(key)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return 0, ErrNotFound
	}
	if err := freeNode(s.st, n); err != nil {
		return 0, err
	}
	s.hdr.recordCount--
	return uint64(n.off), s.hdr.save(s.st, s.hdrOff)
}

// Scan calls fn for every key >= from in ascending order until fn returns false.
// The list is read-locked for the whole scan; fn must not call back into s.
func (s *SkipList) Scan(from []byte, fn func(Entry) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.list().walk(from, func(n *node) (bool, error) {
		return fn(Entry{ID: uint64(n.off), Key: n.key}), nil
	})
}

// Clear removes every key.
func (s *SkipList) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, err := readNode(s.st, s.hdr.rootOffset)
	if err != nil {
		return err
	}
	for off := head.next[0]; off != 0; {
		n, err := readNode(s.st, off)
		if err != nil {
			return err
		}
		off = n.next[0]
		if err := freeNode(s.st, n); err != nil {
			return err
		}
	}
	for i := range maxLevel {
		if err := writeNext(s.st, head, i, 0); err != nil {
			return err
		}
	}
	s.hdr.recordCount = 0
	return s.hdr.save(s.st, s.hdrOff)
}
