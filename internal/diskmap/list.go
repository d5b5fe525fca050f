package diskmap

import (
	"bytes"

	"github.com/hupe1980/refdb/internal/store"
)

// list runs skip-list algorithms over the nodes hanging off one head node.
// Callers provide synchronization.
type list struct {
	st   *store.Store
	head int64
}

// search returns, for every level, the last node whose key is < key, and the
// first node at level 0 whose key is >= key (nil at the end of the list).
func (l list) search(key []byte) ([maxLevel]*node, *node, error) {
	var update [maxLevel]*node

	x, err := readNode(l.st, l.head)
	if err != nil {
		return update, nil, err
	}
	seen := map[int64]*node{x.off: x}

	for i := maxLevel - 1; i >= 0; i-- {
		for x.next[i] != 0 {
			nx, ok := seen[x.next[i]]
			if !ok {
				if nx, err = readNode(l.st, x.next[i]); err != nil {
					return update, nil, err
				}
				seen[nx.off] = nx
			}
			if bytes.Compare(nx.key, key) >= 0 {
				break
			}
			x = nx
		}
		update[i] = x
	}

	if x.next[0] == 0 {
		return update, nil, nil
	}
	if nx, ok := seen[x.next[0]]; ok {
		return update, nx, nil
	}
	nx, err := readNode(l.st, x.next[0])
	return update, nx, err
}

// find returns the node holding key or nil.
func (l list) find(key []byte) (*node, error) {
	_, candidate, err := l.search(key)
	if err != nil || candidate == nil || !bytes.Equal(candidate.key, key) {
		return nil, err
	}
	return candidate, nil
}

// link splices n into the list. The key must not already be present.
func (l list) link(n *node) error {
	update, _, err := l.search(n.key)
	if err != nil {
		return err
	}
	for i := range n.level {
		n.next[i] = update[i].next[i]
	}
	if err := writeNode(l.st, n); err != nil {
		return err
	}
	for i := range n.level {
		if err := writeNext(l.st, update[i], i, n.off); err != nil {
			return err
		}
	}
	return nil
}

// unlink removes the node holding key and returns it, or nil if absent.
func (l list) unlink(key []byte) (*node, error) {
	update, candidate, err := l.search(key)
	if err != nil || candidate == nil || !bytes.Equal(candidate.key, key) {
		return nil, err
	}
	for i := range candidate.level {
		if update[i].next[i] == candidate.off {
			if err := writeNext(l.st, update[i], i, candidate.next[i]); err != nil {
				return nil, err
			}
		}
	}
	return candidate, nil
}

// walk visits nodes in key order starting at the first key >= from.
func (l list) walk(from []byte, fn func(n *node) (bool, error)) error {
	_, n, err := l.search(from)
	if err != nil {
		return err
	}
	for n != nil {
		cont, err := fn(n)
		if err != nil || !cont {
			return err
		}
		if n.next[0] == 0 {
			return nil
		}
		if n, err = readNode(l.st, n.next[0]); err != nil {
			return err
		}
	}
	return nil
}
