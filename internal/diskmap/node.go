package diskmap

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/hupe1980/refdb/internal/store"
)

type nodeKind uint8

const (
	kindFree nodeKind = 0
	kindData nodeKind = 1
	kindHead nodeKind = 2
)

const (
	maxLevel       = 12
	nodeFixedSize  = 24
	maxKeyLen      = 1 << 20
	valuePtrOffset = 8
)

// node is the on-disk skip-list unit. Its offset never changes while the
// node is live and serves as the record id.
//
//	[0]     kind
//	[1]     level
//	[4:8]   key length
//	[8:16]  value block offset
//	[16:20] value length
//	[24:]   next pointers (level * 8), then key bytes
type node struct {
	off      int64
	kind     nodeKind
	level    int
	key      []byte
	valueOff int64
	valueLen uint32
	next     []int64
}

func (n *node) size() int {
	return nodeFixedSize + 8*n.level + len(n.key)
}

func randomLevel() int {
	level := 1
	for level < maxLevel && rand.IntN(4) == 0 {
		level++
	}
	return level
}

func readNode(st *store.Store, off int64) (*node, error) {
	fixed := make([]byte, nodeFixedSize)
	if err := st.ReadAt(fixed, off); err != nil {
		return nil, err
	}
	n := &node{
		off:      off,
		kind:     nodeKind(fixed[0]),
		level:    int(fixed[1]),
		valueOff: int64(binary.LittleEndian.Uint64(fixed[8:16])),
		valueLen: binary.LittleEndian.Uint32(fixed[16:20]),
	}
	if n.kind == kindFree {
		return n, nil
	}
	keyLen := binary.LittleEndian.Uint32(fixed[4:8])
	if (n.kind != kindData && n.kind != kindHead) || n.level < 1 || n.level > maxLevel || keyLen > maxKeyLen {
		return nil, fmt.Errorf("%w: node at %d (kind=%d level=%d keyLen=%d)", ErrCorrupt, off, n.kind, n.level, keyLen)
	}

	rest := make([]byte, 8*n.level+int(keyLen))
	if err := st.ReadAt(rest, off+nodeFixedSize); err != nil {
		return nil, err
	}
	n.next = make([]int64, n.level)
	for i := range n.level {
		n.next[i] = int64(binary.LittleEndian.Uint64(rest[i*8:]))
	}
	n.key = rest[8*n.level:]
	return n, nil
}

func writeNode(st *store.Store, n *node) error {
	buf := make([]byte, n.size())
	buf[0] = byte(n.kind)
	buf[1] = byte(n.level)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(n.key)))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(n.valueOff))
	binary.LittleEndian.PutUint32(buf[16:20], n.valueLen)
	for i, nx := range n.next {
		binary.LittleEndian.PutUint64(buf[nodeFixedSize+i*8:], uint64(nx))
	}
	copy(buf[nodeFixedSize+8*n.level:], n.key)
	return st.WriteAt(buf, n.off)
}

func writeNext(st *store.Store, n *node, level int, next int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(next))
	if err := st.WriteAt(buf[:], n.off+nodeFixedSize+int64(level)*8); err != nil {
		return err
	}
	n.next[level] = next
	return nil
}

func newNode(st *store.Store, kind nodeKind, level int, key, value []byte) (*node, error) {
	n := &node{kind: kind, level: level, key: key, next: make([]int64, level)}
	if err := storeValue(st, n, value); err != nil {
		return nil, err
	}
	off, err := st.Allocate(n.size())
	if err != nil {
		st.Free(n.valueOff, int(n.valueLen))
		return nil, err
	}
	n.off = off
	if err := writeNode(st, n); err != nil {
		return nil, err
	}
	return n, nil
}

func newHead(st *store.Store) (*node, error) {
	return newNode(st, kindHead, maxLevel, nil, nil)
}

// storeValue writes value into a fresh block and points n at it.
func storeValue(st *store.Store, n *node, value []byte) error {
	n.valueOff, n.valueLen = 0, uint32(len(value))
	if len(value) == 0 {
		return nil
	}
	off, err := st.Allocate(len(value))
	if err != nil {
		return err
	}
	if err := st.WriteAt(value, off); err != nil {
		return err
	}
	n.valueOff = off
	return nil
}

// updateValue replaces the value of a live node without moving the node.
// The old block is reused when the new value fits its aligned size.
func updateValue(st *store.Store, n *node, value []byte) error {
	oldOff, oldLen := n.valueOff, int(n.valueLen)
	if oldOff != 0 && len(value) > 0 && align8(len(value)) <= align8(oldLen) {
		if err := st.WriteAt(value, oldOff); err != nil {
			return err
		}
		n.valueLen = uint32(len(value))
	} else {
		if err := storeValue(st, n, value); err != nil {
			return err
		}
		st.Free(oldOff, oldLen)
	}

	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(n.valueOff))
	binary.LittleEndian.PutUint32(buf[8:12], n.valueLen)
	return st.WriteAt(buf[:], n.off+valuePtrOffset)
}

func readValue(st *store.Store, n *node) ([]byte, error) {
	if n.valueLen == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n.valueLen)
	if err := st.ReadAt(buf, n.valueOff); err != nil {
		return nil, err
	}
	return buf, nil
}

// freeNode marks n free on disk and returns its blocks to the store.
func freeNode(st *store.Store, n *node) error {
	if err := st.WriteAt([]byte{byte(kindFree)}, n.off); err != nil {
		return err
	}
	st.Free(n.valueOff, int(n.valueLen))
	st.Free(n.off, n.size())
	return nil
}

func align8(n int) int {
	return (n + 7) &^ 7
}
