package catalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/refdb/internal/diskmap"
	"github.com/hupe1980/refdb/internal/store"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/record"
)

// ErrCorrupt is returned for undecodable catalog entries.
var ErrCorrupt = errors.New("catalog: corrupt entry")

const (
	partitionsRoot = "sys/partitions"
	countersRoot   = "sys/counters"

	seqPrefix  = "seq\x00"
	partPrefix = "part\x00"
)

// Catalog is safe for concurrent use.
type Catalog struct {
	mu       sync.Mutex
	parts    *diskmap.HashMap
	counters *diskmap.HashMap

	// byID caches entries by type and id. Entries never change once created.
	byID map[string]map[uint64]model.PartitionEntry
}

// Open opens or creates the catalog on st.
func Open(st *store.Store) (*Catalog, error) {
	parts, err := diskmap.OpenHashMap(st, partitionsRoot, diskmap.WithLoadFactor(6))
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	counters, err := diskmap.OpenHashMap(st, countersRoot, diskmap.WithLoadFactor(4))
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	c := &Catalog{parts: parts, counters: counters, byID: make(map[string]map[uint64]model.PartitionEntry)}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) load() error {
	for id, err := range c.parts.All() {
		if err != nil {
			return err
		}
		data, err := c.parts.Value(id)
		if err != nil {
			return err
		}
		e, err := decodeEntry(data)
		if err != nil {
			return err
		}
		c.cache(e)
	}
	return nil
}

func (c *Catalog) cache(e model.PartitionEntry) {
	m := c.byID[e.EntityType]
	if m == nil {
		m = make(map[uint64]model.PartitionEntry)
		c.byID[e.EntityType] = m
	}
	m[e.ID] = e
}

func partitionKey(entityType string, v record.Value) []byte {
	return []byte(entityType + "\x00" + v.Key())
}

// Lookup returns the entry of value in entityType.
func (c *Catalog) Lookup(entityType string, value record.Value) (model.PartitionEntry, bool, error) {
	_, data, err := c.parts.Get(partitionKey(entityType, value))
	if errors.Is(err, diskmap.ErrNotFound) {
		return model.PartitionEntry{}, false, nil
	}
	if err != nil {
		return model.PartitionEntry{}, false, err
	}
	e, err := decodeEntry(data)
	return e, err == nil, err
}

// Entry returns the entry with partition id id.
func (c *Catalog) Entry(entityType string, id uint64) (model.PartitionEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[entityType][id]
	return e, ok
}

// Ensure returns the entry of value, creating it on first use. fileName
// names the volume of a new partition id.
func (c *Catalog) Ensure(entityType string, value record.Value, fileName func(id uint64) string) (model.PartitionEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok, err := c.Lookup(entityType, value); err != nil || ok {
		return e, false, err
	}

	id, err := c.next(partPrefix + entityType)
	if err != nil {
		return model.PartitionEntry{}, false, err
	}
	e := model.PartitionEntry{ID: uint64(id), EntityType: entityType, Value: value, FileName: fileName(uint64(id))}
	data, err := encodeEntry(e)
	if err != nil {
		return model.PartitionEntry{}, false, err
	}
	if _, _, err := c.parts.Put(partitionKey(entityType, value), data); err != nil {
		return model.PartitionEntry{}, false, err
	}
	c.cache(e)
	return e, true, nil
}

// Partitions returns the entries of entityType ordered by id.
func (c *Catalog) Partitions(entityType string) []model.PartitionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.PartitionEntry, 0, len(c.byID[entityType]))
	for _, e := range c.byID[entityType] {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b model.PartitionEntry) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// NextSequence returns the next identifier of the sequence of entityType.
// The first value is 1.
func (c *Catalog) NextSequence(entityType string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next(seqPrefix + entityType)
}

// AdvanceSequence raises the sequence of entityType to at least v, so that
// explicitly assigned identifiers are never generated again.
func (c *Catalog) AdvanceSequence(entityType string, v int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := c.counter(seqPrefix + entityType)
	if err != nil || v <= cur {
		return err
	}
	_, _, err = c.counters.Put([]byte(seqPrefix+entityType), binary.BigEndian.AppendUint64(nil, uint64(v)))
	return err
}

func (c *Catalog) counter(name string) (int64, error) {
	_, data, err := c.counters.Get([]byte(name))
	if errors.Is(err, diskmap.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: counter %q", ErrCorrupt, name)
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

// next increments and returns a counter. Callers hold c.mu.
func (c *Catalog) next(name string) (int64, error) {
	cur, err := c.counter(name)
	if err != nil {
		return 0, err
	}
	cur++
	if _, _, err := c.counters.Put([]byte(name), binary.BigEndian.AppendUint64(nil, uint64(cur))); err != nil {
		return 0, err
	}
	return cur, nil
}

func encodeEntry(e model.PartitionEntry) ([]byte, error) {
	buf := binary.AppendUvarint(nil, e.ID)
	buf = binary.AppendUvarint(buf, uint64(len(e.EntityType)))
	buf = append(buf, e.EntityType...)
	buf = binary.AppendUvarint(buf, uint64(len(e.FileName)))
	buf = append(buf, e.FileName...)
	return record.AppendValue(buf, e.Value)
}

func decodeEntry(data []byte) (model.PartitionEntry, error) {
	var e model.PartitionEntry
	id, n := binary.Uvarint(data)
	if n <= 0 {
		return e, ErrCorrupt
	}
	e.ID = id
	data = data[n:]

	var s string
	var err error
	if s, data, err = readString(data); err != nil {
		return e, err
	}
	e.EntityType = s
	if s, data, err = readString(data); err != nil {
		return e, err
	}
	e.FileName = s
	if e.Value, _, err = record.ParseValue(data); err != nil {
		return e, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return e, nil
}

func readString(data []byte) (string, []byte, error) {
	l, n := binary.Uvarint(data)
	if n <= 0 || uint64(len(data)-n) < l {
		return "", nil, ErrCorrupt
	}
	data = data[n:]
	return string(data[:l]), data[l:], nil
}
