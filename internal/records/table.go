package records

import (
	"errors"
	"fmt"
	"iter"
	"strconv"

	"github.com/hupe1980/refdb/internal/diskmap"
	"github.com/hupe1980/refdb/internal/store"
	"github.com/hupe1980/refdb/record"
)

// ErrNotFound is returned when no record exists for an identifier or id.
var ErrNotFound = errors.New("records: not found")

// Table holds the records of one entity type within one partition.
// Record ids are stable until the record is deleted.
type Table struct {
	entityType string
	partition  uint64
	m          *diskmap.HashMap
}

// Open opens or creates the table of entityType in partition on st.
func Open(st *store.Store, entityType string, partition uint64, optFns ...diskmap.Option) (*Table, error) {
	m, err := diskmap.OpenHashMap(st, RootName(entityType, partition), optFns...)
	if err != nil {
		return nil, fmt.Errorf("records: open %s/%d: %w", entityType, partition, err)
	}
	return &Table{entityType: entityType, partition: partition, m: m}, nil
}

// RootName returns the store root of a table.
func RootName(entityType string, partition uint64) string {
	return store.RootName("rec", entityType, strconv.FormatUint(partition, 10))
}

// EntityType returns the entity type name.
func (t *Table) EntityType() string { return t.entityType }

// Partition returns the partition id.
func (t *Table) Partition() uint64 { return t.partition }

// Len returns the number of records.
func (t *Table) Len() uint64 { return t.m.Len() }

// Put stores rec under identifier id and returns the record id and whether
// the record was inserted rather than replaced.
func (t *Table) Put(id record.Value, rec record.Record) (uint64, bool, error) {
	data, err := rec.MarshalBinary()
	if err != nil {
		return 0, false, err
	}
	return t.m.Put(key(id), data)
}

// Lookup returns the record id and record stored under identifier id.
func (t *Table) Lookup(id record.Value) (uint64, record.Record, error) {
	rid, data, err := t.m.Get(key(id))
	if err != nil {
		return 0, nil, translate(err)
	}
	rec, err := decode(data)
	return rid, rec, err
}

// ID returns the record id stored under identifier id.
func (t *Table) ID(id record.Value) (uint64, error) {
	rid, err := t.m.ID(key(id))
	return rid, translate(err)
}

// Get returns the record with record id rid.
func (t *Table) Get(rid uint64) (record.Record, error) {
	data, err := t.m.Value(rid)
	if err != nil {
		return nil, translate(err)
	}
	return decode(data)
}

// Delete removes the record stored under identifier id and returns its
// record id.
func (t *Table) Delete(id record.Value) (uint64, error) {
	rid, err := t.m.Delete(key(id))
	return rid, translate(err)
}

// IDs yields every record id.
func (t *Table) IDs() iter.Seq2[uint64, error] {
	return t.m.All()
}

// Clear removes every record.
func (t *Table) Clear() error {
	return t.m.Clear()
}

// Stats returns directory cache hits and misses, or zeros without a cache.
func (t *Table) Stats() (hits, misses int64) {
	if c, ok := t.m.Directory().(*diskmap.CachedDirectory); ok {
		return c.Stats()
	}
	return 0, 0
}

func key(id record.Value) []byte {
	return []byte(id.Key())
}

func decode(data []byte) (record.Record, error) {
	var rec record.Record
	if err := rec.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return rec, nil
}

func translate(err error) error {
	if errors.Is(err, diskmap.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
