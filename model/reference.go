package model

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/refdb/record"
)

// Reference locates one stored record. It is a comparable value type and can
// be used directly as a map key.
//
// Partition 0 denotes unpartitioned data; the reference is then a plain
// record id.
type Reference struct {
	Partition uint64
	Record    uint64
}

// NewReference returns a plain record reference.
func NewReference(record uint64) Reference {
	return Reference{Record: record}
}

// NewPartitionReference returns a reference into a partition.
func NewPartitionReference(partition, record uint64) Reference {
	return Reference{Partition: partition, Record: record}
}

// IsPartitioned reports whether r points into a partition.
func (r Reference) IsPartitioned() bool { return r.Partition != 0 }

// IsZero reports whether r is the zero reference.
func (r Reference) IsZero() bool { return r == Reference{} }

func (r Reference) String() string {
	if r.Partition == 0 {
		return fmt.Sprintf("#%d", r.Record)
	}
	return fmt.Sprintf("#%d/%d", r.Partition, r.Record)
}

// CompareReferences orders references by partition, then record.
func CompareReferences(a, b Reference) int {
	if c := cmp.Compare(a.Partition, b.Partition); c != 0 {
		return c
	}
	return cmp.Compare(a.Record, b.Record)
}

// MarshalBinary encodes r as 16 big-endian bytes, preserving order.
func (r Reference) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, 16))
}

// AppendBinary appends the 16-byte encoding of r.
func (r Reference) AppendBinary(b []byte) ([]byte, error) {
	b = binary.BigEndian.AppendUint64(b, r.Partition)
	return binary.BigEndian.AppendUint64(b, r.Record), nil
}

// UnmarshalBinary decodes the 16-byte encoding of a reference.
func (r *Reference) UnmarshalBinary(data []byte) error {
	if len(data) != 16 {
		return errors.New("model: reference must be 16 bytes")
	}
	r.Partition = binary.BigEndian.Uint64(data[0:8])
	r.Record = binary.BigEndian.Uint64(data[8:16])
	return nil
}

// References is a scan result. For plain scans every value equals its key.
// Relationship scans pair a matched child (key) with its parent (value).
type References map[Reference]Reference

// NewReferences builds a set-semantics result from refs.
func NewReferences(refs ...Reference) References {
	m := make(References, len(refs))
	for _, r := range refs {
		m[r] = r
	}
	return m
}

// Add inserts r with set semantics.
func (m References) Add(r Reference) { m[r] = r }

// Contains reports whether r is a key of m.
func (m References) Contains(r Reference) bool {
	_, ok := m[r]
	return ok
}

// Keys returns the keys in reference order.
func (m References) Keys() []Reference {
	return slices.SortedFunc(maps.Keys(m), CompareReferences)
}

// Invert swaps keys and values. Several children of one parent collapse into
// a single parent entry.
func (m References) Invert() References {
	out := make(References, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// Parents returns the distinct values as a set.
func (m References) Parents() References {
	out := make(References, len(m))
	for _, v := range m {
		out[v] = v
	}
	return out
}

// RelationshipReference points at a related entity by identifier. The
// identifier is resolved to a Reference inside Partition at read time.
type RelationshipReference struct {
	Identifier record.Value
	Partition  uint64
}

func (r RelationshipReference) String() string {
	return fmt.Sprintf("%s@%d", r.Identifier, r.Partition)
}

// PartitionEntry is one row of the partition catalog of an entity type.
type PartitionEntry struct {
	ID         uint64
	EntityType string
	Value      record.Value
	FileName   string
}
