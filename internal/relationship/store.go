package relationship

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

// ErrCorrupt is returned for undecodable relationship lists.
var ErrCorrupt = errors.New("relationship: corrupt list")

// Store holds the relationship lists of one attribute.
type Store struct {
	mu        sync.Mutex // serializes read-modify-write of one list
	attribute string
	m         *diskmap.HashMap
}

// Open opens or creates the relationship store of attribute of entityType.
func Open(st *store.Store, entityType, attribute string, optFns ...diskmap.Option) (*Store, error) {
	m, err := diskmap.OpenHashMap(st, store.RootName("rel", entityType, attribute), optFns...)
	if err != nil {
		return nil, fmt.Errorf("relationship: open %s.%s: %w", entityType, attribute, err)
	}
	return &Store{attribute: attribute, m: m}, nil
}

// Attribute returns the relationship attribute.
func (s *Store) Attribute() string { return s.attribute }

// Get returns the list of parent. A parent without a list has none.
func (s *Store) Get(parent model.Reference) ([]model.RelationshipReference, error) {
	k, _ := parent.MarshalBinary()
	_, data, err := s.m.Get(k)
	if errors.Is(err, diskmap.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// Set replaces the list of parent. An empty list removes it.
func (s *Store) Set(parent model.Reference, refs []model.RelationshipReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(parent, refs)
}

func (s *Store) set(parent model.Reference, refs []model.RelationshipReference) error {
	k, _ := parent.MarshalBinary()
	if len(refs) == 0 {
		_, err := s.m.Delete(k)
		if errors.Is(err, diskmap.ErrNotFound) {
			return nil
		}
		return err
	}
	data, err := encode(refs)
	if err != nil {
		return err
	}
	_, _, err = s.m.Put(k, data)
	return err
}

// Add appends ref to the list of parent unless it is already present.
func (s *Store) Add(parent model.Reference, ref model.RelationshipReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs, err := s.Get(parent)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(refs, func(r model.RelationshipReference) bool { return same(r, ref) }) {
		return nil
	}
	return s.set(parent, append(refs, ref))
}

// Remove drops ref from the list of parent.
func (s *Store) Remove(parent model.Reference, ref model.RelationshipReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs, err := s.Get(parent)
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(refs, func(r model.RelationshipReference) bool { return same(r, ref) })
	return s.set(parent, kept)
}

// Delete removes the list of parent.
func (s *Store) Delete(parent model.Reference) error {
	return s.Set(parent, nil)
}

// Clear removes every list.
func (s *Store) Clear() error {
	return s.m.Clear()
}

func same(a, b model.RelationshipReference) bool {
	return a.Partition == b.Partition && a.Identifier.Key() == b.Identifier.Key()
}

func encode(refs []model.RelationshipReference) ([]byte, error) {
	buf := binary.AppendUvarint(nil, uint64(len(refs)))
	for _, r := range refs {
		var err error
		if buf, err = record.AppendValue(buf, r.Identifier); err != nil {
			return nil, err
		}
		buf = binary.AppendUvarint(buf, r.Partition)
	}
	return buf, nil
}

func decode(data []byte) ([]model.RelationshipReference, error) {
	n, k := binary.Uvarint(data)
	if k <= 0 || n > uint64(len(data)) {
		return nil, ErrCorrupt
	}
	data = data[k:]
	refs := make([]model.RelationshipReference, 0, n)
	for range n {
		v, rest, err := record.ParseValue(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		p, k := binary.Uvarint(rest)
		if k <= 0 {
			return nil, ErrCorrupt
		}
		refs = append(refs, model.RelationshipReference{Identifier: v, Partition: p})
		data = rest[k:]
	}
	return refs, nil
}
