package scan

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
	"github.com/hupe1980/refdb/record"
)

var errBrokenPartition = errors.New("broken partition")

type row struct {
	ref model.Reference
	rec record.Record
}

// memSource is an in-memory Source.
type memSource struct {
	mu         sync.Mutex
	descs      map[string]*entity.Descriptor
	rows       map[string]map[uint64][]row
	rels       map[string]map[model.Reference][]model.RelationshipReference
	partitions map[string][]model.PartitionEntry
	nextID     uint64

	broken uint64 // partition whose References fails, 0 for none

	referenceCalls atomic.Int64
	recordReads    atomic.Int64
	indexLookups   atomic.Int64
	onRecord       func(n int64)
}

func newMemSource(descs ...*entity.Descriptor) *memSource {
	s := &memSource{
		descs:      make(map[string]*entity.Descriptor),
		rows:       make(map[string]map[uint64][]row),
		rels:       make(map[string]map[model.Reference][]model.RelationshipReference),
		partitions: make(map[string][]model.PartitionEntry),
	}
	for _, d := range descs {
		s.descs[d.Name] = d
	}
	return s
}

func (s *memSource) add(entityType string, partition uint64, rec record.Record) model.Reference {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ref := model.NewPartitionReference(partition, s.nextID)
	if s.rows[entityType] == nil {
		s.rows[entityType] = make(map[uint64][]row)
	}
	s.rows[entityType][partition] = append(s.rows[entityType][partition], row{ref: ref, rec: rec})
	return ref
}

func (s *memSource) addPartition(entityType string, id uint64, value record.Value) {
	s.partitions[entityType] = append(s.partitions[entityType], model.PartitionEntry{ID: id, EntityType: entityType, Value: value})
}

func (s *memSource) relate(entityType, attribute string, parent model.Reference, ids ...record.Value) {
	key := entityType + "." + attribute
	if s.rels[key] == nil {
		s.rels[key] = make(map[model.Reference][]model.RelationshipReference)
	}
	for _, id := range ids {
		s.rels[key][parent] = append(s.rels[key][parent], model.RelationshipReference{Identifier: id})
	}
}

func (s *memSource) Descriptor(entityType string) (*entity.Descriptor, bool) {
	d, ok := s.descs[entityType]
	return d, ok
}

func (s *memSource) References(_ context.Context, entityType string, partition uint64) iter.Seq2[model.Reference, error] {
	s.referenceCalls.Add(1)
	return func(yield func(model.Reference, error) bool) {
		if s.broken != 0 && partition == s.broken {
			yield(model.Reference{}, errBrokenPartition)
			return
		}
		for _, r := range s.rows[entityType][partition] {
			if !yield(r.ref, nil) {
				return
			}
		}
	}
}

func (s *memSource) Record(_ context.Context, entityType string, ref model.Reference) (record.Record, bool, error) {
	n := s.recordReads.Add(1)
	if s.onRecord != nil {
		s.onRecord(n)
	}
	for _, r := range s.rows[entityType][ref.Partition] {
		if r.ref == ref {
			return r.rec, true, nil
		}
	}
	return nil, false, nil
}

func (s *memSource) Partitions(entityType string) []model.PartitionEntry {
	return s.partitions[entityType]
}

func (s *memSource) PartitionID(entityType string, sample record.Record) (uint64, bool, error) {
	d := s.descs[entityType]
	for _, e := range s.partitions[entityType] {
		if record.Equal(e.Value, sample.Get(d.Partition)) {
			return e.ID, true, nil
		}
	}
	return 0, false, nil
}

func (s *memSource) Index(entityType, attribute string, partition uint64) (IndexReader, error) {
	if !s.descs[entityType].IsIndexed(attribute) {
		return nil, nil
	}
	return &memIndex{src: s, entityType: entityType, attribute: attribute, partition: partition}, nil
}

func (s *memSource) Relationships(_ context.Context, entityType, attribute string, parent model.Reference) ([]model.RelationshipReference, error) {
	return s.rels[entityType+"."+attribute][parent], nil
}

func (s *memSource) Resolve(_ context.Context, entityType string, rr model.RelationshipReference) (model.Reference, bool, error) {
	d := s.descs[entityType]
	for _, r := range s.rows[entityType][rr.Partition] {
		if r.rec.Get(d.Identifier.Name).Key() == rr.Identifier.Key() {
			return r.ref, true, nil
		}
	}
	return model.Reference{}, false, nil
}

type memIndex struct {
	src        *memSource
	entityType string
	attribute  string
	partition  uint64
}

func (ix *memIndex) Lookup(op query.Operator, v record.Value) (*roaring64.Bitmap, error) {
	ix.src.indexLookups.Add(1)
	leaf := query.Where(ix.attribute, op, v)
	bm := roaring64.New()
	for _, r := range ix.src.rows[ix.entityType][ix.partition] {
		if query.Evaluate(leaf, r.rec.Get(ix.attribute)) {
			bm.Add(r.ref.Record)
		}
	}
	return bm, nil
}
