package engine

import (
	"context"
	"errors"
	"iter"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/internal/records"
	"github.com/hupe1980/refdb/internal/scan"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/record"
)

var _ scan.Source = (*Engine)(nil)

// Descriptor implements scan.Source.
func (e *Engine) Descriptor(entityType string) (*entity.Descriptor, bool) {
	return e.registry.Lookup(entityType)
}

// References implements scan.Source.
func (e *Engine) References(ctx context.Context, entityType string, partition uint64) iter.Seq2[model.Reference, error] {
	return func(yield func(model.Reference, error) bool) {
		desc, err := e.descriptor(entityType)
		if err != nil {
			yield(model.Reference{}, err)
			return
		}
		t, err := e.table(desc, partition)
		if err != nil {
			yield(model.Reference{}, err)
			return
		}
		for id, err := range t.IDs() {
			if err != nil {
				yield(model.Reference{}, err)
				return
			}
			if !yield(model.NewPartitionReference(partition, id), nil) {
				return
			}
		}
	}
}

// Record implements scan.Source.
func (e *Engine) Record(ctx context.Context, entityType string, ref model.Reference) (record.Record, bool, error) {
	desc, err := e.descriptor(entityType)
	if err != nil {
		return nil, false, err
	}
	t, err := e.table(desc, ref.Partition)
	if err != nil {
		return nil, false, err
	}
	rec, err := t.Get(ref.Record)
	if errors.Is(err, records.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// PartitionID implements scan.Source.
func (e *Engine) PartitionID(entityType string, sample record.Record) (uint64, bool, error) {
	desc, err := e.descriptor(entityType)
	if err != nil {
		return 0, false, err
	}
	if !desc.IsPartitioned() {
		return 0, true, nil
	}
	v := sample.Get(desc.Partition)
	if v.IsNull() {
		return 0, true, nil
	}
	entry, ok, err := e.catalog.Lookup(entityType, v)
	if err != nil || !ok {
		return 0, false, err
	}
	return entry.ID, true, nil
}

// Index implements scan.Source.
func (e *Engine) Index(entityType, attribute string, partition uint64) (scan.IndexReader, error) {
	desc, err := e.descriptor(entityType)
	if err != nil {
		return nil, err
	}
	if !desc.IsIndexed(attribute) {
		return nil, nil
	}
	ix, err := e.index(desc, attribute, partition)
	if err != nil {
		return nil, err
	}
	return ix, nil
}

// Relationships implements scan.Source.
func (e *Engine) Relationships(ctx context.Context, entityType, attribute string, parent model.Reference) ([]model.RelationshipReference, error) {
	rs, err := e.relationships(entityType, attribute)
	if err != nil {
		return nil, err
	}
	return rs.Get(parent)
}

// Resolve implements scan.Source.
func (e *Engine) Resolve(ctx context.Context, entityType string, rr model.RelationshipReference) (model.Reference, bool, error) {
	desc, err := e.descriptor(entityType)
	if err != nil {
		return model.Reference{}, false, err
	}
	if rr.Partition != 0 {
		if _, ok := e.catalog.Entry(entityType, rr.Partition); !ok {
			return model.Reference{}, false, nil
		}
	}
	t, err := e.table(desc, rr.Partition)
	if err != nil {
		return model.Reference{}, false, err
	}
	id, err := t.ID(rr.Identifier)
	if errors.Is(err, records.ErrNotFound) {
		return model.Reference{}, false, nil
	}
	if err != nil {
		return model.Reference{}, false, err
	}
	return model.NewPartitionReference(rr.Partition, id), true, nil
}
