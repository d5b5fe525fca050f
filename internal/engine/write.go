package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/internal/journal"
	"github.com/hupe1980/refdb/internal/querycache"
	"github.com/hupe1980/refdb/internal/records"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/record"
)

// Save inserts rec or, when a record with the same identifier exists in the
// target partition, replaces it. Relationship attributes hold the
// identifiers of the related entities and are stored as relationship lists.
func (e *Engine) Save(ctx context.Context, entityType string, rec record.Record) (ref model.Reference, err error) {
	if e.closed.Load() {
		return model.Reference{}, ErrClosed
	}
	start := time.Now()
	inserted := false
	defer func() { e.metrics.OnSave(entityType, time.Since(start), inserted, err) }()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	ref, inserted, err = e.save(ctx, entityType, rec, true)
	return ref, err
}

// SaveAll saves recs in order while holding the write lock once, so no other
// write interleaves. Each record is journaled on its own. It stops at the
// first failure and returns the references saved before it.
func (e *Engine) SaveAll(ctx context.Context, entityType string, recs []record.Record) ([]model.Reference, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	refs := make([]model.Reference, 0, len(recs))
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return refs, err
		}
		start := time.Now()
		ref, inserted, err := e.save(ctx, entityType, rec, true)
		e.metrics.OnSave(entityType, time.Since(start), inserted, err)
		if err != nil {
			return refs, fmt.Errorf("engine: save %s #%d: %w", entityType, i, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (e *Engine) save(ctx context.Context, entityType string, rec record.Record, journaled bool) (model.Reference, bool, error) {
	desc, err := e.descriptor(entityType)
	if err != nil {
		return model.Reference{}, false, err
	}

	rec = rec.Clone()
	if rec == nil {
		rec = make(record.Record)
	}
	related := make(map[string]record.Value)
	for name, v := range rec {
		if _, ok := desc.Relationship(name); ok {
			related[name] = v
			delete(rec, name)
			continue
		}
		kind, ok := desc.Attributes[name]
		if !ok {
			return model.Reference{}, false, typeError(desc.Name, name, ErrAttributeNotFound)
		}
		nv, err := coerce(kind, v)
		if err != nil {
			return model.Reference{}, false, typeError(desc.Name, name, err)
		}
		rec[name] = nv
	}

	if err := checkConstraints(desc, rec); err != nil {
		return model.Reference{}, false, err
	}

	id, err := e.identifier(desc, rec)
	if err != nil {
		return model.Reference{}, false, err
	}

	if journaled && e.journal != nil {
		data := rec.Clone()
		maps.Copy(data, related)
		if err := e.journal.Append(&journal.Record{Type: journal.RecordTypeSave, EntityType: desc.Name, Data: data}); err != nil {
			return model.Reference{}, false, err
		}
	}

	var partition uint64
	if desc.IsPartitioned() {
		if pv := rec.Get(desc.Partition); !pv.IsNull() {
			entry, created, err := e.catalog.Ensure(desc.Name, pv, partitionFileName(desc.Name))
			if err != nil {
				return model.Reference{}, false, err
			}
			if created {
				e.logger.Info("partition created", "entity", desc.Name, "partition", entry.ID, "value", pv.String(), "file", entry.FileName)
			}
			partition = entry.ID
		}
	}

	t, err := e.table(desc, partition)
	if err != nil {
		return model.Reference{}, false, err
	}
	_, old, err := t.Lookup(id)
	if err != nil && !errors.Is(err, records.ErrNotFound) {
		return model.Reference{}, false, err
	}
	rid, inserted, err := t.Put(id, rec)
	if err != nil {
		return model.Reference{}, false, err
	}

	for _, attr := range desc.Indexes {
		ix, err := e.index(desc, attr, partition)
		if err != nil {
			return model.Reference{}, false, err
		}
		if inserted {
			err = ix.Add(rec.Get(attr), rid)
		} else {
			err = ix.Update(old.Get(attr), rec.Get(attr), rid)
		}
		if err != nil {
			return model.Reference{}, false, fmt.Errorf("engine: index %s.%s: %w", desc.Name, attr, err)
		}
	}

	ref := model.NewPartitionReference(partition, rid)
	for _, attr := range slices.Sorted(maps.Keys(related)) {
		targets, err := e.targets(ctx, desc, attr, related[attr])
		if err != nil {
			return model.Reference{}, false, err
		}
		if err := e.setRelationships(ctx, desc, ref, id, attr, targets); err != nil {
			return model.Reference{}, false, err
		}
	}

	kind := querycache.Update
	if inserted {
		kind = querycache.Insert
	}
	e.notify(ctx, desc.Name, ref, rec, kind)
	return ref, inserted, nil
}

// identifier returns the identifier of rec, generating it when the type
// uses a sequence.
func (e *Engine) identifier(desc *entity.Descriptor, rec record.Record) (record.Value, error) {
	name := desc.Identifier.Name
	id := rec.Get(name)
	seq := desc.Identifier.Generator == entity.GeneratorSequence

	switch {
	case id.IsNull() && !seq:
		return record.Value{}, typeError(desc.Name, name, ErrMissingIdentifier)
	case id.IsNull():
		n, err := e.catalog.NextSequence(desc.Name)
		if err != nil {
			return record.Value{}, err
		}
		id = record.Int(n)
		rec[name] = id
	case seq:
		n, _ := id.AsInt64()
		if err := e.catalog.AdvanceSequence(desc.Name, n); err != nil {
			return record.Value{}, err
		}
	}
	return id, nil
}

// checkConstraints applies the attribute constraints of desc to rec. A
// missing sequence identifier is assigned later and passes.
func checkConstraints(desc *entity.Descriptor, rec record.Record) error {
	for _, name := range slices.Sorted(maps.Keys(desc.Constraints)) {
		v := rec.Get(name)
		if v.IsNull() && name == desc.Identifier.Name && desc.Identifier.Generator == entity.GeneratorSequence {
			continue
		}
		if err := desc.Check(name, v); err != nil {
			return typeError(desc.Name, name, err)
		}
	}
	return nil
}

// coerce checks v against kind. Integers are widened for float attributes.
func coerce(kind record.Kind, v record.Value) (record.Value, error) {
	switch {
	case v.IsNull(), v.Kind == kind:
		return v, nil
	case kind == record.KindFloat && v.Kind == record.KindInt:
		return record.Float(float64(v.I64)), nil
	}
	return v, fmt.Errorf("%w: %s for %s attribute", ErrInvalidValue, v.Kind, kind)
}

// Delete removes the record behind ref together with its index entries and
// relationship lists.
func (e *Engine) Delete(ctx context.Context, entityType string, ref model.Reference) (err error) {
	if e.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	defer func() { e.metrics.OnDelete(entityType, time.Since(start), err) }()

	desc, err := e.descriptor(entityType)
	if err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.delete(ctx, desc, ref, true)
}

func (e *Engine) delete(ctx context.Context, desc *entity.Descriptor, ref model.Reference, journaled bool) error {
	rec, ok, err := e.Record(ctx, desc.Name, ref)
	if errors.Is(err, ErrNotFound) || (err == nil && !ok) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, desc.Name, ref)
	}
	if err != nil {
		return err
	}
	id := rec.Get(desc.Identifier.Name)

	if journaled && e.journal != nil {
		jr := &journal.Record{Type: journal.RecordTypeDelete, EntityType: desc.Name, Identifier: id, PartitionValue: record.Null()}
		if desc.IsPartitioned() {
			jr.PartitionValue = rec.Get(desc.Partition)
		}
		if err := e.journal.Append(jr); err != nil {
			return err
		}
	}

	t, err := e.table(desc, ref.Partition)
	if err != nil {
		return err
	}
	if _, err := t.Delete(id); err != nil {
		return err
	}
	for _, attr := range desc.Indexes {
		ix, err := e.index(desc, attr, ref.Partition)
		if err != nil {
			return err
		}
		if err := ix.Remove(rec.Get(attr), ref.Record); err != nil {
			return fmt.Errorf("engine: index %s.%s: %w", desc.Name, attr, err)
		}
	}
	for _, rel := range desc.Relationships {
		if err := e.setRelationships(ctx, desc, ref, id, rel.Attribute, nil); err != nil {
			return err
		}
	}

	e.notify(ctx, desc.Name, ref, rec, querycache.Delete)
	return nil
}

// SetRelationships replaces the relationship list of attribute on the record
// behind ref with the entities identified by ids.
func (e *Engine) SetRelationships(ctx context.Context, entityType string, ref model.Reference, attribute string, ids ...record.Value) error {
	if e.closed.Load() {
		return ErrClosed
	}
	desc, err := e.descriptor(entityType)
	if err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	rec, ok, err := e.Record(ctx, desc.Name, ref)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrNotFound, desc.Name, ref)
	}
	value := record.Array(ids...)
	targets, err := e.targets(ctx, desc, attribute, value)
	if err != nil {
		return err
	}
	if e.journal != nil {
		data := rec.Clone()
		data[attribute] = value
		if err := e.journal.Append(&journal.Record{Type: journal.RecordTypeSave, EntityType: desc.Name, Data: data}); err != nil {
			return err
		}
	}
	id := rec.Get(desc.Identifier.Name)
	if err := e.setRelationships(ctx, desc, ref, id, attribute, targets); err != nil {
		return err
	}
	e.notify(ctx, desc.Name, ref, rec, querycache.Update)
	return nil
}

// targets turns the value of a relationship attribute into relationship
// references. Targets of partitioned types are located by identifier.
func (e *Engine) targets(ctx context.Context, desc *entity.Descriptor, attribute string, v record.Value) ([]model.RelationshipReference, error) {
	rel, ok := desc.Relationship(attribute)
	if !ok {
		return nil, typeError(desc.Name, attribute, ErrRelationshipNotFound)
	}
	inv, err := e.descriptor(rel.Inverse)
	if err != nil {
		return nil, err
	}

	var ids []record.Value
	switch {
	case v.IsNull():
	case v.Kind == record.KindArray:
		ids = v.A
	default:
		ids = []record.Value{v}
	}
	if !rel.Cardinality.ToMany() && len(ids) > 1 {
		return nil, typeError(desc.Name, attribute, fmt.Errorf("%w: %s holds one reference", ErrInvalidValue, rel.Cardinality))
	}

	out := make([]model.RelationshipReference, 0, len(ids))
	for _, id := range ids {
		if id.IsNull() {
			continue
		}
		p, err := e.locate(ctx, inv, id)
		if err != nil {
			return nil, err
		}
		out = append(out, model.RelationshipReference{Identifier: id, Partition: p})
	}
	return out, nil
}

// locate returns the partition holding id, or 0 when no partition does.
func (e *Engine) locate(ctx context.Context, desc *entity.Descriptor, id record.Value) (uint64, error) {
	if !desc.IsPartitioned() {
		return 0, nil
	}
	candidates := []uint64{0}
	for _, entry := range e.catalog.Partitions(desc.Name) {
		candidates = append(candidates, entry.ID)
	}
	for _, p := range candidates {
		_, ok, err := e.Resolve(ctx, desc.Name, model.RelationshipReference{Identifier: id, Partition: p})
		if err != nil {
			return 0, err
		}
		if ok {
			return p, nil
		}
	}
	return 0, nil
}

// setRelationships stores targets as the list of attribute on parent and
// mirrors the change on the inverse relationship of every target that
// currently resolves.
func (e *Engine) setRelationships(ctx context.Context, desc *entity.Descriptor, parent model.Reference, parentID record.Value, attribute string, targets []model.RelationshipReference) error {
	rel, ok := desc.Relationship(attribute)
	if !ok {
		return typeError(desc.Name, attribute, ErrRelationshipNotFound)
	}
	rs, err := e.relationships(desc.Name, attribute)
	if err != nil {
		return err
	}
	old, err := rs.Get(parent)
	if err != nil {
		return err
	}
	if err := rs.Set(parent, targets); err != nil {
		return err
	}
	if rel.InverseAttribute == "" {
		return nil
	}

	inv, err := e.descriptor(rel.Inverse)
	if err != nil {
		return err
	}
	invRel, ok := inv.Relationship(rel.InverseAttribute)
	if !ok {
		return typeError(inv.Name, rel.InverseAttribute, ErrRelationshipNotFound)
	}
	invStore, err := e.relationships(inv.Name, rel.InverseAttribute)
	if err != nil {
		return err
	}
	back := model.RelationshipReference{Identifier: parentID, Partition: parent.Partition}

	for _, rr := range old {
		if containsTarget(targets, rr) {
			continue
		}
		tref, ok, err := e.Resolve(ctx, inv.Name, rr)
		if err != nil {
			return err
		}
		if ok {
			if err := invStore.Remove(tref, back); err != nil {
				return err
			}
		}
	}
	for _, rr := range targets {
		if containsTarget(old, rr) {
			continue
		}
		tref, ok, err := e.Resolve(ctx, inv.Name, rr)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if invRel.Cardinality.ToMany() {
			err = invStore.Add(tref, back)
		} else {
			err = invStore.Set(tref, []model.RelationshipReference{back})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func containsTarget(list []model.RelationshipReference, rr model.RelationshipReference) bool {
	return slices.ContainsFunc(list, func(x model.RelationshipReference) bool {
		return x.Partition == rr.Partition && x.Identifier.Key() == rr.Identifier.Key()
	})
}

func (e *Engine) notify(ctx context.Context, entityType string, ref model.Reference, rec record.Record, kind querycache.ChangeKind) {
	n, err := e.cache.NotifyChange(ctx, entityType, ref, rec, kind)
	if err != nil {
		e.logger.Warn("query cache notification incomplete", "entity", entityType, "ref", ref.String(), "kind", kind.String(), "error", err)
	}
	e.metrics.OnNotify(entityType, n)
}
