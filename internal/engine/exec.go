package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/internal/journal"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
	"github.com/hupe1980/refdb/record"
)

// DeleteWhere deletes the ordered, paged matches of q and returns how many
// records were removed.
func (e *Engine) DeleteWhere(ctx context.Context, q *query.Query) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	// Matching and deleting share one critical section so a reference
	// cannot be freed and reused by a concurrent write in between.
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	desc, refs, err := e.matches(ctx, q)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, ref := range refs {
		err := e.delete(ctx, desc, ref, true)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	e.logger.Debug("delete where", "entity", desc.Name, "criteria", q.Criteria.String(), "deleted", n)
	return n, nil
}

// UpdateWhere applies q.Updates to the ordered, paged matches of q and
// returns how many records were updated. Changing the partition attribute
// moves the record, relationship lists included, to the new partition.
func (e *Engine) UpdateWhere(ctx context.Context, q *query.Query) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	if len(q.Updates) == 0 {
		return 0, fmt.Errorf("%w: no attribute updates", ErrInvalidQuery)
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	desc, refs, err := e.matches(ctx, q)
	if err != nil {
		return 0, err
	}
	for _, u := range q.Updates {
		if u.Attribute == desc.Identifier.Name {
			return 0, typeError(desc.Name, u.Attribute, fmt.Errorf("%w: identifier cannot be updated", ErrInvalidQuery))
		}
		v, err := coerce(desc.Attributes[u.Attribute], u.Value)
		if err != nil {
			return 0, typeError(desc.Name, u.Attribute, err)
		}
		if err := desc.Check(u.Attribute, v); err != nil {
			return 0, typeError(desc.Name, u.Attribute, err)
		}
	}

	n := 0
	for _, ref := range refs {
		rec, ok, err := e.Record(ctx, desc.Name, ref)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		next := rec.Clone()
		for _, u := range q.Updates {
			next[u.Attribute] = u.Value
		}

		if desc.IsPartitioned() && rec.Get(desc.Partition).Key() != next.Get(desc.Partition).Key() {
			if err := e.move(ctx, desc, ref, next); err != nil {
				return n, err
			}
		} else if _, _, err := e.save(ctx, desc.Name, next, true); err != nil {
			return n, err
		}
		n++
	}
	e.logger.Debug("update where", "entity", desc.Name, "criteria", q.Criteria.String(), "updated", n)
	return n, nil
}

// move deletes the record behind ref and saves next, carrying over its
// relationship lists.
func (e *Engine) move(ctx context.Context, desc *entity.Descriptor, ref model.Reference, next record.Record) error {
	for _, rel := range desc.Relationships {
		list, err := e.Relationships(ctx, desc.Name, rel.Attribute, ref)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			continue
		}
		ids := make([]record.Value, len(list))
		for i, rr := range list {
			ids[i] = rr.Identifier
		}
		next[rel.Attribute] = record.Array(ids...)
	}
	if err := e.delete(ctx, desc, ref, true); err != nil {
		return err
	}
	_, _, err := e.save(ctx, desc.Name, next, true)
	return err
}

// matches returns the ordered, paged matches of q without registering it.
func (e *Engine) matches(ctx context.Context, q *query.Query) (*entity.Descriptor, []model.Reference, error) {
	desc, found, err := e.find(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	refs, err := e.order(ctx, desc, found, q.Order)
	if err != nil {
		return nil, nil, err
	}
	return desc, page(refs, q.First, q.Max), nil
}

// Listen registers q.Listener for changes to the result set of q. A query
// terminated during its initial scan is not registered.
func (e *Engine) Listen(ctx context.Context, q *query.Query) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if q.Listener == nil {
		return fmt.Errorf("%w: listen without listener", ErrInvalidQuery)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	_, found, err := e.find(ctx, q)
	if err != nil {
		return err
	}
	e.registerListener(q, found)
	return nil
}

// registerListener caches the result set of q. A terminated scan returned a
// partial set and is not registered.
func (e *Engine) registerListener(q *query.Query, found model.References) {
	if q.Terminated() {
		e.logger.Debug("listener not registered", "entity", q.EntityType, "reason", "query terminated")
		return
	}
	e.cache.Register(q, q.Listener, found)
}

// RemoveChangeListener drops the cached results of q and all of its
// listeners. It reports whether q was registered.
func (e *Engine) RemoveChangeListener(q *query.Query) bool {
	return e.cache.RemoveListener(q)
}

// match decides cache membership of a written record. Criteria without
// relationship paths are evaluated on rec directly.
func (e *Engine) match(ctx context.Context, q *query.Query, ref model.Reference, rec record.Record) (bool, error) {
	desc, err := e.descriptor(q.EntityType)
	if err != nil {
		return false, err
	}
	in, err := e.inScope(desc, q, ref)
	if err != nil || !in {
		return false, err
	}
	if !q.Criteria.HasRelationshipPath() {
		return query.Matches(q.Criteria, rec), nil
	}
	found, err := e.planner.ScanExisting(ctx, q, model.NewReferences(ref))
	if err != nil {
		return false, err
	}
	return found.Contains(ref), nil
}

// inScope reports whether ref lies in the partitions q reads.
func (e *Engine) inScope(desc *entity.Descriptor, q *query.Query, ref model.Reference) (bool, error) {
	if !desc.IsPartitioned() {
		return true, nil
	}
	switch q.Partition {
	case query.PartitionAll:
		return ref.Partition != 0, nil
	case query.PartitionValue:
		sample := desc.NewInstance()
		sample[desc.Partition] = q.PartitionValue
		id, ok, err := e.PartitionID(desc.Name, sample)
		return ok && id == ref.Partition, err
	default:
		return ref.Partition == 0, nil
	}
}

// ReplayJournal re-applies the journal at path and returns the number of
// entries applied. Replayed writes are not journaled again.
func (e *Engine) ReplayJournal(ctx context.Context, path string) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	if e.journal != nil && path == e.journalPath {
		return 0, fmt.Errorf("engine: cannot replay the active journal %s", path)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	n, err := journal.Replay(e.fs, path, func(jr *journal.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch jr.Type {
		case journal.RecordTypeSave:
			_, _, err := e.save(ctx, jr.EntityType, jr.Data, false)
			return err
		case journal.RecordTypeDelete:
			desc, err := e.descriptor(jr.EntityType)
			if err != nil {
				return err
			}
			ref, _, err := e.findByID(desc, jr.Identifier, jr.PartitionValue)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return e.delete(ctx, desc, ref, false)
		}
		return nil
	})
	e.logger.Info("journal replayed", "path", path, "entries", n, "error", err)
	return n, err
}
