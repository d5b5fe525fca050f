package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/internal/records"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
	"github.com/hupe1980/refdb/record"
)

// Get returns the record behind ref.
func (e *Engine) Get(ctx context.Context, entityType string, ref model.Reference) (record.Record, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	rec, ok, err := e.Record(ctx, entityType, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, entityType, ref)
	}
	return rec, nil
}

// FindByID returns the record with identifier id. partitionValue selects the
// partition of partitioned types; null selects the unpartitioned data.
func (e *Engine) FindByID(ctx context.Context, entityType string, id, partitionValue record.Value) (model.Reference, record.Record, error) {
	if e.closed.Load() {
		return model.Reference{}, nil, ErrClosed
	}
	desc, err := e.descriptor(entityType)
	if err != nil {
		return model.Reference{}, nil, err
	}
	return e.findByID(desc, id, partitionValue)
}

func (e *Engine) findByID(desc *entity.Descriptor, id, partitionValue record.Value) (model.Reference, record.Record, error) {
	var partition uint64
	if desc.IsPartitioned() && !partitionValue.IsNull() {
		entry, ok, err := e.catalog.Lookup(desc.Name, partitionValue)
		if err != nil {
			return model.Reference{}, nil, err
		}
		if !ok {
			return model.Reference{}, nil, fmt.Errorf("%w: %s partition %s", ErrNotFound, desc.Name, partitionValue)
		}
		partition = entry.ID
	}
	t, err := e.table(desc, partition)
	if err != nil {
		return model.Reference{}, nil, err
	}
	rid, rec, err := t.Lookup(id)
	if errors.Is(err, records.ErrNotFound) {
		return model.Reference{}, nil, fmt.Errorf("%w: %s %s", ErrNotFound, desc.Name, id)
	}
	if err != nil {
		return model.Reference{}, nil, err
	}
	return model.NewPartitionReference(partition, rid), rec, nil
}

// Related resolves the relationship list of attribute on ref to references
// of the related type. Identifiers that no longer resolve are skipped.
func (e *Engine) Related(ctx context.Context, entityType string, ref model.Reference, attribute string) ([]model.Reference, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	desc, err := e.descriptor(entityType)
	if err != nil {
		return nil, err
	}
	rel, ok := desc.Relationship(attribute)
	if !ok {
		return nil, typeError(desc.Name, attribute, ErrRelationshipNotFound)
	}
	list, err := e.Relationships(ctx, desc.Name, attribute, ref)
	if err != nil {
		return nil, err
	}
	out := make([]model.Reference, 0, len(list))
	for _, rr := range list {
		tref, ok, err := e.Resolve(ctx, rel.Inverse, rr)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, tref)
		}
	}
	return out, nil
}

// Scan returns the references matching q, ordered by q.Order (reference
// order without one) and cut to q.First and q.Max. A query with a listener
// is registered in the query cache with its full result set unless the scan
// was terminated.
func (e *Engine) Scan(ctx context.Context, q *query.Query) (refs []model.Reference, err error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()
	defer func() { e.metrics.OnScan(q.EntityType, time.Since(start), len(refs), err) }()

	if q.Listener != nil {
		// Writes wait until the result set is registered so none is missed.
		e.writeMu.Lock()
		defer e.writeMu.Unlock()
	}

	desc, matches, err := e.find(ctx, q)
	if err != nil {
		return nil, err
	}
	if q.Listener != nil {
		e.registerListener(q, matches)
	}
	ordered, err := e.order(ctx, desc, matches, q.Order)
	if err != nil {
		return nil, err
	}
	return page(ordered, q.First, q.Max), nil
}

// Count returns the number of matches of q, ignoring paging.
func (e *Engine) Count(ctx context.Context, q *query.Query) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	_, matches, err := e.find(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

// find checks q against its descriptor and runs the planner. Nothing is read
// before the query is known to be valid.
func (e *Engine) find(ctx context.Context, q *query.Query) (*entity.Descriptor, model.References, error) {
	desc, err := e.planner.Check(q)
	if err != nil {
		return nil, nil, err
	}
	if err := checkAttributes(desc, q); err != nil {
		return nil, nil, err
	}
	matches, err := e.planner.Scan(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	return desc, matches, nil
}

// checkAttributes rejects plain attributes the descriptor does not declare.
// Relationship paths are checked by the planner.
func checkAttributes(desc *entity.Descriptor, q *query.Query) error {
	for _, attr := range q.Criteria.Attributes() {
		if _, _, dotted := query.Path(attr); dotted {
			continue
		}
		if !desc.HasAttribute(attr) {
			return typeError(desc.Name, attr, ErrAttributeNotFound)
		}
	}
	for _, o := range q.Order {
		if !desc.HasAttribute(o.Attribute) {
			return typeError(desc.Name, o.Attribute, ErrAttributeNotFound)
		}
	}
	for _, u := range q.Updates {
		if !desc.HasAttribute(u.Attribute) {
			return typeError(desc.Name, u.Attribute, ErrAttributeNotFound)
		}
	}
	return nil
}

func (e *Engine) order(ctx context.Context, desc *entity.Descriptor, matches model.References, orders []query.Order) ([]model.Reference, error) {
	refs := matches.Keys()
	if len(orders) == 0 {
		return refs, nil
	}

	type row struct {
		ref model.Reference
		rec record.Record
	}
	rows := make([]row, 0, len(refs))
	for _, ref := range refs {
		rec, ok, err := e.Record(ctx, desc.Name, ref)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row{ref, rec})
		}
	}
	slices.SortFunc(rows, func(a, b row) int {
		for _, o := range orders {
			c := record.Compare(a.rec.Get(o.Attribute), b.rec.Get(o.Attribute))
			if !o.Ascending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return model.CompareReferences(a.ref, b.ref)
	})

	out := make([]model.Reference, len(rows))
	for i, r := range rows {
		out[i] = r.ref
	}
	return out, nil
}

func page(refs []model.Reference, first, limit int) []model.Reference {
	if first >= len(refs) {
		return nil
	}
	refs = refs[first:]
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs
}
