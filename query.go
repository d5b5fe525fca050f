package refdb

import (
	"context"
	"errors"
	"iter"

	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
	"github.com/hupe1980/refdb/record"
)

// Query creates a fluent query builder over entityType.
//
// Example:
//
//	refs, err := db.Query("Player").
//	    Where(query.Gte("score", record.Int(100))).
//	    OrderBy(query.Desc("score")).
//	    Page(0, 10).
//	    Execute(ctx)
//
//	// Or with streaming:
//	for res, err := range db.Query("Player").Where(crit).Records(ctx) {
//	    if err != nil { break }
//	    process(res.Record)
//	}
func (db *DB) Query(entityType string) *QueryBuilder {
	return &QueryBuilder{db: db, entityType: entityType}
}

// Result is one match of a query.
type Result struct {
	Ref    model.Reference
	Record record.Record
}

// QueryBuilder is a fluent builder for queries. Its methods modify and
// return the builder.
type QueryBuilder struct {
	db         *DB
	entityType string
	criteria   *query.Criteria
	order      []query.Order

	first, limit int

	partition      query.PartitionMode
	partitionValue record.Value

	listener query.ChangeListener
	updates  []query.AttributeUpdate

	built *query.Query
}

// Where adds criteria. Repeated calls are combined with AND.
func (qb *QueryBuilder) Where(c *query.Criteria) *QueryBuilder {
	if qb.criteria == nil {
		qb.criteria = c
	} else {
		qb.criteria = query.And(qb.criteria, c)
	}
	return qb
}

// OrderBy appends sort orders.
func (qb *QueryBuilder) OrderBy(orders ...query.Order) *QueryBuilder {
	qb.order = append(qb.order, orders...)
	return qb
}

// Page skips first results and returns at most limit. A limit of 0 means
// unlimited.
func (qb *QueryBuilder) Page(first, limit int) *QueryBuilder {
	qb.first, qb.limit = first, limit
	return qb
}

// Limit returns at most n results.
func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	qb.limit = n
	return qb
}

// InPartition restricts the query to the partition holding v.
func (qb *QueryBuilder) InPartition(v record.Value) *QueryBuilder {
	qb.partition = query.PartitionValue
	qb.partitionValue = v
	return qb
}

// AllPartitions scans every catalogued partition.
func (qb *QueryBuilder) AllPartitions() *QueryBuilder {
	qb.partition = query.PartitionAll
	return qb
}

// Listen attaches a change listener. The built query stays registered until
// RemoveChangeListener is called with it.
func (qb *QueryBuilder) Listen(l query.ChangeListener) *QueryBuilder {
	qb.listener = l
	return qb
}

// Set adds an attribute update applied by Update.
func (qb *QueryBuilder) Set(attribute string, v record.Value) *QueryBuilder {
	qb.updates = append(qb.updates, query.AttributeUpdate{Attribute: attribute, Value: v})
	return qb
}

// Build returns the query. Every call returns a fresh *query.Query; the last
// one is kept for Query.
func (qb *QueryBuilder) Build() *query.Query {
	q := query.New(qb.entityType, qb.criteria)
	q.Order = append([]query.Order(nil), qb.order...)
	q.First, q.Max = qb.first, qb.limit
	q.Partition = qb.partition
	q.PartitionValue = qb.partitionValue
	q.Listener = qb.listener
	q.Updates = append([]query.AttributeUpdate(nil), qb.updates...)
	qb.built = q
	return q
}

// Query returns the query last built by a terminal method, or nil. Use it to
// remove a listener registered through Listen.
func (qb *QueryBuilder) Query() *query.Query { return qb.built }

// Execute runs the query and returns the matching references.
func (qb *QueryBuilder) Execute(ctx context.Context) ([]model.Reference, error) {
	return qb.db.Scan(ctx, qb.Build())
}

// MustExecute runs the query, panicking on error.
// Use this only in tests or when you're certain the query is valid.
func (qb *QueryBuilder) MustExecute(ctx context.Context) []model.Reference {
	refs, err := qb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return refs
}

// Records returns an iterator over the matches together with their records,
// in result order. Breaking out of the loop stops loading records.
func (qb *QueryBuilder) Records(ctx context.Context) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		refs, err := qb.Execute(ctx)
		if err != nil {
			yield(Result{}, err)
			return
		}
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				yield(Result{}, err)
				return
			}
			rec, err := qb.db.Get(ctx, qb.entityType, ref)
			if !yield(Result{Ref: ref, Record: rec}, err) || err != nil {
				return
			}
		}
	}
}

// First returns the first match, or ErrNotFound.
func (qb *QueryBuilder) First(ctx context.Context) (Result, error) {
	saved := qb.limit
	qb.limit = 1
	defer func() { qb.limit = saved }()

	for res, err := range qb.Records(ctx) {
		return res, err
	}
	return Result{}, ErrNotFound
}

// Count returns the number of matches, ignoring paging.
func (qb *QueryBuilder) Count(ctx context.Context) (int, error) {
	return qb.db.Count(ctx, qb.Build())
}

// Exists reports whether the query has at least one match.
func (qb *QueryBuilder) Exists(ctx context.Context) (bool, error) {
	_, err := qb.First(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Delete removes every match and returns how many were removed.
func (qb *QueryBuilder) Delete(ctx context.Context) (int, error) {
	return qb.db.DeleteWhere(ctx, qb.Build())
}

// Update applies the attribute updates added with Set to every match.
func (qb *QueryBuilder) Update(ctx context.Context) (int, error) {
	return qb.db.UpdateWhere(ctx, qb.Build())
}
