package query

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/refdb/record"
)

// ErrInvalidQuery is returned for queries that cannot be executed.
var ErrInvalidQuery = errors.New("query: invalid query")

// PartitionMode selects which partitions of a partitioned type a query scans.
type PartitionMode uint8

const (
	// PartitionNone scans the default partition only.
	PartitionNone PartitionMode = iota
	// PartitionAll scans every catalogued partition concurrently.
	PartitionAll
	// PartitionValue scans the partition holding PartitionValue.
	PartitionValue
)

func (m PartitionMode) String() string {
	switch m {
	case PartitionNone:
		return "none"
	case PartitionAll:
		return "all"
	case PartitionValue:
		return "value"
	default:
		return "unknown"
	}
}

// Order sorts results by one attribute.
type Order struct {
	Attribute string
	Ascending bool
}

// Asc orders by attribute ascending.
func Asc(attribute string) Order { return Order{Attribute: attribute, Ascending: true} }

// Desc orders by attribute descending.
func Desc(attribute string) Order { return Order{Attribute: attribute} }

// AttributeUpdate sets Attribute to Value on every match of an update query.
type AttributeUpdate struct {
	Attribute string
	Value     record.Value
}

// Query describes one scan over an entity type.
//
// A Query carries mutable cancellation state and must not be copied after
// first use.
type Query struct {
	EntityType string
	Criteria   *Criteria
	Order      []Order

	Partition      PartitionMode
	PartitionValue record.Value

	// Listener, if set, registers the query in the query cache.
	Listener ChangeListener

	// Updates is applied by UpdateWhere.
	Updates []AttributeUpdate

	// First skips that many ordered results. Max limits the result count;
	// 0 means unlimited.
	First int
	Max   int

	terminated atomic.Bool
}

// New returns a query over entityType.
func New(entityType string, criteria *Criteria) *Query {
	return &Query{EntityType: entityType, Criteria: criteria}
}

// Terminate asks running scans of q to stop. Scans return the results
// gathered so far.
func (q *Query) Terminate() { q.terminated.Store(true) }

// Terminated reports whether Terminate was called.
func (q *Query) Terminated() bool { return q.terminated.Load() }

// Validate checks the criteria and the query shape. It never touches storage.
func (q *Query) Validate() error {
	if q.EntityType == "" {
		return fmt.Errorf("%w: missing entity type", ErrInvalidQuery)
	}
	if q.First < 0 || q.Max < 0 {
		return fmt.Errorf("%w: negative paging", ErrInvalidQuery)
	}
	if err := q.Criteria.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if q.Partition == PartitionAll && q.Criteria.HasRelationshipPath() {
		return fmt.Errorf("%w: relationship paths cannot be combined with all partitions", ErrInvalidQuery)
	}
	if q.Partition == PartitionValue && q.PartitionValue.IsNull() {
		return fmt.Errorf("%w: partition value is null", ErrInvalidQuery)
	}
	for _, o := range q.Order {
		if o.Attribute == "" {
			return fmt.Errorf("%w: empty order attribute", ErrInvalidQuery)
		}
	}
	return nil
}
