package scan

import (
	"context"
	"fmt"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
)

// Planner turns queries into scanner runs.
type Planner struct {
	env Env
}

// NewPlanner returns a planner reading from env.
func NewPlanner(env Env) *Planner {
	return &Planner{env: env}
}

// Check validates q and resolves its descriptor. It never touches records.
func (p *Planner) Check(q *query.Query) (*entity.Descriptor, error) {
	if err := q.Validate(); err != nil {
		return nil, &Error{EntityType: q.EntityType, Err: err}
	}
	desc, ok := p.env.Source.Descriptor(q.EntityType)
	if !ok {
		return nil, &Error{EntityType: q.EntityType, Err: ErrEntityTypeNotFound}
	}
	for _, attr := range q.Criteria.Attributes() {
		head, _, dotted := query.Path(attr)
		if !dotted {
			continue
		}
		if _, ok := desc.Relationship(head); !ok {
			return nil, &Error{EntityType: desc.Name, Attribute: head, Err: ErrRelationshipNotFound}
		}
	}
	if q.Partition == query.PartitionValue && !desc.IsPartitioned() {
		return nil, &Error{EntityType: desc.Name, Err: fmt.Errorf("%w: type is not partitioned", query.ErrInvalidQuery)}
	}
	return desc, nil
}

// Scanner returns the scanner Select picks for c over desc.
func (p *Planner) Scanner(desc *entity.Descriptor, c *query.Criteria, q *query.Query) Scanner {
	switch Select(c, desc, q.Partition) {
	case KindRelationship:
		return NewRelationshipScanner(p.env, desc, c, c.Attribute(), q)
	case KindPartition:
		return NewPartitionScanner(p.env, desc, c, q)
	case KindIndex:
		return NewIndexScanner(p.env, desc, c, q, 0)
	default:
		return NewFullTableScanner(p.env, desc, c, q, 0)
	}
}

// Scan validates q and returns its matches.
func (p *Planner) Scan(ctx context.Context, q *query.Query) (model.References, error) {
	desc, err := p.Check(q)
	if err != nil {
		return nil, err
	}
	p.env.logger().Debug("scan", "entity", desc.Name, "kind", Select(q.Criteria, desc, q.Partition).String(), "criteria", q.Criteria.String())
	return p.eval(ctx, desc, q.Criteria, q, nil)
}

// ScanExisting validates q and returns the members of existing that match.
func (p *Planner) ScanExisting(ctx context.Context, q *query.Query, existing model.References) (model.References, error) {
	desc, err := p.Check(q)
	if err != nil {
		return nil, err
	}
	return p.eval(ctx, desc, q.Criteria, q, existing)
}

// eval evaluates c over candidates, or over the whole scope when candidates
// is nil. Trees without relationship paths run as one scanner; others are
// combined set-wise so each relationship leaf runs its own traversal.
func (p *Planner) eval(ctx context.Context, desc *entity.Descriptor, c *query.Criteria, q *query.Query, candidates model.References) (model.References, error) {
	if !c.HasRelationshipPath() || c.IsLeaf() {
		s := p.Scanner(desc, c, q)
		if candidates == nil {
			return s.Scan(ctx)
		}
		return s.ScanExisting(ctx, candidates)
	}

	switch c.Kind() {
	case query.AndNode:
		var plain, related []*query.Criteria
		for _, ch := range c.Children() {
			if ch.HasRelationshipPath() {
				related = append(related, ch)
			} else {
				plain = append(plain, ch)
			}
		}
		result := candidates
		if len(plain) > 0 {
			var err error
			if result, err = p.eval(ctx, desc, query.And(plain...), q, result); err != nil {
				return nil, err
			}
		}
		for _, ch := range related {
			if result != nil && len(result) == 0 {
				break
			}
			var err error
			if result, err = p.eval(ctx, desc, ch, q, result); err != nil {
				return nil, err
			}
		}
		return result, nil
	case query.OrNode:
		out := make(model.References)
		for _, ch := range c.Children() {
			res, err := p.eval(ctx, desc, ch, q, candidates)
			if err != nil {
				return nil, err
			}
			for k, v := range res {
				out[k] = v
			}
		}
		return out, nil
	case query.NotNode:
		base := candidates
		if base == nil {
			var err error
			if base, err = p.Scanner(desc, nil, q).Scan(ctx); err != nil {
				return nil, err
			}
		}
		sub, err := p.eval(ctx, desc, c.Children()[0], q, base)
		if err != nil {
			return nil, err
		}
		out := make(model.References, len(base))
		for k, v := range base {
			if !sub.Contains(k) {
				out[k] = v
			}
		}
		return out, nil
	default:
		return nil, &Error{EntityType: desc.Name, Err: query.ErrInvalidCriteria}
	}
}
