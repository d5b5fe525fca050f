package scan

import (
	"context"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
)

// Scanner evaluates one criteria tree over one entity type.
type Scanner interface {
	// Scan returns every match.
	Scan(ctx context.Context) (model.References, error)
	// ScanExisting returns the keys of existing that match, keeping their values.
	ScanExisting(ctx context.Context, existing model.References) (model.References, error)
}

// FullTableScanner evaluates the criteria on every record of one partition.
type FullTableScanner struct {
	env       Env
	desc      *entity.Descriptor
	criteria  *query.Criteria
	q         *query.Query
	partition uint64
}

var _ Scanner = (*FullTableScanner)(nil)

// NewFullTableScanner returns a full table scanner over partition.
func NewFullTableScanner(env Env, desc *entity.Descriptor, c *query.Criteria, q *query.Query, partition uint64) *FullTableScanner {
	return &FullTableScanner{env: env, desc: desc, criteria: c, q: q, partition: partition}
}

// Scan implements Scanner.
func (s *FullTableScanner) Scan(ctx context.Context) (model.References, error) {
	out := make(model.References)
	for ref, err := range s.env.Source.References(ctx, s.desc.Name, s.partition) {
		if err != nil {
			return nil, err
		}
		if s.q.Terminated() {
			break
		}
		ok, err := matchRef(ctx, s.env.Source, s.desc.Name, s.criteria, ref)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Add(ref)
		}
	}
	return out, nil
}

// ScanExisting implements Scanner.
func (s *FullTableScanner) ScanExisting(ctx context.Context, existing model.References) (model.References, error) {
	return filterExisting(ctx, s.env.Source, s.desc.Name, s.criteria, s.q, existing)
}

func matchRef(ctx context.Context, src Source, entityType string, c *query.Criteria, ref model.Reference) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if c == nil {
		return true, nil
	}
	rec, ok, err := src.Record(ctx, entityType, ref)
	if err != nil || !ok {
		return false, err
	}
	return query.Matches(c, rec), nil
}

func filterExisting(ctx context.Context, src Source, entityType string, c *query.Criteria, q *query.Query, existing model.References) (model.References, error) {
	out := make(model.References, len(existing))
	for k, v := range existing {
		if q.Terminated() {
			break
		}
		ok, err := matchRef(ctx, src, entityType, c, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}
