package scan

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
)

// IndexScanner seeks the index of the leading indexed leaf and re-checks
// each candidate against the whole criteria tree.
type IndexScanner struct {
	env       Env
	desc      *entity.Descriptor
	criteria  *query.Criteria
	leaf      *query.Criteria
	q         *query.Query
	partition uint64
}

var _ Scanner = (*IndexScanner)(nil)

// NewIndexScanner returns an index scanner over partition. It falls back to
// a full table scan when c has no indexed leaf.
func NewIndexScanner(env Env, desc *entity.Descriptor, c *query.Criteria, q *query.Query, partition uint64) *IndexScanner {
	return &IndexScanner{env: env, desc: desc, criteria: c, leaf: indexLeaf(c, desc), q: q, partition: partition}
}

func (s *IndexScanner) candidates() (*roaring64.Bitmap, error) {
	if s.leaf == nil {
		return nil, nil
	}
	ix, err := s.env.Source.Index(s.desc.Name, s.leaf.Attribute(), s.partition)
	if err != nil || ix == nil {
		return nil, err
	}
	return ix.Lookup(s.leaf.Operator(), s.leaf.Value())
}

func (s *IndexScanner) fallback() *FullTableScanner {
	return NewFullTableScanner(s.env, s.desc, s.criteria, s.q, s.partition)
}

// Scan implements Scanner.
func (s *IndexScanner) Scan(ctx context.Context) (model.References, error) {
	bm, err := s.candidates()
	if err != nil {
		return nil, err
	}
	if bm == nil {
		return s.fallback().Scan(ctx)
	}

	out := make(model.References)
	it := bm.Iterator()
	for it.HasNext() {
		if s.q.Terminated() {
			break
		}
		ref := model.NewPartitionReference(s.partition, it.Next())
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

// ScanExisting implements Scanner. Candidates of other partitions skip the
// index pre-filter.
func (s *IndexScanner) ScanExisting(ctx context.Context, existing model.References) (model.References, error) {
	bm, err := s.candidates()
	if err != nil {
		return nil, err
	}
	if bm != nil {
		narrowed := make(model.References, len(existing))
		for k, v := range existing {
			if k.Partition != s.partition || bm.Contains(k.Record) {
				narrowed[k] = v
			}
		}
		existing = narrowed
	}
	return filterExisting(ctx, s.env.Source, s.desc.Name, s.criteria, s.q, existing)
}
