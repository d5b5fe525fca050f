package scan

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
)

// PartitionScanner scans the partitions a query's partition mode selects.
// In PartitionAll mode every catalogued partition is scanned on the shared
// worker pool; all tasks run to completion and the first error is returned.
type PartitionScanner struct {
	env      Env
	desc     *entity.Descriptor
	criteria *query.Criteria
	q        *query.Query
}

var _ Scanner = (*PartitionScanner)(nil)

// NewPartitionScanner returns a partition scanner.
func NewPartitionScanner(env Env, desc *entity.Descriptor, c *query.Criteria, q *query.Query) *PartitionScanner {
	return &PartitionScanner{env: env, desc: desc, criteria: c, q: q}
}

// delegate returns the scanner of one partition.
func (s *PartitionScanner) delegate(partition uint64) Scanner {
	if Select(s.criteria, s.desc, query.PartitionNone) == KindIndex {
		return NewIndexScanner(s.env, s.desc, s.criteria, s.q, partition)
	}
	return NewFullTableScanner(s.env, s.desc, s.criteria, s.q, partition)
}

// Scan implements Scanner.
func (s *PartitionScanner) Scan(ctx context.Context) (model.References, error) {
	parts, err := scope(s.env.Source, s.desc, s.q)
	if err != nil {
		return nil, err
	}
	switch len(parts) {
	case 0:
		return model.References{}, nil
	case 1:
		return s.delegate(parts[0]).Scan(ctx)
	}

	var (
		g   errgroup.Group
		mu  sync.Mutex
		out = make(model.References)
	)
	for _, p := range parts {
		g.Go(func() error {
			if err := s.env.Workers.AcquireWorker(ctx); err != nil {
				return err
			}
			defer s.env.Workers.ReleaseWorker()

			res, err := s.delegate(p).Scan(ctx)
			if err != nil {
				s.env.logger().Error("partition scan failed", "entity", s.desc.Name, "partition", p, "error", err)
				return fmt.Errorf("partition %d: %w", p, err)
			}
			mu.Lock()
			maps.Copy(out, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ScanExisting implements Scanner. Candidates outside the selected
// partitions are dropped.
func (s *PartitionScanner) ScanExisting(ctx context.Context, existing model.References) (model.References, error) {
	parts, err := scope(s.env.Source, s.desc, s.q)
	if err != nil {
		return nil, err
	}
	in := make(map[uint64]bool, len(parts))
	for _, p := range parts {
		in[p] = true
	}
	narrowed := make(model.References, len(existing))
	for k, v := range existing {
		if in[k.Partition] {
			narrowed[k] = v
		}
	}
	return filterExisting(ctx, s.env.Source, s.desc.Name, s.criteria, s.q, narrowed)
}

// scope returns the partition ids q reads from desc.
func scope(src Source, desc *entity.Descriptor, q *query.Query) ([]uint64, error) {
	if !desc.IsPartitioned() {
		return []uint64{0}, nil
	}
	switch q.Partition {
	case query.PartitionAll:
		entries := src.Partitions(desc.Name)
		ids := make([]uint64, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		return ids, nil
	case query.PartitionValue:
		sample := desc.NewInstance()
		sample[desc.Partition] = q.PartitionValue
		id, ok, err := src.PartitionID(desc.Name, sample)
		if err != nil || !ok {
			return nil, err
		}
		return []uint64{id}, nil
	default:
		return []uint64{0}, nil
	}
}
