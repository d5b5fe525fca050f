package scan

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
)

// RelationshipScanner matches a leaf whose attribute is a relationship path.
//
// path is the part of the leaf attribute still to resolve against desc. The
// first segment names a relationship of desc; the rest is evaluated on the
// related records, recursing while it has further segments. Results are
// parent references: a parent matches when any related record matches.
type RelationshipScanner struct {
	env  Env
	desc *entity.Descriptor
	leaf *query.Criteria
	path string
	q    *query.Query
}

var _ Scanner = (*RelationshipScanner)(nil)

// NewRelationshipScanner returns a scanner for leaf over desc. path starts
// as leaf.Attribute().
func NewRelationshipScanner(env Env, desc *entity.Descriptor, leaf *query.Criteria, path string, q *query.Query) *RelationshipScanner {
	return &RelationshipScanner{env: env, desc: desc, leaf: leaf, path: path, q: q}
}

// Scan implements Scanner. The parent candidates are the partitions the
// query selects.
func (s *RelationshipScanner) Scan(ctx context.Context) (model.References, error) {
	parts, err := scope(s.env.Source, s.desc, s.q)
	if err != nil {
		return nil, err
	}
	candidates := make(model.References)
	for _, p := range parts {
		for ref, err := range s.env.Source.References(ctx, s.desc.Name, p) {
			if err != nil {
				return nil, err
			}
			if s.q.Terminated() {
				break
			}
			candidates.Add(ref)
		}
	}
	return s.ScanExisting(ctx, candidates)
}

// ScanExisting implements Scanner.
func (s *RelationshipScanner) ScanExisting(ctx context.Context, existing model.References) (model.References, error) {
	head, rest, _ := query.Path(s.path)
	rel, ok := s.desc.Relationship(head)
	if !ok {
		return nil, &Error{EntityType: s.desc.Name, Attribute: head, Err: ErrRelationshipNotFound}
	}
	inverse, ok := s.env.Source.Descriptor(rel.Inverse)
	if !ok {
		return nil, &Error{EntityType: rel.Inverse, Err: ErrEntityTypeNotFound}
	}

	// child -> parents reaching it
	parents := make(map[model.Reference][]model.Reference)
	children := make(model.References)
	for parent := range existing {
		if s.q.Terminated() {
			break
		}
		rrs, err := s.env.Source.Relationships(ctx, s.desc.Name, head, parent)
		if err != nil {
			return nil, err
		}
		for _, rr := range rrs {
			child, ok, err := s.env.Source.Resolve(ctx, inverse.Name, rr)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			parents[child] = append(parents[child], parent)
			children.Add(child)
		}
	}

	matched, err := s.matchChildren(ctx, inverse, rest, children)
	if err != nil {
		return nil, err
	}

	out := make(model.References)
	for child := range matched {
		for _, p := range parents[child] {
			out[p] = existing[p]
		}
	}
	return out, nil
}

// matchChildren filters children of inverse by the rest of the path. The
// last segment runs as a plain leaf through the scanner Select picks for
// inverse, one scanner per partition, so indexes of the related type apply.
func (s *RelationshipScanner) matchChildren(ctx context.Context, inverse *entity.Descriptor, rest string, children model.References) (model.References, error) {
	if strings.Contains(rest, ".") {
		return NewRelationshipScanner(s.env, inverse, s.leaf, rest, s.q).ScanExisting(ctx, children)
	}
	leaf := s.leaf.WithAttribute(rest)

	groups := make(map[uint64]model.References)
	for child, v := range children {
		g, ok := groups[child.Partition]
		if !ok {
			g = make(model.References)
			groups[child.Partition] = g
		}
		g[child] = v
	}

	out := make(model.References, len(children))
	for _, p := range slices.Sorted(maps.Keys(groups)) {
		var sc Scanner
		if Select(leaf, inverse, query.PartitionNone) == KindIndex {
			sc = NewIndexScanner(s.env, inverse, leaf, s.q, p)
		} else {
			sc = NewFullTableScanner(s.env, inverse, leaf, s.q, p)
		}
		found, err := sc.ScanExisting(ctx, groups[p])
		if err != nil {
			return nil, err
		}
		maps.Copy(out, found)
	}
	return out, nil
}
