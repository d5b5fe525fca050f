package scan

import (
	"strings"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/query"
)

// Kind identifies a scanner variant.
type Kind uint8

const (
	// KindFullTable evaluates the criteria on every record.
	KindFullTable Kind = iota
	// KindIndex seeks an attribute index and re-checks the candidates.
	KindIndex
	// KindPartition scans the partitions selected by the partition mode.
	KindPartition
	// KindRelationship follows a dotted attribute path.
	KindRelationship
)

func (k Kind) String() string {
	switch k {
	case KindFullTable:
		return "full_table"
	case KindIndex:
		return "index"
	case KindPartition:
		return "partition"
	case KindRelationship:
		return "relationship"
	default:
		return "unknown"
	}
}

// Select picks the scanner kind for criteria c over desc.
func Select(c *query.Criteria, desc *entity.Descriptor, mode query.PartitionMode) Kind {
	if c.IsLeaf() && strings.Contains(c.Attribute(), ".") {
		return KindRelationship
	}
	if desc.IsPartitioned() && mode != query.PartitionNone {
		return KindPartition
	}
	if indexLeaf(c, desc) != nil {
		return KindIndex
	}
	return KindFullTable
}

// indexLeaf returns the leaf an index scan seeks: c itself, or the first
// indexable child of a top-level AND.
func indexLeaf(c *query.Criteria, desc *entity.Descriptor) *query.Criteria {
	if c == nil {
		return nil
	}
	indexable := func(l *query.Criteria) bool {
		return l.IsLeaf() && l.Operator().Indexable() && desc.IsIndexed(l.Attribute())
	}
	if indexable(c) {
		return c
	}
	if c.Kind() != query.AndNode {
		return nil
	}
	for _, ch := range c.Children() {
		if indexable(ch) {
			return ch
		}
	}
	return nil
}
