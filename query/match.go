package query

import (
	"strings"

	"github.com/hupe1980/refdb/record"
)

// Matches evaluates c against rec. Missing attributes read as null. Leaves
// with relationship paths never match here; scanners resolve them.
func Matches(c *Criteria, rec record.Record) bool {
	if c == nil {
		return true
	}
	switch c.kind {
	case Leaf:
		if strings.Contains(c.attribute, ".") {
			return false
		}
		return Evaluate(c, rec.Get(c.attribute))
	case AndNode:
		for _, ch := range c.children {
			if !Matches(ch, rec) {
				return false
			}
		}
		return true
	case OrNode:
		for _, ch := range c.children {
			if Matches(ch, rec) {
				return true
			}
		}
		return false
	case NotNode:
		return len(c.children) == 1 && !Matches(c.children[0], rec)
	default:
		return false
	}
}

// Evaluate applies the operator of leaf c to field.
func Evaluate(c *Criteria, field record.Value) bool {
	v := c.value
	switch c.op {
	case OpEqual:
		return record.Equal(field, v)
	case OpNotEqual:
		return !record.Equal(field, v)
	case OpGreaterThan:
		return record.Comparable(field, v) && record.Compare(field, v) > 0
	case OpGreaterEqual:
		return record.Comparable(field, v) && record.Compare(field, v) >= 0
	case OpLessThan:
		return record.Comparable(field, v) && record.Compare(field, v) < 0
	case OpLessEqual:
		return record.Comparable(field, v) && record.Compare(field, v) <= 0
	case OpStartsWith:
		return startsWith(field, v)
	case OpNotStartsWith:
		return !startsWith(field, v)
	case OpContains:
		return contains(field, v)
	case OpNotContains:
		return !contains(field, v)
	case OpLike, OpMatches:
		return matchPattern(c, field)
	case OpNotLike, OpNotMatches:
		return !matchPattern(c, field)
	case OpIn:
		return in(field, v)
	case OpNotIn:
		return !in(field, v)
	case OpIsNull:
		return field.IsNull()
	case OpNotNull:
		return !field.IsNull()
	default:
		return false
	}
}

func startsWith(field, prefix record.Value) bool {
	s, ok := field.AsString()
	if !ok {
		return false
	}
	p, ok := prefix.AsString()
	return ok && strings.HasPrefix(s, p)
}

func contains(field, v record.Value) bool {
	switch field.Kind {
	case record.KindString:
		sub, ok := v.AsString()
		return ok && strings.Contains(field.StringValue(), sub)
	case record.KindArray:
		for _, e := range field.A {
			if record.Equal(e, v) {
				return true
			}
		}
	}
	return false
}

func matchPattern(c *Criteria, field record.Value) bool {
	s, ok := field.AsString()
	if !ok || c.pattern == nil {
		return false
	}
	return c.pattern.MatchString(s)
}

func in(field, list record.Value) bool {
	for _, e := range list.A {
		if record.Equal(field, e) {
			return true
		}
	}
	return false
}
