package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/refdb/record"
)

// ErrInvalidCriteria is returned by Validate for malformed criteria.
var ErrInvalidCriteria = errors.New("query: invalid criteria")

// Combinator identifies the kind of a criteria node.
type Combinator uint8

const (
	// Leaf compares one attribute against a literal.
	Leaf Combinator = iota
	// AndNode matches when every child matches.
	AndNode
	// OrNode matches when any child matches.
	OrNode
	// NotNode matches when its single child does not.
	NotNode
)

func (c Combinator) String() string {
	switch c {
	case Leaf:
		return "leaf"
	case AndNode:
		return "and"
	case OrNode:
		return "or"
	case NotNode:
		return "not"
	default:
		return "unknown"
	}
}

// Criteria is an immutable boolean expression tree. A nil *Criteria matches
// every record.
type Criteria struct {
	kind      Combinator
	attribute string
	op        Operator
	value     record.Value
	children  []*Criteria

	// pattern holds the compiled expression of LIKE and MATCHES leaves.
	pattern *regexp.Regexp
	err     error
}

// Where returns a leaf comparing attribute against value with op.
func Where(attribute string, op Operator, value record.Value) *Criteria {
	c := &Criteria{kind: Leaf, attribute: attribute, op: op, value: value}
	switch op {
	case OpLike, OpNotLike:
		c.pattern, c.err = compileLike(value)
	case OpMatches, OpNotMatches:
		s, ok := value.AsString()
		if !ok {
			c.err = fmt.Errorf("%w: %s expects a string, got %s", ErrInvalidCriteria, op, value)
			break
		}
		c.pattern, c.err = regexp.Compile(s)
	}
	return c
}

// Eq returns attribute == value.
func Eq(attribute string, value record.Value) *Criteria {
	return Where(attribute, OpEqual, value)
}

// Ne returns attribute != value.
func Ne(attribute string, value record.Value) *Criteria {
	return Where(attribute, OpNotEqual, value)
}

// Gt returns attribute > value.
func Gt(attribute string, value record.Value) *Criteria {
	return Where(attribute, OpGreaterThan, value)
}

// Gte returns attribute >= value.
func Gte(attribute string, value record.Value) *Criteria {
	return Where(attribute, OpGreaterEqual, value)
}

// Lt returns attribute < value.
func Lt(attribute string, value record.Value) *Criteria {
	return Where(attribute, OpLessThan, value)
}

// Lte returns attribute <= value.
func Lte(attribute string, value record.Value) *Criteria {
	return Where(attribute, OpLessEqual, value)
}

// In returns attribute IN values.
func In(attribute string, values ...record.Value) *Criteria {
	return Where(attribute, OpIn, record.Array(values...))
}

// StartsWith returns attribute STARTS_WITH prefix.
func StartsWith(attribute, prefix string) *Criteria {
	return Where(attribute, OpStartsWith, record.String(prefix))
}

// Contains returns attribute CONTAINS value.
func Contains(attribute string, value record.Value) *Criteria {
	return Where(attribute, OpContains, value)
}

// Like returns attribute LIKE pattern.
func Like(attribute, pattern string) *Criteria {
	return Where(attribute, OpLike, record.String(pattern))
}

// IsNull returns attribute IS NULL.
func IsNull(attribute string) *Criteria {
	return Where(attribute, OpIsNull, record.Null())
}

// NotNull returns attribute IS NOT NULL.
func NotNull(attribute string) *Criteria {
	return Where(attribute, OpNotNull, record.Null())
}

// And combines children with logical AND. Nil children are dropped; a
// single remaining child is returned as is.
func And(children ...*Criteria) *Criteria {
	return combine(AndNode, children)
}

// Or combines children with logical OR. Nil children are dropped; a single
// remaining child is returned as is.
func Or(children ...*Criteria) *Criteria {
	return combine(OrNode, children)
}

// Not negates child.
func Not(child *Criteria) *Criteria {
	if child == nil {
		return &Criteria{kind: NotNode, err: fmt.Errorf("%w: NOT without child", ErrInvalidCriteria)}
	}
	return &Criteria{kind: NotNode, children: []*Criteria{child}}
}

func combine(kind Combinator, children []*Criteria) *Criteria {
	kept := make([]*Criteria, 0, len(children))
	for _, c := range children {
		if c != nil {
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Criteria{kind: kind, children: kept}
}

// Kind returns the node kind.
func (c *Criteria) Kind() Combinator { return c.kind }

// IsLeaf reports whether c is a leaf.
func (c *Criteria) IsLeaf() bool { return c != nil && c.kind == Leaf }

// Attribute returns the attribute of a leaf.
func (c *Criteria) Attribute() string { return c.attribute }

// Operator returns the operator of a leaf.
func (c *Criteria) Operator() Operator { return c.op }

// Value returns the literal of a leaf.
func (c *Criteria) Value() record.Value { return c.value }

// WithAttribute returns a copy of leaf c comparing attribute instead. It
// returns c unchanged for combinators.
func (c *Criteria) WithAttribute(attribute string) *Criteria {
	if !c.IsLeaf() {
		return c
	}
	cp := *c
	cp.attribute = attribute
	return &cp
}

// Children returns a copy of the child list.
func (c *Criteria) Children() []*Criteria {
	out := make([]*Criteria, len(c.children))
	copy(out, c.children)
	return out
}

// HasRelationshipPath reports whether any leaf of c uses a dotted attribute.
func (c *Criteria) HasRelationshipPath() bool {
	if c == nil {
		return false
	}
	if c.kind == Leaf {
		return strings.Contains(c.attribute, ".")
	}
	for _, ch := range c.children {
		if ch.HasRelationshipPath() {
			return true
		}
	}
	return false
}

// Attributes returns the distinct leaf attributes of c in tree order.
func (c *Criteria) Attributes() []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(*Criteria)
	walk = func(n *Criteria) {
		if n == nil {
			return
		}
		if n.kind == Leaf {
			if !seen[n.attribute] {
				seen[n.attribute] = true
				out = append(out, n.attribute)
			}
			return
		}
		for _, ch := range n.children {
			walk(ch)
		}
	}
	walk(c)
	return out
}

// Validate checks operators, operand shapes and patterns of the whole tree.
func (c *Criteria) Validate() error {
	if c == nil {
		return nil
	}
	if c.err != nil {
		return c.err
	}
	switch c.kind {
	case Leaf:
		if c.attribute == "" {
			return fmt.Errorf("%w: empty attribute", ErrInvalidCriteria)
		}
		if !c.op.Valid() {
			return fmt.Errorf("%w: unknown operator %q on %s", ErrInvalidCriteria, c.op, c.attribute)
		}
		if head, rest, ok := Path(c.attribute); ok && (head == "" || rest == "") {
			return fmt.Errorf("%w: malformed path %q", ErrInvalidCriteria, c.attribute)
		}
		switch c.op {
		case OpIn, OpNotIn:
			if c.value.Kind != record.KindArray {
				return fmt.Errorf("%w: %s on %s expects a list, got %s", ErrInvalidCriteria, c.op, c.attribute, c.value)
			}
		case OpStartsWith, OpNotStartsWith:
			if c.value.Kind != record.KindString {
				return fmt.Errorf("%w: %s on %s expects a string, got %s", ErrInvalidCriteria, c.op, c.attribute, c.value)
			}
		}
		return nil
	case NotNode:
		if len(c.children) != 1 {
			return fmt.Errorf("%w: NOT needs exactly one child", ErrInvalidCriteria)
		}
	case AndNode, OrNode:
		if len(c.children) == 0 {
			return fmt.Errorf("%w: empty %s", ErrInvalidCriteria, c.kind)
		}
	default:
		return fmt.Errorf("%w: unknown node kind %d", ErrInvalidCriteria, c.kind)
	}
	for _, ch := range c.children {
		if err := ch.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// String renders c canonically. Equal trees render identically.
func (c *Criteria) String() string {
	if c == nil {
		return "*"
	}
	var sb strings.Builder
	c.write(&sb)
	return sb.String()
}

func (c *Criteria) write(sb *strings.Builder) {
	if c.kind == Leaf {
		sb.WriteString(c.attribute)
		sb.WriteByte(' ')
		sb.WriteString(string(c.op))
		sb.WriteByte(' ')
		sb.WriteString(c.value.String())
		return
	}
	sb.WriteString(c.kind.String())
	sb.WriteByte('(')
	for i, ch := range c.children {
		if i > 0 {
			sb.WriteString(", ")
		}
		ch.write(sb)
	}
	sb.WriteByte(')')
}

// Path splits a dotted attribute at its first dot. ok is false for plain
// attributes.
func Path(attribute string) (head, rest string, ok bool) {
	return strings.Cut(attribute, ".")
}

func compileLike(v record.Value) (*regexp.Regexp, error) {
	s, ok := v.AsString()
	if !ok {
		return nil, fmt.Errorf("%w: like expects a string, got %s", ErrInvalidCriteria, v)
	}
	var sb strings.Builder
	sb.WriteString("(?is)^")
	for _, r := range s {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteByte('.')
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteByte('$')
	return regexp.Compile(sb.String())
}
