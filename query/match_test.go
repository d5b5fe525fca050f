package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refdb/record"
)

func TestMatches(t *testing.T) {
	rec := record.Record{
		"name":  record.String("Alice Smith"),
		"age":   record.Int(34),
		"score": record.Float(7.5),
		"tags":  record.Strings("admin", "ops"),
		"nick":  record.Null(),
	}

	tests := []struct {
		name     string
		criteria *Criteria
		expected bool
	}{
		{"Equal_String", Eq("name", record.String("Alice Smith")), true},
		{"Equal_IntFloat", Eq("age", record.Float(34)), true},
		{"NotEqual", Ne("age", record.Int(35)), true},
		{"GreaterThan", Gt("age", record.Int(30)), true},
		{"GreaterThan_Incomparable", Gt("age", record.String("30")), false},
		{"GreaterEqual_Boundary", Gte("score", record.Float(7.5)), true},
		{"LessThan", Lt("score", record.Int(7)), false},
		{"LessEqual", Lte("age", record.Int(34)), true},
		{"StartsWith", StartsWith("name", "Ali"), true},
		{"NotStartsWith", Where("name", OpNotStartsWith, record.String("Bob")), true},
		{"Contains_Substring", Contains("name", record.String("ce S")), true},
		{"Contains_ArrayElement", Contains("tags", record.String("ops")), true},
		{"NotContains_ArrayElement", Where("tags", OpNotContains, record.String("dev")), true},
		{"Like_Percent", Like("name", "alice%"), true},
		{"Like_Underscore", Like("name", "Alic_ Smith"), true},
		{"Like_Anchored", Like("name", "Smith"), false},
		{"Like_Metachar", Like("name", "Alice.Smith"), false},
		{"NotLike", Where("name", OpNotLike, record.String("%bob%")), true},
		{"Matches", Where("name", OpMatches, record.String(`^A\w+ S`)), true},
		{"NotMatches", Where("name", OpNotMatches, record.String(`^B`)), true},
		{"In", In("age", record.Int(1), record.Int(34)), true},
		{"NotIn", Where("age", OpNotIn, record.Array(record.Int(1))), true},
		{"IsNull_Explicit", IsNull("nick"), true},
		{"IsNull_Missing", IsNull("missing"), true},
		{"NotNull", NotNull("name"), true},
		{"Missing_Equal", Eq("missing", record.Int(1)), false},
		{"And", And(Gt("age", record.Int(30)), StartsWith("name", "A")), true},
		{"And_OneFails", And(Gt("age", record.Int(30)), StartsWith("name", "B")), false},
		{"Or", Or(Eq("age", record.Int(1)), Eq("age", record.Int(34))), true},
		{"Not", Not(Eq("age", record.Int(34))), false},
		{"Nil", nil, true},
		{"RelationshipPath", Eq("team.name", record.String("x")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.criteria.Validate())
			assert.Equal(t, tt.expected, Matches(tt.criteria, rec))
		})
	}
}

func TestCriteriaImmutable(t *testing.T) {
	leaf := Eq("team.name", record.String("x"))
	c := And(leaf, Gt("age", record.Int(1)))

	children := c.Children()
	children[0] = nil
	assert.Same(t, leaf, c.Children()[0])
	assert.True(t, c.HasRelationshipPath())
	assert.False(t, Gt("age", record.Int(1)).HasRelationshipPath())
	assert.Equal(t, "team.name", leaf.Attribute())
}

func TestCombineDropsNil(t *testing.T) {
	leaf := Eq("a", record.Int(1))
	assert.Same(t, leaf, And(nil, leaf))
	assert.Nil(t, Or())
	assert.Equal(t, AndNode, And(leaf, leaf).Kind())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		criteria *Criteria
	}{
		{"UnknownOperator", Where("a", Operator("near"), record.Int(1))},
		{"EmptyAttribute", Eq("", record.Int(1))},
		{"InNeedsList", Where("a", OpIn, record.Int(1))},
		{"BadRegexp", Where("a", OpMatches, record.String("("))},
		{"LikeNeedsString", Where("a", OpLike, record.Int(1))},
		{"NotWithoutChild", Not(nil)},
		{"MalformedPath", Eq("team.", record.Int(1))},
		{"NestedInvalid", And(Eq("a", record.Int(1)), Where("b", OpIn, record.Int(2)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.criteria.Validate(), ErrInvalidCriteria)
		})
	}
}

func TestPath(t *testing.T) {
	head, rest, ok := Path("team.division.name")
	assert.True(t, ok)
	assert.Equal(t, "team", head)
	assert.Equal(t, "division.name", rest)

	_, _, ok = Path("name")
	assert.False(t, ok)
}

func TestAttributes(t *testing.T) {
	c := Or(Eq("a", record.Int(1)), And(Eq("b", record.Int(1)), Not(Eq("a", record.Int(2)))))
	assert.Equal(t, []string{"a", "b"}, c.Attributes())
}
