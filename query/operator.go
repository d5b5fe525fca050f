package query

// Operator represents a comparison operator of a criteria leaf.
type Operator string

const (
	// OpEqual represents the equality operator.
	OpEqual Operator = "eq"
	// OpNotEqual represents the inequality operator.
	OpNotEqual Operator = "ne"
	// OpGreaterThan represents the greater than operator.
	OpGreaterThan Operator = "gt"
	// OpGreaterEqual represents the greater than or equal operator.
	OpGreaterEqual Operator = "gte"
	// OpLessThan represents the less than operator.
	OpLessThan Operator = "lt"
	// OpLessEqual represents the less than or equal operator.
	OpLessEqual Operator = "lte"
	// OpStartsWith matches strings with the given prefix.
	OpStartsWith Operator = "starts_with"
	// OpNotStartsWith negates OpStartsWith.
	OpNotStartsWith Operator = "not_starts_with"
	// OpContains matches substrings, or array elements of array attributes.
	OpContains Operator = "contains"
	// OpNotContains negates OpContains.
	OpNotContains Operator = "not_contains"
	// OpLike matches a case-insensitive pattern with % and _ wildcards.
	OpLike Operator = "like"
	// OpNotLike negates OpLike.
	OpNotLike Operator = "not_like"
	// OpMatches matches a regular expression.
	OpMatches Operator = "matches"
	// OpNotMatches negates OpMatches.
	OpNotMatches Operator = "not_matches"
	// OpIn represents the in list operator.
	OpIn Operator = "in"
	// OpNotIn negates OpIn.
	OpNotIn Operator = "not_in"
	// OpIsNull matches null or missing attributes.
	OpIsNull Operator = "is_null"
	// OpNotNull negates OpIsNull.
	OpNotNull Operator = "not_null"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual,
		OpStartsWith, OpNotStartsWith, OpContains, OpNotContains,
		OpLike, OpNotLike, OpMatches, OpNotMatches,
		OpIn, OpNotIn, OpIsNull, OpNotNull:
		return true
	default:
		return false
	}
}

// Indexable reports whether an ordered index can answer op.
func (op Operator) Indexable() bool {
	switch op {
	case OpEqual, OpIn, OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual:
		return true
	default:
		return false
	}
}

// Negated reports whether op is the negation of another operator.
func (op Operator) Negated() bool {
	switch op {
	case OpNotEqual, OpNotStartsWith, OpNotContains, OpNotLike, OpNotMatches, OpNotIn, OpNotNull:
		return true
	default:
		return false
	}
}
