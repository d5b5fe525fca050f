// Package query defines the query model: criteria trees, ordering, partition
// selection and change listeners.
//
// A Criteria is an immutable boolean expression over record attributes.
// Leaves compare one attribute against a literal with an Operator; inner
// nodes combine children with And, Or and Not. Attribute names containing a
// dot denote relationship traversal ("team.division.name") and are resolved
// by the scanners, never by Matches.
//
//	c := query.And(
//		query.Eq("status", record.String("active")),
//		query.Gt("age", record.Int(21)),
//	)
//	ok := query.Matches(c, rec)
package query
