// Package records stores the records of one entity type and partition in a
// disk hash map keyed by identifier.
package records
