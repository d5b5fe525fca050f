package engine

import (
	"errors"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/internal/scan"
	"github.com/hupe1980/refdb/query"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("engine: closed")

	// ErrNotFound is returned when a reference or identifier has no record.
	//
	// This is an engine-layer sentinel; the refdb package translates it into
	// its public error contract.
	ErrNotFound = errors.New("engine: not found")

	// ErrAttributeNotFound is returned for attributes the descriptor does
	// not declare.
	ErrAttributeNotFound = errors.New("engine: attribute not found")

	// ErrInvalidValue is returned when a value does not fit the declared
	// attribute kind.
	ErrInvalidValue = errors.New("engine: invalid value")

	// ErrMissingIdentifier is returned when a record without identifier is
	// saved for a type that does not generate one.
	ErrMissingIdentifier = errors.New("engine: missing identifier")

	// ErrConstraintViolation is returned when a value breaks an attribute
	// constraint of the descriptor.
	ErrConstraintViolation = entity.ErrConstraintViolation

	// ErrEntityTypeNotFound and ErrRelationshipNotFound are shared with the
	// scanners so callers match one sentinel.
	ErrEntityTypeNotFound   = scan.ErrEntityTypeNotFound
	ErrRelationshipNotFound = scan.ErrRelationshipNotFound

	// ErrInvalidQuery is returned for malformed queries and updates.
	ErrInvalidQuery = query.ErrInvalidQuery
)

func typeError(entityType, attribute string, err error) error {
	return &scan.Error{EntityType: entityType, Attribute: attribute, Err: err}
}
