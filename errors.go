package refdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/internal/engine"
	"github.com/hupe1980/refdb/internal/scan"
	"github.com/hupe1980/refdb/query"
)

var (
	// ErrNotFound is returned when a reference, identifier or partition has
	// no record.
	ErrNotFound = errors.New("not found")
	// ErrClosed is returned by every operation on a closed database.
	ErrClosed = errors.New("database closed")
	// ErrInvalidValue is returned when a value does not fit its attribute.
	ErrInvalidValue = errors.New("invalid value")
	// ErrMissingIdentifier is returned when a record without identifier is
	// saved for a type that does not generate one.
	ErrMissingIdentifier = errors.New("missing identifier")
	// ErrConstraintViolation is returned when a saved or updated value breaks
	// a NotNull or MaxSize constraint.
	ErrConstraintViolation = errors.New("constraint violation")
)

// InvalidQueryError indicates a malformed query. It is returned before any
// record is read.
//
// The original underlying error can be accessed via errors.Unwrap.
type InvalidQueryError struct {
	EntityType string
	Attribute  string
	cause      error
}

func (e *InvalidQueryError) Error() string {
	if e.Attribute != "" {
		return fmt.Sprintf("invalid query on %s.%s: %v", e.EntityType, e.Attribute, e.cause)
	}
	return fmt.Sprintf("invalid query on %s: %v", e.EntityType, e.cause)
}

func (e *InvalidQueryError) Unwrap() error { return e.cause }

// RelationshipNotFoundError indicates a relationship path or attribute the
// entity type does not declare.
type RelationshipNotFoundError struct {
	EntityType string
	Attribute  string
	cause      error
}

func (e *RelationshipNotFoundError) Error() string {
	return fmt.Sprintf("relationship not found: %s.%s", e.EntityType, e.Attribute)
}

func (e *RelationshipNotFoundError) Unwrap() error { return e.cause }

// EntityTypeNotFoundError indicates an unregistered entity type.
type EntityTypeNotFoundError struct {
	EntityType string
	cause      error
}

func (e *EntityTypeNotFoundError) Error() string {
	return fmt.Sprintf("entity type not found: %s", e.EntityType)
}

func (e *EntityTypeNotFoundError) Unwrap() error { return e.cause }

// AttributeNotFoundError indicates an attribute the entity type does not
// declare.
type AttributeNotFoundError struct {
	EntityType string
	Attribute  string
	cause      error
}

func (e *AttributeNotFoundError) Error() string {
	return fmt.Sprintf("attribute not found: %s.%s", e.EntityType, e.Attribute)
}

func (e *AttributeNotFoundError) Unwrap() error { return e.cause }

// StorageError wraps a failure of the underlying files.
type StorageError struct {
	Op    string
	cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.cause)
}

func (e *StorageError) Unwrap() error { return e.cause }

func translateError(op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, engine.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, engine.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, engine.ErrInvalidValue):
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	case errors.Is(err, engine.ErrMissingIdentifier):
		return fmt.Errorf("%w: %w", ErrMissingIdentifier, err)
	case errors.Is(err, engine.ErrConstraintViolation):
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	}

	var se *scan.Error
	if errors.As(err, &se) {
		switch {
		case errors.Is(se.Err, engine.ErrEntityTypeNotFound):
			return &EntityTypeNotFoundError{EntityType: se.EntityType, cause: err}
		case errors.Is(se.Err, engine.ErrRelationshipNotFound):
			return &RelationshipNotFoundError{EntityType: se.EntityType, Attribute: se.Attribute, cause: err}
		case errors.Is(se.Err, engine.ErrAttributeNotFound):
			return &AttributeNotFoundError{EntityType: se.EntityType, Attribute: se.Attribute, cause: err}
		case errors.Is(se.Err, query.ErrInvalidQuery), errors.Is(se.Err, query.ErrInvalidCriteria):
			return &InvalidQueryError{EntityType: se.EntityType, Attribute: se.Attribute, cause: err}
		}
	}
	if errors.Is(err, query.ErrInvalidQuery) || errors.Is(err, query.ErrInvalidCriteria) {
		return &InvalidQueryError{cause: err}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, entity.ErrInvalidDescriptor) || errors.Is(err, entity.ErrAlreadyRegistered) {
		return err
	}
	return &StorageError{Op: op, cause: err}
}
