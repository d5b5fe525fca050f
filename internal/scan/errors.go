package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrRelationshipNotFound is returned for paths through unknown relationships.
	ErrRelationshipNotFound = errors.New("scan: relationship not found")
	// ErrEntityTypeNotFound is returned for unregistered entity types.
	ErrEntityTypeNotFound = errors.New("scan: entity type not found")
)

// Error carries the entity type and attribute a scan failed on.
type Error struct {
	EntityType string
	Attribute  string
	Err        error
}

func (e *Error) Error() string {
	if e.Attribute == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.EntityType)
	}
	return fmt.Sprintf("%v: %s.%s", e.Err, e.EntityType, e.Attribute)
}

func (e *Error) Unwrap() error { return e.Err }
