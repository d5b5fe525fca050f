package entity

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/refdb/record"
)

var (
	// ErrInvalidDescriptor is returned by Validate.
	ErrInvalidDescriptor = errors.New("entity: invalid descriptor")
	// ErrAlreadyRegistered is returned when a type name is registered twice.
	ErrAlreadyRegistered = errors.New("entity: type already registered")
	// ErrConstraintViolation is returned by Check for values a Constraint
	// rejects.
	ErrConstraintViolation = errors.New("entity: constraint violation")
)

// Generator selects how identifiers are assigned.
type Generator uint8

const (
	// GeneratorNone requires callers to supply the identifier.
	GeneratorNone Generator = iota
	// GeneratorSequence assigns increasing integers to records saved without one.
	GeneratorSequence
)

// Cardinality of a relationship.
type Cardinality uint8

const (
	OneToOne Cardinality = iota
	OneToMany
	ManyToOne
	ManyToMany
)

var cardinalityNames = [...]string{"ONE_TO_ONE", "ONE_TO_MANY", "MANY_TO_ONE", "MANY_TO_MANY"}

func (c Cardinality) String() string {
	if int(c) < len(cardinalityNames) {
		return cardinalityNames[c]
	}
	return fmt.Sprintf("Cardinality(%d)", c)
}

// ToMany reports whether the owning side may reference several entities.
func (c Cardinality) ToMany() bool {
	return c == OneToMany || c == ManyToMany
}

// Identifier names the identifier attribute and its generator.
type Identifier struct {
	Name      string
	Generator Generator
}

// Relationship describes one relationship attribute. The attribute value of a
// saved record lists the identifiers of the related Inverse entities.
type Relationship struct {
	Attribute        string
	Inverse          string
	InverseAttribute string
	Cardinality      Cardinality
}

// Constraint restricts the values of one attribute.
type Constraint struct {
	// NotNull rejects null and missing values.
	NotNull bool
	// MaxSize caps the rune count of strings and the length of arrays.
	// 0 means unlimited.
	MaxSize int
}

// Descriptor describes one entity type.
type Descriptor struct {
	Name          string
	Attributes    map[string]record.Kind
	Constraints   map[string]Constraint
	Identifier    Identifier
	Relationships []Relationship
	// Partition names the attribute whose value selects the partition.
	// Empty for unpartitioned types.
	Partition string
	// Indexes lists attributes with a maintained ordered index.
	Indexes []string
	// LoadFactor is log2 of the bucket count of the type's record maps.
	// 0 selects the default.
	LoadFactor uint8
	// DefaultInstance returns a record with default attribute values.
	// Used to resolve the partition of a query value. Optional.
	DefaultInstance func() record.Record
}

// Validate checks the descriptor for internal consistency.
func (d *Descriptor) Validate() error {
	if d.Name == "" || strings.ContainsAny(d.Name, ".#/") {
		return fmt.Errorf("%w: type name %q", ErrInvalidDescriptor, d.Name)
	}
	if d.Identifier.Name == "" {
		return fmt.Errorf("%w: %s has no identifier", ErrInvalidDescriptor, d.Name)
	}
	if !d.HasAttribute(d.Identifier.Name) {
		return fmt.Errorf("%w: %s identifier %q is not an attribute", ErrInvalidDescriptor, d.Name, d.Identifier.Name)
	}
	if d.Identifier.Generator == GeneratorSequence && d.Attributes[d.Identifier.Name] != record.KindInt {
		return fmt.Errorf("%w: %s sequence identifier %q must be an int", ErrInvalidDescriptor, d.Name, d.Identifier.Name)
	}
	if d.Partition != "" && !d.HasAttribute(d.Partition) {
		return fmt.Errorf("%w: %s partition %q is not an attribute", ErrInvalidDescriptor, d.Name, d.Partition)
	}
	for _, idx := range d.Indexes {
		if !d.HasAttribute(idx) {
			return fmt.Errorf("%w: %s index %q is not an attribute", ErrInvalidDescriptor, d.Name, idx)
		}
	}
	for name, c := range d.Constraints {
		kind, ok := d.Attributes[name]
		if !ok {
			return fmt.Errorf("%w: %s constraint on unknown attribute %q", ErrInvalidDescriptor, d.Name, name)
		}
		if c.MaxSize < 0 || (c.MaxSize > 0 && kind != record.KindString && kind != record.KindArray) {
			return fmt.Errorf("%w: %s max size of %s attribute %q", ErrInvalidDescriptor, d.Name, kind, name)
		}
	}
	seen := make(map[string]bool, len(d.Relationships))
	for _, rel := range d.Relationships {
		if rel.Attribute == "" || rel.Inverse == "" || strings.Contains(rel.Attribute, ".") {
			return fmt.Errorf("%w: %s relationship %+v", ErrInvalidDescriptor, d.Name, rel)
		}
		if d.HasAttribute(rel.Attribute) || seen[rel.Attribute] {
			return fmt.Errorf("%w: %s relationship %q collides with another attribute", ErrInvalidDescriptor, d.Name, rel.Attribute)
		}
		seen[rel.Attribute] = true
	}
	return nil
}

// Check returns ErrConstraintViolation when v breaks the constraint of
// attribute.
func (d *Descriptor) Check(attribute string, v record.Value) error {
	c, ok := d.Constraints[attribute]
	if !ok {
		return nil
	}
	if v.IsNull() {
		if c.NotNull {
			return fmt.Errorf("%w: %s must not be null", ErrConstraintViolation, attribute)
		}
		return nil
	}
	if c.MaxSize == 0 {
		return nil
	}
	size := len(v.A)
	if s, ok := v.AsString(); ok {
		size = utf8.RuneCountInString(s)
	}
	if size > c.MaxSize {
		return fmt.Errorf("%w: %s has size %d, max %d", ErrConstraintViolation, attribute, size, c.MaxSize)
	}
	return nil
}

// HasAttribute reports whether name is a plain attribute.
func (d *Descriptor) HasAttribute(name string) bool {
	_, ok := d.Attributes[name]
	return ok
}

// Relationship returns the relationship stored under attribute.
func (d *Descriptor) Relationship(attribute string) (Relationship, bool) {
	for _, rel := range d.Relationships {
		if rel.Attribute == attribute {
			return rel, true
		}
	}
	return Relationship{}, false
}

// IsIndexed reports whether attribute has an index.
func (d *Descriptor) IsIndexed(attribute string) bool {
	return slices.Contains(d.Indexes, attribute)
}

// IsPartitioned reports whether the type is partitioned.
func (d *Descriptor) IsPartitioned() bool {
	return d.Partition != ""
}

// NewInstance returns DefaultInstance() or, without a factory, a record with
// every attribute set to null.
func (d *Descriptor) NewInstance() record.Record {
	if d.DefaultInstance != nil {
		if r := d.DefaultInstance(); r != nil {
			return r
		}
	}
	r := make(record.Record, len(d.Attributes))
	for name := range d.Attributes {
		r[name] = record.Null()
	}
	return r
}
