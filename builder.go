package refdb

import (
	"maps"
	"slices"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/record"
)

// Entity creates a new descriptor builder for the entity type name.
//
// The builder is immutable - each method returns a new builder with the updated configuration.
// This ensures thread-safety and prevents accidental state sharing.
//
// Example:
//
//	player, err := refdb.Entity("Player").
//	    String("id").ID("id").
//	    Int("goals").Index("goals").
//	    String("league").PartitionBy("league").
//	    ManyToOne("team", "Team", "players").
//	    Build()
func Entity(name string) EntityBuilder {
	return EntityBuilder{name: name, attributes: map[string]record.Kind{}}
}

// EntityBuilder is an immutable fluent builder for entity descriptors.
type EntityBuilder struct {
	name          string
	attributes    map[string]record.Kind
	constraints   map[string]entity.Constraint
	identifier    entity.Identifier
	relationships []entity.Relationship
	partition     string
	indexes       []string
	loadFactor    uint8
	defaults      func() record.Record
}

func (b EntityBuilder) clone() EntityBuilder {
	b.attributes = maps.Clone(b.attributes)
	b.constraints = maps.Clone(b.constraints)
	b.relationships = slices.Clone(b.relationships)
	b.indexes = slices.Clone(b.indexes)
	return b
}

// Attr declares an attribute of the given kind.
func (b EntityBuilder) Attr(name string, kind record.Kind) EntityBuilder {
	b = b.clone()
	b.attributes[name] = kind
	return b
}

// String declares a string attribute.
func (b EntityBuilder) String(name string) EntityBuilder { return b.Attr(name, record.KindString) }

// Int declares an integer attribute.
func (b EntityBuilder) Int(name string) EntityBuilder { return b.Attr(name, record.KindInt) }

// Float declares a float attribute.
func (b EntityBuilder) Float(name string) EntityBuilder { return b.Attr(name, record.KindFloat) }

// Bool declares a boolean attribute.
func (b EntityBuilder) Bool(name string) EntityBuilder { return b.Attr(name, record.KindBool) }

// Array declares an array attribute.
func (b EntityBuilder) Array(name string) EntityBuilder { return b.Attr(name, record.KindArray) }

// NotNull rejects null values of the given attributes on save.
func (b EntityBuilder) NotNull(attributes ...string) EntityBuilder {
	b = b.clone()
	for _, a := range attributes {
		c := b.constraints[a]
		c.NotNull = true
		b.setConstraint(a, c)
	}
	return b
}

// MaxSize caps the length of a string or array attribute.
func (b EntityBuilder) MaxSize(attribute string, n int) EntityBuilder {
	b = b.clone()
	c := b.constraints[attribute]
	c.MaxSize = n
	b.setConstraint(attribute, c)
	return b
}

func (b *EntityBuilder) setConstraint(attribute string, c entity.Constraint) {
	if b.constraints == nil {
		b.constraints = make(map[string]entity.Constraint)
	}
	b.constraints[attribute] = c
}

// ID names the identifier attribute. Callers supply identifiers.
func (b EntityBuilder) ID(name string) EntityBuilder {
	b.identifier = entity.Identifier{Name: name}
	return b
}

// Sequence declares an integer identifier attribute assigned from a
// per-type sequence when a record is saved without one.
func (b EntityBuilder) Sequence(name string) EntityBuilder {
	b = b.Int(name)
	b.identifier = entity.Identifier{Name: name, Generator: entity.GeneratorSequence}
	return b
}

// PartitionBy partitions the type by the value of attribute.
func (b EntityBuilder) PartitionBy(attribute string) EntityBuilder {
	b.partition = attribute
	return b
}

// Index maintains ordered indexes on the given attributes.
func (b EntityBuilder) Index(attributes ...string) EntityBuilder {
	b = b.clone()
	for _, a := range attributes {
		if !slices.Contains(b.indexes, a) {
			b.indexes = append(b.indexes, a)
		}
	}
	return b
}

// LoadFactor sets log2 of the bucket count of the type's record maps.
// Default: 10.
func (b EntityBuilder) LoadFactor(lf uint8) EntityBuilder {
	b.loadFactor = lf
	return b
}

// Defaults sets the factory of default records, used to resolve partitions.
func (b EntityBuilder) Defaults(fn func() record.Record) EntityBuilder {
	b.defaults = fn
	return b
}

// Relationship declares a relationship attribute referencing inverse
// entities. inverseAttribute names the mirrored attribute on the inverse
// type, or is empty for one-sided relationships.
func (b EntityBuilder) Relationship(attribute, inverse, inverseAttribute string, cardinality entity.Cardinality) EntityBuilder {
	b = b.clone()
	b.relationships = append(b.relationships, entity.Relationship{
		Attribute:        attribute,
		Inverse:          inverse,
		InverseAttribute: inverseAttribute,
		Cardinality:      cardinality,
	})
	return b
}

// OneToOne declares a one-to-one relationship.
func (b EntityBuilder) OneToOne(attribute, inverse, inverseAttribute string) EntityBuilder {
	return b.Relationship(attribute, inverse, inverseAttribute, entity.OneToOne)
}

// OneToMany declares a one-to-many relationship.
func (b EntityBuilder) OneToMany(attribute, inverse, inverseAttribute string) EntityBuilder {
	return b.Relationship(attribute, inverse, inverseAttribute, entity.OneToMany)
}

// ManyToOne declares a many-to-one relationship.
func (b EntityBuilder) ManyToOne(attribute, inverse, inverseAttribute string) EntityBuilder {
	return b.Relationship(attribute, inverse, inverseAttribute, entity.ManyToOne)
}

// ManyToMany declares a many-to-many relationship.
func (b EntityBuilder) ManyToMany(attribute, inverse, inverseAttribute string) EntityBuilder {
	return b.Relationship(attribute, inverse, inverseAttribute, entity.ManyToMany)
}

// Build validates and returns the descriptor.
func (b EntityBuilder) Build() (*entity.Descriptor, error) {
	b = b.clone()
	d := &entity.Descriptor{
		Name:            b.name,
		Attributes:      b.attributes,
		Constraints:     b.constraints,
		Identifier:      b.identifier,
		Relationships:   b.relationships,
		Partition:       b.partition,
		Indexes:         b.indexes,
		LoadFactor:      b.loadFactor,
		DefaultInstance: b.defaults,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// MustBuild is like Build but panics on an invalid descriptor.
func (b EntityBuilder) MustBuild() *entity.Descriptor {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}
