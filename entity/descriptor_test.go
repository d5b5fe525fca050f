package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refdb/record"
)

func team() *Descriptor {
	return &Descriptor{
		Name:       "Team",
		Attributes: map[string]record.Kind{"name": record.KindString, "division": record.KindString},
		Identifier: Identifier{Name: "name"},
		Relationships: []Relationship{
			{Attribute: "players", Inverse: "Player", InverseAttribute: "team", Cardinality: OneToMany},
		},
		Indexes: []string{"division"},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, team().Validate())

	tests := []struct {
		name   string
		mutate func(d *Descriptor)
	}{
		{"empty name", func(d *Descriptor) { d.Name = "" }},
		{"dotted name", func(d *Descriptor) { d.Name = "a.b" }},
		{"no identifier", func(d *Descriptor) { d.Identifier.Name = "" }},
		{"unknown identifier", func(d *Descriptor) { d.Identifier.Name = "id" }},
		{"sequence on string", func(d *Descriptor) { d.Identifier.Generator = GeneratorSequence }},
		{"unknown partition", func(d *Descriptor) { d.Partition = "region" }},
		{"unknown index", func(d *Descriptor) { d.Indexes = []string{"x"} }},
		{"relationship shadows attribute", func(d *Descriptor) { d.Relationships[0].Attribute = "division" }},
		{"relationship without inverse", func(d *Descriptor) { d.Relationships[0].Inverse = "" }},
		{"constraint on unknown attribute", func(d *Descriptor) { d.Constraints = map[string]Constraint{"city": {NotNull: true}} }},
		{"negative max size", func(d *Descriptor) { d.Constraints = map[string]Constraint{"name": {MaxSize: -1}} }},
		{"max size on int", func(d *Descriptor) {
			d.Attributes["rank"] = record.KindInt
			d.Constraints = map[string]Constraint{"rank": {MaxSize: 3}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := team()
			tt.mutate(d)
			assert.ErrorIs(t, d.Validate(), ErrInvalidDescriptor)
		})
	}
}

func TestDescriptorHelpers(t *testing.T) {
	d := team()

	rel, ok := d.Relationship("players")
	require.True(t, ok)
	assert.True(t, rel.Cardinality.ToMany())
	assert.Equal(t, "ONE_TO_MANY", rel.Cardinality.String())

	_, ok = d.Relationship("name")
	assert.False(t, ok)
	assert.True(t, d.IsIndexed("division"))
	assert.False(t, d.IsIndexed("name"))
	assert.False(t, d.IsPartitioned())

	inst := d.NewInstance()
	assert.True(t, inst["name"].IsNull())
	assert.Len(t, inst, 2)

	d.DefaultInstance = func() record.Record { return record.Record{"division": record.String("east")} }
	assert.Equal(t, "east", d.NewInstance()["division"].StringValue())
}

func TestCheck(t *testing.T) {
	d := team()
	d.Attributes["tags"] = record.KindArray
	d.Constraints = map[string]Constraint{
		"name": {NotNull: true, MaxSize: 4},
		"tags": {MaxSize: 2},
	}
	require.NoError(t, d.Validate())

	tests := []struct {
		attr string
		v    record.Value
		ok   bool
	}{
		{"name", record.String("Fürth"), false},
		{"name", record.String("Köln"), true},
		{"name", record.Null(), false},
		{"tags", record.Null(), true},
		{"tags", record.Strings("a", "b"), true},
		{"tags", record.Strings("a", "b", "c"), false},
		{"division", record.Null(), true},
	}
	for _, tt := range tests {
		err := d.Check(tt.attr, tt.v)
		if tt.ok {
			assert.NoError(t, err, "%s=%s", tt.attr, tt.v)
		} else {
			assert.ErrorIs(t, err, ErrConstraintViolation, "%s=%s", tt.attr, tt.v)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(team()))
	assert.ErrorIs(t, r.Register(team()), ErrAlreadyRegistered)
	assert.ErrorIs(t, r.Register(nil), ErrInvalidDescriptor)

	d, ok := r.Lookup("Team")
	require.True(t, ok)
	assert.Equal(t, "Team", d.Name)

	_, ok = r.Lookup("Player")
	assert.False(t, ok)
	assert.Equal(t, []string{"Team"}, r.Names())
}
