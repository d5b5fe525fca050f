// Package entity describes stored entity types.
//
// A [Descriptor] lists attribute kinds, the identifier attribute and how it is
// generated, relationships to other types, the optional partition attribute
// and the indexed attributes. Descriptors are registered in a [Registry],
// which is owned by one database instance; there is no package-level state.
package entity
