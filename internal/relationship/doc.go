// Package relationship persists relationship lists. Each relationship
// attribute of an entity type has one disk hash map from the parent
// reference to the identifiers of the related entities.
package relationship
