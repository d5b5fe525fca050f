// Package catalog keeps the partition catalog and identifier sequences of a
// database. Both live in the default volume.
//
// A partition entry maps (entity type, partition value) to a partition id
// and the volume file holding the partition. Ids start at 1; partition 0 is
// the default partition of every type.
package catalog
