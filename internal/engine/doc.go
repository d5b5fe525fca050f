// Package engine ties the storage layers together: one volume file per
// partition, record tables, indexes, relationship lists, the partition
// catalog, the query planner and the query cache.
//
// The root refdb package wraps Engine and translates its errors.
package engine
