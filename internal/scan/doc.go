// Package scan evaluates queries into reference sets.
//
// Select picks one of four scanner kinds from the criteria, the entity
// descriptor and the partition mode. Every scanner implements Scanner:
// Scan starts from the whole table, ScanExisting narrows a candidate set.
// The Planner validates a query before any storage access, runs the
// selected scanner and evaluates criteria trees that mix plain and
// relationship leaves set-wise.
//
// Scanners poll Query.Terminated on every candidate and return the partial
// result gathered so far once it is set.
package scan
