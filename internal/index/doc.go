// Package index maintains ordered attribute indexes.
//
// An index is a skip list whose keys are an order-preserving encoding of the
// attribute value followed by the big-endian record id. Lookups return
// roaring64 bitmaps of record ids. Numbers are encoded through float64, so
// distinct large integers may share a key; callers re-check candidates
// against the full criteria.
package index
