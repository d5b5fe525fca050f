// Package querycache tracks the result sets of listened-to queries and
// notifies their listeners when writes change them.
//
// Queries are keyed by query.Fingerprint. A Registry is an explicit value
// owned by one database; there is no process-wide state.
package querycache
