// Package record defines the typed field values stored for every entity.
//
// A [Record] is a map from attribute name to [Value]. Values carry their kind
// explicitly, so filtering and ordering need no reflection. Strings are
// interned with the unique package, which keeps repetitive attribute values
// (status codes, partition keys) cheap to hold and compare.
package record
