package query

import (
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/record"
)

// ChangeListener receives result-set changes of a cached query. Exactly one
// callback fires per write that affects the result set.
//
// Registering the same comparable listener twice is a no-op; listeners
// that are not comparable are added on every registration. Callbacks run synchronously on the writing goroutine and must
// not call back into the database.
type ChangeListener interface {
	OnItemAdded(ref model.Reference, rec record.Record)
	OnItemUpdated(ref model.Reference, rec record.Record)
	OnItemRemoved(ref model.Reference, rec record.Record)
}

// ListenerFuncs adapts plain functions to ChangeListener. Use a pointer so
// the listener is comparable. Nil fields are skipped.
type ListenerFuncs struct {
	Added   func(model.Reference, record.Record)
	Updated func(model.Reference, record.Record)
	Removed func(model.Reference, record.Record)
}

var _ ChangeListener = (*ListenerFuncs)(nil)

// OnItemAdded implements ChangeListener.
func (l *ListenerFuncs) OnItemAdded(ref model.Reference, rec record.Record) {
	if l.Added != nil {
		l.Added(ref, rec)
	}
}

// OnItemUpdated implements ChangeListener.
func (l *ListenerFuncs) OnItemUpdated(ref model.Reference, rec record.Record) {
	if l.Updated != nil {
		l.Updated(ref, rec)
	}
}

// OnItemRemoved implements ChangeListener.
func (l *ListenerFuncs) OnItemRemoved(ref model.Reference, rec record.Record) {
	if l.Removed != nil {
		l.Removed(ref, rec)
	}
}
