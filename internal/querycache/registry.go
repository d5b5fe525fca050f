package querycache

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
	"github.com/hupe1980/refdb/record"
)

// ChangeKind describes a write.
type ChangeKind uint8

const (
	// Insert is a new record.
	Insert ChangeKind = iota
	// Update replaces an existing record.
	Update
	// Delete removes a record.
	Delete
)

func (k ChangeKind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Matcher reports whether the record behind ref satisfies q.
type Matcher func(ctx context.Context, q *query.Query, ref model.Reference, rec record.Record) (bool, error)

// Event is one listener notification.
type Event uint8

const (
	// None means the write did not touch the result set.
	None Event = iota
	// Added means the record newly matches.
	Added
	// Updated means the record matched before and after.
	Updated
	// Removed means the record matched before but no longer does.
	Removed
)

// CachedResults is the tracked result set of one fingerprint.
type CachedResults struct {
	mu          sync.Mutex
	fingerprint string
	query       *query.Query
	refs        model.References
	listeners   []query.ChangeListener
	removed     bool
}

// Fingerprint returns the key of the entry.
func (cr *CachedResults) Fingerprint() string { return cr.fingerprint }

// Query returns the query the entry was created with.
func (cr *CachedResults) Query() *query.Query { return cr.query }

// References returns a copy of the tracked result set.
func (cr *CachedResults) References() model.References {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	out := make(model.References, len(cr.refs))
	for k, v := range cr.refs {
		out[k] = v
	}
	return out
}

// Listeners returns the number of registered listeners.
func (cr *CachedResults) Listeners() int {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return len(cr.listeners)
}

// Registry holds the CachedResults of one database.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]map[string]*CachedResults
	match  Matcher
	logger *slog.Logger
}

// New returns an empty registry that evaluates writes with match.
func New(match Matcher, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{byType: make(map[string]map[string]*CachedResults), match: match, logger: logger}
}

// Get returns the entry of q.
func (r *Registry) Get(q *query.Query) (*CachedResults, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cr, ok := r.byType[q.EntityType][query.Fingerprint(q)]
	return cr, ok
}

// Register adds listener to the entry of q, creating the entry with the
// result set seed on first use. Registering a listener twice is a no-op.
// Listeners that are not comparable, such as func types, are added every
// time. A nil listener only creates the entry.
func (r *Registry) Register(q *query.Query, listener query.ChangeListener, seed model.References) *CachedResults {
	fp := query.Fingerprint(q)

	r.mu.Lock()
	entries := r.byType[q.EntityType]
	if entries == nil {
		entries = make(map[string]*CachedResults)
		r.byType[q.EntityType] = entries
	}
	cr, ok := entries[fp]
	if !ok {
		refs := make(model.References, len(seed))
		for k := range seed {
			refs.Add(k)
		}
		cr = &CachedResults{fingerprint: fp, query: q, refs: refs}
		entries[fp] = cr
	}
	r.mu.Unlock()

	if listener != nil {
		cr.mu.Lock()
		if !slices.ContainsFunc(cr.listeners, func(l query.ChangeListener) bool { return sameListener(l, listener) }) {
			cr.listeners = append(cr.listeners, listener)
		}
		cr.mu.Unlock()
	}
	return cr
}

// RemoveListener drops the entry of q with all its listeners. A later
// Register starts a fresh entry.
func (r *Registry) RemoveListener(q *query.Query) bool {
	fp := query.Fingerprint(q)

	r.mu.Lock()
	cr, ok := r.byType[q.EntityType][fp]
	if ok {
		delete(r.byType[q.EntityType], fp)
		if len(r.byType[q.EntityType]) == 0 {
			delete(r.byType, q.EntityType)
		}
	}
	r.mu.Unlock()

	if ok {
		cr.mu.Lock()
		cr.removed = true
		cr.listeners = nil
		cr.mu.Unlock()
	}
	return ok
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, entries := range r.byType {
		n += len(entries)
	}
	return n
}

// NotifyChange re-evaluates every entry of entityType for the written
// record and fires exactly one callback per affected entry. rec is the
// record after the write, or the deleted record. It returns the number of
// notified entries.
func (r *Registry) NotifyChange(ctx context.Context, entityType string, ref model.Reference, rec record.Record, kind ChangeKind) (int, error) {
	r.mu.RLock()
	entries := make([]*CachedResults, 0, len(r.byType[entityType]))
	for _, cr := range r.byType[entityType] {
		entries = append(entries, cr)
	}
	r.mu.RUnlock()

	var errs []error
	notified := 0
	for _, cr := range entries {
		ev, err := r.apply(ctx, cr, ref, rec, kind)
		if err != nil {
			r.logger.Error("query cache evaluation failed", "entity", entityType, "query", cr.fingerprint, "error", err)
			errs = append(errs, err)
			continue
		}
		if ev != None {
			notified++
		}
	}
	return notified, errors.Join(errs...)
}

func (r *Registry) apply(ctx context.Context, cr *CachedResults, ref model.Reference, rec record.Record, kind ChangeKind) (Event, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if cr.removed {
		return None, nil
	}

	was := cr.refs.Contains(ref)
	now := false
	if kind != Delete {
		var err error
		if now, err = r.match(ctx, cr.query, ref, rec); err != nil {
			return None, err
		}
	}

	var ev Event
	switch {
	case now && !was:
		cr.refs.Add(ref)
		ev = Added
	case now && was:
		ev = Updated
	case was:
		delete(cr.refs, ref)
		ev = Removed
	default:
		return None, nil
	}

	for _, l := range cr.listeners {
		switch ev {
		case Added:
			l.OnItemAdded(ref, rec)
		case Updated:
			l.OnItemUpdated(ref, rec)
		case Removed:
			l.OnItemRemoved(ref, rec)
		}
	}
	return ev, nil
}

// sameListener compares listeners without panicking on values that are not
// comparable at run time. Those never equal anything.
func sameListener(a, b query.ChangeListener) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() || !va.Comparable() || !vb.Comparable() {
		return false
	}
	return a == b
}
