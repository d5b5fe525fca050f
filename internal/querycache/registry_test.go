package querycache

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
	"github.com/hupe1980/refdb/record"
)

type recorder struct {
	mu                      sync.Mutex
	added, updated, removed []model.Reference
}

func (r *recorder) OnItemAdded(ref model.Reference, _ record.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, ref)
}

func (r *recorder) OnItemUpdated(ref model.Reference, _ record.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, ref)
}

func (r *recorder) OnItemRemoved(ref model.Reference, _ record.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, ref)
}

func (r *recorder) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.added), len(r.updated), len(r.removed)
}

func matchCriteria(_ context.Context, q *query.Query, _ model.Reference, rec record.Record) (bool, error) {
	return query.Matches(q.Criteria, rec), nil
}

func statusQuery() *query.Query {
	return query.New("Player", query.Eq("status", record.String("active")))
}

func TestIdempotentSubscribe(t *testing.T) {
	r := New(matchCriteria, nil)
	l := &recorder{}

	r.Register(statusQuery(), l, nil)
	cr := r.Register(statusQuery(), l, nil)
	assert.Equal(t, 1, cr.Listeners())
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.RemoveListener(statusQuery()))
	assert.False(t, r.RemoveListener(statusQuery()))
	_, ok := r.Get(statusQuery())
	assert.False(t, ok)

	fresh := r.Register(statusQuery(), l, nil)
	assert.NotSame(t, cr, fresh)
	assert.Equal(t, 1, fresh.Listeners())
	assert.Equal(t, 0, cr.Listeners())
}

type addedFunc func(model.Reference, record.Record)

func (f addedFunc) OnItemAdded(ref model.Reference, rec record.Record) { f(ref, rec) }
func (addedFunc) OnItemUpdated(model.Reference, record.Record)         {}
func (addedFunc) OnItemRemoved(model.Reference, record.Record)         {}

type taggedListener struct {
	tags []string
	hits *int
}

func (l taggedListener) OnItemAdded(model.Reference, record.Record)   { *l.hits++ }
func (l taggedListener) OnItemUpdated(model.Reference, record.Record) {}
func (l taggedListener) OnItemRemoved(model.Reference, record.Record) {}

func TestNonComparableListeners(t *testing.T) {
	ctx := context.Background()
	r := New(matchCriteria, nil)

	calls := 0
	fn := addedFunc(func(model.Reference, record.Record) { calls++ })
	hits := 0
	tagged := taggedListener{tags: []string{"a"}, hits: &hits}

	var cr *CachedResults
	require.NotPanics(t, func() {
		r.Register(statusQuery(), fn, nil)
		r.Register(statusQuery(), fn, nil)
		r.Register(statusQuery(), tagged, nil)
		cr = r.Register(statusQuery(), &recorder{}, nil)
	})
	assert.Equal(t, 4, cr.Listeners())

	_, err := r.NotifyChange(ctx, "Player", model.NewReference(1), record.Record{"status": record.String("active")}, Insert)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "each registration of a func listener fires")
	assert.Equal(t, 1, hits)
}

func TestListenerCorrectness(t *testing.T) {
	ctx := context.Background()
	r := New(matchCriteria, nil)
	l := &recorder{}
	r.Register(statusQuery(), l, nil)

	ref := model.NewReference(1)
	rec := record.Record{"status": record.String("active"), "name": record.String("a")}

	n, err := r.NotifyChange(ctx, "Player", ref, rec, Insert)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	added, updated, removed := l.counts()
	assert.Equal(t, []int{1, 0, 0}, []int{added, updated, removed})

	rec = rec.Clone()
	rec["name"] = record.String("b")
	_, err = r.NotifyChange(ctx, "Player", ref, rec, Update)
	require.NoError(t, err)
	added, updated, removed = l.counts()
	assert.Equal(t, []int{1, 1, 0}, []int{added, updated, removed})

	rec = rec.Clone()
	rec["status"] = record.String("retired")
	_, err = r.NotifyChange(ctx, "Player", ref, rec, Update)
	require.NoError(t, err)
	added, updated, removed = l.counts()
	assert.Equal(t, []int{1, 1, 1}, []int{added, updated, removed})

	// Non-matching writes are silent.
	n, err = r.NotifyChange(ctx, "Player", ref, rec, Update)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Other entity types are not evaluated.
	n, err = r.NotifyChange(ctx, "Team", ref, record.Record{"status": record.String("active")}, Insert)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteRemovesSeededMember(t *testing.T) {
	r := New(matchCriteria, nil)
	l := &recorder{}
	ref := model.NewReference(7)
	cr := r.Register(statusQuery(), l, model.NewReferences(ref))
	assert.True(t, cr.References().Contains(ref))

	_, err := r.NotifyChange(context.Background(), "Player", ref, record.Record{"status": record.String("active")}, Delete)
	require.NoError(t, err)
	_, _, removed := l.counts()
	assert.Equal(t, 1, removed)
	assert.Empty(t, cr.References())
}

func TestMatcherErrorPropagates(t *testing.T) {
	boom := assert.AnError
	r := New(func(context.Context, *query.Query, model.Reference, record.Record) (bool, error) {
		return false, boom
	}, nil)
	r.Register(statusQuery(), &recorder{}, nil)

	_, err := r.NotifyChange(context.Background(), "Player", model.NewReference(1), record.Record{}, Insert)
	assert.ErrorIs(t, err, boom)
}

func TestConcurrentNotifyAndSubscribe(t *testing.T) {
	ctx := context.Background()
	r := New(matchCriteria, nil)
	rec := record.Record{"status": record.String("active")}

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := range 200 {
				_, err := r.NotifyChange(ctx, "Player", model.NewReference(uint64(w*1000+i)), rec, Insert)
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for range 200 {
				l := &recorder{}
				r.Register(statusQuery(), l, nil)
				r.RemoveListener(statusQuery())
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}
