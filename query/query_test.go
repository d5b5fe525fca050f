package query

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/record"
)

func TestQueryValidate(t *testing.T) {
	q := New("Player", Eq("team.name", record.String("Bears")))
	assert.NoError(t, q.Validate())

	q.Partition = PartitionAll
	assert.ErrorIs(t, q.Validate(), ErrInvalidQuery)

	q = New("Player", Eq("name", record.String("x")))
	q.Partition = PartitionAll
	assert.NoError(t, q.Validate())

	q.Partition = PartitionValue
	assert.ErrorIs(t, q.Validate(), ErrInvalidQuery)
	q.PartitionValue = record.Int(2024)
	assert.NoError(t, q.Validate())

	assert.ErrorIs(t, New("", nil).Validate(), ErrInvalidQuery)

	q = New("Player", Where("a", OpIn, record.Int(1)))
	err := q.Validate()
	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.ErrorIs(t, err, ErrInvalidCriteria)
}

func TestTerminate(t *testing.T) {
	q := New("Player", nil)
	assert.False(t, q.Terminated())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Terminate()
	}()
	wg.Wait()
	assert.True(t, q.Terminated())
}

func TestFingerprint(t *testing.T) {
	build := func() *Query {
		q := New("Player", And(Eq("a", record.Int(1)), Gt("b", record.String("x"))))
		q.Order = []Order{Asc("a"), Desc("b")}
		return q
	}

	a, b := build(), build()
	b.Listener = &ListenerFuncs{}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	b.Max = 10
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))

	c := build()
	c.Partition = PartitionValue
	c.PartitionValue = record.Int(1)
	d := build()
	d.Partition = PartitionValue
	d.PartitionValue = record.Float(1)
	assert.NotEqual(t, Fingerprint(c), Fingerprint(d))

	assert.NotEqual(t,
		Fingerprint(New("Player", Eq("a", record.Int(1)))),
		Fingerprint(New("Player", Eq("a", record.String("1")))),
	)
}

func TestListenerFuncs(t *testing.T) {
	var added []model.Reference
	l := &ListenerFuncs{Added: func(ref model.Reference, _ record.Record) { added = append(added, ref) }}

	l.OnItemAdded(model.NewReference(1), nil)
	l.OnItemUpdated(model.NewReference(2), nil)
	l.OnItemRemoved(model.NewReference(3), nil)
	assert.Equal(t, []model.Reference{model.NewReference(1)}, added)

	var a, b ChangeListener = l, l
	assert.True(t, a == b)
}
