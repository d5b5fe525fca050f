package index

import (
	"bytes"
	"math"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refdb/internal/store"
	"github.com/hupe1980/refdb/query"
	"github.com/hupe1980/refdb/record"
)

func TestEncodePreservesOrder(t *testing.T) {
	values := []record.Value{
		record.Null(),
		record.Bool(false),
		record.Bool(true),
		record.Float(-1e9),
		record.Int(-3),
		record.Float(-0.5),
		record.Int(0),
		record.Float(0.25),
		record.Int(7),
		record.Float(1e12),
		record.String(""),
		record.String("a"),
		record.String("a\x00"),
		record.String("ab"),
		record.String("b"),
		record.Array(),
		record.Array(record.Int(1)),
		record.Array(record.Int(1), record.Int(2)),
		record.Array(record.Int(2)),
	}

	for i := 1; i < len(values); i++ {
		prev, cur := Encode(nil, values[i-1]), Encode(nil, values[i])
		assert.Negative(t, bytes.Compare(prev, cur), "%s < %s", values[i-1], values[i])
		assert.Negative(t, record.Compare(values[i-1], values[i]))
	}

	assert.Equal(t, Encode(nil, record.Int(3)), Encode(nil, record.Float(3)))
	assert.Equal(t, Encode(nil, record.Float(0)), Encode(nil, record.Float(math.Copysign(0, -1))))
}

func ids(t *testing.T, ix *Index, op query.Operator, v record.Value) []uint64 {
	t.Helper()
	bm, err := ix.Lookup(op, v)
	require.NoError(t, err)
	out := bm.ToArray()
	slices.Sort(out)
	return out
}

func TestLookup(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "data.vol"))
	require.NoError(t, err)
	defer st.Close()

	ix, err := Open(st, "Player", "age", 0)
	require.NoError(t, err)

	ages := map[uint64]record.Value{
		1: record.Int(20),
		2: record.Int(30),
		3: record.Float(30),
		4: record.Int(40),
		5: record.Null(),
		6: record.String("30"),
	}
	for id, v := range ages {
		require.NoError(t, ix.Add(v, id))
	}
	assert.Equal(t, uint64(6), ix.Len())

	assert.Equal(t, []uint64{2, 3}, ids(t, ix, query.OpEqual, record.Int(30)))
	assert.Equal(t, []uint64{6}, ids(t, ix, query.OpEqual, record.String("30")))
	assert.Equal(t, []uint64{5}, ids(t, ix, query.OpEqual, record.Null()))
	assert.Equal(t, []uint64{1, 4}, ids(t, ix, query.OpIn, record.Array(record.Int(20), record.Int(40))))
	assert.Equal(t, []uint64{2, 3, 4}, ids(t, ix, query.OpGreaterThan, record.Int(25)))
	assert.Equal(t, []uint64{1, 2, 3}, ids(t, ix, query.OpLessEqual, record.Int(30)))
	assert.Empty(t, ids(t, ix, query.OpLessThan, record.Null()))

	_, err = ix.Lookup(query.OpLike, record.String("x"))
	assert.ErrorIs(t, err, ErrUnsupported)

	require.NoError(t, ix.Update(record.Int(40), record.Int(10), 4))
	assert.Equal(t, []uint64{1, 4}, ids(t, ix, query.OpLessThan, record.Int(25)))

	require.NoError(t, ix.Remove(record.Int(20), 1))
	require.NoError(t, ix.Remove(record.Int(20), 1))
	assert.Equal(t, []uint64{4}, ids(t, ix, query.OpLessThan, record.Int(25)))
}
