package records

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refdb/internal/diskmap"
	"github.com/hupe1980/refdb/internal/store"
	"github.com/hupe1980/refdb/record"
)

func openStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.vol")
	st, err := store.Open(path)
	require.NoError(t, err)
	return st, path
}

func TestTable(t *testing.T) {
	st, path := openStore(t)

	tbl, err := Open(st, "Player", 0, diskmap.WithLoadFactor(2))
	require.NoError(t, err)

	alice := record.Record{"id": record.Int(1), "name": record.String("alice")}
	rid, inserted, err := tbl.Put(record.Int(1), alice)
	require.NoError(t, err)
	assert.True(t, inserted)

	alice["name"] = record.String("alicia")
	rid2, inserted, err := tbl.Put(record.Int(1), alice)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, rid, rid2)

	_, _, err = tbl.Put(record.Int(2), record.Record{"id": record.Int(2)})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), tbl.Len())

	got, err := tbl.Get(rid)
	require.NoError(t, err)
	assert.Equal(t, "alicia", got.Get("name").StringValue())

	lrid, lrec, err := tbl.Lookup(record.Int(1))
	require.NoError(t, err)
	assert.Equal(t, rid, lrid)
	assert.Equal(t, got, lrec)

	_, _, err = tbl.Lookup(record.Int(3))
	assert.ErrorIs(t, err, ErrNotFound)

	// Int and float identifiers are distinct keys.
	_, err = tbl.ID(record.Float(1))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Close())

	st, err = store.Open(path)
	require.NoError(t, err)
	defer st.Close()
	tbl, err = Open(st, "Player", 0)
	require.NoError(t, err)

	var ids []uint64
	for id, err := range tbl.IDs() {
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, rid)

	deleted, err := tbl.Delete(record.Int(1))
	require.NoError(t, err)
	assert.Equal(t, rid, deleted)
	_, err = tbl.Get(rid)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tbl.Delete(record.Int(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTablesArePartitionScoped(t *testing.T) {
	st, _ := openStore(t)
	defer st.Close()

	a, err := Open(st, "Player", 1)
	require.NoError(t, err)
	b, err := Open(st, "Player", 2)
	require.NoError(t, err)

	_, _, err = a.Put(record.String("x"), record.Record{"id": record.String("x")})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a.Len())
	assert.Equal(t, uint64(0), b.Len())
	assert.NotEqual(t, RootName("Player", 1), RootName("Player", 2))
}
