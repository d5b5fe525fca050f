package journal

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refdb/internal/fs"
	"github.com/hupe1980/refdb/record"
)

func sample() []*Record {
	return []*Record{
		{Type: RecordTypeSave, EntityType: "Player", Data: record.Record{"id": record.Int(1), "name": record.String("a")}},
		{Type: RecordTypeDelete, EntityType: "Player", Identifier: record.Int(2), PartitionValue: record.Null()},
		{Type: RecordTypeSave, EntityType: "Game", Data: record.Record{"id": record.Int(3), "season": record.Int(2024)}},
	}
}

func TestJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refdb.journal")

	j, err := Open(nil, path, DefaultOptions())
	require.NoError(t, err)
	for _, r := range sample() {
		require.NoError(t, j.Append(r))
	}
	assert.Equal(t, uint64(3), j.LSN())
	require.NoError(t, j.Close())

	j, err = Open(nil, path, DefaultOptions())
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, uint64(3), j.LSN())

	var got []*Record
	n, err := Replay(nil, path, func(r *Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	want := sample()
	for i, r := range got {
		assert.Equal(t, uint64(i+1), r.LSN)
		assert.Equal(t, want[i].Type, r.Type)
		assert.Equal(t, want[i].EntityType, r.EntityType)
	}
	assert.Equal(t, "a", got[0].Data.Get("name").StringValue())
	assert.Equal(t, int64(2), got[1].Identifier.I64)
	assert.True(t, got[1].PartitionValue.IsNull())
}

func TestTornTailIsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refdb.journal")

	j, err := Open(nil, path, Options{Durability: DurabilityAsync})
	require.NoError(t, err)
	for _, r := range sample() {
		require.NoError(t, j.Append(r))
	}
	size := j.Size()
	require.NoError(t, j.Close())

	require.NoError(t, os.Truncate(path, size-3))

	n, err := Replay(nil, path, func(*Record) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	j, err = Open(nil, path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), j.LSN())
	require.NoError(t, j.Append(&Record{Type: RecordTypeSave, EntityType: "Player", Data: record.Record{}}))
	require.NoError(t, j.Close())

	n, err = Replay(nil, path, func(*Record) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestInvalidHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refdb.journal")
	require.NoError(t, os.WriteFile(path, []byte("NOTAJOURNAL!"), 0o644))

	_, err := Open(nil, path, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestGroupCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refdb.journal")
	j, err := Open(nil, path, DefaultOptions())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				assert.NoError(t, j.Append(&Record{Type: RecordTypeDelete, EntityType: "Player", Identifier: record.Int(1)}))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, j.Close())

	n, err := Replay(nil, path, func(*Record) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 160, n)
}

func TestSyncFailureIsTerminal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refdb.journal")
	j, err := Open(nil, path, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, j.Close())

	faulty := fs.NewFaultyFS(fs.Default)
	faulty.AddRule("refdb.journal", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
	j, err = Open(faulty, path, DefaultOptions())
	require.NoError(t, err)

	rec := &Record{Type: RecordTypeDelete, EntityType: "Player", Identifier: record.Int(1)}
	assert.ErrorIs(t, j.Append(rec), fs.ErrInjected)
	assert.ErrorIs(t, j.Append(rec), fs.ErrInjected)
	_ = j.Close()
}
