package catalog

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refdb/internal/store"
	"github.com/hupe1980/refdb/record"
)

func fileName(id uint64) string { return fmt.Sprintf("Player_%d.vol", id) }

func TestPartitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.vol")
	st, err := store.Open(path)
	require.NoError(t, err)

	c, err := Open(st)
	require.NoError(t, err)

	_, ok, err := c.Lookup("Player", record.Int(2024))
	require.NoError(t, err)
	assert.False(t, ok)

	e, created, err := c.Ensure("Player", record.Int(2024), fileName)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint64(1), e.ID)
	assert.Equal(t, "Player_1.vol", e.FileName)

	again, created, err := c.Ensure("Player", record.Int(2024), fileName)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, e, again)

	e2, _, err := c.Ensure("Player", record.String("2024"), fileName)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e2.ID)

	other, _, err := c.Ensure("Team", record.Int(2024), fileName)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), other.ID)

	require.NoError(t, st.Close())
	st, err = store.Open(path)
	require.NoError(t, err)
	defer st.Close()
	c, err = Open(st)
	require.NoError(t, err)

	parts := c.Partitions("Player")
	require.Len(t, parts, 2)
	assert.Equal(t, uint64(1), parts[0].ID)
	assert.True(t, record.Equal(record.Int(2024), parts[0].Value))
	assert.Equal(t, "2024", parts[1].Value.StringValue())

	got, ok := c.Entry("Player", 2)
	assert.True(t, ok)
	assert.Equal(t, "Player_2.vol", got.FileName)
	_, ok = c.Entry("Player", 9)
	assert.False(t, ok)
}

func TestSequences(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "data.vol"))
	require.NoError(t, err)
	defer st.Close()

	c, err := Open(st)
	require.NoError(t, err)

	v, err := c.NextSequence("Player")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	require.NoError(t, c.AdvanceSequence("Player", 10))
	require.NoError(t, c.AdvanceSequence("Player", 5))
	v, err = c.NextSequence("Player")
	require.NoError(t, err)
	assert.Equal(t, int64(11), v)

	var wg sync.WaitGroup
	seen := make(chan int64, 100)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				v, err := c.NextSequence("Team")
				assert.NoError(t, err)
				seen <- v
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for v := range seen {
		unique[v] = true
	}
	assert.Len(t, unique, 100)
}
