package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data := []byte("abc")
	require.NoError(t, s.Put(ctx, "b/1", data))
	data[0] = 'x'

	w, err := s.Create(ctx, "a/1")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed"))
	require.NoError(t, err)

	_, err = s.Open(ctx, "a/1")
	assert.ErrorIs(t, err, ErrNotFound, "blob is invisible until close")
	require.NoError(t, w.Close())
	assert.Error(t, w.Close())

	got, err := ReadAll(ctx, s, "b/1")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got, err = ReadAll(ctx, s, "a/1")
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(got))

	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "b/1"}, names)

	require.NoError(t, s.Delete(ctx, "a/1"))
	names, err = s.List(ctx, "a/")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemoryStoreNames(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, name := range []string{"", ".", "/abs", "..", "../escape"} {
		assert.Error(t, s.Put(ctx, name, []byte("x")), name)
		_, err := s.Create(ctx, name)
		assert.Error(t, err, name)
	}

	require.NoError(t, s.Put(ctx, "daily/./manifest.json", []byte("{}")))
	got, err := ReadAll(ctx, s, "daily/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got))

	_, err = s.Open(ctx, "daily/missing.vol")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorContains(t, err, "daily/missing.vol")
}
