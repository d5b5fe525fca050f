package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/refdb/internal/fs"
	"github.com/stretchr/testify/require"
)

func TestLocalBlobStore_Lifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir)

	ctx := context.Background()

	blobName := "backup-1/refdb.vol"
	data := []byte("hello world, this is a test blob for refdb")

	w, err := store.Create(ctx, blobName)
	require.NoError(t, err)

	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, w.Close())

	_, err = os.Stat(filepath.Join(tmpDir, "backup-1", "refdb.vol"))
	require.NoError(t, err)

	blob, err := store.Open(ctx, blobName)
	require.NoError(t, err)
	defer blob.Close()

	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err = blob.ReadAt(buf, 6)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	all, err := io.ReadAll(NewReader(blob))
	require.NoError(t, err)
	require.Equal(t, data, all)

	require.NoError(t, store.Put(ctx, "backup-1/MANIFEST", []byte("{}")))
	require.NoError(t, store.Put(ctx, "other", []byte("x")))

	names, err := store.List(ctx, "backup-1/")
	require.NoError(t, err)
	require.Equal(t, []string{"backup-1/MANIFEST", "backup-1/refdb.vol"}, names)

	require.NoError(t, store.Delete(ctx, blobName))
	require.NoError(t, store.Delete(ctx, blobName))

	names, err = store.List(ctx, "backup-1/")
	require.NoError(t, err)
	require.Equal(t, []string{"backup-1/MANIFEST"}, names)

	_, err = store.Open(ctx, blobName)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalBlobStore_InvalidName(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	_, err := store.Create(ctx, "../escape")
	require.Error(t, err)
	require.Error(t, store.Put(ctx, "", nil))
}

func TestLocalBlobStore_FailedPutLeavesNothing(t *testing.T) {
	tmpDir := t.TempDir()
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("bad", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
	store := NewLocalStore(tmpDir, WithFileSystem(ffs))
	ctx := context.Background()

	err := store.Put(ctx, "bad.blob", []byte("payload"))
	require.ErrorIs(t, err, fs.ErrInjected)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, names)

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
