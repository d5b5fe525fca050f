package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
)

// MemoryStore keeps backups in process memory. Tests and examples export to
// it and restore from it without touching disk. It accepts the same names as
// LocalStore, so a backup that restores from memory also restores from a
// directory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// memoryName rejects names LocalStore could not map into its root.
func memoryName(name string) (string, error) {
	clean := path.Clean(name)
	if name == "" || clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("blobstore: invalid blob name %q", name)
	}
	return clean, nil
}

func (m *MemoryStore) Open(_ context.Context, name string) (Blob, error) {
	key, err := memoryName(name)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	// Stored slices are replaced, never written, so readers can share them.
	return memoryBlob{bytes.NewReader(data)}, nil
}

// Create buffers the copy; nothing is visible under name until Close.
func (m *MemoryStore) Create(_ context.Context, name string) (WritableBlob, error) {
	key, err := memoryName(name)
	if err != nil {
		return nil, err
	}
	return &pendingBlob{store: m, key: key}, nil
}

func (m *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	key, err := memoryName(name)
	if err != nil {
		return err
	}
	m.publish(key, bytes.Clone(data))
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	key, err := memoryName(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (m *MemoryStore) publish(key string, data []byte) {
	m.mu.Lock()
	m.blobs[key] = data
	m.mu.Unlock()
}

type memoryBlob struct {
	*bytes.Reader
}

func (memoryBlob) Close() error { return nil }

// pendingBlob collects a streamed volume copy or manifest.
type pendingBlob struct {
	store *MemoryStore
	key   string
	buf   bytes.Buffer
	done  bool
}

func (w *pendingBlob) Write(p []byte) (int, error) {
	if w.done {
		return 0, os.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *pendingBlob) Sync() error {
	if w.done {
		return os.ErrClosed
	}
	return nil
}

func (w *pendingBlob) Close() error {
	if w.done {
		return os.ErrClosed
	}
	w.done = true
	w.store.publish(w.key, w.buf.Bytes())
	return nil
}
