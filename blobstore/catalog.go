package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrConcurrentModification is returned when another writer committed the
// same catalog version first.
var ErrConcurrentModification = errors.New("blobstore: concurrent catalog modification")

// Version is one committed catalog entry.
type Version struct {
	Number  uint64    `json:"number"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}

// Catalog is an append-only list of committed backup names. Version numbers
// start at 1 and increase by one per commit.
type Catalog interface {
	// Commit records name as the next version.
	Commit(ctx context.Context, name string) (Version, error)
	// Latest returns the newest version or ErrNotFound.
	Latest(ctx context.Context) (Version, error)
	// Versions returns every version, oldest first.
	Versions(ctx context.Context) ([]Version, error)
}

const catalogPrefix = "CATALOG-"

// StoreCatalog keeps catalog versions as small blobs next to the backups.
// Commits are serialized within one process only; use s3.Catalog for
// concurrent writers.
type StoreCatalog struct {
	store BlobStore
	mu    sync.Mutex
}

var _ Catalog = (*StoreCatalog)(nil)

// NewStoreCatalog creates a catalog on store.
func NewStoreCatalog(store BlobStore) *StoreCatalog {
	return &StoreCatalog{store: store}
}

// Commit records name as the next version.
func (c *StoreCatalog) Commit(ctx context.Context, name string) (Version, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names, err := c.store.List(ctx, catalogPrefix)
	if err != nil {
		return Version{}, err
	}
	var last uint64
	for _, n := range names {
		if v, ok := catalogVersion(n); ok && v > last {
			last = v
		}
	}
	v := Version{Number: last + 1, Name: name, Created: time.Now().UTC()}
	data, err := json.Marshal(v)
	if err != nil {
		return Version{}, err
	}
	if err := c.store.Put(ctx, catalogBlob(v.Number), data); err != nil {
		return Version{}, err
	}
	return v, nil
}

// Latest returns the newest version.
func (c *StoreCatalog) Latest(ctx context.Context) (Version, error) {
	versions, err := c.Versions(ctx)
	if err != nil {
		return Version{}, err
	}
	if len(versions) == 0 {
		return Version{}, ErrNotFound
	}
	return versions[len(versions)-1], nil
}

// Versions returns every version, oldest first. Unreadable entries are
// skipped.
func (c *StoreCatalog) Versions(ctx context.Context) ([]Version, error) {
	names, err := c.store.List(ctx, catalogPrefix)
	if err != nil {
		return nil, err
	}
	var out []Version
	for _, n := range names {
		if _, ok := catalogVersion(n); !ok {
			continue
		}
		data, err := ReadAll(ctx, c.store, n)
		if err != nil {
			continue
		}
		var v Version
		if err := json.Unmarshal(data, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func catalogBlob(v uint64) string {
	return fmt.Sprintf("%s%012d", catalogPrefix, v)
}

func catalogVersion(name string) (uint64, bool) {
	s, ok := strings.CutPrefix(name, catalogPrefix)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}
