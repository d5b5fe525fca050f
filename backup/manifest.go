package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hupe1980/refdb/blobstore"
)

const (
	// ManifestFileName is the blob name of a manifest inside its backup.
	ManifestFileName = "MANIFEST"
	// CurrentVersion is the version of the manifest format.
	CurrentVersion = 1
)

// Manifest describes one backup.
type Manifest struct {
	Version     int         `json:"version"`
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Created     time.Time   `json:"created"`
	Compression Compression `json:"compression"`
	Files       []FileEntry `json:"files"`
}

// FileEntry is one database file in a backup.
type FileEntry struct {
	// Name is the file name inside the database directory.
	Name string `json:"name"`
	// Blob is the stored blob name relative to the backup.
	Blob string `json:"blob"`
	// Size is the original file size.
	Size int64 `json:"size"`
	// Stored is the size after compression.
	Stored int64 `json:"stored"`
	// CRC32C is the checksum of the original bytes.
	CRC32C uint32 `json:"crc32c"`
}

// Size returns the sum of the original file sizes.
func (m *Manifest) Size() int64 {
	var n int64
	for _, f := range m.Files {
		n += f.Size
	}
	return n
}

func manifestBlob(name string) string {
	return path.Join(name, ManifestFileName)
}

// LoadManifest reads the manifest of backup name.
func LoadManifest(ctx context.Context, bs blobstore.BlobStore, name string) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, bs, manifestBlob(name))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: manifest of %s: %v", ErrCorrupt, name, err)
	}
	if m.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: manifest version %d of %s", ErrCorrupt, m.Version, name)
	}
	return m, nil
}

func saveManifest(ctx context.Context, bs blobstore.BlobStore, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return bs.Put(ctx, manifestBlob(m.Name), data)
}

// List returns the names of all backups in bs, sorted.
func List(ctx context.Context, bs blobstore.BlobStore) ([]string, error) {
	names, err := bs.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range names {
		if dir, ok := strings.CutSuffix(n, "/"+ManifestFileName); ok {
			out = append(out, dir)
		}
	}
	return out, nil
}

// Delete removes backup name and every blob it lists.
func Delete(ctx context.Context, bs blobstore.BlobStore, name string) error {
	m, err := LoadManifest(ctx, bs, name)
	if err != nil {
		return err
	}
	var errs []error
	for _, f := range m.Files {
		errs = append(errs, bs.Delete(ctx, path.Join(name, f.Blob)))
	}
	errs = append(errs, bs.Delete(ctx, manifestBlob(name)))
	return errors.Join(errs...)
}
