package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/refdb/blobstore"
	"github.com/hupe1980/refdb/internal/fs"
	"github.com/hupe1980/refdb/internal/hash"
	"golang.org/x/sync/errgroup"
)

// Export copies files into bs as backup name and writes its manifest. An
// empty name is replaced by a generated one. The files must not change
// while Export runs.
func Export(ctx context.Context, files []string, bs blobstore.BlobStore, name string, opts ...Option) (*Manifest, error) {
	o := applyOptions(opts)
	start := time.Now()

	if name == "" {
		name = "backup-" + start.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
	}
	if err := checkName(name); err != nil {
		return nil, err
	}
	if _, err := LoadManifest(ctx, bs, name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	seen := make(map[string]bool, len(files))
	for _, file := range files {
		base := filepath.Base(file)
		if seen[base] {
			return nil, fmt.Errorf("backup: duplicate file name %s", base)
		}
		seen[base] = true
	}

	m := &Manifest{
		Version:     CurrentVersion,
		ID:          uuid.NewString(),
		Name:        name,
		Created:     start.UTC(),
		Compression: o.compression,
		Files:       make([]FileEntry, len(files)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, file := range files {
		g.Go(func() error {
			entry, err := exportFile(gctx, o, bs, name, file)
			if err != nil {
				return fmt.Errorf("backup: export %s: %w", file, err)
			}
			m.Files[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cleanup(ctx, o, bs, name)
		return nil, err
	}

	if err := saveManifest(ctx, bs, m); err != nil {
		cleanup(ctx, o, bs, name)
		return nil, err
	}
	if o.catalog != nil {
		v, err := o.catalog.Commit(ctx, name)
		if err != nil {
			return m, fmt.Errorf("backup: commit %s to catalog: %w", name, err)
		}
		o.logger.Debug("backup committed", "name", name, "version", v.Number)
	}

	o.logger.Info("backup exported", "name", name, "files", len(m.Files), "bytes", m.Size(),
		"compression", m.Compression.String(), "duration", time.Since(start))
	return m, nil
}

func exportFile(ctx context.Context, o options, bs blobstore.BlobStore, name, file string) (FileEntry, error) {
	f, err := o.fs.OpenFile(file, os.O_RDONLY, 0)
	if err != nil {
		return FileEntry{}, err
	}
	defer func() { _ = f.Close() }()

	base := filepath.Base(file)
	entry := FileEntry{Name: base, Blob: base + o.compression.ext()}

	w, err := bs.Create(ctx, path.Join(name, entry.Blob))
	if err != nil {
		return FileEntry{}, err
	}
	stored := &countingWriter{w: w}
	zw, err := compressWriter(stored, o.compression)
	if err != nil {
		_ = w.Close()
		return FileEntry{}, err
	}

	h := hash.NewCRC32C()
	n, err := io.Copy(io.MultiWriter(zw, h), &throttledReader{ctx: ctx, r: f, t: o.throttle})
	if err == nil {
		err = zw.Close()
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return FileEntry{}, err
	}

	entry.Size = n
	entry.Stored = stored.n
	entry.CRC32C = h.Sum32()
	return entry, nil
}

// cleanup removes the blobs of a failed export.
func cleanup(ctx context.Context, o options, bs blobstore.BlobStore, name string) {
	names, err := bs.List(ctx, name+"/")
	if err != nil {
		o.logger.Warn("backup cleanup failed", "name", name, "error", err)
		return
	}
	for _, n := range names {
		if err := bs.Delete(ctx, n); err != nil {
			o.logger.Warn("backup cleanup failed", "blob", n, "error", err)
		}
	}
}

// Restore writes the files of backup name into dir. Existing files are never
// overwritten. An empty name restores the latest version of the catalog set
// with WithCatalog.
func Restore(ctx context.Context, bs blobstore.BlobStore, name, dir string, opts ...Option) (*Manifest, error) {
	o := applyOptions(opts)
	start := time.Now()

	if name == "" {
		if o.catalog == nil {
			return nil, fmt.Errorf("%w: empty name without catalog", ErrInvalidName)
		}
		v, err := o.catalog.Latest(ctx)
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				return nil, fmt.Errorf("%w: catalog is empty", ErrNotFound)
			}
			return nil, err
		}
		name = v.Name
	}

	m, err := LoadManifest(ctx, bs, name)
	if err != nil {
		return nil, err
	}
	if err := o.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	for _, f := range m.Files {
		if f.Name == "" || f.Name != filepath.Base(f.Name) || f.Name == "." || f.Name == ".." {
			return nil, fmt.Errorf("%w: file name %q", ErrCorrupt, f.Name)
		}
		target := filepath.Join(dir, f.Name)
		exists, err := fs.Exists(o.fs, target)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrExists, target)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, f := range m.Files {
		g.Go(func() error {
			if err := restoreFile(gctx, o, bs, m, f, dir); err != nil {
				return fmt.Errorf("backup: restore %s: %w", f.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.logger.Info("backup restored", "name", name, "dir", dir, "files", len(m.Files),
		"bytes", m.Size(), "duration", time.Since(start))
	return m, nil
}

func restoreFile(ctx context.Context, o options, bs blobstore.BlobStore, m *Manifest, f FileEntry, dir string) error {
	b, err := bs.Open(ctx, path.Join(m.Name, f.Blob))
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	r, err := decompressReader(blobstore.NewReader(b), m.Compression)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	target := filepath.Join(dir, f.Name)
	tmp := target + ".restore"
	out, err := o.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	h := hash.NewCRC32C()
	n, err := io.Copy(io.MultiWriter(out, h), &throttledReader{ctx: ctx, r: r, t: o.throttle})
	if err == nil && (n != f.Size || h.Sum32() != f.CRC32C) {
		err = fmt.Errorf("%w: %s", ErrChecksum, f.Name)
	}
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = o.fs.Rename(tmp, target)
	}
	if err != nil {
		_ = o.fs.Remove(tmp)
	}
	return err
}

func checkName(name string) error {
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") || strings.Contains(name, "..") ||
		strings.HasPrefix(name, "CATALOG-") || path.Clean(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// throttledReader charges every read against the throttle.
type throttledReader struct {
	ctx context.Context
	r   io.Reader
	t   Throttle
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if err := t.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := t.r.Read(p)
	if n > 0 && t.t != nil {
		if werr := t.t.AcquireIO(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
