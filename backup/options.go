package backup

import (
	"context"
	"log/slog"

	"github.com/hupe1980/refdb/blobstore"
	"github.com/hupe1980/refdb/internal/fs"
)

// DefaultConcurrency is the number of files transferred in parallel.
const DefaultConcurrency = 4

// Throttle limits transfer bandwidth. Its AcquireIO blocks until bytes may
// be moved.
type Throttle interface {
	AcquireIO(ctx context.Context, bytes int) error
}

type options struct {
	compression Compression
	throttle    Throttle
	logger      *slog.Logger
	catalog     blobstore.Catalog
	concurrency int
	fs          fs.FileSystem
}

// Option configures Export and Restore.
type Option func(*options)

// WithCompression selects the compression of exported files. Restore reads
// it from the manifest.
func WithCompression(c Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithThrottle limits the bandwidth of file transfers.
func WithThrottle(t Throttle) Option {
	return func(o *options) { o.throttle = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCatalog commits exported backups to c. Restore without a name
// restores the latest catalog version.
func WithCatalog(c blobstore.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithConcurrency sets how many files are transferred in parallel.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) { o.fs = fsys }
}

func applyOptions(opts []Option) options {
	o := options{
		compression: CompressionZSTD,
		logger:      slog.New(slog.DiscardHandler),
		concurrency: DefaultConcurrency,
		fs:          fs.Default,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
