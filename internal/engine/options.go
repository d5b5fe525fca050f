package engine

import (
	"log/slog"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/internal/fs"
	"github.com/hupe1980/refdb/internal/journal"
	"github.com/hupe1980/refdb/internal/resource"
)

// DefaultVolume is the file name of the volume holding unpartitioned data,
// the partition catalog and relationship lists.
const DefaultVolume = "refdb.vol"

// DefaultCacheCapacity is the per-map directory cache size.
const DefaultCacheCapacity = 4096

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithResourceController sets the resource controller bounding partition
// fan-out and cache memory.
func WithResourceController(rc *resource.Controller) Option {
	return func(e *Engine) {
		e.rc = rc
	}
}

// WithMetricsObserver sets the metrics observer for the engine.
func WithMetricsObserver(observer MetricsObserver) Option {
	return func(e *Engine) {
		if observer != nil {
			e.metrics = observer
		}
	}
}

// WithRegistry uses reg instead of a fresh descriptor registry.
func WithRegistry(reg *entity.Registry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.registry = reg
		}
	}
}

// WithFileSystem sets the file system all volume and journal files are
// opened through.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(e *Engine) {
		if fsys != nil {
			e.fs = fsys
		}
	}
}

// WithLoadFactor sets the load factor of record maps created for types
// whose descriptor leaves it at 0.
func WithLoadFactor(lf uint8) Option {
	return func(e *Engine) {
		e.loadFactor = lf
	}
}

// WithCacheCapacity sets the directory cache size of every record map.
// 0 disables caching.
func WithCacheCapacity(n int) Option {
	return func(e *Engine) {
		e.cacheCapacity = n
	}
}

// WithJournal appends every save and delete to the journal at path.
// Relative paths are resolved against the database directory.
func WithJournal(path string, durability journal.Durability) Option {
	return func(e *Engine) {
		e.journalPath = path
		e.journalOpts = journal.Options{Durability: durability}
	}
}
