package refdb

import (
	"log/slog"

	"github.com/hupe1980/refdb/internal/journal"
)

// Durability selects when journal appends reach stable storage.
type Durability = journal.Durability

const (
	// DurabilityAsync relies on the OS page cache.
	DurabilityAsync = journal.DurabilityAsync
	// DurabilitySync fsyncs before a write returns.
	DurabilitySync = journal.DurabilitySync
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	loadFactor       uint8
	cacheCapacity    int
	cacheSet         bool
	scanWorkers      int64
	memoryLimit      int64
	ioLimit          int64
	journalPath      string
	durability       Durability
}

// Option configures Open.
type Option func(*options)

// WithLoadFactor sets log2 of the bucket count of record maps created for
// entity types whose descriptor does not set one. Existing maps keep the
// load factor they were created with.
func WithLoadFactor(lf uint8) Option {
	return func(o *options) {
		o.loadFactor = lf
	}
}

// WithCacheCapacity sets the directory cache size of every record map.
// 0 disables caching.
func WithCacheCapacity(n int) Option {
	return func(o *options) {
		o.cacheCapacity = n
		o.cacheSet = true
	}
}

// WithScanWorkers bounds the number of partitions scanned concurrently
// across all queries. Default: 4.
func WithScanWorkers(n int64) Option {
	return func(o *options) {
		o.scanWorkers = n
	}
}

// WithMemoryLimit caps the memory retained by directory caches. 0 only
// tracks usage.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithIOLimit throttles backup transfers to bytesPerSec. 0 is unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithJournal appends every save and delete to the journal at path, relative
// to the database directory unless absolute.
//
// Example:
//
//	db, _ := refdb.Open("./data", refdb.WithJournal("journal.log", refdb.DurabilitySync))
func WithJournal(path string, durability Durability) Option {
	return func(o *options) {
		o.journalPath = path
		o.durability = durability
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &refdb.BasicMetricsCollector{}
//	db, _ := refdb.Open(dir, refdb.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Saves: %d, Avg latency: %dns\n", stats.SaveCount, stats.SaveAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := refdb.NewJSONLogger(slog.LevelInfo)
//	db, _ := refdb.Open(dir, refdb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		durability:       DurabilitySync,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
