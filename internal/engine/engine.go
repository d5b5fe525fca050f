package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/internal/catalog"
	"github.com/hupe1980/refdb/internal/diskmap"
	"github.com/hupe1980/refdb/internal/fs"
	"github.com/hupe1980/refdb/internal/index"
	"github.com/hupe1980/refdb/internal/journal"
	"github.com/hupe1980/refdb/internal/querycache"
	"github.com/hupe1980/refdb/internal/records"
	"github.com/hupe1980/refdb/internal/relationship"
	"github.com/hupe1980/refdb/internal/resource"
	"github.com/hupe1980/refdb/internal/scan"
	"github.com/hupe1980/refdb/internal/store"
	"github.com/hupe1980/refdb/model"
)

type tableKey struct {
	entityType string
	partition  uint64
}

type indexKey struct {
	entityType string
	attribute  string
	partition  uint64
}

type relKey struct {
	entityType string
	attribute  string
}

// Engine is an embedded database directory.
type Engine struct {
	// mu guards the lazily opened volumes and maps below.
	mu sync.Mutex
	// writeMu serializes writes so cache notification sees them in order.
	writeMu sync.Mutex
	closed  atomic.Bool

	dir      string
	fs       fs.FileSystem
	logger   *slog.Logger
	metrics  MetricsObserver
	rc       *resource.Controller
	registry *entity.Registry

	loadFactor    uint8
	cacheCapacity int
	journalPath   string
	journalOpts   journal.Options

	main    *store.Store
	volumes map[string]*store.Store
	catalog *catalog.Catalog
	tables  map[tableKey]*records.Table
	indexes map[indexKey]*index.Index
	rels    map[relKey]*relationship.Store

	planner *scan.Planner
	cache   *querycache.Registry
	journal *journal.Journal
}

// Open opens or creates the database in dir.
func Open(dir string, opts ...Option) (*Engine, error) {
	e := &Engine{
		dir:           dir,
		fs:            fs.Default,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:       &NoopMetricsObserver{},
		registry:      entity.NewRegistry(),
		loadFactor:    diskmap.DefaultLoadFactor,
		cacheCapacity: DefaultCacheCapacity,
		volumes:       make(map[string]*store.Store),
		tables:        make(map[tableKey]*records.Table),
		indexes:       make(map[indexKey]*index.Index),
		rels:          make(map[relKey]*relationship.Store),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create %s: %w", dir, err)
	}

	main, err := e.openVolume(DefaultVolume)
	if err != nil {
		return nil, err
	}
	e.main = main

	if e.catalog, err = catalog.Open(main); err != nil {
		_ = main.Close()
		return nil, err
	}

	if e.journalPath != "" {
		path := e.journalPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if e.journal, err = journal.Open(e.fs, path, e.journalOpts); err != nil {
			_ = main.Close()
			return nil, err
		}
		e.journalPath = path
	}

	e.planner = scan.NewPlanner(scan.Env{Source: e, Workers: e.rc, Logger: e.logger})
	e.cache = querycache.New(e.match, e.logger)

	e.logger.Info("engine opened", "dir", dir, "journal", e.journalPath)
	return e, nil
}

// Dir returns the database directory.
func (e *Engine) Dir() string { return e.dir }

// Registry returns the descriptor registry.
func (e *Engine) Registry() *entity.Registry { return e.registry }

// Register adds an entity type.
func (e *Engine) Register(desc *entity.Descriptor) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.registry.Register(desc)
}

// Partitions returns the partition catalog of entityType ordered by id.
func (e *Engine) Partitions(entityType string) []model.PartitionEntry {
	return e.catalog.Partitions(entityType)
}

// Stats reports cache hits and misses summed over every open record table.
func (e *Engine) Stats() (hits, misses int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.tables {
		h, m := t.Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Sync flushes the journal and every open volume.
func (e *Engine) Sync() error {
	if e.closed.Load() {
		return ErrClosed
	}
	var errs []error
	if e.journal != nil {
		errs = append(errs, e.journal.Sync())
	}
	for _, st := range e.stores() {
		errs = append(errs, st.Sync())
	}
	return errors.Join(errs...)
}

// Snapshot pauses writes, syncs every open file and calls fn with the
// paths of all volume files and the journal. The files stay consistent until
// fn returns.
func (e *Engine) Snapshot(fn func(files []string) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.Sync(); err != nil {
		return err
	}
	files := []string{filepath.Join(e.dir, DefaultVolume)}
	for _, name := range e.catalogFiles() {
		path := filepath.Join(e.dir, name)
		ok, err := fs.Exists(e.fs, path)
		if err != nil {
			return fmt.Errorf("engine: snapshot %s: %w", name, err)
		}
		if ok {
			files = append(files, path)
		}
	}
	if e.journal != nil {
		files = append(files, e.journalPath)
	}
	return fn(files)
}

// catalogFiles returns the volume file names of every partition in the
// catalog of every registered type.
func (e *Engine) catalogFiles() []string {
	var out []string
	for _, name := range e.registry.Names() {
		for _, entry := range e.catalog.Partitions(name) {
			out = append(out, entry.FileName)
		}
	}
	return out
}

// Close closes the journal and every volume.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	var errs []error
	if e.journal != nil {
		errs = append(errs, e.journal.Close())
	}
	for _, st := range e.stores() {
		errs = append(errs, st.Close())
	}
	e.logger.Info("engine closed", "dir", e.dir)
	return errors.Join(errs...)
}

// stores returns the partition volumes in name order followed by the main
// volume.
func (e *Engine) stores() []*store.Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*store.Store, 0, len(e.volumes)+1)
	for _, name := range slices.Sorted(maps.Keys(e.volumes)) {
		out = append(out, e.volumes[name])
	}
	return append(out, e.main)
}

func (e *Engine) openVolume(name string) (*store.Store, error) {
	path := filepath.Join(e.dir, name)
	existed, err := fs.Exists(e.fs, path)
	if err != nil {
		return nil, fmt.Errorf("engine: open %s: %w", name, err)
	}
	st, err := store.Open(path, store.WithFileSystem(e.fs), store.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	if !existed {
		if err := syncDir(e.fs, e.dir); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("engine: sync %s: %w", e.dir, err)
		}
	}
	return st, nil
}

func (e *Engine) descriptor(entityType string) (*entity.Descriptor, error) {
	desc, ok := e.registry.Lookup(entityType)
	if !ok {
		return nil, typeError(entityType, "", ErrEntityTypeNotFound)
	}
	return desc, nil
}

// volumeLocked returns the volume of partition. Callers hold e.mu.
func (e *Engine) volumeLocked(entityType string, partition uint64) (*store.Store, error) {
	if partition == 0 {
		return e.main, nil
	}
	entry, ok := e.catalog.Entry(entityType, partition)
	if !ok {
		return nil, fmt.Errorf("engine: %s has no partition %d: %w", entityType, partition, ErrNotFound)
	}
	if st, ok := e.volumes[entry.FileName]; ok {
		return st, nil
	}
	st, err := e.openVolume(entry.FileName)
	if err != nil {
		return nil, err
	}
	e.volumes[entry.FileName] = st
	return st, nil
}

func (e *Engine) table(desc *entity.Descriptor, partition uint64) (*records.Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := tableKey{desc.Name, partition}
	if t, ok := e.tables[k]; ok {
		return t, nil
	}
	st, err := e.volumeLocked(desc.Name, partition)
	if err != nil {
		return nil, err
	}
	lf := desc.LoadFactor
	if lf == 0 {
		lf = e.loadFactor
	}
	t, err := records.Open(st, desc.Name, partition, diskmap.WithLoadFactor(lf), diskmap.WithCache(e.cacheCapacity, e.rc))
	if err != nil {
		return nil, err
	}
	e.tables[k] = t
	return t, nil
}

func (e *Engine) index(desc *entity.Descriptor, attribute string, partition uint64) (*index.Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := indexKey{desc.Name, attribute, partition}
	if ix, ok := e.indexes[k]; ok {
		return ix, nil
	}
	st, err := e.volumeLocked(desc.Name, partition)
	if err != nil {
		return nil, err
	}
	ix, err := index.Open(st, desc.Name, attribute, partition)
	if err != nil {
		return nil, err
	}
	e.indexes[k] = ix
	return ix, nil
}

func (e *Engine) relationships(entityType, attribute string) (*relationship.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := relKey{entityType, attribute}
	if rs, ok := e.rels[k]; ok {
		return rs, nil
	}
	rs, err := relationship.Open(e.main, entityType, attribute)
	if err != nil {
		return nil, err
	}
	e.rels[k] = rs
	return rs, nil
}

func partitionFileName(entityType string) func(uint64) string {
	return func(id uint64) string {
		return fmt.Sprintf("%s-%d.vol", entityType, id)
	}
}
