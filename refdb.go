package refdb

import (
	"context"
	"time"

	"github.com/hupe1980/refdb/backup"
	"github.com/hupe1980/refdb/blobstore"
	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/internal/engine"
	"github.com/hupe1980/refdb/internal/resource"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
	"github.com/hupe1980/refdb/record"
)

// DB is an open database directory. It is safe for concurrent use.
type DB struct {
	eng    *engine.Engine
	rc     *resource.Controller
	logger *Logger
}

// Open opens or creates the database in dir.
//
// Example:
//
//	db, err := refdb.Open("./data",
//	    refdb.WithJournal("journal.log", refdb.DurabilitySync),
//	    refdb.WithLogger(refdb.NewJSONLogger(slog.LevelInfo)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
func Open(dir string, opts ...Option) (*DB, error) {
	o := applyOptions(opts)

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   o.memoryLimit,
		ScanWorkers:        o.scanWorkers,
		IOLimitBytesPerSec: o.ioLimit,
	})

	engOpts := []engine.Option{
		engine.WithLogger(o.logger.Logger),
		engine.WithResourceController(rc),
		engine.WithMetricsObserver(observer{o.metricsCollector}),
	}
	if o.loadFactor != 0 {
		engOpts = append(engOpts, engine.WithLoadFactor(o.loadFactor))
	}
	if o.cacheSet {
		engOpts = append(engOpts, engine.WithCacheCapacity(o.cacheCapacity))
	}
	if o.journalPath != "" {
		engOpts = append(engOpts, engine.WithJournal(o.journalPath, o.durability))
	}

	eng, err := engine.Open(dir, engOpts...)
	if err != nil {
		return nil, translateError("open", err)
	}
	return &DB{eng: eng, rc: rc, logger: o.logger}, nil
}

// Dir returns the database directory.
func (db *DB) Dir() string { return db.eng.Dir() }

// Register adds entity types. Relationship inverses may name types that are
// registered later.
func (db *DB) Register(descs ...*entity.Descriptor) error {
	for _, d := range descs {
		if err := db.eng.Register(d); err != nil {
			return translateError("register", err)
		}
	}
	return nil
}

// Descriptor returns the registered descriptor of entityType.
func (db *DB) Descriptor(entityType string) (*entity.Descriptor, bool) {
	return db.eng.Registry().Lookup(entityType)
}

// Save inserts or updates rec, keyed by its identifier. Types with a
// sequence identifier get one assigned when rec has none. Relationship
// attributes hold the identifiers of the related records.
func (db *DB) Save(ctx context.Context, entityType string, rec record.Record) (model.Reference, error) {
	ref, err := db.eng.Save(ctx, entityType, rec)
	db.logger.LogSave(ctx, entityType, ref, err)
	return ref, translateError("save", err)
}

// SaveAll saves recs of entityType in order without interleaving other
// writes. It stops at the first failure and returns the references saved
// before it.
func (db *DB) SaveAll(ctx context.Context, entityType string, recs []record.Record) ([]model.Reference, error) {
	refs, err := db.eng.SaveAll(ctx, entityType, recs)
	db.logger.LogSaveAll(ctx, entityType, len(refs), err)
	return refs, translateError("save all", err)
}

// Get returns the record behind ref.
func (db *DB) Get(ctx context.Context, entityType string, ref model.Reference) (record.Record, error) {
	rec, err := db.eng.Get(ctx, entityType, ref)
	return rec, translateError("get", err)
}

// FindByID returns the record with identifier id. partitionValue selects
// the partition of partitioned types; record.Null() selects records saved
// without a partition value.
func (db *DB) FindByID(ctx context.Context, entityType string, id, partitionValue record.Value) (model.Reference, record.Record, error) {
	ref, rec, err := db.eng.FindByID(ctx, entityType, id, partitionValue)
	return ref, rec, translateError("find", err)
}

// Delete removes the record behind ref together with its index entries and
// relationship lists.
func (db *DB) Delete(ctx context.Context, entityType string, ref model.Reference) error {
	err := db.eng.Delete(ctx, entityType, ref)
	db.logger.LogDelete(ctx, entityType, ref, err)
	return translateError("delete", err)
}

// SetRelationships replaces the relationship list of attribute on ref with
// ids and maintains the inverse lists.
func (db *DB) SetRelationships(ctx context.Context, entityType string, ref model.Reference, attribute string, ids ...record.Value) error {
	return translateError("relate", db.eng.SetRelationships(ctx, entityType, ref, attribute, ids...))
}

// Related returns the references the relationship attribute of ref points to.
func (db *DB) Related(ctx context.Context, entityType string, ref model.Reference, attribute string) ([]model.Reference, error) {
	refs, err := db.eng.Related(ctx, entityType, ref, attribute)
	return refs, translateError("related", err)
}

// Scan executes q and returns the matching references. A query with a
// listener stays registered until RemoveChangeListener.
func (db *DB) Scan(ctx context.Context, q *query.Query) ([]model.Reference, error) {
	refs, err := db.eng.Scan(ctx, q)
	db.logger.LogScan(ctx, q.EntityType, q.Criteria.String(), len(refs), err)
	return refs, translateError("scan", err)
}

// Count returns the number of matches of q, ignoring paging.
func (db *DB) Count(ctx context.Context, q *query.Query) (int, error) {
	n, err := db.eng.Count(ctx, q)
	return n, translateError("count", err)
}

// DeleteWhere deletes every match of q and returns how many were removed.
func (db *DB) DeleteWhere(ctx context.Context, q *query.Query) (int, error) {
	n, err := db.eng.DeleteWhere(ctx, q)
	return n, translateError("delete where", err)
}

// UpdateWhere applies q.Updates to every match of q and returns how many
// records changed.
func (db *DB) UpdateWhere(ctx context.Context, q *query.Query) (int, error) {
	n, err := db.eng.UpdateWhere(ctx, q)
	return n, translateError("update where", err)
}

// Listen registers q.Listener without returning results.
func (db *DB) Listen(ctx context.Context, q *query.Query) error {
	return translateError("listen", db.eng.Listen(ctx, q))
}

// RemoveChangeListener unregisters q and every listener attached to it. It
// reports whether q was registered.
func (db *DB) RemoveChangeListener(q *query.Query) bool {
	return db.eng.RemoveChangeListener(q)
}

// Partitions returns the partition catalog of entityType ordered by id.
func (db *DB) Partitions(entityType string) []model.PartitionEntry {
	return db.eng.Partitions(entityType)
}

// ReplayJournal re-applies the journal at path, e.g. one copied from
// another database, and returns the number of entries applied.
func (db *DB) ReplayJournal(ctx context.Context, path string) (int, error) {
	n, err := db.eng.ReplayJournal(ctx, path)
	db.logger.LogReplay(ctx, path, n, err)
	return n, translateError("replay", err)
}

// Sync flushes the journal and every open volume to stable storage.
func (db *DB) Sync() error {
	return translateError("sync", db.eng.Sync())
}

// Stats reports runtime counters.
type Stats struct {
	CacheHits   int64
	CacheMisses int64
	MemoryUsed  int64
	ScanWorkers int64
	BusyWorkers int64
	EntityTypes int
	Partitions  int
}

// Stats returns runtime counters of the database.
func (db *DB) Stats() Stats {
	hits, misses := db.eng.Stats()
	workers, busy := db.rc.Workers()
	s := Stats{
		CacheHits:   hits,
		CacheMisses: misses,
		MemoryUsed:  db.rc.MemoryUsage(),
		ScanWorkers: workers,
		BusyWorkers: busy,
	}
	for _, name := range db.eng.Registry().Names() {
		s.EntityTypes++
		s.Partitions += len(db.eng.Partitions(name))
	}
	return s
}

// Backup copies every volume and the journal into bs as backup name. Writes
// wait until the copy is complete. An empty name is generated.
//
// Example:
//
//	store := blobstore.NewLocalStore("/backups")
//	m, err := db.Backup(ctx, store, "nightly", backup.WithCompression(backup.CompressionZSTD))
func (db *DB) Backup(ctx context.Context, bs blobstore.BlobStore, name string, opts ...backup.Option) (*backup.Manifest, error) {
	start := time.Now()
	opts = append([]backup.Option{backup.WithThrottle(db.rc), backup.WithLogger(db.logger.Logger)}, opts...)

	var m *backup.Manifest
	err := db.eng.Snapshot(func(files []string) error {
		var err error
		m, err = backup.Export(ctx, files, bs, name, opts...)
		return err
	})
	files := 0
	if m != nil {
		files = len(m.Files)
		name = m.Name
	}
	db.logger.LogBackup(ctx, "export", name, files, err)
	if err != nil {
		return nil, translateError("backup", err)
	}
	db.logger.DebugContext(ctx, "backup finished", "name", name, "duration", time.Since(start))
	return m, nil
}

// Restore writes backup name from bs into dir, which must not contain any of
// the backed up files. Open dir afterwards to use the restored database.
func Restore(ctx context.Context, bs blobstore.BlobStore, name, dir string, opts ...backup.Option) (*backup.Manifest, error) {
	return backup.Restore(ctx, bs, name, dir, opts...)
}
