package refdb_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refdb"
	"github.com/hupe1980/refdb/backup"
	"github.com/hupe1980/refdb/blobstore"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
	"github.com/hupe1980/refdb/record"
)

func register(t *testing.T, db *refdb.DB) {
	t.Helper()
	team := refdb.Entity("Team").
		Sequence("id").
		String("name").
		String("city").
		OneToMany("players", "Player", "team").
		LoadFactor(4).
		MustBuild()
	player := refdb.Entity("Player").
		String("id").ID("id").
		Int("goals").Index("goals").
		String("league").PartitionBy("league").
		ManyToOne("team", "Team", "players").
		LoadFactor(4).
		MustBuild()
	require.NoError(t, db.Register(team, player))
}

func openDB(t *testing.T, dir string, opts ...refdb.Option) *refdb.DB {
	t.Helper()
	db, err := refdb.Open(dir, opts...)
	require.NoError(t, err)
	register(t, db)
	return db
}

func newDB(t *testing.T, opts ...refdb.Option) *refdb.DB {
	t.Helper()
	db := openDB(t, t.TempDir(), opts...)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func player(id, league string, goals int64) record.Record {
	return record.Record{
		"id":     record.String(id),
		"league": record.String(league),
		"goals":  record.Int(goals),
	}
}

func mustSave(t *testing.T, db *refdb.DB, entityType string, rec record.Record) model.Reference {
	t.Helper()
	ref, err := db.Save(context.Background(), entityType, rec)
	require.NoError(t, err)
	return ref
}

func TestSaveAndQuery(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	for _, name := range []string{"C", "A", "B"} {
		mustSave(t, db, "Team", record.Record{"name": record.String(name), "city": record.String("Oslo")})
	}

	refs, err := db.Query("Team").
		Where(query.Eq("city", record.String("Oslo"))).
		OrderBy(query.Asc("name")).
		Page(1, 1).
		Execute(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)

	rec, err := db.Get(ctx, "Team", refs[0])
	require.NoError(t, err)
	assert.Equal(t, "B", rec.Get("name").StringValue())

	n, err := db.Query("Team").Page(0, 1).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "count ignores paging")

	var names []string
	for res, err := range db.Query("Team").OrderBy(query.Desc("name")).Records(ctx) {
		require.NoError(t, err)
		names = append(names, res.Record.Get("name").StringValue())
	}
	assert.Equal(t, []string{"C", "B", "A"}, names)

	first, err := db.Query("Team").Where(query.StartsWith("name", "A")).First(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Record.Get("id").I64)

	_, err = db.Query("Team").Where(query.Eq("name", record.String("Z"))).First(ctx)
	require.ErrorIs(t, err, refdb.ErrNotFound)

	ok, err := db.Query("Team").Where(query.Eq("name", record.String("Z"))).Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWhereCombinesWithAnd(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	mustSave(t, db, "Team", record.Record{"name": record.String("A"), "city": record.String("Oslo")})
	mustSave(t, db, "Team", record.Record{"name": record.String("B"), "city": record.String("Oslo")})
	mustSave(t, db, "Team", record.Record{"name": record.String("A"), "city": record.String("Rome")})

	n, err := db.Query("Team").
		Where(query.Eq("name", record.String("A"))).
		Where(query.Eq("city", record.String("Oslo"))).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPartitionedQueries(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	mustSave(t, db, "Player", player("p1", "east", 3))
	mustSave(t, db, "Player", player("p2", "east", 12))
	west := mustSave(t, db, "Player", player("p3", "west", 15))

	n, err := db.Query("Player").Where(query.Gte("goals", record.Int(10))).AllPartitions().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	refs, err := db.Query("Player").
		Where(query.Gte("goals", record.Int(10))).
		InPartition(record.String("west")).
		Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Reference{west}, refs)

	parts := db.Partitions("Player")
	require.Len(t, parts, 2)
	assert.Equal(t, "east", parts[0].Value.StringValue())

	ref, rec, err := db.FindByID(ctx, "Player", record.String("p3"), record.String("west"))
	require.NoError(t, err)
	assert.Equal(t, west, ref)
	assert.Equal(t, int64(15), rec.Get("goals").I64)
}

func TestRelationshipPaths(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	mustSave(t, db, "Player", player("p1", "east", 3))
	p2 := mustSave(t, db, "Player", player("p2", "east", 9))
	lions := mustSave(t, db, "Team", record.Record{"name": record.String("Lions"), "players": record.Strings("p1", "p2")})
	mustSave(t, db, "Team", record.Record{"name": record.String("Bears")})

	refs, err := db.Query("Team").Where(query.Gt("players.goals", record.Int(5))).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Reference{lions}, refs)

	refs, err = db.Query("Player").
		Where(query.Eq("team.name", record.String("Lions"))).
		AllPartitions().
		Execute(ctx)
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	team, err := db.Related(ctx, "Player", p2, "team")
	require.NoError(t, err)
	assert.Equal(t, []model.Reference{lions}, team)
}

func TestUpdateAndDeleteThroughBuilder(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	for _, city := range []string{"X", "Y", "X"} {
		mustSave(t, db, "Team", record.Record{"name": record.String("t"), "city": record.String(city)})
	}

	n, err := db.Query("Team").
		Where(query.Eq("city", record.String("X"))).
		Set("name", record.String("renamed")).
		Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = db.Query("Team").Where(query.Eq("name", record.String("renamed"))).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = db.Query("Team").Where(query.Eq("city", record.String("X"))).Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = db.Query("Team").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type recorder struct {
	mu             sync.Mutex
	added, removed []model.Reference
}

func (r *recorder) listener() *query.ListenerFuncs {
	return &query.ListenerFuncs{
		Added: func(ref model.Reference, _ record.Record) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.added = append(r.added, ref)
		},
		Removed: func(ref model.Reference, _ record.Record) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.removed = append(r.removed, ref)
		},
	}
}

func TestChangeListener(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	rec := &recorder{}
	b := db.Query("Team").Where(query.Eq("city", record.String("Oslo"))).Listen(rec.listener())
	refs, err := b.Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, refs)

	added := mustSave(t, db, "Team", record.Record{"name": record.String("A"), "city": record.String("Oslo")})
	mustSave(t, db, "Team", record.Record{"name": record.String("B"), "city": record.String("Rome")})
	require.NoError(t, db.Delete(ctx, "Team", added))

	assert.Equal(t, []model.Reference{added}, rec.added)
	assert.Equal(t, []model.Reference{added}, rec.removed)

	assert.True(t, db.RemoveChangeListener(b.Query()))
	assert.False(t, db.RemoveChangeListener(b.Query()))

	mustSave(t, db, "Team", record.Record{"name": record.String("C"), "city": record.String("Oslo")})
	assert.Len(t, rec.added, 1)
}

func TestErrorTranslation(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	_, err := db.Query("Coach").Execute(ctx)
	var typeErr *refdb.EntityTypeNotFoundError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "Coach", typeErr.EntityType)

	_, err = db.Query("Team").Where(query.Eq("color", record.String("red"))).Execute(ctx)
	var attrErr *refdb.AttributeNotFoundError
	require.ErrorAs(t, err, &attrErr)
	assert.Equal(t, "color", attrErr.Attribute)

	_, err = db.Query("Team").Where(query.Eq("coach.name", record.String("x"))).Execute(ctx)
	var relErr *refdb.RelationshipNotFoundError
	require.ErrorAs(t, err, &relErr)

	_, err = db.Query("Team").InPartition(record.String("x")).Execute(ctx)
	var invalid *refdb.InvalidQueryError
	require.ErrorAs(t, err, &invalid)

	_, err = db.Save(ctx, "Team", record.Record{"name": record.Int(3)})
	require.ErrorIs(t, err, refdb.ErrInvalidValue)

	_, err = db.Save(ctx, "Player", record.Record{"goals": record.Int(3)})
	require.ErrorIs(t, err, refdb.ErrMissingIdentifier)

	_, err = db.Get(ctx, "Team", model.NewReference(42))
	require.ErrorIs(t, err, refdb.ErrNotFound)
}

func TestSaveAllWithConstraints(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	require.NoError(t, db.Register(refdb.Entity("Stadium").
		Sequence("id").
		String("name").NotNull("name").MaxSize("name", 12).
		Int("capacity").
		MustBuild()))

	refs, err := db.SaveAll(ctx, "Stadium", []record.Record{
		{"name": record.String("Anfield"), "capacity": record.Int(61000)},
		{"name": record.String("Old Trafford"), "capacity": record.Int(74000)},
	})
	require.NoError(t, err)
	require.Len(t, refs, 2)

	refs, err = db.SaveAll(ctx, "Stadium", []record.Record{
		{"name": record.String("Camp Nou")},
		{"capacity": record.Int(1)},
		{"name": record.String("Signal Iduna Park")},
	})
	require.ErrorIs(t, err, refdb.ErrConstraintViolation)
	assert.Len(t, refs, 1)

	_, err = db.Save(ctx, "Stadium", record.Record{"name": record.String("Estadio Santiago Bernabeu")})
	require.ErrorIs(t, err, refdb.ErrConstraintViolation)

	n, err := db.Query("Stadium").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db := openDB(t, dir)
	mustSave(t, db, "Team", record.Record{"name": record.String("A")})

	require.NoError(t, db.Close())
	require.ErrorIs(t, db.Close(), refdb.ErrClosed)

	_, err := db.Save(ctx, "Team", record.Record{"name": record.String("B")})
	require.ErrorIs(t, err, refdb.ErrClosed)

	db = openDB(t, dir)
	defer db.Close()
	n, err := db.Query("Team").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, refdb.WithJournal("journal.log", refdb.DurabilitySync))
	mustSave(t, db, "Player", player("p1", "east", 3))
	mustSave(t, db, "Player", player("p2", "west", 7))
	mustSave(t, db, "Team", record.Record{"name": record.String("A"), "players": record.Strings("p1")})

	store := blobstore.NewMemoryStore()
	m, err := db.Backup(ctx, store, "", backup.WithCompression(backup.CompressionLZ4))
	require.NoError(t, err)
	assert.Len(t, m.Files, 4)

	names, err := backup.List(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{m.Name}, names)

	dir := filepath.Join(t.TempDir(), "restored")
	_, err = refdb.Restore(ctx, store, m.Name, dir)
	require.NoError(t, err)

	restored := openDB(t, dir)
	defer restored.Close()

	n, err := restored.Query("Player").AllPartitions().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	refs, err := restored.Query("Team").Where(query.Eq("players.id", record.String("p1"))).Execute(ctx)
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	_, err = refdb.Restore(ctx, store, m.Name, dir)
	require.ErrorIs(t, err, backup.ErrExists)
}

func TestReplayJournal(t *testing.T) {
	ctx := context.Background()
	src := openDB(t, t.TempDir(), refdb.WithJournal("journal.log", refdb.DurabilitySync))
	mustSave(t, src, "Player", player("p1", "east", 3))
	mustSave(t, src, "Team", record.Record{"name": record.String("A")})
	require.NoError(t, src.Close())

	dst := newDB(t)
	n, err := dst.ReplayJournal(ctx, filepath.Join(src.Dir(), "journal.log"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, _, err = dst.FindByID(ctx, "Player", record.String("p1"), record.String("east"))
	require.NoError(t, err)
}

func TestMetricsAndStats(t *testing.T) {
	ctx := context.Background()
	metrics := &refdb.BasicMetricsCollector{}
	db := newDB(t, refdb.WithMetricsCollector(metrics), refdb.WithScanWorkers(2))

	ref := mustSave(t, db, "Team", record.Record{"name": record.String("A")})
	mustSave(t, db, "Team", record.Record{"id": record.Int(1), "name": record.String("B")})
	mustSave(t, db, "Player", player("p1", "east", 3))
	require.NoError(t, db.Delete(ctx, "Team", ref))
	_, err := db.Query("Team").Execute(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), metrics.SaveCount.Load())
	assert.Equal(t, int64(2), metrics.InsertCount.Load())
	assert.Equal(t, int64(1), metrics.DeleteCount.Load())
	assert.Equal(t, int64(1), metrics.ScanCount.Load())

	stats := db.Stats()
	assert.Equal(t, 2, stats.EntityTypes)
	assert.Equal(t, 1, stats.Partitions)
	assert.Equal(t, int64(2), stats.ScanWorkers)
}

func TestLoggerReceivesFailures(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := refdb.NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	db := newDB(t, refdb.WithLogger(logger))

	_, err := db.Save(ctx, "Coach", record.Record{})
	require.Error(t, err)
	assert.True(t, errors.As(err, new(*refdb.EntityTypeNotFoundError)))
	assert.Contains(t, buf.String(), `"msg":"save failed"`)
	assert.Contains(t, buf.String(), `"entity":"Coach"`)
}
