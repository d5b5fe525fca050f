package refdb_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/refdb"
	"github.com/hupe1980/refdb/blobstore"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
	"github.com/hupe1980/refdb/record"
)

func exampleDB(dir string) *refdb.DB {
	db, err := refdb.Open(dir)
	if err != nil {
		log.Fatal(err)
	}
	team := refdb.Entity("Team").
		String("name").ID("name").
		OneToMany("players", "Player", "team").
		MustBuild()
	player := refdb.Entity("Player").
		Sequence("id").
		String("name").
		Int("goals").Index("goals").
		ManyToOne("team", "Team", "players").
		MustBuild()
	if err := db.Register(team, player); err != nil {
		log.Fatal(err)
	}
	return db
}

// Example_query demonstrates saving related records and querying through a
// relationship path.
func Example_query() {
	dir, _ := os.MkdirTemp("", "refdb-example")
	defer os.RemoveAll(dir)

	ctx := context.Background()
	db := exampleDB(dir)
	defer db.Close()

	_, _ = db.Save(ctx, "Team", record.Record{"name": record.String("Lions")})
	_, _ = db.Save(ctx, "Team", record.Record{"name": record.String("Bears")})
	for name, goals := range map[string]int64{"Ada": 12, "Bo": 3, "Cy": 7} {
		_, _ = db.Save(ctx, "Player", record.Record{
			"name":  record.String(name),
			"goals": record.Int(goals),
			"team":  record.String("Lions"),
		})
	}

	for res, err := range db.Query("Player").
		Where(query.Eq("team.name", record.String("Lions"))).
		Where(query.Gt("goals", record.Int(5))).
		OrderBy(query.Desc("goals")).
		Records(ctx) {
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(res.Record.Get("name").StringValue(), res.Record.Get("goals").I64)
	}
	// Output:
	// Ada 12
	// Cy 7
}

// Example_changeListener demonstrates a query that keeps reporting new
// matches.
func Example_changeListener() {
	dir, _ := os.MkdirTemp("", "refdb-example")
	defer os.RemoveAll(dir)

	ctx := context.Background()
	db := exampleDB(dir)
	defer db.Close()

	b := db.Query("Player").
		Where(query.Gte("goals", record.Int(10))).
		Listen(&query.ListenerFuncs{
			Added: func(_ model.Reference, rec record.Record) {
				fmt.Println("added", rec.Get("name").StringValue())
			},
		})
	if _, err := b.Execute(ctx); err != nil {
		log.Fatal(err)
	}
	defer db.RemoveChangeListener(b.Query())

	_, _ = db.Save(ctx, "Player", record.Record{"name": record.String("Ada"), "goals": record.Int(12)})
	_, _ = db.Save(ctx, "Player", record.Record{"name": record.String("Bo"), "goals": record.Int(3)})
	// Output: added Ada
}

// Example_backup demonstrates copying a database into a blob store and
// restoring it elsewhere.
func Example_backup() {
	dir, _ := os.MkdirTemp("", "refdb-example")
	defer os.RemoveAll(dir)

	ctx := context.Background()
	db := exampleDB(dir + "/live")
	_, _ = db.Save(ctx, "Team", record.Record{"name": record.String("Lions")})

	store := blobstore.NewMemoryStore()
	m, err := db.Backup(ctx, store, "nightly")
	if err != nil {
		log.Fatal(err)
	}
	_ = db.Close()

	if _, err := refdb.Restore(ctx, store, m.Name, dir+"/restored"); err != nil {
		log.Fatal(err)
	}
	restored := exampleDB(dir + "/restored")
	defer restored.Close()

	n, _ := restored.Query("Team").Count(ctx)
	fmt.Println(m.Name, n)
	// Output: nightly 1
}
