// Package refdb provides an embedded, file-backed entity database for Go.
//
// Records of registered entity types live in hashed disk maps, optionally
// split into partitions by the value of one attribute. Records are linked by
// persistent relationship lists and queried through a criteria tree that can
// follow relationship paths such as "team.league.name".
//
// # Quick Start
//
//	db, _ := refdb.Open("./data", refdb.WithJournal("journal.log", refdb.DurabilitySync))
//	defer db.Close()
//
//	team := refdb.Entity("Team").String("name").ID("name").
//	    OneToMany("players", "Player", "team").MustBuild()
//	player := refdb.Entity("Player").Sequence("id").String("name").Int("goals").
//	    Index("goals").ManyToOne("team", "Team", "players").MustBuild()
//	_ = db.Register(team, player)
//
//	_, _ = db.Save(ctx, "Team", record.Record{"name": record.String("Lions")})
//	_, _ = db.Save(ctx, "Player", record.Record{
//	    "name": record.String("Ada"), "goals": record.Int(12), "team": record.String("Lions"),
//	})
//
// # Queries
//
//	refs, _ := db.Query("Player").
//	    Where(query.Eq("team.name", record.String("Lions"))).
//	    OrderBy(query.Desc("goals")).
//	    Execute(ctx)
//
// # Change Listeners
//
// A query with a listener stays registered in the query cache. Every later
// save, update or delete that adds a record to its result, changes a member
// or removes one is reported to the listener:
//
//	b := db.Query("Player").Where(query.Gte("goals", record.Int(10))).
//	    Listen(&query.ListenerFuncs{Added: onAdded})
//	_, _ = b.Execute(ctx)
//	defer db.RemoveChangeListener(b.Query())
//
// # Backups
//
// Backup copies every volume and the journal into a blobstore.BlobStore
// (local directory, Amazon S3 or MinIO) while writes are paused:
//
//	store := blobstore.NewLocalStore("/backups")
//	m, _ := db.Backup(ctx, store, "", backup.WithCompression(backup.CompressionZSTD))
//	_, _ = refdb.Restore(ctx, store, m.Name, "./restored")
package refdb
