// Package minio stores refdb backups in MinIO or another S3-compatible
// server through the MinIO Go client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := minioblob.NewStore(client, "refdb", minioblob.WithPrefix("backups/"))
//	if err := store.EnsureBucket(ctx, ""); err != nil {
//	    log.Fatal(err)
//	}
//	m, err := db.Backup(ctx, store, "nightly")
//
// Blobs opened for reading pin the ETag seen by Open, so a backup file
// replaced underneath a running restore fails instead of mixing versions.
package minio
