// Package s3 provides an S3 implementation of the blobstore.BlobStore interface
// and a DynamoDB backed backup catalog.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("backups/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	m, err := db.Backup(ctx, store, "nightly")
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads with CRC32C checksums
//   - Automatic pagination for listing
//   - Catalog with conditional writes for concurrent backup writers
package s3
