// Package s3cache provides a remote artifact cache keyed by content hash and
// backed by an object store.
//
// Entries are stored one object per key. Small entries are written with a
// single put; entries larger than one chunk are streamed as a multipart
// upload, so memory use stays bounded by the chunk size whatever the entry
// size.
//
// Basic usage:
//
//	client, _ := s3cache.NewS3(s3cache.S3Config{Region: "eu-west-1"})
//	cache, _ := s3cache.New(client, "build-cache", s3cache.WithPrefix("ci"))
//
//	// Store an entry
//	err := cache.Store(ctx, "9f86d081884c7d65", func(w io.Writer) error {
//	    _, err := w.Write(artifact)
//	    return err
//	})
//
//	// Load it back
//	found, err := cache.Load(ctx, "9f86d081884c7d65", func(r io.Reader) error {
//	    _, err := io.Copy(dst, r)
//	    return err
//	})
//
// Stores use the streaming strategy by default. WithStrategy(s3cache.Buffered)
// spills each entry to a temporary file first and uploads it with one put.
package s3cache
