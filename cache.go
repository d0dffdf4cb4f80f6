package s3cache

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Key is an opaque content hash identifying one cache entry.
type Key string

func (k Key) String() string { return string(k) }

// ReadFunc consumes the bytes of a loaded entry.
type ReadFunc func(r io.Reader) error

// WriteFunc produces the bytes of an entry being stored.
type WriteFunc func(w io.Writer) error

var errEntryTooLarge = errors.New("entry exceeds maximum size")

// Cache loads and stores entries in one bucket of an object store.
// A Cache holds no per-call state and is safe for concurrent use.
type Cache struct {
	client       Client
	bucket       string
	prefix       string
	storageClass StorageClass
	chunkSize    int
	strategy     Strategy
	spillDir     string
	maxEntrySize int64
	contentType  string
	log          logrus.FieldLogger
}

// New returns a Cache storing entries in bucket through client.
func New(client Client, bucket string, opts ...Option) (*Cache, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if bucket == "" {
		return nil, ErrBucketRequired
	}
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	storageClass := StorageClassStandard
	if options.ReducedRedundancy {
		storageClass = StorageClassReducedRedundancy
	}
	return &Cache{
		client:       client,
		bucket:       bucket,
		prefix:       options.Prefix,
		storageClass: storageClass,
		chunkSize:    options.ChunkSize,
		strategy:     options.Strategy,
		spillDir:     options.SpillDir,
		maxEntrySize: options.MaxEntrySize,
		contentType:  options.ContentType,
		log:          options.Logger,
	}, nil
}

// Path returns the object path an entry is stored at.
func (c *Cache) Path(key Key) string {
	return ResolvePath(c.prefix, string(key))
}

// Contains reports whether an entry is stored for key.
func (c *Cache) Contains(ctx context.Context, key Key) (bool, error) {
	path := c.Path(key)
	ok, err := c.client.Exists(ctx, c.bucket, path)
	if err != nil {
		return false, transferError("exists", path, err)
	}
	return ok, nil
}

// Load streams the entry for key into fn. It returns false without calling fn
// when no entry is stored or when the entry exceeds the maximum entry size.
// Failures after the entry was found are returned as a Transfer *Error.
func (c *Cache) Load(ctx context.Context, key Key, fn ReadFunc) (bool, error) {
	path := c.Path(key)
	log := c.log.WithFields(logrus.Fields{"op": "load", "bucket": c.bucket, "path": path})

	ok, err := c.client.Exists(ctx, c.bucket, path)
	if err != nil {
		return false, transferError("load", path, err)
	}
	if !ok {
		log.Debug("cache miss")
		return false, nil
	}

	rc, size, err := c.client.GetObject(ctx, c.bucket, path)
	if err != nil {
		return false, transferError("load", path, err)
	}
	defer rc.Close()

	if c.maxEntrySize > 0 && size > c.maxEntrySize {
		log.WithFields(logrus.Fields{"bytes": size, "max_bytes": c.maxEntrySize}).
			Info("entry exceeds maximum size, skipping load")
		return false, nil
	}
	if err := fn(rc); err != nil {
		return false, transferError("load", path, err)
	}
	log.WithField("bytes", size).Debug("cache hit")
	return true, nil
}

// Store runs fn against a writer for the entry of key and stores what it
// wrote, replacing any existing entry. If fn or the upload fails, the writer
// is cancelled before the error is returned. Entries exceeding the maximum
// entry size are discarded and Store returns nil.
func (c *Cache) Store(ctx context.Context, key Key, fn WriteFunc) error {
	path := c.Path(key)
	log := c.log.WithFields(logrus.Fields{
		"op":       "store",
		"bucket":   c.bucket,
		"path":     path,
		"strategy": c.strategy.Name(),
	})

	w, err := c.strategy.Open(ctx, Target{
		Client:       c.client,
		Bucket:       c.bucket,
		Path:         path,
		StorageClass: c.storageClass,
		ContentType:  c.contentType,
		ChunkSize:    c.chunkSize,
		SpillDir:     c.spillDir,
	})
	if err != nil {
		return transferError("store", path, err)
	}

	lw := &limitedWriter{w: w, max: c.maxEntrySize}
	err = fn(lw)
	if err == nil && lw.exceeded {
		err = errEntryTooLarge
	}
	if err != nil {
		c.cancel(w, log)
		if lw.exceeded {
			log.WithField("max_bytes", c.maxEntrySize).Info("entry exceeds maximum size, skipping store")
			return nil
		}
		return storeError(path, err)
	}

	if err := w.Close(); err != nil {
		c.cancel(w, log)
		return storeError(path, err)
	}
	log.WithField("bytes", lw.n).Debug("stored entry")
	return nil
}

// Close releases the client when it holds resources.
func (c *Cache) Close() error {
	if closer, ok := c.client.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// cancel aborts w. Its failure is logged and never replaces the store error.
func (c *Cache) cancel(w EntryWriter, log logrus.FieldLogger) {
	if err := w.Cancel(); err != nil {
		log.WithError(err).Warn("cancel entry upload")
	}
}

// limitedWriter counts bytes and fails once more than max were written.
// Flush is forwarded to the entry writer.
type limitedWriter struct {
	w        io.Writer
	max      int64
	n        int64
	exceeded bool
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.max > 0 && l.n+int64(len(p)) > l.max {
		l.exceeded = true
		return 0, fmt.Errorf("%w: limit %d bytes", errEntryTooLarge, l.max)
	}
	n, err := l.w.Write(p)
	l.n += int64(n)
	return n, err
}

func (l *limitedWriter) Flush() error {
	if f, ok := l.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
