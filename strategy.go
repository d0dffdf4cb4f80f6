package s3cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aweris/s3cache/internal/objstore"
	"github.com/aweris/s3cache/internal/upload"
)

// Strategy names accepted by ParseStrategy.
const (
	StrategyStreaming = "streaming"
	StrategyBuffered  = "buffered"
)

var (
	// Streaming writes through a chunked upload writer. Memory use is
	// bounded by the chunk size and no local disk is used.
	Streaming Strategy = streaming{}

	// Buffered spills the whole entry to a temporary file and uploads it
	// with a single put on Close.
	Buffered Strategy = buffered{}
)

// Target describes the object an entry writer stores to.
type Target struct {
	Client       Client
	Bucket       string
	Path         string
	StorageClass StorageClass
	ContentType  string
	ChunkSize    int
	SpillDir     string
}

// EntryWriter receives the bytes of one entry. Close stores the entry;
// Cancel discards it. Exactly one of them ends every store. Closing a stored
// entry again returns nil, a failed Close keeps returning its error, and any
// call after Cancel fails with ErrInvalidState.
type EntryWriter interface {
	io.Writer
	Close() error
	Cancel() error
}

// Strategy opens the writer for one store call.
type Strategy interface {
	Name() string
	Open(ctx context.Context, t Target) (EntryWriter, error)
}

// ParseStrategy returns the strategy registered under name.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyStreaming:
		return Streaming, nil
	case StrategyBuffered:
		return Buffered, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

type streaming struct{}

func (streaming) Name() string { return StrategyStreaming }

func (streaming) Open(ctx context.Context, t Target) (EntryWriter, error) {
	return upload.New(ctx, t.Client, t.Bucket, t.Path, upload.Options{
		ChunkSize:    t.ChunkSize,
		StorageClass: t.StorageClass,
		ContentType:  t.ContentType,
	}), nil
}

type buffered struct{}

func (buffered) Name() string { return StrategyBuffered }

func (buffered) Open(ctx context.Context, t Target) (EntryWriter, error) {
	f, err := os.CreateTemp(t.SpillDir, "s3cache-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create spill file: %w", err)
	}
	return &spillWriter{ctx: ctx, target: t, file: f}, nil
}

// spillWriter materializes an entry in a temporary file. The file is removed
// by Close and by Cancel, whatever the outcome. Like upload.Writer, closing a
// stored entry again is a no-op and a failed Close keeps its error.
type spillWriter struct {
	ctx      context.Context
	target   Target
	file     *os.File
	size     int64
	closed   bool
	stored   bool
	closeErr error
}

func (w *spillWriter) usable() error {
	if w.closed {
		return fmt.Errorf("%w: spill file released", ErrInvalidState)
	}
	return nil
}

func (w *spillWriter) Write(p []byte) (int, error) {
	if err := w.usable(); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("write spill file: %w", err)
	}
	return n, nil
}

// Flush has nothing to send; the entry is uploaded by Close.
func (w *spillWriter) Flush() error { return w.usable() }

func (w *spillWriter) Close() error {
	switch {
	case w.stored:
		return nil
	case w.closeErr != nil:
		return w.closeErr
	case w.closed:
		return w.usable()
	}
	defer w.discard()

	w.closeErr = w.put()
	w.stored = w.closeErr == nil
	return w.closeErr
}

func (w *spillWriter) put() error {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spill file: %w", err)
	}
	t := w.target
	err := t.Client.PutObject(w.ctx, t.Bucket, t.Path, w.file, w.size, objstore.PutOptions{
		StorageClass: t.StorageClass,
		ContentType:  t.ContentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", t.Path, err)
	}
	return nil
}

func (w *spillWriter) Cancel() error {
	if w.closed {
		return nil
	}
	w.discard()
	return nil
}

func (w *spillWriter) discard() {
	w.closed = true
	w.file.Close()
	os.Remove(w.file.Name())
}
