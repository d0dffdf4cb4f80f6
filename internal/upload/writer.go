// Package upload implements a bounded-memory object writer that starts as a
// single put and upgrades to a multipart upload once the data outgrows one
// chunk.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aweris/s3cache/internal/objstore"
)

// DefaultChunkSize is the buffer capacity and the size of every multipart
// part except the last.
const DefaultChunkSize = 1_000_000

// ErrInvalidState is returned when a Writer is used after Close or Cancel,
// or before it was created with New.
var ErrInvalidState = errors.New("upload: writer closed")

// Options configures a Writer. The zero value uses DefaultChunkSize and the
// store's default storage class.
type Options struct {
	ChunkSize    int
	StorageClass objstore.StorageClass
	ContentType  string
	Metadata     map[string]string
}

type state int

const (
	stateBuffering state = iota
	stateMultipart
	stateCompleted
	stateAborted
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateBuffering:
		return "buffering"
	case stateMultipart:
		return "multipart"
	case stateCompleted:
		return "completed"
	case stateAborted:
		return "aborted"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Writer buffers one chunk at a time. Data that fits in a single chunk is
// stored with one PutObject on Close; larger data is sent as numbered parts
// of a multipart upload that Close completes.
//
// Write, Flush, Close and Cancel are meant for one caller at a time. The
// mutex only keeps a flush from interleaving with a Write.
type Writer struct {
	mu sync.Mutex

	ctx    context.Context
	client objstore.Client
	bucket string
	path   string
	opts   Options

	buf []byte
	n   int

	state    state
	uploadID string
	parts    []objstore.Part
	written  int64
	err      error
}

// New returns a Writer storing to path in bucket. No call reaches the store
// until the first chunk overflows or Close is called.
func New(ctx context.Context, client objstore.Client, bucket, path string, opts Options) *Writer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Writer{
		ctx:    ctx,
		client: client,
		bucket: bucket,
		path:   path,
		opts:   opts,
	}
}

// Write appends p to the buffer. Each time the buffer fills and more input
// is pending, the buffer is uploaded as the next part.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.usable(); err != nil {
		return 0, err
	}
	if w.buf == nil {
		w.buf = make([]byte, w.opts.ChunkSize)
	}

	total := 0
	for len(p) > len(w.buf)-w.n {
		k := copy(w.buf[w.n:], p)
		w.n += k
		w.written += int64(k)
		total += k
		p = p[k:]
		if err := w.flushChunk(); err != nil {
			w.fail(err)
			return total, err
		}
	}
	k := copy(w.buf[w.n:], p)
	w.n += k
	w.written += int64(k)
	return total + k, nil
}

// Flush is accepted for io compatibility but sends nothing; parts only go out
// on overflow or Close.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.usable()
}

// Close stores the buffered data. With an active multipart upload the
// remainder becomes the last part and the upload is completed; otherwise the
// whole buffer is stored with a single put. Closing a completed writer is a
// no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == stateCompleted {
		return nil
	}
	if err := w.usable(); err != nil {
		return err
	}

	var err error
	if w.state == stateMultipart {
		err = w.completeMultipart()
	} else {
		err = w.client.PutObject(w.ctx, w.bucket, w.path, bytes.NewReader(w.buf[:w.n]), int64(w.n), w.putOptions())
		if err != nil {
			err = fmt.Errorf("put object %s: %w", w.path, err)
		}
	}
	if err != nil {
		w.fail(err)
		return err
	}
	w.state = stateCompleted
	w.buf = nil
	return nil
}

// Cancel discards the writer without storing anything and aborts the
// multipart upload if one was started. It is a no-op after a successful Close.
func (w *Writer) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == stateCompleted || w.state == stateAborted {
		return nil
	}
	w.state = stateAborted
	w.buf = nil
	w.n = 0

	if w.uploadID == "" || w.client == nil {
		return nil
	}
	id := w.uploadID
	w.uploadID = ""
	if err := w.client.AbortMultipartUpload(context.WithoutCancel(w.ctx), w.bucket, w.path, id); err != nil {
		return fmt.Errorf("abort multipart upload %s: %w", id, err)
	}
	return nil
}

// Written returns the number of bytes accepted by Write.
func (w *Writer) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Parts returns the number of parts uploaded so far.
func (w *Writer) Parts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.parts)
}

// Multipart reports whether the writer switched to a multipart upload.
func (w *Writer) Multipart() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.uploadID != "" || len(w.parts) > 0
}

// usable returns the error that Write, Flush and Close must fail with, if any.
// A failed writer keeps returning its first error.
func (w *Writer) usable() error {
	switch {
	case w.client == nil:
		return ErrInvalidState
	case w.state == stateFailed:
		return w.err
	case w.state == stateCompleted || w.state == stateAborted:
		return fmt.Errorf("%w: %s", ErrInvalidState, w.state)
	}
	return nil
}

func (w *Writer) fail(err error) {
	w.state = stateFailed
	w.err = err
}

// flushChunk uploads the buffer as the next part, starting the multipart
// upload on the first call.
func (w *Writer) flushChunk() error {
	if w.uploadID == "" {
		id, err := w.client.InitiateMultipartUpload(w.ctx, w.bucket, w.path, w.putOptions())
		if err != nil {
			return fmt.Errorf("initiate multipart upload %s: %w", w.path, err)
		}
		w.uploadID = id
		w.state = stateMultipart
	}

	number := len(w.parts) + 1
	etag, err := w.client.UploadPart(w.ctx, w.bucket, w.path, w.uploadID, number, bytes.NewReader(w.buf[:w.n]), int64(w.n))
	if err != nil {
		return fmt.Errorf("upload part %d of %s: %w", number, w.path, err)
	}
	w.parts = append(w.parts, objstore.Part{Number: number, ETag: etag})
	w.n = 0
	return nil
}

func (w *Writer) completeMultipart() error {
	if w.n > 0 {
		if err := w.flushChunk(); err != nil {
			return err
		}
	}
	if err := w.client.CompleteMultipartUpload(w.ctx, w.bucket, w.path, w.uploadID, w.parts); err != nil {
		return fmt.Errorf("complete multipart upload %s: %w", w.path, err)
	}
	w.uploadID = ""
	return nil
}

func (w *Writer) putOptions() objstore.PutOptions {
	return objstore.PutOptions{
		StorageClass: w.opts.StorageClass,
		ContentType:  w.opts.ContentType,
		Metadata:     w.opts.Metadata,
	}
}
