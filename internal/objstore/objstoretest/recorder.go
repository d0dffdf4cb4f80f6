// Package objstoretest provides a call-recording objstore.Client for tests.
package objstoretest

import (
	"context"
	"io"
	"sync"

	"github.com/aweris/s3cache/internal/objstore"
)

// Operation names recorded by Recorder.
const (
	OpExists   = "exists"
	OpGet      = "get"
	OpPut      = "put"
	OpInitiate = "initiate"
	OpPart     = "part"
	OpComplete = "complete"
	OpAbort    = "abort"
)

// Call is one recorded client call.
type Call struct {
	Op           string
	Bucket       string
	Path         string
	PartNumber   int
	Size         int64
	StorageClass objstore.StorageClass
	ContentType  string
	Parts        []objstore.Part
}

// Recorder wraps a Client, records every call and optionally fails calls.
type Recorder struct {
	objstore.Client

	mu    sync.Mutex
	calls []Call
	fail  map[string]error
}

// NewRecorder wraps c. A nil c records against a fresh objstore.Memory.
func NewRecorder(c objstore.Client) *Recorder {
	if c == nil {
		c = objstore.NewMemory()
	}
	return &Recorder{Client: c, fail: make(map[string]error)}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (r *Recorder) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, op)
		return
	}
	r.fail[op] = err
}

// Calls returns a copy of the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many calls of op were recorded.
func (r *Recorder) Count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Filter returns the recorded calls of op in order.
func (r *Recorder) Filter(op string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset drops recorded calls and injected failures.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.fail = make(map[string]error)
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.fail[c.Op]
}

func (r *Recorder) Exists(ctx context.Context, bucket, path string) (bool, error) {
	if err := r.record(Call{Op: OpExists, Bucket: bucket, Path: path}); err != nil {
		return false, err
	}
	return r.Client.Exists(ctx, bucket, path)
}

func (r *Recorder) GetObject(ctx context.Context, bucket, path string) (io.ReadCloser, int64, error) {
	if err := r.record(Call{Op: OpGet, Bucket: bucket, Path: path}); err != nil {
		return nil, 0, err
	}
	return r.Client.GetObject(ctx, bucket, path)
}

func (r *Recorder) PutObject(ctx context.Context, bucket, path string, body io.Reader, size int64, opts objstore.PutOptions) error {
	err := r.record(Call{
		Op:           OpPut,
		Bucket:       bucket,
		Path:         path,
		Size:         size,
		StorageClass: opts.StorageClass,
		ContentType:  opts.ContentType,
	})
	if err != nil {
		return err
	}
	return r.Client.PutObject(ctx, bucket, path, body, size, opts)
}

func (r *Recorder) InitiateMultipartUpload(ctx context.Context, bucket, path string, opts objstore.PutOptions) (string, error) {
	err := r.record(Call{
		Op:           OpInitiate,
		Bucket:       bucket,
		Path:         path,
		StorageClass: opts.StorageClass,
		ContentType:  opts.ContentType,
	})
	if err != nil {
		return "", err
	}
	return r.Client.InitiateMultipartUpload(ctx, bucket, path, opts)
}

func (r *Recorder) UploadPart(ctx context.Context, bucket, path, uploadID string, partNumber int, body io.Reader, size int64) (string, error) {
	if err := r.record(Call{Op: OpPart, Bucket: bucket, Path: path, PartNumber: partNumber, Size: size}); err != nil {
		return "", err
	}
	return r.Client.UploadPart(ctx, bucket, path, uploadID, partNumber, body, size)
}

func (r *Recorder) CompleteMultipartUpload(ctx context.Context, bucket, path, uploadID string, parts []objstore.Part) error {
	err := r.record(Call{
		Op:     OpComplete,
		Bucket: bucket,
		Path:   path,
		Parts:  append([]objstore.Part(nil), parts...),
	})
	if err != nil {
		return err
	}
	return r.Client.CompleteMultipartUpload(ctx, bucket, path, uploadID, parts)
}

func (r *Recorder) AbortMultipartUpload(ctx context.Context, bucket, path, uploadID string) error {
	if err := r.record(Call{Op: OpAbort, Bucket: bucket, Path: path}); err != nil {
		return err
	}
	return r.Client.AbortMultipartUpload(ctx, bucket, path, uploadID)
}
