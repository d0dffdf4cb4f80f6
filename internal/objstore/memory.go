package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Object is a stored object as seen by the Memory backend.
type Object struct {
	Data []byte
	Opts PutOptions
}

type memoryUpload struct {
	bucket string
	path   string
	opts   PutOptions
	parts  map[int][]byte
}

// Memory is an in-process Client. Objects live until the value is dropped.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]Object
	uploads map[string]*memoryUpload
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]Object),
		uploads: make(map[string]*memoryUpload),
	}
}

func (m *Memory) Type() string { return "Memory" }

func (m *Memory) Endpoint() string { return "memory://" }

func (m *Memory) Exists(ctx context.Context, bucket, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[objectKey(bucket, path)]
	return ok, nil
}

func (m *Memory) GetObject(ctx context.Context, bucket, path string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	obj, ok := m.objects[objectKey(bucket, path)]
	m.mu.RUnlock()
	if !ok {
		return nil, 0, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), int64(len(obj.Data)), nil
}

func (m *Memory) PutObject(ctx context.Context, bucket, path string, r io.Reader, size int64, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := readExactly(r, size)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[objectKey(bucket, path)] = Object{Data: data, Opts: opts}
	m.mu.Unlock()
	return nil
}

func (m *Memory) InitiateMultipartUpload(ctx context.Context, bucket, path string, opts PutOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	m.mu.Lock()
	m.uploads[id] = &memoryUpload{bucket: bucket, path: path, opts: opts, parts: make(map[int][]byte)}
	m.mu.Unlock()
	return id, nil
}

func (m *Memory) UploadPart(ctx context.Context, bucket, path, uploadID string, partNumber int, r io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if partNumber < 1 {
		return "", fmt.Errorf("%w: number %d", ErrInvalidPart, partNumber)
	}
	data, err := readExactly(r, size)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	up, err := m.upload(bucket, path, uploadID)
	if err != nil {
		return "", err
	}
	up.parts[partNumber] = data
	return partETag(data), nil
}

func (m *Memory) CompleteMultipartUpload(ctx context.Context, bucket, path, uploadID string, parts []Part) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	up, err := m.upload(bucket, path, uploadID)
	if err != nil {
		return err
	}
	if err := checkPartOrder(parts); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, p := range parts {
		data, ok := up.parts[p.Number]
		if !ok || partETag(data) != p.ETag {
			return fmt.Errorf("%w: number %d", ErrInvalidPart, p.Number)
		}
		buf.Write(data)
	}
	m.objects[objectKey(bucket, path)] = Object{Data: buf.Bytes(), Opts: up.opts}
	delete(m.uploads, uploadID)
	return nil
}

func (m *Memory) AbortMultipartUpload(ctx context.Context, bucket, path, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.upload(bucket, path, uploadID); err != nil {
		return err
	}
	delete(m.uploads, uploadID)
	return nil
}

// Object returns a copy of the object stored at path.
func (m *Memory) Object(bucket, path string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectKey(bucket, path)]
	if !ok {
		return Object{}, false
	}
	obj.Data = bytes.Clone(obj.Data)
	return obj, true
}

// Paths lists the stored object paths of bucket in sorted order.
func (m *Memory) Paths(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := bucket + "/"
	var out []string
	for k := range m.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k[len(prefix):])
		}
	}
	sort.Strings(out)
	return out
}

// PendingUploads returns the number of multipart uploads neither completed nor aborted.
func (m *Memory) PendingUploads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.uploads)
}

func (m *Memory) upload(bucket, path, uploadID string) (*memoryUpload, error) {
	up, ok := m.uploads[uploadID]
	if !ok || up.bucket != bucket || up.path != path {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchUpload, uploadID)
	}
	return up, nil
}

func objectKey(bucket, path string) string {
	return bucket + "/" + path
}
