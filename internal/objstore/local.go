package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aweris/s3cache/internal/compression"
)

const (
	DefaultLocalCacheEntries = 256
	localCacheMaxObject      = 256 * 1024
)

// LocalOptions configures a Local store.
type LocalOptions struct {
	CacheEntries     int
	CompressionLevel int
	Compression      bool
}

// Local implements Client on the local filesystem.
//
// Storage layout:
//
//	root/bucket/
//	  objects/<path>           (object body, zstd when compression is on)
//	  meta/<path>.json         (size, storage class, content type, metadata)
//	  uploads/<id>/upload.json (pending multipart upload)
//	  uploads/<id>/<n>         (raw part bodies)
//
// Bodies are written to a temp file and renamed into place, so readers see
// either the previous object or the new one.
type Local struct {
	root       string
	cache      *lru.Cache[string, []byte]
	compressor *compression.Compressor
}

type localMeta struct {
	Size         int64             `json:"size"`
	StorageClass StorageClass      `json:"storage_class,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type localUpload struct {
	Path string    `json:"path"`
	Meta localMeta `json:"meta"`
}

func NewLocal(root string, opts LocalOptions) (*Local, error) {
	if root == "" {
		return nil, errors.New("storage root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	entries := opts.CacheEntries
	if entries <= 0 {
		entries = DefaultLocalCacheEntries
	}
	cache, err := lru.New[string, []byte](entries)
	if err != nil {
		return nil, fmt.Errorf("create read cache: %w", err)
	}
	return &Local{
		root:       abs,
		cache:      cache,
		compressor: compression.NewCompressor(opts.CompressionLevel, opts.Compression),
	}, nil
}

func (s *Local) Type() string { return "Local" }

// Endpoint returns the storage root as a file URL.
func (s *Local) Endpoint() string { return "file://" + filepath.ToSlash(s.root) }

func (s *Local) Exists(ctx context.Context, bucket, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.cache.Contains(objectKey(bucket, p)) {
		return true, nil
	}
	objPath, err := s.objectPath(bucket, p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(objPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *Local) GetObject(ctx context.Context, bucket, p string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if data, ok := s.cache.Get(objectKey(bucket, p)); ok {
		return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
	}

	objPath, err := s.objectPath(bucket, p)
	if err != nil {
		return nil, 0, err
	}
	meta, err := s.readMeta(bucket, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("read metadata: %w", err)
	}
	f, err := os.Open(objPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	body, err := s.compressor.NewReader(f)
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("open decompressor: %w", err)
	}

	if meta.Size <= localCacheMaxObject {
		data, err := io.ReadAll(body)
		body.Close()
		f.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("read object: %w", err)
		}
		s.cache.Add(objectKey(bucket, p), data)
		return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
	}
	return &localReader{body: body, file: f}, meta.Size, nil
}

func (s *Local) PutObject(ctx context.Context, bucket, p string, r io.Reader, size int64, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	meta := localMeta{
		Size:         size,
		StorageClass: opts.StorageClass,
		ContentType:  opts.ContentType,
		Metadata:     opts.Metadata,
	}
	return s.commit(bucket, p, meta, func(w io.Writer) (int64, error) {
		return io.Copy(w, io.LimitReader(r, size+1))
	})
}

func (s *Local) InitiateMultipartUpload(ctx context.Context, bucket, p string, opts PutOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := s.objectPath(bucket, p); err != nil {
		return "", err
	}
	id := uuid.NewString()
	dir := s.uploadDir(bucket, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	data, err := json.Marshal(localUpload{
		Path: p,
		Meta: localMeta{StorageClass: opts.StorageClass, ContentType: opts.ContentType, Metadata: opts.Metadata},
	})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "upload.json"), data, 0o644); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("write upload manifest: %w", err)
	}
	return id, nil
}

func (s *Local) UploadPart(ctx context.Context, bucket, p, uploadID string, partNumber int, r io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if partNumber < 1 {
		return "", fmt.Errorf("%w: number %d", ErrInvalidPart, partNumber)
	}
	if _, err := s.loadUpload(bucket, p, uploadID); err != nil {
		return "", err
	}
	data, err := readExactly(r, size)
	if err != nil {
		return "", err
	}
	partPath := filepath.Join(s.uploadDir(bucket, uploadID), strconv.Itoa(partNumber))
	if err := os.WriteFile(partPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write part %d: %w", partNumber, err)
	}
	return partETag(data), nil
}

func (s *Local) CompleteMultipartUpload(ctx context.Context, bucket, p, uploadID string, parts []Part) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	up, err := s.loadUpload(bucket, p, uploadID)
	if err != nil {
		return err
	}
	if err := checkPartOrder(parts); err != nil {
		return err
	}

	dir := s.uploadDir(bucket, uploadID)
	meta := up.Meta
	err = s.commit(bucket, p, meta, func(w io.Writer) (int64, error) {
		var total int64
		for _, part := range parts {
			data, err := os.ReadFile(filepath.Join(dir, strconv.Itoa(part.Number)))
			if err != nil {
				return total, fmt.Errorf("%w: number %d: %v", ErrInvalidPart, part.Number, err)
			}
			if partETag(data) != part.ETag {
				return total, fmt.Errorf("%w: number %d: etag mismatch", ErrInvalidPart, part.Number)
			}
			n, err := w.Write(data)
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
		return total, nil
	}, withSizeFromBody())
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func (s *Local) AbortMultipartUpload(ctx context.Context, bucket, p, uploadID string) error {
	if _, err := s.loadUpload(bucket, p, uploadID); err != nil {
		return err
	}
	return os.RemoveAll(s.uploadDir(bucket, uploadID))
}

type commitOption func(*commitConfig)

type commitConfig struct {
	sizeFromBody bool
}

func withSizeFromBody() commitOption {
	return func(c *commitConfig) { c.sizeFromBody = true }
}

// commit streams a body through the compressor into a temp file, then
// renames the body into place and writes its metadata last.
func (s *Local) commit(bucket, p string, meta localMeta, write func(io.Writer) (int64, error), opts ...commitOption) error {
	var cfg commitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	objPath, err := s.objectPath(bucket, p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(objPath), ".object-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	zw, err := s.compressor.NewWriter(tmp)
	if err != nil {
		cleanup()
		return fmt.Errorf("open compressor: %w", err)
	}
	written, err := write(zw)
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return err
	}
	if cfg.sizeFromBody {
		meta.Size = written
	} else if written != meta.Size {
		cleanup()
		return fmt.Errorf("read body: got %d bytes, want %d", written, meta.Size)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	s.cache.Remove(objectKey(bucket, p))
	if err := os.Rename(tmpName, objPath); err != nil {
		os.Remove(tmpName)
		return err
	}
	// A body without matching metadata is dropped so readers see a miss.
	if err := s.writeMeta(bucket, p, meta); err != nil {
		os.Remove(objPath)
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (s *Local) readMeta(bucket, p string) (localMeta, error) {
	var meta localMeta
	metaPath, err := s.metaPath(bucket, p)
	if err != nil {
		return meta, err
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

func (s *Local) writeMeta(bucket, p string, meta localMeta) error {
	metaPath, err := s.metaPath(bucket, p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(metaPath), ".meta-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), metaPath)
}

func (s *Local) loadUpload(bucket, p, uploadID string) (*localUpload, error) {
	if _, err := uuid.Parse(uploadID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchUpload, uploadID)
	}
	data, err := os.ReadFile(filepath.Join(s.uploadDir(bucket, uploadID), "upload.json"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchUpload, uploadID)
	}
	var up localUpload
	if err := json.Unmarshal(data, &up); err != nil {
		return nil, fmt.Errorf("parse upload manifest: %w", err)
	}
	if up.Path != p {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchUpload, uploadID)
	}
	return &up, nil
}

func (s *Local) uploadDir(bucket, uploadID string) string {
	return filepath.Join(s.root, bucket, "uploads", uploadID)
}

func (s *Local) objectPath(bucket, p string) (string, error) {
	return s.treePath(bucket, "objects", p, "")
}

func (s *Local) metaPath(bucket, p string) (string, error) {
	return s.treePath(bucket, "meta", p, ".json")
}

// treePath maps an object path under bucket/tree, refusing paths that
// would escape it.
func (s *Local) treePath(bucket, tree, p, suffix string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", ErrBucketRequired
	}
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	if rel == "" || strings.HasSuffix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	base := filepath.Join(s.root, bucket, tree)
	full := filepath.Join(base, filepath.FromSlash(rel)) + suffix
	if !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return full, nil
}

type localReader struct {
	body io.ReadCloser
	file *os.File
}

func (r *localReader) Read(p []byte) (int, error) { return r.body.Read(p) }

func (r *localReader) Close() error {
	r.body.Close()
	return r.file.Close()
}
