// Package objstore defines the object-store client consumed by the cache and
// the backends that implement it.
//
// The Client interface mirrors the S3 object and multipart primitives:
// - Exists/GetObject/PutObject for whole objects
// - Initiate/UploadPart/Complete/Abort for multipart uploads
// Clients are stateless per call and safe to share across goroutines.
package objstore

import (
	"context"
	"errors"
	"io"
)

// StorageClass is the durability tier applied to a stored object.
type StorageClass string

const (
	StorageClassStandard          StorageClass = "STANDARD"
	StorageClassReducedRedundancy StorageClass = "REDUCED_REDUNDANCY"
)

var (
	ErrNotFound       = errors.New("objstore: object not found")
	ErrNoSuchUpload   = errors.New("objstore: no such upload")
	ErrInvalidPart    = errors.New("objstore: invalid part")
	ErrInvalidPath    = errors.New("objstore: invalid path")
	ErrBucketRequired = errors.New("objstore: bucket required")
)

// Part identifies one uploaded part of a multipart upload.
type Part struct {
	Number int
	ETag   string
}

// PutOptions carries the attributes applied to a new object.
type PutOptions struct {
	StorageClass StorageClass
	ContentType  string
	Metadata     map[string]string
}

// Client is the object-store capability the cache is built on.
type Client interface {
	// Exists reports whether an object is stored at path.
	Exists(ctx context.Context, bucket, path string) (bool, error)

	// GetObject opens the object at path. The caller closes the reader.
	// Returns ErrNotFound if nothing is stored there.
	GetObject(ctx context.Context, bucket, path string) (io.ReadCloser, int64, error)

	// PutObject stores size bytes read from r at path, replacing any prior object.
	PutObject(ctx context.Context, bucket, path string, r io.Reader, size int64, opts PutOptions) error

	// InitiateMultipartUpload starts a multipart upload and returns its ID.
	InitiateMultipartUpload(ctx context.Context, bucket, path string, opts PutOptions) (uploadID string, err error)

	// UploadPart uploads one part and returns its integrity tag.
	UploadPart(ctx context.Context, bucket, path, uploadID string, partNumber int, r io.Reader, size int64) (etag string, err error)

	// CompleteMultipartUpload assembles the parts, in order, into the object at path.
	CompleteMultipartUpload(ctx context.Context, bucket, path, uploadID string, parts []Part) error

	// AbortMultipartUpload discards an upload and any parts stored for it.
	AbortMultipartUpload(ctx context.Context, bucket, path, uploadID string) error
}
