package objstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T, compress bool) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir(), LocalOptions{Compression: compress, CompressionLevel: 1, CacheEntries: 8})
	require.NoError(t, err)
	return s
}

func readObject(t *testing.T, c Client, bucket, p string) []byte {
	t.Helper()
	rc, size, err := c.GetObject(context.Background(), bucket, p)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, size, int64(len(data)))
	return data
}

func TestLocalPutGet(t *testing.T) {
	ctx := context.Background()
	for _, compress := range []bool{false, true} {
		s := newTestLocal(t, compress)
		small := []byte("hello")
		large := bytes.Repeat([]byte("0123456789abcdef"), localCacheMaxObject/8)

		for _, data := range [][]byte{small, large, {}} {
			require.NoError(t, s.PutObject(ctx, "b", "cache/key", bytes.NewReader(data), int64(len(data)), PutOptions{
				StorageClass: StorageClassReducedRedundancy,
			}))
			ok, err := s.Exists(ctx, "b", "cache/key")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, data, readObject(t, s, "b", "cache/key"), "compress=%v size=%d", compress, len(data))
		}
	}
}

func TestLocalMeta(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t, true)
	require.NoError(t, s.PutObject(ctx, "b", "k", bytes.NewReader([]byte("abc")), 3, PutOptions{
		StorageClass: StorageClassReducedRedundancy,
		ContentType:  "application/octet-stream",
		Metadata:     map[string]string{"a": "b"},
	}))

	meta, err := s.readMeta("b", "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), meta.Size)
	assert.Equal(t, StorageClassReducedRedundancy, meta.StorageClass)
	assert.Equal(t, "application/octet-stream", meta.ContentType)
	assert.Equal(t, map[string]string{"a": "b"}, meta.Metadata)
}

func TestLocalMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t, false)

	ok, err := s.Exists(ctx, "b", "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.GetObject(ctx, "b", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalSizeMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t, false)

	err := s.PutObject(ctx, "b", "k", bytes.NewReader([]byte("abcdef")), 3, PutOptions{})
	require.Error(t, err)
	err = s.PutObject(ctx, "b", "k", bytes.NewReader([]byte("ab")), 3, PutOptions{})
	require.Error(t, err)

	ok, err := s.Exists(ctx, "b", "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalInvalidPaths(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t, false)

	for _, p := range []string{"", "/", "dir/", "../../etc/passwd"} {
		err := s.PutObject(ctx, "b", p, bytes.NewReader(nil), 0, PutOptions{})
		if p == "../../etc/passwd" {
			// cleaned to etc/passwd inside the bucket
			require.NoError(t, err)
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", p)
	}
	err := s.PutObject(ctx, "", "k", bytes.NewReader(nil), 0, PutOptions{})
	assert.ErrorIs(t, err, ErrBucketRequired)
	err = s.PutObject(ctx, "..", "k", bytes.NewReader(nil), 0, PutOptions{})
	assert.ErrorIs(t, err, ErrBucketRequired)
}

func TestLocalMultipart(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t, true)

	id, err := s.InitiateMultipartUpload(ctx, "b", "big", PutOptions{StorageClass: StorageClassReducedRedundancy})
	require.NoError(t, err)

	chunks := [][]byte{[]byte("first-"), []byte("second-"), []byte("third")}
	var parts []Part
	for i, c := range chunks {
		etag, err := s.UploadPart(ctx, "b", "big", id, i+1, bytes.NewReader(c), int64(len(c)))
		require.NoError(t, err)
		parts = append(parts, Part{Number: i + 1, ETag: etag})
	}

	ok, err := s.Exists(ctx, "b", "big")
	require.NoError(t, err)
	assert.False(t, ok, "object visible before completion")

	require.NoError(t, s.CompleteMultipartUpload(ctx, "b", "big", id, parts))
	assert.Equal(t, []byte("first-second-third"), readObject(t, s, "b", "big"))

	meta, err := s.readMeta("b", "big")
	require.NoError(t, err)
	assert.Equal(t, int64(len("first-second-third")), meta.Size)
	assert.Equal(t, StorageClassReducedRedundancy, meta.StorageClass)

	_, err = os.Stat(s.uploadDir("b", id))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalMultipartErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t, false)

	_, err := s.UploadPart(ctx, "b", "k", "not-an-id", 1, bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, ErrNoSuchUpload)

	id, err := s.InitiateMultipartUpload(ctx, "b", "k", PutOptions{})
	require.NoError(t, err)

	_, err = s.UploadPart(ctx, "b", "other", id, 1, bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, ErrNoSuchUpload)
	_, err = s.UploadPart(ctx, "b", "k", id, 0, bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, ErrInvalidPart)

	etag, err := s.UploadPart(ctx, "b", "k", id, 1, bytes.NewReader([]byte("x")), 1)
	require.NoError(t, err)

	assert.ErrorIs(t, s.CompleteMultipartUpload(ctx, "b", "k", id, nil), ErrInvalidPart)
	assert.ErrorIs(t, s.CompleteMultipartUpload(ctx, "b", "k", id, []Part{{Number: 1, ETag: "bad"}}), ErrInvalidPart)
	assert.ErrorIs(t, s.CompleteMultipartUpload(ctx, "b", "k", id, []Part{{Number: 2, ETag: etag}}), ErrInvalidPart)

	require.NoError(t, s.AbortMultipartUpload(ctx, "b", "k", id))
	assert.ErrorIs(t, s.AbortMultipartUpload(ctx, "b", "k", id), ErrNoSuchUpload)
	assert.ErrorIs(t, s.CompleteMultipartUpload(ctx, "b", "k", id, []Part{{Number: 1, ETag: etag}}), ErrNoSuchUpload)

	ok, err := s.Exists(ctx, "b", "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t, true)

	require.NoError(t, s.PutObject(ctx, "b", "k", bytes.NewReader([]byte("old")), 3, PutOptions{}))
	assert.Equal(t, []byte("old"), readObject(t, s, "b", "k"))

	require.NoError(t, s.PutObject(ctx, "b", "k", bytes.NewReader([]byte("newer")), 5, PutOptions{}))
	assert.Equal(t, []byte("newer"), readObject(t, s, "b", "k"))
}

func TestLocalCompressedAtRest(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocal(root, LocalOptions{Compression: true})
	require.NoError(t, err)

	data := bytes.Repeat([]byte("a"), 64*1024)
	require.NoError(t, s.PutObject(ctx, "b", "k", bytes.NewReader(data), int64(len(data)), PutOptions{}))

	info, err := os.Stat(filepath.Join(root, "b", "objects", "k"))
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(data)))

	reopened, err := NewLocal(root, LocalOptions{Compression: true})
	require.NoError(t, err)
	assert.Equal(t, data, readObject(t, reopened, "b", "k"))
}

func TestLocalCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestLocal(t, false)

	_, err := s.Exists(ctx, "b", "k")
	assert.ErrorIs(t, err, context.Canceled)
	err = s.PutObject(ctx, "b", "k", bytes.NewReader(nil), 0, PutOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalCommitKeepsBodyAndMetaTogether(t *testing.T) {
	ctx := context.Background()

	t.Run("body rename fails", func(t *testing.T) {
		root := t.TempDir()
		s, err := NewLocal(root, LocalOptions{})
		require.NoError(t, err)
		blocker := filepath.Join(root, "b", "objects", "k")
		require.NoError(t, os.MkdirAll(blocker, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(blocker, "x"), nil, 0o644))

		err = s.PutObject(ctx, "b", "k", bytes.NewReader([]byte("abc")), 3, PutOptions{})
		require.Error(t, err)
		_, err = os.Stat(filepath.Join(root, "b", "meta", "k.json"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("meta write fails", func(t *testing.T) {
		root := t.TempDir()
		s, err := NewLocal(root, LocalOptions{})
		require.NoError(t, err)
		blocker := filepath.Join(root, "b", "meta", "k.json")
		require.NoError(t, os.MkdirAll(blocker, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(blocker, "x"), nil, 0o644))

		err = s.PutObject(ctx, "b", "k", bytes.NewReader([]byte("abc")), 3, PutOptions{})
		require.Error(t, err)
		ok, err := s.Exists(ctx, "b", "k")
		require.NoError(t, err)
		assert.False(t, ok)
		_, _, err = s.GetObject(ctx, "b", "k")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
