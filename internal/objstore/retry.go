package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const DefaultRetryAttempts = 3

// Retrying wraps a Client and retries failed calls with exponential backoff.
// Calls taking a body are retried only when the body can be rewound; a miss
// (ErrNotFound) or an unknown upload is never retried.
type Retrying struct {
	Client
	attempts  int
	baseDelay time.Duration
}

func NewRetrying(c Client, attempts int) *Retrying {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	return &Retrying{Client: c, attempts: attempts, baseDelay: 500 * time.Millisecond}
}

func (r *Retrying) Exists(ctx context.Context, bucket, path string) (bool, error) {
	return retry(ctx, r.attempts, r.baseDelay, func() (bool, error) {
		return r.Client.Exists(ctx, bucket, path)
	})
}

func (r *Retrying) GetObject(ctx context.Context, bucket, path string) (io.ReadCloser, int64, error) {
	type result struct {
		rc   io.ReadCloser
		size int64
	}
	res, err := retry(ctx, r.attempts, r.baseDelay, func() (result, error) {
		rc, size, err := r.Client.GetObject(ctx, bucket, path)
		return result{rc, size}, err
	})
	return res.rc, res.size, err
}

func (r *Retrying) PutObject(ctx context.Context, bucket, path string, body io.Reader, size int64, opts PutOptions) error {
	attempts, rewind := r.bodyAttempts(body)
	_, err := retry(ctx, attempts, r.baseDelay, func() (struct{}, error) {
		if err := rewind(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, r.Client.PutObject(ctx, bucket, path, body, size, opts)
	})
	return err
}

func (r *Retrying) InitiateMultipartUpload(ctx context.Context, bucket, path string, opts PutOptions) (string, error) {
	return retry(ctx, r.attempts, r.baseDelay, func() (string, error) {
		return r.Client.InitiateMultipartUpload(ctx, bucket, path, opts)
	})
}

func (r *Retrying) UploadPart(ctx context.Context, bucket, path, uploadID string, partNumber int, body io.Reader, size int64) (string, error) {
	attempts, rewind := r.bodyAttempts(body)
	return retry(ctx, attempts, r.baseDelay, func() (string, error) {
		if err := rewind(); err != nil {
			return "", err
		}
		return r.Client.UploadPart(ctx, bucket, path, uploadID, partNumber, body, size)
	})
}

func (r *Retrying) CompleteMultipartUpload(ctx context.Context, bucket, path, uploadID string, parts []Part) error {
	_, err := retry(ctx, r.attempts, r.baseDelay, func() (struct{}, error) {
		return struct{}{}, r.Client.CompleteMultipartUpload(ctx, bucket, path, uploadID, parts)
	})
	return err
}

func (r *Retrying) AbortMultipartUpload(ctx context.Context, bucket, path, uploadID string) error {
	_, err := retry(ctx, r.attempts, r.baseDelay, func() (struct{}, error) {
		return struct{}{}, r.Client.AbortMultipartUpload(ctx, bucket, path, uploadID)
	})
	return err
}

// Endpoint returns the endpoint of the wrapped client, if it has one.
func (r *Retrying) Endpoint() string {
	if e, ok := r.Client.(interface{ Endpoint() string }); ok {
		return e.Endpoint()
	}
	return ""
}

// Type returns the backend type of the wrapped client, if it reports one.
func (r *Retrying) Type() string {
	if t, ok := r.Client.(interface{ Type() string }); ok {
		return t.Type()
	}
	return ""
}

func (r *Retrying) Region() string {
	if g, ok := r.Client.(interface{ Region() string }); ok {
		return g.Region()
	}
	return ""
}

// Close closes the wrapped client when it holds resources.
func (r *Retrying) Close() error {
	if c, ok := r.Client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// bodyAttempts returns how often a call with body may run and how to rewind
// the body before each attempt.
func (r *Retrying) bodyAttempts(body io.Reader) (int, func() error) {
	seeker, ok := body.(io.Seeker)
	if !ok {
		return 1, func() error { return nil }
	}
	start, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return 1, func() error { return nil }
	}
	return r.attempts, func() error {
		if _, err := seeker.Seek(start, io.SeekStart); err != nil {
			return fmt.Errorf("rewind body: %w", err)
		}
		return nil
	}
}

// errPermanent marks backend errors that fail the same way on every attempt.
var errPermanent = errors.New("permanent failure")

func permanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNoSuchUpload) ||
		errors.Is(err, ErrInvalidPart) ||
		errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrBucketRequired) ||
		errors.Is(err, errPermanent) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func retry[T any](ctx context.Context, maxAttempts int, base time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := range maxAttempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if permanent(err) {
			return zero, err
		}
		lastErr = err
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * base // 500ms, 1s, 2s, 4s...
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
