package objstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Credential discovery modes for S3Config.CredentialsMode.
const (
	CredentialsAWSDefault = "aws-default"
	CredentialsStatic     = "static"
	CredentialsEnv        = "env"
	CredentialsAnonymous  = "anonymous"
)

const cannedACLHeader = "x-amz-acl"

type S3Config struct {
	Endpoint        string
	Region          string
	UseSSL          bool
	CredentialsMode string
	AccessKeyID     string
	SecretKey       string
	SessionToken    string
	// Headers are sent with every request. Entries with an empty name or a
	// nil/empty value are skipped.
	Headers map[string]any
}

// S3 implements Client with the minio-go Core API, which exposes the
// multipart primitives one call at a time.
type S3 struct {
	core   *minio.Core
	region string
}

func NewS3(cfg S3Config) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	creds, err := s3Credentials(cfg)
	if err != nil {
		return nil, err
	}
	transport, err := minio.DefaultTransport(cfg.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("init s3 transport: %w", err)
	}

	core, err := minio.NewCore(endpoint, &minio.Options{
		Creds:     creds,
		Secure:    cfg.UseSSL,
		Region:    region,
		Transport: newHeaderTransport(transport, cfg.Headers),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3{core: core, region: region}, nil
}

func s3Credentials(cfg S3Config) (*credentials.Credentials, error) {
	access := strings.TrimSpace(cfg.AccessKeyID)
	secret := strings.TrimSpace(cfg.SecretKey)

	switch strings.ToLower(strings.TrimSpace(cfg.CredentialsMode)) {
	case CredentialsStatic:
		if access == "" || secret == "" {
			return nil, fmt.Errorf("s3 access key and secret key are required for %q credentials", CredentialsStatic)
		}
		return credentials.NewStaticV4(access, secret, strings.TrimSpace(cfg.SessionToken)), nil
	case CredentialsEnv:
		return credentials.NewEnvAWS(), nil
	case CredentialsAnonymous:
		return credentials.NewStatic("", "", "", credentials.SignatureAnonymous), nil
	case "", CredentialsAWSDefault:
		providers := []credentials.Provider{}
		if access != "" && secret != "" {
			providers = append(providers, &credentials.Static{Value: credentials.Value{
				AccessKeyID:     access,
				SecretAccessKey: secret,
				SessionToken:    strings.TrimSpace(cfg.SessionToken),
				SignerType:      credentials.SignatureV4,
			}})
		}
		providers = append(providers,
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
		)
		return credentials.NewChainCredentials(providers), nil
	default:
		return nil, fmt.Errorf("unsupported credentials mode %q", cfg.CredentialsMode)
	}
}

func (s *S3) Type() string { return "AWS S3" }

// Endpoint returns the endpoint URL requests are sent to.
func (s *S3) Endpoint() string { return s.core.EndpointURL().String() }

func (s *S3) Region() string { return s.region }

func (s *S3) Exists(ctx context.Context, bucket, path string) (bool, error) {
	_, err := s.core.StatObject(ctx, bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, s3Error(err)
	}
	return true, nil
}

func (s *S3) GetObject(ctx context.Context, bucket, path string) (io.ReadCloser, int64, error) {
	obj, err := s.core.Client.GetObject(ctx, bucket, path, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, s3Error(err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, s3Error(err)
	}
	return obj, info.Size, nil
}

func (s *S3) PutObject(ctx context.Context, bucket, path string, r io.Reader, size int64, opts PutOptions) error {
	_, err := s.core.PutObject(ctx, bucket, path, r, size, "", "", putObjectOptions(opts))
	return s3Error(err)
}

func (s *S3) InitiateMultipartUpload(ctx context.Context, bucket, path string, opts PutOptions) (string, error) {
	id, err := s.core.NewMultipartUpload(ctx, bucket, path, putObjectOptions(opts))
	return id, s3Error(err)
}

func (s *S3) UploadPart(ctx context.Context, bucket, path, uploadID string, partNumber int, r io.Reader, size int64) (string, error) {
	part, err := s.core.PutObjectPart(ctx, bucket, path, uploadID, partNumber, r, size, minio.PutObjectPartOptions{})
	if err != nil {
		return "", s3Error(err)
	}
	return part.ETag, nil
}

func (s *S3) CompleteMultipartUpload(ctx context.Context, bucket, path, uploadID string, parts []Part) error {
	completed := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, minio.CompletePart{PartNumber: p.Number, ETag: p.ETag})
	}
	_, err := s.core.CompleteMultipartUpload(ctx, bucket, path, uploadID, completed, minio.PutObjectOptions{})
	return s3Error(err)
}

func (s *S3) AbortMultipartUpload(ctx context.Context, bucket, path, uploadID string) error {
	return s3Error(s.core.AbortMultipartUpload(ctx, bucket, path, uploadID))
}

// putObjectOptions maps PutOptions and sets the bucket-owner-full-control
// canned ACL on every new object.
func putObjectOptions(opts PutOptions) minio.PutObjectOptions {
	meta := make(map[string]string, len(opts.Metadata)+1)
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	meta[cannedACLHeader] = "bucket-owner-full-control"
	return minio.PutObjectOptions{
		StorageClass: string(opts.StorageClass),
		ContentType:  opts.ContentType,
		UserMetadata: meta,
	}
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.StatusCode == http.StatusNotFound
}

// s3Error maps S3 error codes onto the package sentinels. Errors no retry
// can fix are marked permanent.
func s3Error(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchUpload":
		return fmt.Errorf("%w: %w", ErrNoSuchUpload, err)
	case "InvalidPart", "InvalidPartOrder", "EntityTooSmall":
		return fmt.Errorf("%w: %w", ErrInvalidPart, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch",
		"InvalidBucketName", "NoSuchBucket", "InvalidStorageClass":
		return fmt.Errorf("%w: %w", errPermanent, err)
	}
	return err
}

// headerTransport adds the configured headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func newHeaderTransport(base http.RoundTripper, headers map[string]any) http.RoundTripper {
	h := make(http.Header)
	for name, raw := range headers {
		name = strings.TrimSpace(name)
		if name == "" || raw == nil {
			continue
		}
		value := strings.TrimSpace(fmt.Sprint(raw))
		if value == "" {
			continue
		}
		h.Set(name, value)
	}
	if len(h) == 0 {
		return base
	}
	return &headerTransport{base: base, headers: h}
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for name, values := range t.headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	return t.base.RoundTrip(req)
}
