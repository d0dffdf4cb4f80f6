package s3cache

import "github.com/aweris/s3cache/internal/objstore"

// Client is the object-store capability a Cache is built on.
// Re-exported from internal/objstore for convenience.
type Client = objstore.Client

// StorageClass is the durability tier of a stored object.
type StorageClass = objstore.StorageClass

const (
	StorageClassStandard          = objstore.StorageClassStandard
	StorageClassReducedRedundancy = objstore.StorageClassReducedRedundancy
)

// Backends.
type (
	S3Config     = objstore.S3Config
	LocalOptions = objstore.LocalOptions
	Memory       = objstore.Memory
	Local        = objstore.Local
	S3           = objstore.S3
	Retrying     = objstore.Retrying
)

// Credential modes for S3Config.CredentialsMode.
const (
	CredentialsAWSDefault = objstore.CredentialsAWSDefault
	CredentialsStatic     = objstore.CredentialsStatic
	CredentialsEnv        = objstore.CredentialsEnv
	CredentialsAnonymous  = objstore.CredentialsAnonymous
)

// NewS3 returns a client for S3 or an S3-compatible endpoint.
func NewS3(cfg S3Config) (*S3, error) { return objstore.NewS3(cfg) }

// NewLocal returns a client storing objects under root on the local disk.
func NewLocal(root string, opts LocalOptions) (*Local, error) { return objstore.NewLocal(root, opts) }

// NewMemory returns an in-process client.
func NewMemory() *Memory { return objstore.NewMemory() }

// NewRetrying wraps c so failed calls are retried up to attempts times.
func NewRetrying(c Client, attempts int) *Retrying { return objstore.NewRetrying(c, attempts) }
