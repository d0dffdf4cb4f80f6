package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yaml != "" {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())
	}
	return v
}

func TestLoadDefaults(t *testing.T) {
	v := newViper(t, "")
	v.Set("bucket", "build-cache")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "build-cache", cfg.Bucket)
	assert.True(t, cfg.ReducedRedundancy)
	assert.Equal(t, ByteSize(1_000_000), cfg.ChunkSize)
	assert.Equal(t, "streaming", cfg.Strategy)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "aws-default", cfg.CredentialsMode)
	assert.Equal(t, 3, cfg.Retries)
	assert.Zero(t, cfg.Timeout)
	assert.Equal(t, BackendS3, cfg.Backend())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 100, cfg.Log.MaxSize)
}

func TestLoadFile(t *testing.T) {
	v := newViper(t, `
bucket: artifacts
prefix: ci/main
reduced_redundancy: false
chunk_size: 8MiB
max_entry_size: "100 MB"
strategy: Buffered
timeout: 90s
endpoint: minio.local:9000
use_ssl: false
credentials: static
access_key_id: key
secret_key: secret
headers:
  x-team: build
log:
  level: DEBUG
  file: /var/log/s3cache.log
`)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "artifacts", cfg.Bucket)
	assert.Equal(t, "ci/main", cfg.Prefix)
	assert.False(t, cfg.ReducedRedundancy)
	assert.Equal(t, ByteSize(8*1024*1024), cfg.ChunkSize)
	assert.Equal(t, ByteSize(100_000_000), cfg.MaxEntrySize)
	assert.Equal(t, "buffered", cfg.Strategy)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, "minio.local:9000", cfg.Endpoint)
	assert.False(t, cfg.UseSSL)
	assert.Equal(t, "static", cfg.CredentialsMode)
	assert.Equal(t, "build", cfg.Headers["x-team"])
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/var/log/s3cache.log", cfg.Log.File)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("S3CACHE_BUCKET", "from-env")
	t.Setenv("S3CACHE_CHUNK_SIZE", "6MB")
	t.Setenv("S3CACHE_LOG_LEVEL", "warn")

	v := newViper(t, "")
	BindEnv(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Bucket)
	assert.Equal(t, ByteSize(6_000_000), cfg.ChunkSize)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadLocalBackend(t *testing.T) {
	v := newViper(t, "")
	v.Set("bucket", "b")
	v.Set("endpoint", "file:///tmp/s3cache")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, cfg.Backend())
	root, err := cfg.LocalRoot()
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/tmp/s3cache"), root)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		set   map[string]any
		field string
	}{
		{"missing bucket", map[string]any{}, "bucket"},
		{"zero chunk", map[string]any{"bucket": "b", "chunk_size": 0}, "chunk_size"},
		{"strategy", map[string]any{"bucket": "b", "strategy": "parallel"}, "strategy"},
		{"retries", map[string]any{"bucket": "b", "retries": -1}, "retries"},
		{"log level", map[string]any{"bucket": "b", "log.level": "loud"}, "log.level"},
		{"region", map[string]any{"bucket": "b", "region": " "}, "region"},
		{"credentials", map[string]any{"bucket": "b", "credentials": "magic"}, "credentials"},
		{"static without keys", map[string]any{"bucket": "b", "credentials": "static"}, "credentials"},
		{"empty file endpoint", map[string]any{"bucket": "b", "endpoint": "file://"}, "endpoint"},
		{"compression level", map[string]any{"bucket": "b", "endpoint": "file:///x", "compression_level": 9}, "compression_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t, "")
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := Load(v)
			var fe FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestLoadRejectsBadByteSize(t *testing.T) {
	v := newViper(t, "")
	v.Set("bucket", "b")
	v.Set("chunk_size", "lots")

	_, err := Load(v)
	assert.Error(t, err)
}

func TestByteSizeString(t *testing.T) {
	assert.Equal(t, "1.0 MB", ByteSize(1_000_000).String())
}
