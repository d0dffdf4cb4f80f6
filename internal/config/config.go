// Package config loads the s3cache CLI configuration from file, environment
// and flags.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	BackendS3    = "s3"
	BackendLocal = "local"
)

// EnvPrefix prefixes every environment variable, e.g. S3CACHE_LOG_LEVEL.
const EnvPrefix = "S3CACHE"

// S3MinPartSize is the smallest part S3 accepts for all but the last part.
const S3MinPartSize = 5 * 1024 * 1024

// ByteSize is a size in bytes. It decodes from integers and from strings
// such as "1MB" or "512 KiB".
type ByteSize int64

func (b ByteSize) String() string { return humanize.Bytes(uint64(b)) }

type Config struct {
	Bucket            string        `mapstructure:"bucket"`
	Prefix            string        `mapstructure:"prefix"`
	ReducedRedundancy bool          `mapstructure:"reduced_redundancy"`
	ChunkSize         ByteSize      `mapstructure:"chunk_size"`
	Strategy          string        `mapstructure:"strategy"`
	SpillDir          string        `mapstructure:"spill_dir"`
	MaxEntrySize      ByteSize      `mapstructure:"max_entry_size"`
	Retries           int           `mapstructure:"retries"`
	Timeout           time.Duration `mapstructure:"timeout"`

	// Endpoint is an S3 host[:port], or file:///path for the local backend.
	Endpoint        string         `mapstructure:"endpoint"`
	Region          string         `mapstructure:"region"`
	UseSSL          bool           `mapstructure:"use_ssl"`
	CredentialsMode string         `mapstructure:"credentials"`
	AccessKeyID     string         `mapstructure:"access_key_id"`
	SecretKey       string         `mapstructure:"secret_key"`
	SessionToken    string         `mapstructure:"session_token"`
	Headers         map[string]any `mapstructure:"headers"`

	Compression      bool `mapstructure:"compression"`
	CompressionLevel int  `mapstructure:"compression_level"`

	Log LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up for all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("bucket", "")
	v.SetDefault("prefix", "")
	v.SetDefault("reduced_redundancy", true)
	v.SetDefault("chunk_size", 1_000_000)
	v.SetDefault("strategy", "streaming")
	v.SetDefault("spill_dir", "")
	v.SetDefault("max_entry_size", 0)
	v.SetDefault("retries", 3)
	v.SetDefault("timeout", "0s")
	v.SetDefault("endpoint", "")
	v.SetDefault("region", "us-east-1")
	v.SetDefault("use_ssl", true)
	v.SetDefault("credentials", "aws-default")
	v.SetDefault("access_key_id", "")
	v.SetDefault("secret_key", "")
	v.SetDefault("session_token", "")
	v.SetDefault("headers", map[string]any{})
	v.SetDefault("compression", true)
	v.SetDefault("compression_level", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.compress", true)
}

// BindEnv makes v read S3CACHE_* environment variables, with nested keys
// joined by "_".
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Bucket = strings.TrimSpace(c.Bucket)
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.Region = strings.TrimSpace(c.Region)
	c.Strategy = strings.ToLower(strings.TrimSpace(c.Strategy))
	c.CredentialsMode = strings.ToLower(strings.TrimSpace(c.CredentialsMode))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// Backend returns BackendLocal for file:// endpoints and BackendS3 otherwise.
func (c *Config) Backend() string {
	if strings.HasPrefix(c.Endpoint, "file://") {
		return BackendLocal
	}
	return BackendS3
}

// LocalRoot returns the directory of a file:// endpoint.
func (c *Config) LocalRoot() (string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", newFieldError("endpoint", err.Error())
	}
	root := u.Path
	if u.Host != "" && u.Host != "localhost" {
		root = u.Host + u.Path
	}
	if root == "" {
		return "", newFieldError("endpoint", "file endpoint needs a path")
	}
	return filepath.FromSlash(root), nil
}

func byteSizeDecodeHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(ByteSize(0))

	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			v = strings.TrimSpace(v)
			if v == "" {
				return ByteSize(0), nil
			}
			n, err := humanize.ParseBytes(v)
			if err != nil {
				return nil, fmt.Errorf("parse byte size %q: %w", v, err)
			}
			return ByteSize(n), nil
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case uint64:
			return ByteSize(v), nil
		case float64:
			return ByteSize(v), nil
		case ByteSize:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported byte size type %T", data)
		}
	}
}
