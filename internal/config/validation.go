package config

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// FieldError names the configuration key that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

var (
	strategies       = map[string]struct{}{"streaming": {}, "buffered": {}}
	credentialsModes = map[string]struct{}{"aws-default": {}, "static": {}, "env": {}, "anonymous": {}}
)

// Validate checks the values Load cannot catch while decoding.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return newFieldError("bucket", "must not be empty")
	}
	if c.ChunkSize <= 0 {
		return newFieldError("chunk_size", "must be greater than 0")
	}
	if c.MaxEntrySize < 0 {
		return newFieldError("max_entry_size", "must not be negative")
	}
	if _, ok := strategies[c.Strategy]; !ok {
		return newFieldError("strategy", "must be streaming or buffered")
	}
	if c.Retries < 0 {
		return newFieldError("retries", "must not be negative")
	}
	if c.Timeout < 0 {
		return newFieldError("timeout", "must not be negative")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return newFieldError("log.level", err.Error())
	}

	if c.Backend() == BackendLocal {
		if _, err := c.LocalRoot(); err != nil {
			return err
		}
		if c.CompressionLevel < 0 || c.CompressionLevel > 3 {
			return newFieldError("compression_level", "must be between 0 and 3")
		}
		return nil
	}

	if c.Region == "" {
		return newFieldError("region", "must not be empty")
	}
	if _, ok := credentialsModes[c.CredentialsMode]; !ok {
		return newFieldError("credentials", "must be aws-default, static, env or anonymous")
	}
	if c.CredentialsMode == "static" && (c.AccessKeyID == "" || c.SecretKey == "") {
		return newFieldError("credentials", "static credentials need access_key_id and secret_key")
	}
	return nil
}
