package s3cache

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/aweris/s3cache/internal/upload"
)

// DefaultContentType is set on every stored object.
const DefaultContentType = "application/vnd.gradle.build-cache-artifact"

// DefaultChunkSize is the streaming buffer size and multipart part size.
const DefaultChunkSize = upload.DefaultChunkSize

// Options configures a Cache.
type Options struct {
	Prefix            string
	ReducedRedundancy bool
	ChunkSize         int
	Strategy          Strategy
	SpillDir          string
	MaxEntrySize      int64
	ContentType       string
	Logger            logrus.FieldLogger
}

// Option is a functional option for configuring New.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		ReducedRedundancy: true,
		ChunkSize:         DefaultChunkSize,
		Strategy:          Streaming,
		ContentType:       DefaultContentType,
		Logger:            discardLogger(),
	}
}

// WithPrefix stores entries under prefix.
func WithPrefix(prefix string) Option {
	return func(o *Options) { o.Prefix = prefix }
}

// WithReducedRedundancy selects the REDUCED_REDUNDANCY storage class when
// enabled (the default) and STANDARD otherwise.
func WithReducedRedundancy(enabled bool) Option {
	return func(o *Options) { o.ReducedRedundancy = enabled }
}

// WithChunkSize sets the streaming buffer and part size in bytes.
func WithChunkSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.ChunkSize = n
		}
	}
}

// WithStrategy selects how entries are written.
func WithStrategy(s Strategy) Option {
	return func(o *Options) {
		if s != nil {
			o.Strategy = s
		}
	}
}

// WithSpillDir sets where the buffered strategy keeps its temporary files.
// Empty means os.TempDir.
func WithSpillDir(dir string) Option {
	return func(o *Options) { o.SpillDir = dir }
}

// WithMaxEntrySize skips loading and storing entries larger than n bytes.
// Zero disables the limit.
func WithMaxEntrySize(n int64) Option {
	return func(o *Options) {
		if n >= 0 {
			o.MaxEntrySize = n
		}
	}
}

// WithContentType overrides DefaultContentType.
func WithContentType(contentType string) Option {
	return func(o *Options) {
		if contentType != "" {
			o.ContentType = contentType
		}
	}
}

// WithLogger sets the logger. Nothing is logged by default.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
