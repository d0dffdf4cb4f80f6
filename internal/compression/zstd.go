package compression

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// Compressor wraps object streams with zstd. A disabled Compressor passes
// bytes through untouched so stored files stay readable either way.
type Compressor struct {
	level   zstd.EncoderLevel
	enabled bool
}

func NewCompressor(level int, enabled bool) *Compressor {
	var encoderLevel zstd.EncoderLevel
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
	case 2:
		encoderLevel = zstd.SpeedDefault
	case 3:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}
	return &Compressor{level: encoderLevel, enabled: enabled}
}

func (c *Compressor) Enabled() bool { return c.enabled }

// NewWriter returns a writer compressing into w. Close flushes the frame but
// does not close w.
func (c *Compressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	if !c.enabled {
		return nopWriteCloser{w}, nil
	}
	return zstd.NewWriter(w,
		zstd.WithEncoderLevel(c.level),
		zstd.WithEncoderConcurrency(1),
	)
}

// NewReader returns a reader decompressing r.
func (c *Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	if !c.enabled {
		return io.NopCloser(r), nil
	}
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
