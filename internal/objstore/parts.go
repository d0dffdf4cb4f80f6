package objstore

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
)

// readExactly reads size bytes from r. A short or long source is an error.
func readExactly(r io.Reader, size int64) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative size %d", size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return nil, fmt.Errorf("read body: more than %d bytes", size)
	}
	return data, nil
}

// partETag is the hex MD5 of a part body, as S3 reports it.
func partETag(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// checkPartOrder rejects part lists that are empty or not strictly increasing.
func checkPartOrder(parts []Part) error {
	if len(parts) == 0 {
		return fmt.Errorf("%w: empty part list", ErrInvalidPart)
	}
	prev := 0
	for _, p := range parts {
		if p.Number <= prev {
			return fmt.Errorf("%w: part %d out of order after %d", ErrInvalidPart, p.Number, prev)
		}
		prev = p.Number
	}
	return nil
}
