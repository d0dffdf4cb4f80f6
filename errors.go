package s3cache

import (
	"errors"
	"fmt"

	"github.com/aweris/s3cache/internal/upload"
)

var (
	ErrClientRequired = errors.New("s3cache: client required")
	ErrBucketRequired = errors.New("s3cache: bucket required")
	ErrTransfer       = errors.New("s3cache: transfer failed")

	// ErrInvalidState is returned when an entry writer is used after it was
	// closed or cancelled.
	ErrInvalidState = upload.ErrInvalidState
)

// Kind classifies a failed cache operation.
type Kind int

const (
	KindTransfer Kind = iota + 1
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindTransfer:
		return "transfer"
	case KindInvalidState:
		return "invalid state"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by Load and Store. It wraps the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("s3cache: %s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches ErrTransfer and ErrInvalidState by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransfer:
		return e.Kind == KindTransfer
	case ErrInvalidState:
		return e.Kind == KindInvalidState
	}
	return false
}

func transferError(op, path string, err error) error {
	return &Error{Kind: KindTransfer, Op: op, Path: path, Err: err}
}

// storeError classifies a failure raised while storing an entry.
func storeError(path string, err error) error {
	if errors.Is(err, ErrInvalidState) {
		return &Error{Kind: KindInvalidState, Op: "store", Path: path, Err: err}
	}
	return transferError("store", path, err)
}
