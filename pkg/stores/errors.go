package stores

import (
	"errors"
	"fmt"

	"github.com/maintlog/maintlog/pkg/atomicfile"
)

// ErrorClass classifies storage failures for reporting and metrics.
type ErrorClass string

const (
	// ErrorClassIO covers an unavailable disk, missing permissions and
	// other failures to read or write. Prior on-disk state is preserved.
	ErrorClassIO ErrorClass = "io"

	// ErrorClassCorruption covers a collection file that cannot be parsed.
	ErrorClassCorruption ErrorClass = "corruption"

	// ErrorClassVerification covers a write whose read-back did not match.
	// The previous file has been restored from backup.
	ErrorClassVerification ErrorClass = "verification"

	// ErrorClassNotFound covers unknown record ids and draft tokens.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassInvalid covers requests rejected before any I/O.
	ErrorClassInvalid ErrorClass = "invalid"
)

var (
	ErrIO                = errors.New("storage unavailable")
	ErrCorrupt           = errors.New("collection file is corrupt")
	ErrUnsupportedSchema = fmt.Errorf("%w: unsupported schema version", ErrCorrupt)
	ErrVerification      = atomicfile.ErrVerification
	ErrNotAtomic         = atomicfile.ErrNotAtomic
	ErrNotFound          = errors.New("record not found")
	ErrDraftNotFound     = errors.New("draft not found")
	ErrDraftEmpty        = errors.New("draft has no key field set")
	ErrInvalidPartition  = errors.New("invalid partition key")
)

// StoreError is a classified storage failure.
type StoreError struct {
	Class ErrorClass
	Op    string
	Path  string
	Err   error
}

func (e *StoreError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s %s: %v", e.Class, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Class, e.Op, e.Err)
}

// Unwrap exposes both the class sentinel and the underlying error so that
// errors.Is works against either.
func (e *StoreError) Unwrap() []error {
	sentinel := classSentinel(e.Class)
	if sentinel == nil {
		return []error{e.Err}
	}
	return []error{sentinel, e.Err}
}

func classSentinel(c ErrorClass) error {
	switch c {
	case ErrorClassIO:
		return ErrIO
	case ErrorClassCorruption:
		return ErrCorrupt
	case ErrorClassVerification:
		return ErrVerification
	default:
		return nil
	}
}

func ioError(op, path string, err error) error {
	return &StoreError{Class: ErrorClassIO, Op: op, Path: path, Err: err}
}

func corruptionError(op, path string, err error) error {
	return &StoreError{Class: ErrorClassCorruption, Op: op, Path: path, Err: err}
}

// ClassOf returns the class of err, or "" for nil.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se.Class
	}
	switch {
	case errors.Is(err, ErrVerification):
		return ErrorClassVerification
	case errors.Is(err, ErrCorrupt):
		return ErrorClassCorruption
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDraftNotFound):
		return ErrorClassNotFound
	case errors.Is(err, ErrInvalidPartition), errors.Is(err, ErrDraftEmpty):
		return ErrorClassInvalid
	default:
		return ErrorClassIO
	}
}
