package cache

import (
	"fmt"

	"github.com/pkg/errors"
)

// Failure kinds reported by the cache. Use errors.Is to classify an error.
var (
	// ErrNotFound is returned when a bundle has no record.
	ErrNotFound = errors.New("bundle is not cached")

	// ErrAlreadyCached is returned when a bundle is registered twice. It
	// indicates a defect in the caller and is never retried.
	ErrAlreadyCached = errors.New("bundle is already cached")

	// ErrMissingCapability is returned when an operation needs a service
	// that was not configured.
	ErrMissingCapability = errors.New("missing capability")

	// ErrInvalidMode is returned for an unknown clear mode.
	ErrInvalidMode = errors.New("invalid clear mode")

	// ErrTimeout is returned when a manifest or version request exceeds its
	// deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrVerifyMismatch is wrapped by every VerifyError.
	ErrVerifyMismatch = errors.New("cache file verification failed")

	// ErrIOFailure is wrapped by every IOError.
	ErrIOFailure = errors.New("cache file i/o failed")
)

// VerifyError reports a record that failed verification.
type VerifyError struct {
	GUID   string
	Level  VerifyLevel
	Result VerifyResult
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify %v at level %v: %v", e.GUID, e.Level, e.Result)
}

func (e *VerifyError) Unwrap() error { return ErrVerifyMismatch }

// IOError reports a failed file operation of the cache writer.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error { return []error{ErrIOFailure, e.Err} }

func missingCapability(name string) error {
	return errors.Wrapf(ErrMissingCapability, "%s is not configured", name)
}
