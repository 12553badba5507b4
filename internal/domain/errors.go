package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine operations
var (
	// ErrDisposed indicates the engine has been disposed and rejects all operations
	ErrDisposed = errors.New("engine is disposed")

	// ErrUnknownStoryType indicates a story variant the engine has no controller for
	ErrUnknownStoryType = errors.New("unknown story type")

	// ErrControllerMismatch indicates a media controller bound to the wrong story variant
	ErrControllerMismatch = errors.New("media controller does not match story variant")

	// ErrNotCached indicates the requested URL has no usable cache entry
	ErrNotCached = errors.New("no cached file for url")
)

// ValidationError reports invalid input data: a bad index, an empty group,
// a duplicate story ID, empty text. Recovered locally, never thrown across
// the engine boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NetworkError wraps a transport failure for a specific URL.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FileSystemError wraps a cache read/write failure.
type FileSystemError struct {
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("filesystem error at %s: %v", e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }

// RetryExhaustedError is the terminal failure after the retry budget is
// spent. Attempts counts every attempt made, including the first.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastErr }

// Retryable reports whether an error is worth retrying. Network failures
// are; validation failures, unknown story types and exhausted retries are
// terminal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		return false
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return false
	}
	if errors.Is(err, ErrUnknownStoryType) || errors.Is(err, ErrControllerMismatch) || errors.Is(err, ErrDisposed) {
		return false
	}
	var network *NetworkError
	if errors.As(err, &network) {
		return true
	}
	var fs *FileSystemError
	if errors.As(err, &fs) {
		return true
	}
	return false
}
