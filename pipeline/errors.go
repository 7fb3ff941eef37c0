// Package pipeline provides the shared error taxonomy and retry policy
// used by every network-calling stage of the ingestion pipeline.
package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a pipeline failure. Kinds are non-overlapping:
// exactly one applies to any failed URL or call.
type ErrorKind string

const (
	// KindConfiguration marks invalid or missing configuration. Fatal,
	// raised before any work starts.
	KindConfiguration ErrorKind = "configuration_error"

	// KindHTTP marks a non-2xx fetch response or exhausted fetch retries.
	KindHTTP ErrorKind = "http_error"

	// KindParse marks unusable extracted content or an unexpected failure
	// during extraction or chunking.
	KindParse ErrorKind = "parse_error"

	// KindEmbedding marks a non-transient embedding provider error or
	// exhausted embedding retries.
	KindEmbedding ErrorKind = "embedding_error"

	// KindStorage marks a vector-store read/write failure after retries.
	KindStorage ErrorKind = "storage_error"

	// KindValidation marks out-of-range retrieval parameters. Raised
	// before any network call.
	KindValidation ErrorKind = "validation_error"
)

// Error is a classified pipeline error. Retry wrappers inspect Retryable
// rather than the concrete cause; kind decides how a failed URL is
// reported.
type Error struct {
	Kind      ErrorKind
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransient wraps err as a retryable error of the given kind.
func NewTransient(kind ErrorKind, err error) error {
	return &Error{Kind: kind, Retryable: true, Err: err}
}

// NewFatal wraps err as a non-retryable error of the given kind.
func NewFatal(kind ErrorKind, err error) error {
	return &Error{Kind: kind, Retryable: false, Err: err}
}

// Errorf is shorthand for NewFatal with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return NewFatal(kind, fmt.Errorf(format, args...))
}

// IsRetryable reports whether err is a classified error marked retryable.
// Unclassified errors are not retried.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// KindOf returns the classification of err, or fallback when err carries
// no classification.
func KindOf(err error, fallback ErrorKind) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return fallback
}

// ClassifyStatus maps an HTTP status code from a provider to a transient
// or fatal error of the given kind. Rate limits and server faults are
// transient; auth and validation failures are fatal.
func ClassifyStatus(kind ErrorKind, statusCode int, body []byte) error {
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}

	err := fmt.Errorf("status %d: %s", statusCode, msg)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransient(kind, err)
	case statusCode >= 500:
		return NewTransient(kind, err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		return NewFatal(kind, err)
	default:
		return NewFatal(kind, err)
	}
}
