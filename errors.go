// Package imagecache provides container image caching and retrieval.
// This file contains the error taxonomy shared by the cache and fetcher.
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Sentinel errors for the distinct failure modes of the engine.
// They can be checked with errors.Is for error handling and testing.
var (
	// ErrStoreUnavailable indicates the underlying persistent store
	// could not be opened or used. Read paths recover from it locally by
	// treating the cache as empty.
	ErrStoreUnavailable = errors.New("persistent store unavailable")

	// ErrNotFound indicates the requested id is absent from the store.
	// Absence is not a failure at the Manager level; Get reports it as a
	// nil entry.
	ErrNotFound = errors.New("cache entry not found")

	// ErrHashMismatch indicates the computed content hash differed from
	// the expected hash. The entry is retained and flagged unless
	// Config.PurgeFailed is set.
	ErrHashMismatch = errors.New("content hash mismatch")

	// ErrQuotaExceeded indicates the store rejected a write because of
	// platform storage limits. No partial entry is persisted.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrCancelled indicates a cooperative cancellation. It is an
	// expected outcome, not a failure.
	ErrCancelled = errors.New("operation cancelled")

	// ErrTimeout indicates a network operation exceeded its deadline.
	ErrTimeout = errors.New("network timeout")

	// ErrDNSFailure indicates the remote host could not be resolved.
	ErrDNSFailure = errors.New("dns resolution failed")

	// ErrMalformedResponse indicates the server replied with something
	// the fetcher cannot interpret, such as an unexpected status code or
	// an invalid Content-Range header.
	ErrMalformedResponse = errors.New("malformed response")
)

// HTTPStatusError reports an unexpected HTTP status from the origin.
type HTTPStatusError struct {
	// Code is the HTTP status code received.
	Code int
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d %s", e.Code, http.StatusText(e.Code))
}

// Transient reports whether the status warrants a retry. Server-side
// failures (5xx) are transient; client errors like 404 or 403 are not.
func (e *HTTPStatusError) Transient() bool {
	return e.Code >= 500
}

// FetchError provides context about a failed download. It wraps the
// underlying cause so errors.Is and errors.As keep working through it.
type FetchError struct {
	// Op describes the operation that failed, e.g. "fetch".
	Op string

	// URL is the remote source being downloaded.
	URL string

	// Attempts is how many requests were issued before giving up.
	Attempts int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s %s: %v (after %d attempts)", e.Op, e.URL, e.Err, e.Attempts)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// classifyTransportError maps a transport-level failure from the HTTP
// client onto the engine's error taxonomy.
func classifyTransportError(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrDNSFailure, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// isTransient reports whether a fetch failure is worth retrying.
// Timeouts, 5xx statuses, and mid-body connection drops are transient;
// client errors, DNS failures, and malformed responses are surfaced
// immediately.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	if errors.Is(err, ErrDNSFailure) || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		// Remaining transport-level failures (refused connections,
		// resets surfaced as *net.OpError) are treated as transient.
		return true
	}
	return false
}
