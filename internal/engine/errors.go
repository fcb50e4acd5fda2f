// Package engine provides the reply pipeline shared by every bot backend.
// This file contains error classification and handling.

package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// FailureKind is the normalized class of a failed backend call.
type FailureKind string

const (
	FailureRateLimited  FailureKind = "rate_limited"
	FailureTimeout      FailureKind = "timeout"
	FailureUpstream     FailureKind = "upstream_error"
	FailureConnection   FailureKind = "connection_error"
	FailureUnclassified FailureKind = "unclassified"
)

// ErrRateLimited is returned by the local token bucket when a call is refused.
var ErrRateLimited = errors.New("rate limit exceeded")

// BackendError wraps a provider error with classification metadata.
type BackendError struct {
	Err        error
	Kind       FailureKind
	HTTPStatus int    // HTTP status code if applicable
	Backend    string // "openai", "qwen", "coze", ...
}

func (e *BackendError) Error() string {
	prefix := e.Backend
	if prefix == "" {
		prefix = "backend"
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s error (status %d, %s): %v", prefix, e.HTTPStatus, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error (%s): %v", prefix, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackendError creates a BackendError with an explicit kind.
func NewBackendError(backend string, err error, kind FailureKind) *BackendError {
	return &BackendError{
		Err:     err,
		Kind:    kind,
		Backend: backend,
	}
}

// WrapLLMError wraps a provider error, classifying it from the HTTP status
// when one is known and from the error itself otherwise.
func WrapLLMError(backend string, err error, httpStatus int) error {
	if err == nil {
		return nil
	}

	kind := KindFromStatus(httpStatus)
	if kind == "" {
		kind = ClassifyLLMError(err)
	}

	return &BackendError{
		Err:        err,
		Kind:       kind,
		HTTPStatus: httpStatus,
		Backend:    backend,
	}
}

// KindFromStatus maps an HTTP status code to a failure kind.
// Returns "" for statuses that say nothing about the failure class.
func KindFromStatus(status int) FailureKind {
	switch {
	case status == http.StatusTooManyRequests:
		return FailureRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return FailureTimeout
	case status >= 500 && status <= 599:
		return FailureUpstream
	}
	return ""
}

// ClassifyLLMError classifies an error from a backend call.
func ClassifyLLMError(err error) FailureKind {
	if err == nil {
		return FailureUnclassified
	}

	// Check if it's already a BackendError
	var backendErr *BackendError
	if errors.As(err, &backendErr) && backendErr.Kind != "" {
		return backendErr.Kind
	}

	if errors.Is(err, ErrRateLimited) {
		return FailureRateLimited
	}

	// Timeouts first: a *url.Error that timed out is still a timeout.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return FailureConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FailureConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureConnection
	}

	errStr := strings.ToLower(err.Error())

	// Rate limit errors (429)
	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") {
		return FailureRateLimited
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "deadline exceeded") {
		return FailureTimeout
	}

	// Server errors (5xx)
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") {
		return FailureUpstream
	}

	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") {
		return FailureConnection
	}

	// A transport failure that matched nothing above is still a connection problem.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return FailureConnection
	}

	return FailureUnclassified
}

// Failure is a classified backend failure as seen by the pipeline.
type Failure struct {
	Kind      FailureKind
	Message   string // user-facing, never contains internal detail
	Delay     time.Duration
	Retryable bool
	Err       error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}
