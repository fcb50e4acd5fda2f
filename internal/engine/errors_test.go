package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyLLMError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"backend error keeps kind", NewBackendError("qwen", errors.New("boom"), FailureUpstream), FailureUpstream},
		{"wrapped backend error", fmt.Errorf("call: %w", NewBackendError("openai", errors.New("x"), FailureTimeout)), FailureTimeout},
		{"local rate limit", ErrRateLimited, FailureRateLimited},
		{"deadline", context.DeadlineExceeded, FailureTimeout},
		{"cancelled", context.Canceled, FailureTimeout},
		{"net timeout", &url.Error{Op: "Post", URL: "http://x", Err: timeoutErr{}}, FailureTimeout},
		{"connection refused", &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}, FailureConnection},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.example"}, FailureConnection},
		{"429 text", errors.New("error, status code: 429, message: Rate limit reached"), FailureRateLimited},
		{"bad gateway text", errors.New("502 Bad Gateway"), FailureUpstream},
		{"unknown", errors.New("invalid api key"), FailureUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyLLMError(tt.err); got != tt.want {
				t.Errorf("ClassifyLLMError() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWrapLLMError(t *testing.T) {
	tests := []struct {
		status int
		want   FailureKind
	}{
		{429, FailureRateLimited},
		{504, FailureTimeout},
		{408, FailureTimeout},
		{502, FailureUpstream},
		{500, FailureUpstream},
		{401, FailureUnclassified},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := WrapLLMError("openai", errors.New("request failed"), tt.status)
			var be *BackendError
			if !errors.As(err, &be) {
				t.Fatalf("expected *BackendError, got %T", err)
			}
			if be.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", be.Kind, tt.want)
			}
			if be.HTTPStatus != tt.status {
				t.Errorf("HTTPStatus = %d, want %d", be.HTTPStatus, tt.status)
			}
		})
	}

	if WrapLLMError("openai", nil, 500) != nil {
		t.Error("WrapLLMError(nil) should return nil")
	}
}

func TestRetryPolicyClassify(t *testing.T) {
	policy := DefaultRetryPolicy()

	f := policy.Classify(NewBackendError("openai", errors.New("down"), FailureConnection))
	if f.Retryable {
		t.Error("connection errors must not be retried")
	}
	if f.Message != MessageConnection {
		t.Errorf("Message = %q, want %q", f.Message, MessageConnection)
	}

	f = policy.Classify(errors.New("weird"))
	if f.Kind != FailureUnclassified || f.Retryable || f.Delay != 0 {
		t.Errorf("unexpected unclassified failure: %+v", f)
	}
}
