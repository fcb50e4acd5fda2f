// engine/hooks.go
package engine

import (
	"context"
	"time"
)

// Hook observes pipeline transitions. Hooks must not block.
type Hook interface {
	OnAttempt(ctx context.Context, tag string, attempt int)
	OnRetryAttempt(ctx context.Context, tag string, attempt int, maxRetries int, delay time.Duration, failure Failure)
	OnRetryExhausted(ctx context.Context, tag string, attempts int, failure Failure)
	OnSucceeded(ctx context.Context, tag string, attempts int, completion Completion)
}

// NopHook lets you implement any hook you need.
type NopHook struct{}

func (NopHook) OnAttempt(context.Context, string, int)                                 {}
func (NopHook) OnRetryAttempt(context.Context, string, int, int, time.Duration, Failure) {}
func (NopHook) OnRetryExhausted(context.Context, string, int, Failure)                  {}
func (NopHook) OnSucceeded(context.Context, string, int, Completion)                    {}

// Hooks fans out to several hooks in order.
type Hooks []Hook

func (hs Hooks) OnAttempt(ctx context.Context, tag string, attempt int) {
	for _, h := range hs {
		h.OnAttempt(ctx, tag, attempt)
	}
}
func (hs Hooks) OnRetryAttempt(ctx context.Context, tag string, attempt int, maxRetries int, delay time.Duration, f Failure) {
	for _, h := range hs {
		h.OnRetryAttempt(ctx, tag, attempt, maxRetries, delay, f)
	}
}
func (hs Hooks) OnRetryExhausted(ctx context.Context, tag string, attempts int, f Failure) {
	for _, h := range hs {
		h.OnRetryExhausted(ctx, tag, attempts, f)
	}
}
func (hs Hooks) OnSucceeded(ctx context.Context, tag string, attempts int, c Completion) {
	for _, h := range hs {
		h.OnSucceeded(ctx, tag, attempts, c)
	}
}
