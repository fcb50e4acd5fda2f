package engine

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedClient guards an LLMClient with a token bucket. A call that
// finds the bucket empty fails immediately with ErrRateLimited, which the
// pipeline classifies as FailureRateLimited.
type RateLimitedClient struct {
	next    LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient allows perMinute calls per minute with a burst of the same size.
// perMinute <= 0 disables limiting and returns next unchanged.
func NewRateLimitedClient(next LLMClient, perMinute int) LLMClient {
	if perMinute <= 0 {
		return next
	}
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

// Chat implements LLMClient.
func (c *RateLimitedClient) Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (Completion, error) {
	if !c.limiter.Allow() {
		return Completion{}, ErrRateLimited
	}
	return c.next.Chat(ctx, messages, opts)
}
