// engine/hook_logger.go
package engine

import (
	"context"
	"log"
	"time"
)

// LoggerHook writes pipeline transitions to a standard logger.
type LoggerHook struct{ L *log.Logger }

func (h LoggerHook) logger() *log.Logger {
	if h.L == nil {
		return log.Default()
	}
	return h.L
}

func (h LoggerHook) OnAttempt(_ context.Context, tag string, attempt int) {
	if attempt > 1 {
		h.logger().Printf("[%s] attempt=%d", tag, attempt)
	}
}

func (h LoggerHook) OnRetryAttempt(_ context.Context, tag string, attempt int, maxRetries int, delay time.Duration, f Failure) {
	h.logger().Printf("[%s] WARNING: %s: %v", tag, f.Kind, f.Err)
	h.logger().Printf("[%s] retry %d/%d in %v", tag, attempt, maxRetries, delay)
}

func (h LoggerHook) OnRetryExhausted(_ context.Context, tag string, attempts int, f Failure) {
	if f.Kind == FailureUnclassified {
		h.logger().Printf("[%s] Exception after %d attempt(s): %v", tag, attempts, f.Err)
		return
	}
	h.logger().Printf("[%s] WARNING: giving up after %d attempt(s): %s: %v", tag, attempts, f.Kind, f.Err)
}

func (h LoggerHook) OnSucceeded(_ context.Context, tag string, attempts int, c Completion) {
	h.logger().Printf("[%s] tokens: prompt=%d completion=%d total=%d attempts=%d",
		tag, c.Usage.Prompt, c.Usage.Completion, c.Usage.Total, attempts)
}
