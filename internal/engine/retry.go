package engine

import (
	"context"
	"fmt"
	"time"
)

// RetryState is a state of the reply pipeline.
type RetryState string

const (
	StateAttempting RetryState = "attempting"
	StateBackoff    RetryState = "backoff"
	StateSucceeded  RetryState = "succeeded"
	StateExhausted  RetryState = "exhausted"
)

// CallFunc performs one backend attempt.
type CallFunc func(ctx context.Context) (Completion, error)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Outcome is the terminal result of a pipeline run.
// Exactly one of Completion (Succeeded) or Failure (Exhausted) is meaningful.
type Outcome struct {
	State      RetryState
	Completion Completion
	Failure    *Failure
	Attempts   int
	Waited     time.Duration // Sum of backoff delays actually slept
}

// Pipeline drives a backend call through bounded, classified retries.
type Pipeline struct {
	Policy RetryPolicy
	Sleep  SleepFunc // nil = real sleep honoring ctx
	Hook   Hook      // nil = no hooks
	Tag    string    // log tag, e.g. "CHATGPT"
}

// NewPipeline creates a pipeline with the given policy.
func NewPipeline(tag string, policy RetryPolicy, hook Hook) *Pipeline {
	return &Pipeline{
		Policy: policy,
		Hook:   hook,
		Tag:    tag,
	}
}

// Run executes call until it succeeds, fails with a non-retryable failure,
// or the retry budget is spent. It never panics on backend errors.
func (p *Pipeline) Run(ctx context.Context, call CallFunc) Outcome {
	hook := p.Hook
	if hook == nil {
		hook = NopHook{}
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var out Outcome
	state := StateAttempting

	for {
		switch state {
		case StateAttempting:
			out.Attempts++
			hook.OnAttempt(ctx, p.Tag, out.Attempts)

			completion, err := call(ctx)
			if err == nil {
				out.Completion = completion
				out.Failure = nil
				state = StateSucceeded
				continue
			}

			failure := p.Policy.Classify(err)
			out.Failure = &failure

			if !failure.Retryable || out.Attempts-1 >= p.Policy.MaxRetries {
				state = StateExhausted
				continue
			}
			state = StateBackoff

		case StateBackoff:
			delay := out.Failure.Delay
			hook.OnRetryAttempt(ctx, p.Tag, out.Attempts, p.Policy.MaxRetries, delay, *out.Failure)

			if err := sleep(ctx, delay); err != nil {
				// Cancelled while waiting: report the failure we already have.
				out.Failure.Err = fmt.Errorf("context cancelled during retry: %w (last error: %v)", err, out.Failure.Err)
				state = StateExhausted
				continue
			}
			out.Waited += delay
			state = StateAttempting

		case StateSucceeded:
			out.State = state
			hook.OnSucceeded(ctx, p.Tag, out.Attempts, out.Completion)
			return out

		case StateExhausted:
			out.State = state
			hook.OnRetryExhausted(ctx, p.Tag, out.Attempts, *out.Failure)
			return out
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
