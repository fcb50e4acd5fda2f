package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

// scriptedCall fails with the given errors in order, then succeeds.
type scriptedCall struct {
	errs     []error
	success  Completion
	attempts int
}

func (s *scriptedCall) call(ctx context.Context) (Completion, error) {
	s.attempts++
	if s.attempts <= len(s.errs) {
		return Completion{}, s.errs[s.attempts-1]
	}
	return s.success, nil
}

// recordingSleep records requested delays without sleeping.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestPipeline(rs *recordingSleep) *Pipeline {
	p := NewPipeline("TEST", DefaultRetryPolicy(), nil)
	p.Sleep = rs.sleep
	return p
}

func TestPipeline_RateLimitedTwiceThenSucceeds(t *testing.T) {
	rs := &recordingSleep{}
	p := newTestPipeline(rs)
	rateLimited := NewBackendError("openai", errors.New("429"), FailureRateLimited)
	sc := &scriptedCall{
		errs:    []error{rateLimited, rateLimited},
		success: Completion{Content: "hi", Usage: Usage{Prompt: 5, Completion: 1, Total: 6}},
	}

	out := p.Run(context.Background(), sc.call)

	if out.State != StateSucceeded {
		t.Fatalf("State = %s, want %s", out.State, StateSucceeded)
	}
	if out.Attempts != 3 || sc.attempts != 3 {
		t.Errorf("Attempts = %d (calls %d), want 3", out.Attempts, sc.attempts)
	}
	if out.Waited != 40*time.Second {
		t.Errorf("Waited = %v, want 40s", out.Waited)
	}
	if len(rs.delays) != 2 || rs.delays[0] != 20*time.Second || rs.delays[1] != 20*time.Second {
		t.Errorf("delays = %v, want [20s 20s]", rs.delays)
	}
	if out.Completion.Content != "hi" {
		t.Errorf("Content = %q, want %q", out.Completion.Content, "hi")
	}
	if out.Failure != nil {
		t.Errorf("Failure = %+v, want nil", out.Failure)
	}
}

func TestPipeline_ConnectionErrorIsNotRetried(t *testing.T) {
	rs := &recordingSleep{}
	p := newTestPipeline(rs)
	sc := &scriptedCall{
		errs: []error{NewBackendError("openai", errors.New("dial tcp: refused"), FailureConnection)},
	}

	out := p.Run(context.Background(), sc.call)

	if out.State != StateExhausted {
		t.Fatalf("State = %s, want %s", out.State, StateExhausted)
	}
	if sc.attempts != 1 {
		t.Errorf("attempts = %d, want 1", sc.attempts)
	}
	if len(rs.delays) != 0 {
		t.Errorf("expected no backoff, got %v", rs.delays)
	}
	if out.Failure == nil || out.Failure.Message != MessageConnection {
		t.Errorf("Failure = %+v, want message %q", out.Failure, MessageConnection)
	}
}

func TestPipeline_ExhaustsAfterThreeAttempts(t *testing.T) {
	tests := []struct {
		name    string
		kind    FailureKind
		delay   time.Duration
		message string
	}{
		{"timeout", FailureTimeout, 5 * time.Second, MessageTimeout},
		{"upstream", FailureUpstream, 10 * time.Second, MessageUpstream},
		{"rate limited", FailureRateLimited, 20 * time.Second, MessageRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := &recordingSleep{}
			p := newTestPipeline(rs)
			err := NewBackendError("openai", errors.New("fail"), tt.kind)
			sc := &scriptedCall{errs: []error{err, err, err, err}}

			out := p.Run(context.Background(), sc.call)

			if out.State != StateExhausted {
				t.Fatalf("State = %s, want %s", out.State, StateExhausted)
			}
			if sc.attempts != 3 {
				t.Errorf("attempts = %d, want 3", sc.attempts)
			}
			if out.Waited != 2*tt.delay {
				t.Errorf("Waited = %v, want %v", out.Waited, 2*tt.delay)
			}
			if out.Failure.Message != tt.message {
				t.Errorf("Message = %q, want %q", out.Failure.Message, tt.message)
			}
		})
	}
}

func TestPipeline_UnclassifiedStopsImmediately(t *testing.T) {
	rs := &recordingSleep{}
	p := newTestPipeline(rs)
	sc := &scriptedCall{errs: []error{errors.New("something odd")}}

	out := p.Run(context.Background(), sc.call)

	if out.State != StateExhausted || sc.attempts != 1 {
		t.Fatalf("State = %s attempts = %d, want exhausted after 1", out.State, sc.attempts)
	}
	if out.Failure.Kind != FailureUnclassified {
		t.Errorf("Kind = %s, want %s", out.Failure.Kind, FailureUnclassified)
	}
	if out.Failure.Message != MessageUnclassified {
		t.Errorf("Message = %q, want %q", out.Failure.Message, MessageUnclassified)
	}
}

func TestPipeline_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPipeline("TEST", DefaultRetryPolicy(), nil)
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	sc := &scriptedCall{errs: []error{NewBackendError("openai", errors.New("slow"), FailureTimeout)}}

	out := p.Run(ctx, sc.call)

	if out.State != StateExhausted {
		t.Fatalf("State = %s, want %s", out.State, StateExhausted)
	}
	if sc.attempts != 1 {
		t.Errorf("attempts = %d, want 1", sc.attempts)
	}
	if out.Failure.Message != MessageTimeout {
		t.Errorf("Message = %q, want %q", out.Failure.Message, MessageTimeout)
	}
}

type countingHook struct {
	NopHook
	retries   int
	exhausted int
	succeeded int
}

func (h *countingHook) OnRetryAttempt(context.Context, string, int, int, time.Duration, Failure) {
	h.retries++
}
func (h *countingHook) OnRetryExhausted(context.Context, string, int, Failure) { h.exhausted++ }
func (h *countingHook) OnSucceeded(context.Context, string, int, Completion)   { h.succeeded++ }

func TestPipeline_Hooks(t *testing.T) {
	hook := &countingHook{}
	p := NewPipeline("TEST", DefaultRetryPolicy(), Hooks{hook, LoggerHook{}})
	p.Sleep = (&recordingSleep{}).sleep
	sc := &scriptedCall{errs: []error{NewBackendError("x", errors.New("502"), FailureUpstream)}}

	p.Run(context.Background(), sc.call)

	if hook.retries != 1 || hook.succeeded != 1 || hook.exhausted != 0 {
		t.Errorf("hook counts = %+v", hook)
	}
}
