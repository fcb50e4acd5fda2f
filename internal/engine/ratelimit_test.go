package engine

import (
	"context"
	"errors"
	"testing"
)

func TestRateLimitedClient(t *testing.T) {
	calls := 0
	next := LLMClientFunc(func(ctx context.Context, messages []ChatMessage, opts ChatOptions) (Completion, error) {
		calls++
		return Completion{Content: "ok"}, nil
	})

	client := NewRateLimitedClient(next, 2)

	for i := 0; i < 2; i++ {
		if _, err := client.Chat(context.Background(), nil, ChatOptions{}); err != nil {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
	}

	_, err := client.Chat(context.Background(), nil, ChatOptions{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if ClassifyLLMError(err) != FailureRateLimited {
		t.Errorf("rate limit refusal should classify as %s", FailureRateLimited)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRateLimitedClient_Disabled(t *testing.T) {
	next := LLMClientFunc(func(ctx context.Context, messages []ChatMessage, opts ChatOptions) (Completion, error) {
		return Completion{}, nil
	})
	if _, ok := NewRateLimitedClient(next, 0).(LLMClientFunc); !ok {
		t.Error("perMinute=0 should return the wrapped client unchanged")
	}
}
