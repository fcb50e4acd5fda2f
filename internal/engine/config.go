package engine

import "time"

// FailureRule is the pipeline's reaction to one failure kind.
type FailureRule struct {
	Delay     time.Duration // Backoff before the next attempt
	Message   string        // User-facing status message
	Retryable bool
}

// RetryPolicy defines retry behavior for backend calls.
type RetryPolicy struct {
	MaxRetries int // Additional attempts after the first one
	Rules      map[FailureKind]FailureRule
}

// Default user-facing messages, one per failure kind.
const (
	MessageRateLimited  = "提问太快啦，请休息一下再问我吧"
	MessageTimeout      = "我没有收到你的消息"
	MessageUpstream     = "请再问我一次"
	MessageConnection   = "我连接不到你的网络"
	MessageUnclassified = "我现在有点累了，等会再来吧"
)

// DefaultRetryPolicy returns the policy every bot uses unless configured otherwise.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		Rules: map[FailureKind]FailureRule{
			FailureRateLimited:  {Delay: 20 * time.Second, Message: MessageRateLimited, Retryable: true},
			FailureTimeout:      {Delay: 5 * time.Second, Message: MessageTimeout, Retryable: true},
			FailureUpstream:     {Delay: 10 * time.Second, Message: MessageUpstream, Retryable: true},
			FailureConnection:   {Delay: 5 * time.Second, Message: MessageConnection, Retryable: false},
			FailureUnclassified: {Delay: 0, Message: MessageUnclassified, Retryable: false},
		},
	}
}

// Classify turns a backend error into a Failure according to the policy.
// Kinds without a rule fall back to the unclassified rule.
func (p RetryPolicy) Classify(err error) Failure {
	kind := ClassifyLLMError(err)
	rule, ok := p.Rules[kind]
	if !ok {
		rule, ok = p.Rules[FailureUnclassified]
		if !ok {
			rule = FailureRule{Message: MessageUnclassified}
		}
	}
	return Failure{
		Kind:      kind,
		Message:   rule.Message,
		Delay:     rule.Delay,
		Retryable: rule.Retryable,
		Err:       err,
	}
}
