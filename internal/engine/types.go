package engine

import (
	"context"
	"fmt"
)

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is the provider-agnostic message we pass around.
type ChatMessage struct {
	Role    MessageRole `json:"role" yaml:"role"`
	Content string      `json:"content" yaml:"content"`
}

// Validate checks if the ChatMessage is valid.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	return nil
}

// Usage holds token accounting returned by providers.
type Usage struct {
	Prompt     int `json:"prompt_tokens"`
	Completion int `json:"completion_tokens"`
	Total      int `json:"total_tokens"`
}

// Completion is a normalized result of one successful backend call.
//
// A Completion with Usage.Completion == 0 and non-empty Content is a soft
// failure reported by the backend itself (for example a Coze response that
// carries no answer message); callers must not commit it to the session.
type Completion struct {
	Content string
	Usage   Usage
}

// ChatOptions keeps knobs you'll forward to the SDK.
type ChatOptions struct {
	Model            string
	Temperature      float32
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	MaxOutputTokens  int
	// APIKey overrides the client's configured key for a single call.
	APIKey string
}

// LLMClient abstracts one chat backend (OpenAI, Azure, Qwen, Coze, Claude).
// A call is one attempt; retries are the Pipeline's job.
type LLMClient interface {
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (Completion, error)
}

// LLMClientFunc adapts a function to LLMClient.
type LLMClientFunc func(ctx context.Context, messages []ChatMessage, opts ChatOptions) (Completion, error)

func (f LLMClientFunc) Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (Completion, error) {
	return f(ctx, messages, opts)
}
