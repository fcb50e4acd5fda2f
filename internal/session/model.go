package session

import (
	"slices"
	"time"

	"github.com/ChamsBouzaiene/chatbridge/internal/engine"
)

// Session is one user's rolling conversation window.
type Session struct {
	ID        string               `json:"id"`
	Model     string               `json:"model"`
	Messages  []engine.ChatMessage `json:"messages"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	// TotalTokens is the total reported by the last backend reply.
	TotalTokens int `json:"total_tokens"`
	// UsageTokens accumulates TotalTokens over the session lifetime.
	UsageTokens int `json:"usage_tokens"`
}

// SystemPrompt returns the protected system message content, if any.
func (s Session) SystemPrompt() string {
	if len(s.Messages) > 0 && s.Messages[0].Role == engine.RoleSystem {
		return s.Messages[0].Content
	}
	return ""
}

// Clone returns a deep copy safe to hand out of the manager.
func (s *Session) Clone() Session {
	c := *s
	c.Messages = slices.Clone(s.Messages)
	return c
}
