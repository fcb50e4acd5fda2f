package session

import (
	"log"
	"slices"

	"github.com/ChamsBouzaiene/chatbridge/internal/engine"
)

// TrimPolicy bounds a session's context window. Zero fields disable that bound.
type TrimPolicy struct {
	MaxTokens   int // conversation_max_tokens
	MaxMessages int // non-system messages kept at most
}

func (p TrimPolicy) exceeded(size int, msgs []engine.ChatMessage) bool {
	if p.MaxTokens > 0 && size > p.MaxTokens {
		return true
	}
	if p.MaxMessages > 0 {
		n := len(msgs)
		if n > 0 && msgs[0].Role == engine.RoleSystem {
			n--
		}
		if n > p.MaxMessages {
			return true
		}
	}
	return false
}

// trimMessages drops the oldest non-system message until the policy holds.
// reported, when positive, is a backend-measured size used for the first
// check; later checks recount with count. The system message is never
// dropped, and neither is a trailing user message (the pending query).
// Returns the trimmed slice and its final size.
func trimMessages(msgs []engine.ChatMessage, policy TrimPolicy, count func([]engine.ChatMessage) int, reported int) ([]engine.ChatMessage, int) {
	size := reported
	if size <= 0 {
		size = count(msgs)
	}

	for policy.exceeded(size, msgs) {
		idx := 0
		if len(msgs) > 0 && msgs[0].Role == engine.RoleSystem {
			idx = 1
		}
		if idx >= len(msgs) {
			break
		}
		if idx == len(msgs)-1 && msgs[idx].Role == engine.RoleUser {
			log.Printf("[SESSION] WARNING: user message exceeds max_tokens. total_tokens=%d", size)
			break
		}
		msgs = slices.Delete(msgs, idx, idx+1)
		size = count(msgs)
	}

	return msgs, size
}
