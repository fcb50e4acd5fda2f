package session

import (
	"testing"

	"github.com/ChamsBouzaiene/chatbridge/internal/engine"
)

func charCount(msgs []engine.ChatMessage) int {
	n, _ := engine.CountTokensForMessages(engine.CharTokenizer{}, msgs, "")
	return n
}

func sys(c string) engine.ChatMessage  { return engine.ChatMessage{Role: engine.RoleSystem, Content: c} }
func user(c string) engine.ChatMessage { return engine.ChatMessage{Role: engine.RoleUser, Content: c} }
func asst(c string) engine.ChatMessage { return engine.ChatMessage{Role: engine.RoleAssistant, Content: c} }

func contents(msgs []engine.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestTrimMessages(t *testing.T) {
	tests := []struct {
		name     string
		msgs     []engine.ChatMessage
		policy   TrimPolicy
		reported int
		want     []string
	}{
		{
			name:   "within bound",
			msgs:   []engine.ChatMessage{sys("S"), user("aa")},
			policy: TrimPolicy{MaxTokens: 10},
			want:   []string{"S", "aa"},
		},
		{
			name:   "drops oldest non-system first",
			msgs:   []engine.ChatMessage{sys("S"), user("aa"), asst("bb"), user("cc")},
			policy: TrimPolicy{MaxTokens: 5},
			want:   []string{"S", "bb", "cc"},
		},
		{
			name:   "keeps pending user query even when too long",
			msgs:   []engine.ChatMessage{sys("S"), user("abcdefgh")},
			policy: TrimPolicy{MaxTokens: 3},
			want:   []string{"S", "abcdefgh"},
		},
		{
			name:     "reported size triggers trimming",
			msgs:     []engine.ChatMessage{sys("S"), user("aaaa"), asst("bbbb")},
			policy:   TrimPolicy{MaxTokens: 5},
			reported: 100,
			want:     []string{"S", "bbbb"},
		},
		{
			name:     "trailing assistant can be dropped",
			msgs:     []engine.ChatMessage{sys("S"), user("aaaa"), asst("bbbb")},
			policy:   TrimPolicy{MaxTokens: 4},
			reported: 100,
			want:     []string{"S"},
		},
		{
			name:   "no system message",
			msgs:   []engine.ChatMessage{user("aa"), asst("bb"), user("cc")},
			policy: TrimPolicy{MaxTokens: 4},
			want:   []string{"bb", "cc"},
		},
		{
			name:   "message count bound",
			msgs:   []engine.ChatMessage{sys("S"), user("u1"), asst("a1"), user("u2")},
			policy: TrimPolicy{MaxMessages: 2},
			want:   []string{"S", "a1", "u2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := trimMessages(tt.msgs, tt.policy, charCount, tt.reported)
			gotContents := contents(got)
			if len(gotContents) != len(tt.want) {
				t.Fatalf("got %v, want %v", gotContents, tt.want)
			}
			for i := range tt.want {
				if gotContents[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", gotContents, tt.want)
				}
			}
		})
	}
}
