package engine

import (
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{
			name: "empty",
			text: "",
			want: 0,
		},
		{
			name: "short word",
			text: "hello",
			want: 1, // 5 chars / 4 = 1
		},
		{
			name: "sentence",
			text: "hello world this is a test",
			want: 6, // 26 chars / 4 = 6 + whitespace/6 ~ 0 = 6
		},
		{
			name: "code snippet",
			text: "func main() { fmt.Println(\"hello\") }",
			want: 9, // 36 chars / 4 = 9 + whitespace/6 ~ 0 = 9
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateTokens(tt.text)
			if got != tt.want {
				t.Errorf("EstimateTokens() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCountTokensForMessages(t *testing.T) {
	tests := []struct {
		name      string
		tokenizer Tokenizer
		messages  []ChatMessage
		want      int
	}{
		{
			name:      "estimate single message",
			tokenizer: DefaultTokenizer{},
			messages: []ChatMessage{
				{Role: RoleUser, Content: "hello"},
			},
			// Content(hello=5/4=1) + Role(user=4/4=1) + Overhead(4) = 6
			want: 6,
		},
		{
			name:      "char based counts content only",
			tokenizer: CharTokenizer{},
			messages: []ChatMessage{
				{Role: RoleSystem, Content: "你是助手"},
				{Role: RoleUser, Content: "你好"},
			},
			want: 6,
		},
		{
			name:      "empty",
			tokenizer: CharTokenizer{},
			messages:  nil,
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CountTokensForMessages(tt.tokenizer, tt.messages, "test-model")
			if err != nil {
				t.Fatalf("CountTokensForMessages() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CountTokensForMessages() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCharUsage(t *testing.T) {
	messages := []ChatMessage{
		{Role: RoleSystem, Content: "abc"},
		{Role: RoleUser, Content: "你好吗"},
	}

	usage := CharUsage(messages, "很好")

	if usage.Prompt != 6 {
		t.Errorf("Prompt = %d, want 6", usage.Prompt)
	}
	if usage.Completion != 2 {
		t.Errorf("Completion = %d, want 2", usage.Completion)
	}
	if usage.Total != 8 {
		t.Errorf("Total = %d, want 8", usage.Total)
	}
}

func TestGetTokenizerForModel(t *testing.T) {
	if _, ok := GetTokenizerForModel("qwen-plus").(CharTokenizer); !ok {
		t.Error("expected CharTokenizer for qwen models")
	}
	if _, ok := GetTokenizerForModel("gpt-4o-mini").(DefaultTokenizer); !ok {
		t.Error("expected DefaultTokenizer for gpt models")
	}
}
