// Package engine provides the reply pipeline shared by every bot backend.
// This file contains token counting interfaces and implementations.

package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Tokenizer provides token counting for text.
// Different models use different tokenization schemes, so the model name is required.
type Tokenizer interface {
	// CountTokens returns the number of tokens in the given text for the specified model.
	CountTokens(text string, model string) (int, error)
}

// EstimateTokens provides a rough token count estimation.
// Uses a simple heuristic: ~4 characters per token for English/code.
// This is approximate but useful for logging and trimming.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}

	charCount := utf8.RuneCountInString(text)

	// Whitespace-heavy text has fewer tokens per character.
	whitespaceCount := strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t")

	estimated := (charCount / 4) + (whitespaceCount / 6)

	// Minimum of 1 token for non-empty text
	if estimated < 1 {
		return 1
	}

	return estimated
}

// DefaultTokenizer uses estimation as a fallback when no specific tokenizer is available.
type DefaultTokenizer struct{}

// CountTokens implements Tokenizer using estimation.
func (t DefaultTokenizer) CountTokens(text string, model string) (int, error) {
	return EstimateTokens(text), nil
}

// CharTokenizer counts one token per character. Backends that report no
// usage (Qwen, Coze) are accounted this way.
type CharTokenizer struct{}

// CountTokens implements Tokenizer.
func (t CharTokenizer) CountTokens(text string, model string) (int, error) {
	return utf8.RuneCountInString(text), nil
}

// CountTokensForMessages counts tokens for a slice of messages.
// Estimating tokenizers get a per-message formatting overhead; CharTokenizer
// counts content only.
func CountTokensForMessages(tokenizer Tokenizer, messages []ChatMessage, model string) (int, error) {
	_, charBased := tokenizer.(CharTokenizer)
	total := 0

	for _, msg := range messages {
		contentTokens, err := tokenizer.CountTokens(msg.Content, model)
		if err != nil {
			return 0, fmt.Errorf("failed to count content tokens: %w", err)
		}
		total += contentTokens

		if charBased {
			continue
		}

		roleTokens, err := tokenizer.CountTokens(string(msg.Role), model)
		if err != nil {
			return 0, fmt.Errorf("failed to count role tokens: %w", err)
		}
		// Add overhead for message formatting (approximately 4 tokens per message)
		total += roleTokens + 4
	}

	return total, nil
}

// CharUsage approximates usage by character length: prompt is the length of
// every message, completion the length of the reply. It is a proxy for
// accounting only, not a tokenizer.
func CharUsage(messages []ChatMessage, completion string) Usage {
	prompt := 0
	for _, msg := range messages {
		prompt += utf8.RuneCountInString(msg.Content)
	}
	completionTokens := utf8.RuneCountInString(completion)
	return Usage{
		Prompt:     prompt,
		Completion: completionTokens,
		Total:      prompt + completionTokens,
	}
}

// GetTokenizerForModel returns an appropriate tokenizer for the given model.
func GetTokenizerForModel(model string) Tokenizer {
	lower := strings.ToLower(model)
	if strings.HasPrefix(lower, "qwen") || strings.HasPrefix(lower, "coze") {
		return CharTokenizer{}
	}
	return DefaultTokenizer{}
}
