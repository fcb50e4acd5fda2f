package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ChamsBouzaiene/chatbridge/internal/engine"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// AnthropicClient implements engine.LLMClient by calling the Anthropic SDK directly.
type AnthropicClient struct {
	client  *anthropic.Client
	apiKey  string
	model   string
	timeout time.Duration
}

// NewAnthropicClient creates a new Anthropic client for the engine.
func NewAnthropicClient(apiKey, modelName string, timeout time.Duration) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("claude_api_key not set")
	}
	return &AnthropicClient{
		client:  anthropic.NewClient(apiKey),
		apiKey:  apiKey,
		model:   modelName,
		timeout: timeout,
	}, nil
}

// Chat implements engine.LLMClient.Chat.
func (c *AnthropicClient) Chat(ctx context.Context, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.Completion, error) {
	var systemParts []anthropic.MessageSystemPart
	var anthropicMsgs []anthropic.Message

	for _, msg := range messages {
		switch msg.Role {
		case engine.RoleSystem:
			systemParts = append(systemParts, anthropic.MessageSystemPart{
				Type: "text",
				Text: msg.Content,
			})
		case engine.RoleUser:
			anthropicMsgs = append(anthropicMsgs, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
		case engine.RoleAssistant:
			anthropicMsgs = append(anthropicMsgs, anthropic.Message{
				Role:    anthropic.RoleAssistant,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
		}
	}

	modelName := opts.Model
	if modelName == "" {
		modelName = c.model
	}

	maxTokens := 4096
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}

	// Anthropic accepts temperature in [0, 1].
	temperature := opts.Temperature
	if temperature > 1 {
		temperature = 1
	}

	req := anthropic.MessagesRequest{
		Model:       anthropic.Model(modelName),
		Messages:    anthropicMsgs,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	if len(systemParts) > 0 {
		req.MultiSystem = systemParts
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	client := c.client
	if opts.APIKey != "" && opts.APIKey != c.apiKey {
		client = anthropic.NewClient(opts.APIKey)
	}

	resp, err := client.CreateMessages(ctx, req)
	if err != nil {
		return engine.Completion{}, wrapAnthropicError(err)
	}

	var textContent string
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			textContent += *block.Text
		}
	}

	return engine.Completion{
		Content: textContent,
		Usage: engine.Usage{
			Prompt:     resp.Usage.InputTokens,
			Completion: resp.Usage.OutputTokens,
			Total:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func wrapAnthropicError(err error) error {
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return engine.WrapLLMError("claude", err, reqErr.StatusCode)
	}
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch string(apiErr.Type) {
		case "rate_limit_error":
			return engine.NewBackendError("claude", err, engine.FailureRateLimited)
		case "overloaded_error", "api_error":
			return engine.NewBackendError("claude", err, engine.FailureUpstream)
		}
	}
	return engine.WrapLLMError("claude", err, extractStatus(err))
}
