package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/chatbridge/internal/engine"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIConfig configures an OpenAI (or OpenAI-compatible) chat backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // open_ai_api_base; empty = api.openai.com
	Proxy   string // http(s) proxy URL
	Model   string
	Timeout time.Duration // per request; 0 = none
}

// OpenAIClient implements engine.LLMClient and ImageCreator by calling the OpenAI SDK.
type OpenAIClient struct {
	client    *openai.Client
	newConfig func(apiKey string) openai.ClientConfig
	apiKey    string
	model     string
	timeout   time.Duration
	backend   string
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	httpClient, err := newHTTPClient(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	newConfig := func(apiKey string) openai.ClientConfig {
		config := openai.DefaultConfig(apiKey)
		if cfg.BaseURL != "" {
			config.BaseURL = cfg.BaseURL
		}
		if httpClient != nil {
			config.HTTPClient = httpClient
		}
		return config
	}

	return newOpenAIClient("openai", cfg.APIKey, cfg.Model, cfg.Timeout, newConfig), nil
}

func newOpenAIClient(backend, apiKey, model string, timeout time.Duration, newConfig func(string) openai.ClientConfig) *OpenAIClient {
	return &OpenAIClient{
		client:    openai.NewClientWithConfig(newConfig(apiKey)),
		newConfig: newConfig,
		apiKey:    apiKey,
		model:     model,
		timeout:   timeout,
		backend:   backend,
	}
}

// clientFor returns the SDK client to use for a per-call key override.
func (c *OpenAIClient) clientFor(apiKey string) *openai.Client {
	if apiKey == "" || apiKey == c.apiKey {
		return c.client
	}
	return openai.NewClientWithConfig(c.newConfig(apiKey))
}

// Chat implements engine.LLMClient.Chat.
func (c *OpenAIClient) Chat(ctx context.Context, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.Completion, error) {
	modelName := opts.Model
	if modelName == "" {
		modelName = c.model
	}

	openaiMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case engine.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case engine.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	temperature := opts.Temperature
	req := openai.ChatCompletionRequest{
		Model:            modelName,
		Messages:         openaiMsgs,
		Temperature:      &temperature,
		TopP:             opts.TopP,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
	}
	if opts.MaxOutputTokens > 0 {
		req.MaxTokens = opts.MaxOutputTokens
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.clientFor(opts.APIKey).CreateChatCompletion(ctx, req)
	if err != nil {
		return engine.Completion{}, wrapOpenAIError(c.backend, err)
	}

	if len(resp.Choices) == 0 {
		return engine.Completion{}, engine.NewBackendError(c.backend, fmt.Errorf("empty response from OpenAI"), engine.FailureUpstream)
	}

	return engine.Completion{
		Content: resp.Choices[0].Message.Content,
		Usage: engine.Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
	}, nil
}

// CreateImage implements ImageCreator with the images API (DALL·E).
func (c *OpenAIClient) CreateImage(ctx context.Context, prompt string, opts ImageOptions) (string, error) {
	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          opts.Model,
		N:              1,
		Size:           opts.Size,
		Quality:        opts.Quality,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.clientFor(opts.APIKey).CreateImage(ctx, req)
	if err != nil {
		return "", wrapOpenAIError(c.backend, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("image response carries no url")
	}
	return resp.Data[0].URL, nil
}

// wrapOpenAIError classifies SDK errors by their HTTP status.
func wrapOpenAIError(backend string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return engine.WrapLLMError(backend, err, apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return engine.WrapLLMError(backend, err, reqErr.HTTPStatusCode)
	}
	return engine.WrapLLMError(backend, err, extractStatus(err))
}

// extractStatus recovers an HTTP status code from an error message.
// Common patterns: "429", "status code 429", "HTTP 429", etc.
func extractStatus(err error) int {
	if err == nil {
		return 0
	}

	errStr := err.Error()
	for _, status := range []int{
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusRequestTimeout,
	} {
		if strings.Contains(errStr, fmt.Sprintf("%d", status)) {
			return status
		}
	}
	return 0
}

// newHTTPClient returns an *http.Client routed through proxy, or nil when
// proxy is empty.
func newHTTPClient(proxy string) (*http.Client, error) {
	if proxy == "" {
		return nil, nil
	}
	proxyURL, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url %q: %w", proxy, err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(proxyURL)
	return &http.Client{Transport: transport}, nil
}
