package providers

import (
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/chatbridge/internal/config"
	"github.com/ChamsBouzaiene/chatbridge/internal/engine"
)

// Backend is a configured chat backend plus its optional image creator.
type Backend struct {
	Client engine.LLMClient
	Images ImageCreator // nil when the backend cannot create images
	Tag    string       // log tag, e.g. "CHATGPT"
}

// NewBackend creates the backend selected by cfg.BotType.
func NewBackend(cfg *config.Config) (Backend, error) {
	botType := strings.ToLower(cfg.BotType)
	if botType == "" {
		botType = config.BotChatGPT
	}

	switch botType {
	case config.BotChatGPT:
		if cfg.OpenAIAPIKey == "" {
			return Backend{}, fmt.Errorf("open_ai_api_key (OPENAI_API_KEY) not set")
		}
		client, err := NewOpenAIClient(openAIConfig(cfg))
		if err != nil {
			return Backend{}, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		return Backend{
			Client: engine.NewRateLimitedClient(client, cfg.RateLimitChatGPT),
			Images: client,
			Tag:    "CHATGPT",
		}, nil

	case config.BotAzure:
		if cfg.OpenAIAPIKey == "" {
			return Backend{}, fmt.Errorf("open_ai_api_key (OPENAI_API_KEY) not set")
		}
		client, err := NewAzureClient(AzureConfig{
			APIKey:            cfg.OpenAIAPIKey,
			BaseURL:           cfg.OpenAIAPIBase,
			APIVersion:        cfg.AzureAPIVersion,
			DeploymentID:      cfg.AzureDeploymentID,
			Model:             cfg.Model,
			Proxy:             cfg.Proxy,
			Timeout:           cfg.Timeout(),
			TextToImage:       cfg.TextToImage,
			DalleAPIBase:      cfg.AzureDalleAPIBase,
			DalleAPIKey:       cfg.AzureDalleAPIKey,
			DalleDeploymentID: cfg.AzureDalleDeploymentID,
			DalleAPIVersion:   cfg.AzureDalleAPIVersion,
			PollInterval:      time.Duration(cfg.AzureDallePollInterval) * time.Second,
			ImageSize:         cfg.ImageCreateSize,
			ImageQuality:      cfg.Dalle3ImageQuality,
		})
		if err != nil {
			return Backend{}, fmt.Errorf("failed to create Azure client: %w", err)
		}
		return Backend{
			Client: engine.NewRateLimitedClient(client, cfg.RateLimitChatGPT),
			Images: client,
			Tag:    "AZURE",
		}, nil

	case config.BotQwen:
		client, err := NewQwenClient(QwenConfig{
			APIBase:         cfg.QwenAPIBase,
			AccessKeyID:     cfg.QwenAccessKeyID,
			AccessKeySecret: cfg.QwenAccessKeySecret,
			AgentKey:        cfg.QwenAgentKey,
			AppID:           cfg.QwenAppID,
			NodeID:          cfg.QwenNodeID,
			Proxy:           cfg.Proxy,
			Timeout:         cfg.Timeout(),
		})
		if err != nil {
			return Backend{}, fmt.Errorf("failed to create Qwen client: %w", err)
		}
		return Backend{Client: client, Tag: "QWEN"}, nil

	case config.BotCoze:
		client, err := NewCozeClient(CozeConfig{
			APIBase: cfg.CozeAPIBase,
			BotID:   cfg.CozeBotID,
			APIKey:  cfg.CozeAPIKey,
			Proxy:   cfg.Proxy,
			Timeout: cfg.Timeout(),
		})
		if err != nil {
			return Backend{}, fmt.Errorf("failed to create Coze client: %w", err)
		}
		backend := Backend{Client: client, Tag: "COZE"}
		// Coze has no image endpoint; OpenAI serves IMAGE_CREATE when a key is set.
		if cfg.OpenAIAPIKey != "" {
			images, err := NewOpenAIClient(openAIConfig(cfg))
			if err != nil {
				return Backend{}, fmt.Errorf("failed to create OpenAI image client: %w", err)
			}
			backend.Images = images
		}
		return backend, nil

	case config.BotClaude:
		model := cfg.Model
		if model == "" || strings.HasPrefix(model, "gpt-") {
			model = "claude-3-5-sonnet-20240620"
		}
		client, err := NewAnthropicClient(cfg.ClaudeAPIKey, model, cfg.Timeout())
		if err != nil {
			return Backend{}, fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		return Backend{Client: client, Tag: "CLAUDE"}, nil

	default:
		return Backend{}, fmt.Errorf("unknown bot_type: %s (supported: chatgpt, azure, qwen, coze, claude)", cfg.BotType)
	}
}

func openAIConfig(cfg *config.Config) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIAPIBase,
		Proxy:   cfg.Proxy,
		Model:   cfg.Model,
		Timeout: cfg.Timeout(),
	}
}
