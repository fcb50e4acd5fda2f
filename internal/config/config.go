package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Bot types selectable with bot_type.
const (
	BotChatGPT = "chatgpt"
	BotAzure   = "azure"
	BotQwen    = "qwen"
	BotCoze    = "coze"
	BotClaude  = "claude"
)

// Config holds every setting read by the bots, the session layer and the channels.
// Keys match the config file; both JSON and YAML documents are accepted.
type Config struct {
	BotType string `json:"bot_type" yaml:"bot_type"`

	// Model parameters
	Model            string  `json:"model" yaml:"model"`
	Temperature      float32 `json:"temperature" yaml:"temperature"`
	TopP             float32 `json:"top_p" yaml:"top_p"`
	FrequencyPenalty float32 `json:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty  float32 `json:"presence_penalty" yaml:"presence_penalty"`
	MaxOutputTokens  int     `json:"max_output_tokens,omitempty" yaml:"max_output_tokens,omitempty"`
	RequestTimeout   int     `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`     // seconds; 0 = backend default
	RateLimitChatGPT int     `json:"rate_limit_chatgpt,omitempty" yaml:"rate_limit_chatgpt,omitempty"` // requests per minute; 0 = off

	// OpenAI
	OpenAIAPIKey  string `json:"open_ai_api_key,omitempty" yaml:"open_ai_api_key,omitempty"`
	OpenAIAPIBase string `json:"open_ai_api_base,omitempty" yaml:"open_ai_api_base,omitempty"`
	Proxy         string `json:"proxy,omitempty" yaml:"proxy,omitempty"`

	// Reserved commands
	ClearMemoryCommands  []string `json:"clear_memory_commands" yaml:"clear_memory_commands"`
	ClearAllCommands     []string `json:"clear_all_commands" yaml:"clear_all_commands"`
	ReloadConfigCommands []string `json:"reload_config_commands" yaml:"reload_config_commands"`

	// Sessions
	CharacterDesc           string `json:"character_desc,omitempty" yaml:"character_desc,omitempty"`
	ConversationMaxTokens   int    `json:"conversation_max_tokens" yaml:"conversation_max_tokens"`
	ConversationMaxMessages int    `json:"conversation_max_messages,omitempty" yaml:"conversation_max_messages,omitempty"`
	ExpiresInSeconds        int    `json:"expires_in_seconds,omitempty" yaml:"expires_in_seconds,omitempty"`
	SessionStore            Store  `json:"session_store" yaml:"session_store"`

	// Azure OpenAI
	AzureAPIVersion        string `json:"azure_api_version,omitempty" yaml:"azure_api_version,omitempty"`
	AzureDeploymentID      string `json:"azure_deployment_id,omitempty" yaml:"azure_deployment_id,omitempty"`
	AzureDalleAPIBase      string `json:"azure_openai_dalle_api_base,omitempty" yaml:"azure_openai_dalle_api_base,omitempty"`
	AzureDalleAPIKey       string `json:"azure_openai_dalle_api_key,omitempty" yaml:"azure_openai_dalle_api_key,omitempty"`
	AzureDalleDeploymentID string `json:"azure_openai_dalle_deployment_id,omitempty" yaml:"azure_openai_dalle_deployment_id,omitempty"`
	AzureDalleAPIVersion   string `json:"azure_openai_dalle_api_version,omitempty" yaml:"azure_openai_dalle_api_version,omitempty"` // dall-e-3
	AzureDallePollInterval int    `json:"azure_openai_dalle_poll_interval,omitempty" yaml:"azure_openai_dalle_poll_interval,omitempty"` // seconds between dall-e-2 job polls

	// Image creation
	TextToImage        string `json:"text_to_image,omitempty" yaml:"text_to_image,omitempty"`
	ImageCreateSize    string `json:"image_create_size,omitempty" yaml:"image_create_size,omitempty"`
	Dalle3ImageQuality string `json:"dalle3_image_quality,omitempty" yaml:"dalle3_image_quality,omitempty"`

	// Alibaba Bailian (Qwen)
	QwenAPIBase         string `json:"qwen_api_base,omitempty" yaml:"qwen_api_base,omitempty"`
	QwenAccessKeyID     string `json:"qwen_access_key_id,omitempty" yaml:"qwen_access_key_id,omitempty"`
	QwenAccessKeySecret string `json:"qwen_access_key_secret,omitempty" yaml:"qwen_access_key_secret,omitempty"`
	QwenAgentKey        string `json:"qwen_agent_key,omitempty" yaml:"qwen_agent_key,omitempty"`
	QwenAppID           string `json:"qwen_app_id,omitempty" yaml:"qwen_app_id,omitempty"`
	QwenNodeID          string `json:"qwen_node_id,omitempty" yaml:"qwen_node_id,omitempty"`

	// Coze
	CozeAPIBase string `json:"coze_api_base,omitempty" yaml:"coze_api_base,omitempty"`
	CozeBotID   string `json:"coze_bot_id,omitempty" yaml:"coze_bot_id,omitempty"`
	CozeAPIKey  string `json:"coze_api_key,omitempty" yaml:"coze_api_key,omitempty"`

	// Anthropic
	ClaudeAPIKey string `json:"claude_api_key,omitempty" yaml:"claude_api_key,omitempty"`
}

// Store selects where sessions are persisted between runs.
type Store struct {
	Kind          string `json:"kind" yaml:"kind"` // none, file, sqlite, mysql, redis
	Path          string `json:"path,omitempty" yaml:"path,omitempty"`
	DSN           string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	RedisAddress  string `json:"redis_address,omitempty" yaml:"redis_address,omitempty"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	RedisKey      string `json:"redis_key,omitempty" yaml:"redis_key,omitempty"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		BotType:                BotChatGPT,
		Model:                  "gpt-3.5-turbo",
		Temperature:            0.9,
		TopP:                   1,
		ClearMemoryCommands:    []string{"#清除记忆"},
		ClearAllCommands:       []string{"#清除所有"},
		ReloadConfigCommands:   []string{"#更新配置"},
		ConversationMaxTokens:  1000,
		RateLimitChatGPT:       20,
		AzureAPIVersion:        "2023-06-01-preview",
		AzureDalleAPIVersion:   "2024-02-15-preview",
		AzureDallePollInterval: 2,
		ImageCreateSize:        "256x256",
		Dalle3ImageQuality:     "standard",
		QwenAPIBase:            "https://bailian.aliyuncs.com",
		CozeAPIBase:            "api.coze.cn",
		SessionStore:           Store{Kind: "none"},
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.ClearMemoryCommands = append([]string(nil), c.ClearMemoryCommands...)
	out.ClearAllCommands = append([]string(nil), c.ClearAllCommands...)
	out.ReloadConfigCommands = append([]string(nil), c.ReloadConfigCommands...)
	return &out
}

// Timeout returns request_timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// TTL returns expires_in_seconds as a duration.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.ExpiresInSeconds) * time.Second
}

// ApplyEnv overlays settings from environment variables. Values already loaded
// from .env files are visible here.
func (c *Config) ApplyEnv() {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}

	setString(&c.BotType, "BOT_TYPE")
	setString(&c.Model, "MODEL")
	setString(&c.OpenAIAPIKey, "OPENAI_API_KEY", "OPEN_AI_API_KEY")
	setString(&c.OpenAIAPIBase, "OPENAI_API_BASE", "OPEN_AI_API_BASE")
	setString(&c.Proxy, "PROXY")
	setString(&c.CharacterDesc, "CHARACTER_DESC")
	setString(&c.CozeAPIBase, "COZE_API_BASE")
	setString(&c.CozeBotID, "BOT_ID", "COZE_BOT_ID")
	setString(&c.CozeAPIKey, "KEY", "COZE_API_KEY")
	setString(&c.ClaudeAPIKey, "CLAUDE_API_KEY", "ANTHROPIC_API_KEY")
	setString(&c.QwenAccessKeyID, "QWEN_ACCESS_KEY_ID")
	setString(&c.QwenAccessKeySecret, "QWEN_ACCESS_KEY_SECRET")
	setString(&c.QwenAgentKey, "QWEN_AGENT_KEY")
	setString(&c.QwenAppID, "QWEN_APP_ID")
	setString(&c.SessionStore.Kind, "SESSION_STORE")
	setString(&c.SessionStore.DSN, "SESSION_STORE_DSN")
	setString(&c.SessionStore.RedisAddress, "REDIS_ADDR")

	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RequestTimeout = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_CHATGPT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitChatGPT = n
		}
	}
}
