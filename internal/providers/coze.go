package providers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/chatbridge/internal/engine"
)

// Soft failure texts of the Coze backend. They reach the user as ERROR
// replies and are never stored in the session.
const (
	CozeNoAnswer   = "No answer message found."
	CozeUnexpected = "Unexpected response from new model API."
)

// CozeConfig configures a Coze v2 chat backend.
type CozeConfig struct {
	APIBase string // host (api.coze.cn) or full base URL
	BotID   string
	APIKey  string // personal access token
	User    string // default "apiuser"
	Proxy   string
	Timeout time.Duration
}

// CozeClient implements engine.LLMClient against /open_api/v2/chat.
// Token usage is approximated by character length.
type CozeClient struct {
	cfg        CozeConfig
	endpoint   string
	httpClient *http.Client
}

// NewCozeClient creates a new Coze client.
func NewCozeClient(cfg CozeConfig) (*CozeClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("coze_api_key (KEY) not set")
	}
	if cfg.BotID == "" {
		return nil, fmt.Errorf("coze_bot_id (BOT_ID) not set")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "api.coze.cn"
	}
	if cfg.User == "" {
		cfg.User = "apiuser"
	}

	base := strings.TrimRight(cfg.APIBase, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	httpClient, err := newHTTPClient(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	return &CozeClient{
		cfg:        cfg,
		endpoint:   base + "/open_api/v2/chat",
		httpClient: httpClient,
	}, nil
}

type cozeHistoryMessage struct {
	Role        string `json:"role"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

type cozeChatRequest struct {
	ConversationID string               `json:"conversation_id"`
	BotID          string               `json:"bot_id"`
	User           string               `json:"user"`
	Query          string               `json:"query"`
	Stream         bool                 `json:"stream"`
	ChatHistory    []cozeHistoryMessage `json:"chat_history"`
}

type cozeChatResponse struct {
	Code     int    `json:"code"`
	Msg      string `json:"msg"`
	Messages []struct {
		Role        string `json:"role"`
		Type        string `json:"type"`
		Content     string `json:"content"`
		ContentType string `json:"content_type"`
	} `json:"messages"`
	ConversationID string `json:"conversation_id"`
}

// Chat implements engine.LLMClient.Chat. The last message is the query; the
// ones before it are sent as chat_history.
func (c *CozeClient) Chat(ctx context.Context, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.Completion, error) {
	if len(messages) == 0 {
		return engine.Completion{}, engine.NewBackendError("coze", fmt.Errorf("no messages"), engine.FailureUnclassified)
	}

	last := len(messages) - 1
	history := make([]cozeHistoryMessage, 0, last)
	for _, msg := range messages[:last] {
		history = append(history, cozeHistoryMessage{
			Role:        string(msg.Role),
			Content:     msg.Content,
			ContentType: "text",
		})
	}

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = c.cfg.APIKey
	}

	resp, err := doJSON(ctx, c.httpClient, "coze", http.MethodPost, c.endpoint,
		map[string]string{"Authorization": "Bearer " + apiKey},
		cozeChatRequest{
			BotID:       c.cfg.BotID,
			User:        c.cfg.User,
			Query:       messages[last].Content,
			ChatHistory: history,
		})
	if err != nil {
		return engine.Completion{}, err
	}
	if !resp.ok() {
		return engine.Completion{}, statusError("coze", resp)
	}

	var out cozeChatResponse
	if err := resp.decode("coze", &out); err != nil {
		return engine.Completion{}, err
	}
	if out.Code != 0 || out.Msg != "success" {
		log.Printf("[COZE] WARNING: unexpected response code=%d msg=%s", out.Code, out.Msg)
		return engine.Completion{Content: CozeUnexpected}, nil
	}

	for _, m := range out.Messages {
		if m.Role == "assistant" && m.Type == "answer" {
			content := strings.TrimSpace(m.Content)
			return engine.Completion{
				Content: content,
				Usage:   engine.CharUsage(messages, content),
			}, nil
		}
	}
	return engine.Completion{Content: CozeNoAnswer}, nil
}
