package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/chatbridge/internal/engine"

	"github.com/google/uuid"
)

// systemAck is the simulated assistant answer paired with the system prompt.
// Bailian applications take no system message, so the persona is sent as the
// first QA pair of the history.
const systemAck = "好的，我会严格按照你的设定回答问题"

// QwenConfig configures an Alibaba Bailian (Qwen) application backend.
type QwenConfig struct {
	APIBase         string // default https://bailian.aliyuncs.com
	AccessKeyID     string
	AccessKeySecret string
	AgentKey        string
	AppID           string
	NodeID          string // flow-orchestrated apps: node holding the final answer
	Proxy           string
	Timeout         time.Duration
}

// QwenClient implements engine.LLMClient against a Bailian application.
// Token usage is approximated by character length.
type QwenClient struct {
	cfg        QwenConfig
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewQwenClient creates a new Bailian client. The access token is fetched
// lazily on the first call and refreshed when it expires.
func NewQwenClient(cfg QwenConfig) (*QwenClient, error) {
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" {
		return nil, fmt.Errorf("qwen_access_key_id / qwen_access_key_secret not set")
	}
	if cfg.AppID == "" {
		return nil, fmt.Errorf("qwen_app_id not set")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://bailian.aliyuncs.com"
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")

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

	return &QwenClient{cfg: cfg, httpClient: httpClient, now: time.Now}, nil
}

// QAMessage is one user/bot exchange of Bailian history.
type QAMessage struct {
	User string `json:"User"`
	Bot  string `json:"Bot"`
}

type bailianCompletionRequest struct {
	RequestID string      `json:"RequestId"`
	AppID     string      `json:"AppId"`
	Prompt    string      `json:"Prompt"`
	History   []QAMessage `json:"History,omitempty"`
	TopP      float32     `json:"TopP,omitempty"`
}

type bailianCompletionResponse struct {
	Success   bool   `json:"Success"`
	Code      string `json:"Code"`
	Message   string `json:"Message"`
	RequestID string `json:"RequestId"`
	Data      struct {
		ResponseID string `json:"ResponseId"`
		SessionID  string `json:"SessionId"`
		Text       string `json:"Text"`
	} `json:"Data"`
}

type bailianTokenResponse struct {
	Success bool   `json:"Success"`
	Code    string `json:"Code"`
	Message string `json:"Message"`
	Data    struct {
		Token       string `json:"Token"`
		ExpiredTime int64  `json:"ExpiredTime"` // unix seconds
	} `json:"Data"`
}

// Chat implements engine.LLMClient.Chat.
func (c *QwenClient) Chat(ctx context.Context, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.Completion, error) {
	prompt, history, err := ConvertQAMessages(messages)
	if err != nil {
		return engine.Completion{}, engine.NewBackendError("qwen", err, engine.FailureUnclassified)
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return engine.Completion{}, err
	}

	// Completions take no temperature; temperature and top_p play the same
	// role, so the smaller one is sent as top_p.
	topP := opts.TopP
	if opts.Temperature < topP {
		topP = opts.Temperature
	}

	req := bailianCompletionRequest{
		RequestID: uuid.NewString(),
		AppID:     c.cfg.AppID,
		Prompt:    prompt,
		History:   history,
		TopP:      topP,
	}
	resp, err := doJSON(ctx, c.httpClient, "qwen", http.MethodPost, c.cfg.APIBase+"/v2/app/completions",
		map[string]string{"Authorization": "Bearer " + token}, req)
	if err != nil {
		return engine.Completion{}, err
	}
	if !resp.ok() {
		return engine.Completion{}, statusError("qwen", resp)
	}

	var out bailianCompletionResponse
	if err := resp.decode("qwen", &out); err != nil {
		return engine.Completion{}, err
	}

	if !out.Success {
		// Reported as a soft failure: shown to the user, never stored.
		return engine.Completion{Content: fmt.Sprintf("[ERROR]\n%s:%s", out.Code, out.Message)}, nil
	}

	content, err := ExtractNodeText(out.Data.Text, c.cfg.NodeID)
	if err != nil {
		return engine.Completion{}, engine.NewBackendError("qwen", err, engine.FailureUnclassified)
	}

	return engine.Completion{
		Content: content,
		Usage:   engine.CharUsage(messages, content),
	}, nil
}

// accessToken returns a valid token, creating a new one when the current
// one is missing or expired.
func (c *QwenClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	resp, err := doJSON(ctx, c.httpClient, "qwen", http.MethodPost, c.cfg.APIBase+"/v2/app/token", nil, map[string]string{
		"AccessKeyId":     c.cfg.AccessKeyID,
		"AccessKeySecret": c.cfg.AccessKeySecret,
		"AgentKey":        c.cfg.AgentKey,
	})
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", statusError("qwen", resp)
	}

	var out bailianTokenResponse
	if err := resp.decode("qwen", &out); err != nil {
		return "", err
	}
	if !out.Success || out.Data.Token == "" {
		return "", engine.NewBackendError("qwen", fmt.Errorf("failed to create token: %s:%s", out.Code, out.Message), engine.FailureUnclassified)
	}

	c.token = out.Data.Token
	c.expiresAt = time.Unix(out.Data.ExpiredTime, 0)
	log.Printf("[QWEN] access token refreshed, expires at %s", c.expiresAt.Format(time.RFC3339))
	return c.token, nil
}

// ConvertQAMessages turns a chat transcript into Bailian's prompt plus QA
// history. Consecutive user messages are concatenated; each assistant message
// closes a pair. The system prompt becomes a leading simulated pair.
func ConvertQAMessages(messages []engine.ChatMessage) (string, []QAMessage, error) {
	var (
		history       []QAMessage
		userContent   strings.Builder
		systemContent strings.Builder
	)

	for _, msg := range messages {
		switch msg.Role {
		case engine.RoleUser:
			userContent.WriteString(msg.Content)
		case engine.RoleAssistant:
			history = append(history, QAMessage{User: userContent.String(), Bot: msg.Content})
			userContent.Reset()
		case engine.RoleSystem:
			systemContent.WriteString(msg.Content)
		}
	}

	if userContent.Len() == 0 {
		return "", nil, errors.New("no user message")
	}
	if systemContent.Len() > 0 {
		history = append([]QAMessage{{User: systemContent.String(), Bot: systemAck}}, history...)
	}
	return userContent.String(), history, nil
}

// ExtractNodeText returns the answer text. For flow-orchestrated apps
// (nodeID set) Text is a JSON document and the answer sits at
// finalResult.<nodeID>.response.text.
func ExtractNodeText(text, nodeID string) (string, error) {
	if nodeID == "" {
		return text, nil
	}

	var doc struct {
		FinalResult map[string]struct {
			Response struct {
				Text string `json:"text"`
			} `json:"response"`
		} `json:"finalResult"`
	}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return "", fmt.Errorf("failed to parse flow result: %w", err)
	}
	node, ok := doc.FinalResult[nodeID]
	if !ok {
		return "", fmt.Errorf("flow result has no node %s", nodeID)
	}
	return node.Response.Text, nil
}
