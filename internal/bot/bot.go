// Package bot turns a query and its reply.Context into exactly one reply.Reply.
// Reserved commands are handled locally; everything else goes through the
// session manager and the retry pipeline to the configured backend.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/ChamsBouzaiene/chatbridge/internal/config"
	"github.com/ChamsBouzaiene/chatbridge/internal/engine"
	"github.com/ChamsBouzaiene/chatbridge/internal/providers"
	"github.com/ChamsBouzaiene/chatbridge/internal/reply"
	"github.com/ChamsBouzaiene/chatbridge/internal/session"
)

// Replies to reserved commands.
const (
	MessageMemoryCleared = "记忆已清除"
	MessageAllCleared    = "所有人记忆已清除"
	MessageConfigUpdated = "配置已更新"
	MessageConfigFailed  = "配置更新失败"
	MessageEmptyQuery    = "请输入你的问题"
)

// Bot is the single capability channels call into.
type Bot interface {
	Reply(ctx context.Context, query string, rc reply.Context) reply.Reply
}

// Reloader re-reads configuration for the reload command.
type Reloader interface {
	Reload() (*config.Config, error)
}

// settings is the part of the configuration read on every call.
type settings struct {
	chat        engine.ChatOptions
	image       providers.ImageOptions
	clearMemory []string
	clearAll    []string
	reload      []string
}

// ChatBot implements Bot on top of one providers.Backend.
type ChatBot struct {
	mu           sync.RWMutex
	backend      providers.Backend
	settings     settings
	cfg          *config.Config
	fixedBackend bool

	sessions *session.Manager
	pipeline *engine.Pipeline
	reloader Reloader
}

// Option customizes a ChatBot.
type Option func(*ChatBot)

// WithBackend uses b instead of building one from the configuration.
// The backend is then kept across Apply calls.
func WithBackend(b providers.Backend) Option {
	return func(cb *ChatBot) {
		cb.backend = b
		cb.fixedBackend = true
	}
}

// WithSessions shares an existing session manager.
func WithSessions(m *session.Manager) Option {
	return func(cb *ChatBot) { cb.sessions = m }
}

// WithReloader enables the reload command.
func WithReloader(r Reloader) Option {
	return func(cb *ChatBot) { cb.reloader = r }
}

// WithSleep replaces the backoff sleep, mostly for tests.
func WithSleep(fn engine.SleepFunc) Option {
	return func(cb *ChatBot) { cb.pipeline.Sleep = fn }
}

// WithHook adds a pipeline hook next to the logger.
func WithHook(h engine.Hook) Option {
	return func(cb *ChatBot) {
		cb.pipeline.Hook = engine.Hooks{cb.pipeline.Hook, h}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p engine.RetryPolicy) Option {
	return func(cb *ChatBot) { cb.pipeline.Policy = p }
}

// New creates the bot selected by cfg.BotType.
func New(cfg *config.Config, opts ...Option) (*ChatBot, error) {
	cb := &ChatBot{
		cfg:      cfg.Clone(),
		settings: settingsFrom(cfg),
		pipeline: engine.NewPipeline("", engine.DefaultRetryPolicy(), engine.LoggerHook{}),
	}
	for _, opt := range opts {
		opt(cb)
	}

	if !cb.fixedBackend {
		backend, err := providers.NewBackend(cfg)
		if err != nil {
			return nil, err
		}
		cb.backend = backend
	}
	if cb.backend.Tag == "" {
		cb.backend.Tag = strings.ToUpper(cfg.BotType)
	}

	if cb.sessions == nil {
		cb.sessions = session.NewManager(SessionOptions(cfg))
	} else {
		cb.sessions.Configure(SessionOptions(cfg))
	}

	log.Printf("[%s] bot ready (model=%s)", cb.backend.Tag, cfg.Model)
	return cb, nil
}

// SessionOptions derives session manager options from cfg. Qwen and Coze
// sessions are trimmed by character count whatever the model name is.
func SessionOptions(cfg *config.Config) session.Options {
	opts := session.Options{
		Model:        cfg.Model,
		SystemPrompt: cfg.CharacterDesc,
		Trim: session.TrimPolicy{
			MaxTokens:   cfg.ConversationMaxTokens,
			MaxMessages: cfg.ConversationMaxMessages,
		},
		TTL: cfg.TTL(),
	}
	switch strings.ToLower(cfg.BotType) {
	case config.BotQwen, config.BotCoze:
		opts.Tokenizer = engine.CharTokenizer{}
	}
	return opts
}

func settingsFrom(cfg *config.Config) settings {
	return settings{
		chat: engine.ChatOptions{
			Model:            cfg.Model,
			Temperature:      cfg.Temperature,
			TopP:             cfg.TopP,
			FrequencyPenalty: cfg.FrequencyPenalty,
			PresencePenalty:  cfg.PresencePenalty,
			MaxOutputTokens:  cfg.MaxOutputTokens,
		},
		image: providers.ImageOptions{
			Model:   cfg.TextToImage,
			Size:    cfg.ImageCreateSize,
			Quality: cfg.Dalle3ImageQuality,
		},
		clearMemory: slices.Clone(cfg.ClearMemoryCommands),
		clearAll:    slices.Clone(cfg.ClearAllCommands),
		reload:      slices.Clone(cfg.ReloadConfigCommands),
	}
}

// Sessions returns the session manager the bot writes to.
func (b *ChatBot) Sessions() *session.Manager {
	return b.sessions
}

// Tag returns the backend log tag.
func (b *ChatBot) Tag() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.backend.Tag
}

// Apply switches the bot to cfg. The backend is rebuilt only when a setting
// it depends on changed; on failure the previous backend stays in use.
// Applying the configuration already in use is a no-op.
func (b *ChatBot) Apply(cfg *config.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if reflect.DeepEqual(b.cfg, cfg) {
		return nil
	}
	if !b.fixedBackend && backendChanged(b.cfg, cfg) {
		backend, err := providers.NewBackend(cfg)
		if err != nil {
			log.Printf("[%s] WARNING: keeping previous backend: %v", b.backend.Tag, err)
			return fmt.Errorf("failed to rebuild backend: %w", err)
		}
		b.backend = backend
	}

	b.cfg = cfg.Clone()
	b.settings = settingsFrom(cfg)
	b.sessions.Configure(SessionOptions(cfg))
	log.Printf("[%s] configuration applied", b.backend.Tag)
	return nil
}

// backendChanged reports whether the fields that shape the backend differ.
func backendChanged(old, cur *config.Config) bool {
	a, c := *old, *cur
	// Per-call settings never require a new client.
	for _, cfg := range []*config.Config{&a, &c} {
		cfg.Temperature, cfg.TopP = 0, 0
		cfg.FrequencyPenalty, cfg.PresencePenalty = 0, 0
		cfg.MaxOutputTokens = 0
		cfg.ClearMemoryCommands, cfg.ClearAllCommands, cfg.ReloadConfigCommands = nil, nil, nil
		cfg.CharacterDesc = ""
		cfg.ConversationMaxTokens, cfg.ConversationMaxMessages, cfg.ExpiresInSeconds = 0, 0, 0
		cfg.SessionStore = config.Store{}
	}
	return !reflect.DeepEqual(a, c)
}

func (b *ChatBot) snapshot() (providers.Backend, settings) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.backend, b.settings
}

// Reply implements Bot. It always returns a Reply.
func (b *ChatBot) Reply(ctx context.Context, query string, rc reply.Context) (r reply.Reply) {
	backend, s := b.snapshot()

	defer func() {
		if p := recover(); p != nil {
			log.Printf("[%s] Exception: panic while replying: %v\n%s", backend.Tag, p, debug.Stack())
			r = reply.Error(engine.MessageUnclassified)
		}
	}()

	switch rc.Type {
	case reply.ContextText, "":
		log.Printf("[%s] query=%s", backend.Tag, query)
		if handled, ok := b.command(query, rc, backend, s); ok {
			return handled
		}
		return b.chat(ctx, query, rc, backend, s)

	case reply.ContextImageCreate:
		return b.createImage(ctx, query, rc, backend, s)

	default:
		return reply.Error(fmt.Sprintf("Bot不支持处理%s类型的消息", rc.Type))
	}
}

// command handles reserved commands. ok is false when query is not one.
func (b *ChatBot) command(query string, rc reply.Context, backend providers.Backend, s settings) (reply.Reply, bool) {
	switch {
	case slices.Contains(s.clearMemory, query):
		b.sessions.Clear(rc.SessionID)
		return reply.Info(MessageMemoryCleared), true

	case slices.Contains(s.clearAll, query):
		b.sessions.ClearAll()
		return reply.Info(MessageAllCleared), true

	case slices.Contains(s.reload, query):
		if b.reloader != nil {
			cfg, err := b.reloader.Reload()
			if err != nil {
				log.Printf("[%s] WARNING: failed to reload config: %v", backend.Tag, err)
				return reply.Error(MessageConfigFailed), true
			}
			// Subscribers of the reloader usually applied cfg already.
			if err := b.Apply(cfg); err != nil {
				return reply.Error(MessageConfigFailed), true
			}
		}
		return reply.Info(MessageConfigUpdated), true
	}
	return reply.Reply{}, false
}

// chat runs one query through the session and the retry pipeline.
func (b *ChatBot) chat(ctx context.Context, query string, rc reply.Context, backend providers.Backend, s settings) reply.Reply {
	sess, err := b.sessions.Query(query, rc.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrEmptyQuery) {
			return reply.Error(MessageEmptyQuery)
		}
		log.Printf("[%s] Exception: %v", backend.Tag, err)
		return reply.Error(engine.MessageUnclassified)
	}

	opts := s.chat
	if rc.Model != "" {
		opts.Model = rc.Model
	}
	opts.APIKey = rc.APIKey

	pipeline := *b.pipeline
	pipeline.Tag = backend.Tag
	out := pipeline.Run(ctx, func(ctx context.Context) (engine.Completion, error) {
		return backend.Client.Chat(ctx, sess.Messages, opts)
	})

	if out.State == engine.StateExhausted {
		if out.Failure.Kind == engine.FailureUnclassified {
			b.sessions.Clear(rc.SessionID)
		}
		return reply.Error(out.Failure.Message)
	}
	return b.fold(rc.SessionID, out.Completion, backend.Tag)
}

// fold turns a successful completion into a Reply, committing it to the
// session only when the backend reported completion tokens.
func (b *ChatBot) fold(id string, c engine.Completion, tag string) reply.Reply {
	switch {
	case c.Usage.Completion == 0 && c.Content != "":
		log.Printf("[%s] WARNING: reply without completion tokens: %s", tag, c.Content)
		return reply.Error(c.Content)

	case c.Usage.Completion > 0:
		if _, err := b.sessions.Reply(c.Content, id, c.Usage.Total); err != nil {
			log.Printf("[%s] WARNING: failed to store reply: %v", tag, err)
		}
		return reply.Text(c.Content)

	default:
		log.Printf("[%s] WARNING: empty reply", tag)
		return reply.Error(engine.MessageUnclassified)
	}
}

// createImage serves IMAGE_CREATE with the backend's image creator.
func (b *ChatBot) createImage(ctx context.Context, prompt string, rc reply.Context, backend providers.Backend, s settings) reply.Reply {
	if backend.Images == nil {
		return reply.Error(fmt.Sprintf("Bot不支持处理%s类型的消息", rc.Type))
	}

	opts := s.image
	opts.APIKey = rc.APIKey

	log.Printf("[%s] image_query=%s", backend.Tag, prompt)
	url, err := backend.Images.CreateImage(ctx, prompt, opts)
	if err != nil {
		log.Printf("[%s] WARNING: image creation failed: %v", backend.Tag, err)
		var imgErr *providers.ImageError
		if errors.As(err, &imgErr) && imgErr.Message != "" {
			return reply.Error(imgErr.Message)
		}
		return reply.Error(providers.MessageImageFailed)
	}
	log.Printf("[%s] image_url=%s", backend.Tag, url)
	return reply.ImageURL(url)
}
