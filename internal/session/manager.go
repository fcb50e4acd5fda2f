package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/chatbridge/internal/engine"
)

// ErrEmptyQuery is returned when a query has no content.
var ErrEmptyQuery = errors.New("query must not be empty")

// Options configures a Manager.
type Options struct {
	Model        string
	SystemPrompt string // character_desc; empty means no system message
	Trim         TrimPolicy
	TTL          time.Duration // expires_in_seconds; 0 keeps sessions for the process lifetime
	Tokenizer    engine.Tokenizer
}

// Manager owns every Session, keyed by session id.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	opts     Options
	now      func() time.Time
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	if opts.Tokenizer == nil {
		opts.Tokenizer = engine.GetTokenizerForModel(opts.Model)
	}
	return &Manager{
		sessions: make(map[string]*Session),
		opts:     opts,
		now:      time.Now,
	}
}

// Configure replaces the options. Existing sessions keep their messages;
// the new system prompt and model apply to sessions created afterwards.
func (m *Manager) Configure(opts Options) {
	if opts.Tokenizer == nil {
		opts.Tokenizer = engine.GetTokenizerForModel(opts.Model)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = opts
}

// Query appends a user message to the session for id, creating the session
// on first use, trims it and returns a snapshot.
func (m *Manager) Query(query, id string) (Session, error) {
	if strings.TrimSpace(query) == "" {
		return Session{}, ErrEmptyQuery
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.lookup(id)
	s.Messages = append(s.Messages, engine.ChatMessage{Role: engine.RoleUser, Content: query})
	s.UpdatedAt = m.now()
	m.trim(s, 0)

	return s.Clone(), nil
}

// Reply appends the assistant answer, records totalTokens and re-applies trimming.
func (m *Manager) Reply(content, id string, totalTokens int) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.lookup(id)
	s.Messages = append(s.Messages, engine.ChatMessage{Role: engine.RoleAssistant, Content: content})
	s.TotalTokens = totalTokens
	s.UsageTokens += totalTokens
	s.UpdatedAt = m.now()
	size := m.trim(s, totalTokens)

	log.Printf("[SESSION] id=%s raw total_tokens=%d, savesession tokens=%d", id, totalTokens, size)
	return s.Clone(), nil
}

// Clear removes the session for id. It is a no-op when absent.
func (m *Manager) Clear(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// ClearAll removes every session.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.sessions)
}

// Get returns a snapshot of the session for id.
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || m.expired(s) {
		return Session{}, false
	}
	return s.Clone(), true
}

// Len returns the number of live sessions. Expired sessions awaiting Sweep
// are not counted.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.sessions {
		if !m.expired(s) {
			n++
		}
	}
	return n
}

// Sweep drops expired sessions and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Snapshot returns deep copies of every live session.
func (m *Manager) Snapshot() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if m.expired(s) {
			continue
		}
		out = append(out, s.Clone())
	}
	return out
}

// Restore loads sessions, replacing any with the same id.
func (m *Manager) Restore(sessions []Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range sessions {
		s := sessions[i].Clone()
		if s.ID == "" {
			continue
		}
		m.sessions[s.ID] = &s
	}
}

// Flush writes every live session to store.
func (m *Manager) Flush(ctx context.Context, store Store) error {
	snapshot := m.Snapshot()
	if err := store.SaveAll(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to flush sessions: %w", err)
	}
	log.Printf("[SESSION] flushed %d session(s)", len(snapshot))
	return nil
}

// Load restores sessions from store.
func (m *Manager) Load(ctx context.Context, store Store) error {
	sessions, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	m.Restore(sessions)
	log.Printf("[SESSION] restored %d session(s)", len(sessions))
	return nil
}

// lookup returns the live session for id, creating it if missing or expired.
// Caller holds m.mu.
func (m *Manager) lookup(id string) *Session {
	if s, ok := m.sessions[id]; ok && !m.expired(s) {
		return s
	}
	s := m.newSession(id)
	m.sessions[id] = s
	return s
}

func (m *Manager) newSession(id string) *Session {
	now := m.now()
	s := &Session{
		ID:        id,
		Model:     m.opts.Model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if m.opts.SystemPrompt != "" {
		s.Messages = []engine.ChatMessage{{Role: engine.RoleSystem, Content: m.opts.SystemPrompt}}
	}
	return s
}

func (m *Manager) expired(s *Session) bool {
	return m.opts.TTL > 0 && m.now().Sub(s.UpdatedAt) > m.opts.TTL
}

// trim applies the trim policy in place and returns the resulting size.
func (m *Manager) trim(s *Session, reported int) int {
	count := func(msgs []engine.ChatMessage) int {
		n, err := engine.CountTokensForMessages(m.opts.Tokenizer, msgs, s.Model)
		if err != nil {
			log.Printf("[SESSION] WARNING: failed to count tokens: %v", err)
			return 0
		}
		return n
	}
	var size int
	s.Messages, size = trimMessages(s.Messages, m.opts.Trim, count, reported)
	return size
}
