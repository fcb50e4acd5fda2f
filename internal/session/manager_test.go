package session

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/chatbridge/internal/engine"
)

func newTestManager(maxTokens int) *Manager {
	return NewManager(Options{
		Model:        "qwen-test",
		SystemPrompt: "你是一个助手",
		Trim:         TrimPolicy{MaxTokens: maxTokens},
		Tokenizer:    engine.CharTokenizer{},
	})
}

func TestManager_QueryCreatesSession(t *testing.T) {
	m := newTestManager(1000)

	s, err := m.Query("hello", "user-1")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if s.ID != "user-1" {
		t.Errorf("ID = %q, want user-1", s.ID)
	}
	if len(s.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(s.Messages))
	}
	if s.Messages[0].Role != engine.RoleSystem || s.SystemPrompt() != "你是一个助手" {
		t.Errorf("first message should be the system prompt, got %+v", s.Messages[0])
	}
	if s.Messages[1].Role != engine.RoleUser || s.Messages[1].Content != "hello" {
		t.Errorf("unexpected user message %+v", s.Messages[1])
	}
	if s.Model != "qwen-test" {
		t.Errorf("Model = %q", s.Model)
	}
}

func TestManager_QueryRejectsEmpty(t *testing.T) {
	m := newTestManager(1000)

	if _, err := m.Query("   ", "user-1"); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("empty query must not create a session")
	}
}

func TestManager_ReplyRecordsTokens(t *testing.T) {
	m := newTestManager(1000)
	if _, err := m.Query("hi", "u"); err != nil {
		t.Fatal(err)
	}

	s, err := m.Reply("hello there", "u", 42)
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if got := s.Messages[len(s.Messages)-1]; got.Role != engine.RoleAssistant || got.Content != "hello there" {
		t.Errorf("last message = %+v", got)
	}
	if s.TotalTokens != 42 || s.UsageTokens != 42 {
		t.Errorf("tokens = %d/%d, want 42/42", s.TotalTokens, s.UsageTokens)
	}

	m.Query("again", "u")
	s, _ = m.Reply("ok", "u", 10)
	if s.UsageTokens != 52 {
		t.Errorf("UsageTokens = %d, want 52", s.UsageTokens)
	}
}

func TestManager_ClearAndClearAll(t *testing.T) {
	m := newTestManager(1000)
	m.Query("a", "u1")
	m.Query("b", "u2")

	m.Clear("u1")
	m.Clear("missing") // no-op
	if _, ok := m.Get("u1"); ok {
		t.Error("u1 should be cleared")
	}
	if _, ok := m.Get("u2"); !ok {
		t.Error("u2 should survive Clear(u1)")
	}

	m.ClearAll()
	if m.Len() != 0 {
		t.Errorf("Len = %d after ClearAll", m.Len())
	}
	m.ClearAll()
	if m.Len() != 0 {
		t.Errorf("second ClearAll changed state")
	}
}

func TestManager_SystemPromptNeverEvicted(t *testing.T) {
	m := newTestManager(30)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("u%d", rng.Intn(3))
		text := strings.Repeat("字", 1+rng.Intn(20))

		var s Session
		var err error
		if rng.Intn(2) == 0 {
			s, err = m.Query(text, id)
		} else {
			s, err = m.Reply(text, id, rng.Intn(60))
		}
		if err != nil {
			t.Fatal(err)
		}

		if len(s.Messages) == 0 || s.Messages[0].Role != engine.RoleSystem || s.Messages[0].Content != "你是一个助手" {
			t.Fatalf("iteration %d: system message evicted: %+v", i, s.Messages)
		}
		for _, msg := range s.Messages[1:] {
			if msg.Role == engine.RoleSystem {
				t.Fatalf("iteration %d: stray system message", i)
			}
		}
	}
}

func TestManager_SnapshotIsolation(t *testing.T) {
	m := newTestManager(1000)
	s, _ := m.Query("hello", "u")

	s.Messages[1].Content = "tampered"
	s.Messages = append(s.Messages, engine.ChatMessage{Role: engine.RoleUser, Content: "extra"})

	stored, _ := m.Get("u")
	if len(stored.Messages) != 2 || stored.Messages[1].Content != "hello" {
		t.Errorf("stored session was mutated through a snapshot: %+v", stored.Messages)
	}
}

func TestManager_TTL(t *testing.T) {
	m := NewManager(Options{Model: "gpt-3.5-turbo", TTL: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Query("first", "u")
	now = now.Add(2 * time.Minute)

	if _, ok := m.Get("u"); ok {
		t.Error("expired session should not be returned")
	}

	s, _ := m.Query("second", "u")
	if len(s.Messages) != 1 || s.Messages[0].Content != "second" {
		t.Errorf("expired session should restart, got %+v", s.Messages)
	}

	m.Query("other", "v")
	now = now.Add(2 * time.Minute)
	if removed := m.Sweep(); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
}

func TestManager_LenSkipsExpired(t *testing.T) {
	m := NewManager(Options{Model: "gpt-3.5-turbo", TTL: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Query("old", "u")
	now = now.Add(30 * time.Second)
	m.Query("new", "v")
	if n := m.Len(); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}

	now = now.Add(45 * time.Second)
	if n := m.Len(); n != 1 {
		t.Errorf("Len = %d after u expired, want 1", n)
	}
	if removed := m.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if n := m.Len(); n != 1 {
		t.Errorf("Len = %d after Sweep, want 1", n)
	}
}

func TestManager_ConfigureAppliesToNewSessions(t *testing.T) {
	m := newTestManager(1000)
	m.Query("a", "old")

	m.Configure(Options{Model: "gpt-4o", SystemPrompt: "new prompt"})

	old, _ := m.Get("old")
	if old.SystemPrompt() != "你是一个助手" {
		t.Errorf("existing session prompt changed to %q", old.SystemPrompt())
	}
	fresh, _ := m.Query("b", "new")
	if fresh.SystemPrompt() != "new prompt" || fresh.Model != "gpt-4o" {
		t.Errorf("new session = %+v", fresh)
	}
}

func TestManager_ConcurrentDistinctSessions(t *testing.T) {
	m := newTestManager(200)
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", g)
			for i := 0; i < 50; i++ {
				if _, err := m.Query(fmt.Sprintf("q%d", i), id); err != nil {
					t.Error(err)
					return
				}
				m.Reply(fmt.Sprintf("a%d", i), id, 0)
			}
		}(g)
	}
	wg.Wait()

	if m.Len() != 8 {
		t.Fatalf("Len = %d, want 8", m.Len())
	}
	for g := 0; g < 8; g++ {
		s, _ := m.Get(fmt.Sprintf("user-%d", g))
		last := s.Messages[len(s.Messages)-1]
		if last.Content != "a49" {
			t.Errorf("session %d last message = %q, want a49", g, last.Content)
		}
	}
}
