package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/chatbridge/internal/reply"
	"github.com/ChamsBouzaiene/chatbridge/internal/session"
)

// echoBot answers with the query and records contexts.
type echoBot struct {
	mu  sync.Mutex
	got []reply.Context
}

func (b *echoBot) Reply(ctx context.Context, query string, rc reply.Context) reply.Reply {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, rc)
	return reply.Text("echo: " + query)
}

func newTestServer(t *testing.T) (*Server, *echoBot, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b := &echoBot{}
	m := session.NewManager(session.Options{Model: "gpt-3.5-turbo"})
	return New(b, m), b, m
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestReplyEndpoint(t *testing.T) {
	s, b, _ := newTestServer(t)

	body := `{"query":"hi","session_id":"u1","model":"gpt-4o"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/reply", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got reply.Reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, reply.Text("echo: hi"), got)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))

	require.Len(t, b.got, 1)
	assert.Equal(t, reply.Context{Type: reply.ContextText, SessionID: "u1", Model: "gpt-4o"}, b.got[0])
}

func TestReplyEndpoint_BadRequest(t *testing.T) {
	s, b, _ := newTestServer(t)

	for _, body := range []string{`{"session_id":"u1"}`, `{"query":"hi"}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/v1/reply", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, b.got)
}

func TestSessionRoutes(t *testing.T) {
	s, _, m := newTestServer(t)
	_, err := m.Query("q", "u1")
	require.NoError(t, err)
	_, err = m.Query("q", "u2")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/sessions/u1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, m.Len())

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/sessions", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, m.Len())
}

func TestWebSocket(t *testing.T) {
	s, b, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?session_id=ws-user"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ReplyRequest{Query: "one"}))
	var first wsReply
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, reply.Text("echo: one"), first.Reply)
	assert.NotEmpty(t, first.RequestID)

	require.NoError(t, conn.WriteJSON(ReplyRequest{Query: "two", SessionID: "other", Type: reply.ContextImageCreate}))
	var second wsReply
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, first.RequestID, second.RequestID)

	require.NoError(t, conn.WriteJSON(ReplyRequest{}))
	var third wsReply
	require.NoError(t, conn.ReadJSON(&third))
	assert.Equal(t, reply.TypeError, third.Type)

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.got, 2)
	assert.Equal(t, "ws-user", b.got[0].SessionID)
	assert.Equal(t, reply.Context{Type: reply.ContextImageCreate, SessionID: "other"}, b.got[1])
}

func TestWebSocket_IdleClientKeptAlive(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.pongWait = 300 * time.Millisecond
	s.pingPeriod = 100 * time.Millisecond
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?session_id=idle"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var pings atomic.Int32
	conn.SetPingHandler(func(data string) error {
		pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	// Control frames are only handled while reading.
	replies := make(chan wsReply)
	readErr := make(chan error, 1)
	go func() {
		for {
			var r wsReply
			if err := conn.ReadJSON(&r); err != nil {
				readErr <- err
				return
			}
			replies <- r
		}
	}()

	time.Sleep(3 * s.pongWait)
	require.NoError(t, conn.WriteJSON(ReplyRequest{Query: "still there?"}))

	select {
	case r := <-replies:
		assert.Equal(t, reply.Text("echo: still there?"), r.Reply)
	case err := <-readErr:
		t.Fatalf("connection dropped while idle: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply after idling")
	}
	assert.Positive(t, pings.Load())
}
