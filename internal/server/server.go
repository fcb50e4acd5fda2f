// Package server exposes a Bot over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ChamsBouzaiene/chatbridge/internal/bot"
	"github.com/ChamsBouzaiene/chatbridge/internal/reply"
	"github.com/ChamsBouzaiene/chatbridge/internal/session"
)

// ReplyRequest is the body of POST /v1/reply and of every WebSocket frame.
type ReplyRequest struct {
	Query     string            `json:"query" binding:"required"`
	Type      reply.ContextType `json:"type,omitempty"`
	SessionID string            `json:"session_id" binding:"required"`
	Model     string            `json:"model,omitempty"`
	APIKey    string            `json:"api_key,omitempty"`
}

func (r ReplyRequest) context() reply.Context {
	typ := r.Type
	if typ == "" {
		typ = reply.ContextText
	}
	return reply.Context{Type: typ, SessionID: r.SessionID, Model: r.Model, APIKey: r.APIKey}
}

// Server routes channel requests to a Bot.
type Server struct {
	bot      bot.Bot
	sessions *session.Manager
	engine   *gin.Engine
	upgrader websocket.Upgrader
	http     *http.Server

	pongWait   time.Duration
	pingPeriod time.Duration // must stay below pongWait
}

// New builds the gin engine. sessions may be nil, which disables the
// session management routes.
func New(b bot.Bot, sessions *session.Manager) *Server {
	s := &Server{
		bot:      b,
		sessions: sessions,
		engine:   gin.New(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		pongWait:   wsPongWait,
		pingPeriod: wsPongWait * 9 / 10,
	}
	s.engine.Use(gin.Recovery(), RequestID(), Logger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)

	v1 := s.engine.Group("/v1")
	v1.POST("/reply", s.handleReply)
	v1.GET("/ws", s.handleWebSocket)
	if s.sessions != nil {
		v1.DELETE("/sessions/:id", s.handleClearSession)
		v1.DELETE("/sessions", s.handleClearAll)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[SERVER] listening on %s", addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	log.Printf("[SERVER] stopped")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReply(c *gin.Context) {
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r := s.bot.Reply(c.Request.Context(), req.Query, req.context())
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleClearSession(c *gin.Context) {
	s.sessions.Clear(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearAll(c *gin.Context) {
	s.sessions.ClearAll()
	c.Status(http.StatusNoContent)
}
