package server

import (
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ChamsBouzaiene/chatbridge/internal/reply"
)

const (
	wsReadLimit = 1 << 20
	wsPongWait  = 60 * time.Second
	wsWriteWait = 10 * time.Second
)

// wsReply is one frame sent back over the socket.
type wsReply struct {
	reply.Reply
	RequestID string `json:"request_id,omitempty"`
}

// wsConn serializes writes between the reply loop and the pinger.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// keepAlive pings every period until done is closed or a ping fails.
func (c *wsConn) keepAlive(period time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				log.Printf("[SERVER] WARNING: websocket ping failed: %v", err)
				return
			}
		}
	}
}

// handleWebSocket answers each JSON ReplyRequest frame with one reply frame.
// The session_id query parameter is used for frames that carry none. The
// server pings every pingPeriod and drops clients that stay silent, pongs
// included, for longer than pongWait.
func (s *Server) handleWebSocket(c *gin.Context) {
	raw, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[SERVER] WARNING: websocket upgrade failed: %v", err)
		return
	}
	conn := &wsConn{Conn: raw}
	defer conn.Close()

	defaultSession := c.Query("session_id")
	requestID := c.GetString(RequestIDHeader)
	ctx := c.Request.Context()

	conn.SetReadLimit(wsReadLimit)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go conn.keepAlive(s.pingPeriod, done)

	for {
		conn.SetReadDeadline(time.Now().Add(s.pongWait))

		var req ReplyRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[SERVER] WARNING: websocket read failed: %v", err)
			}
			return
		}

		if req.SessionID == "" {
			req.SessionID = defaultSession
		}

		var out reply.Reply
		if req.Query == "" || req.SessionID == "" {
			out = reply.Error("query and session_id are required")
		} else {
			out = s.bot.Reply(ctx, req.Query, req.context())
		}

		if err := conn.writeJSON(wsReply{Reply: out, RequestID: requestID}); err != nil {
			log.Printf("[SERVER] WARNING: websocket write failed: %v", err)
			return
		}
	}
}
