package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/sefer/internal/logging"
	"github.com/FocuswithJustin/sefer/internal/lookup"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsMaxMessage = 4096
	wsSendBuffer = 16
)

// WSRequest is a lookup sent by a websocket client. A plain text frame is
// treated as a request with only Citation set.
type WSRequest struct {
	ID       string `json:"id,omitempty"`
	Citation string `json:"citation"`
	Lang     string `json:"lang,omitempty"`
	Numbers  *bool  `json:"numbers,omitempty"`
}

// WSMessage is a reply to one WSRequest.
type WSMessage struct {
	Type      string          `json:"type"` // "passage" or "error"
	ID        string          `json:"id,omitempty"`
	Input     string          `json:"input"`
	Passage   *lookup.Passage `json:"passage,omitempty"`
	Error     *APIError       `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// wsClient is one websocket connection. readPump resolves requests in
// arrival order; writePump owns every write to conn.
type wsClient struct {
	server *Server
	conn   *websocket.Conn
	ip     string
	send   chan []byte
	done   chan struct{} // closed when writePump exits
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin accepts requests without an Origin header and any origin listed
// in AllowedOrigins. An empty list allows every origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		logging.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		server: s,
		conn:   conn,
		ip:     getClientIP(r),
		send:   make(chan []byte, wsSendBuffer),
		done:   make(chan struct{}),
	}
	n := s.clients.Add(1)
	s.metrics.wsClients.Set(float64(n))
	logging.WebSocketEvent("client_connected", int(n), "remote", r.RemoteAddr)

	// The request context ends with the handler, so lookups derive from the
	// server context instead. Shutdown closes the hijacked connection.
	base := s.base
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(logging.WithRequestID(base, logging.GetRequestID(r.Context())))
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go c.writePump()
	go func() {
		defer cancel()
		c.readPump(ctx)
		n := s.clients.Add(-1)
		s.metrics.wsClients.Set(float64(n))
		logging.WebSocketEvent("client_disconnected", int(n))
	}()
}

// readPump reads requests until the connection fails, answering each one.
func (c *wsClient) readPump(ctx context.Context) {
	defer func() {
		close(c.send)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn("websocket unexpected close", "error", err)
			}
			return
		}

		req := decodeRequest(data)
		var msg WSMessage
		if l := c.server.limiter; l != nil && !l.Allow(c.ip) {
			c.server.metrics.rateLimited.Inc()
			msg = WSMessage{
				Type:      "error",
				ID:        req.ID,
				Input:     req.Citation,
				Error:     &APIError{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded"},
				Timestamp: now(),
			}
		} else {
			msg = c.server.answer(ctx, req)
		}
		out, err := json.Marshal(msg)
		if err != nil {
			logging.Error("encode websocket reply failed", "error", err)
			continue
		}
		select {
		case c.send <- out:
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// writePump writes replies and keeps the connection alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func decodeRequest(data []byte) WSRequest {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var req WSRequest
		if err := json.Unmarshal([]byte(trimmed), &req); err == nil {
			return req
		}
	}
	return WSRequest{Citation: trimmed}
}

// answer resolves one websocket request.
func (s *Server) answer(ctx context.Context, req WSRequest) WSMessage {
	opts := lookup.Options{ShowNumbers: true, Hebrew: s.cfg.Hebrew}
	switch strings.ToLower(req.Lang) {
	case "he":
		opts.Hebrew = true
	case "en":
		opts.Hebrew = false
	}
	if req.Numbers != nil {
		opts.ShowNumbers = *req.Numbers
	}

	msg := WSMessage{ID: req.ID, Input: req.Citation, Timestamp: now()}
	p, _, err := s.lookup(ctx, req.Citation, opts)
	if err != nil {
		msg.Type = "error"
		msg.Error = &APIError{Code: errorCode(err), Message: err.Error()}
		return msg
	}
	msg.Type = "passage"
	msg.Passage = p
	return msg
}
