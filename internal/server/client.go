// Package server manages individual WebSocket stream clients, handling
// read/write pumps, rate limiting, and lifecycle control for each
// connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openlan/campuschat/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Client is one WebSocket stream connection. Its write pump drains the
// broadcaster subscription; its read pump feeds inbound messages to the
// ingress API, throttled by a per-connection token bucket.
type Client struct {
	conn           *websocket.Conn
	sub            *relay.Subscriber
	server         *ChatServer
	addr           string
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	closeOnce      sync.Once
}

func newClient(conn *websocket.Conn, s *ChatServer, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		sub:            s.broadcaster.Subscribe(),
		server:         s,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
	}
}

// WebSocketHandler upgrades the connection, registers a subscriber, and
// starts the client's read/write pumps.
func (s *ChatServer) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(conn, s, r.RemoteAddr)
	s.log.Info("websocket client connected", "addr", client.addr,
		"subscribers", s.broadcaster.SubscriberCount())

	go client.writePump()
	go client.readPump()
}

// teardown deregisters the subscription and closes the connection exactly
// once, whichever pump exits first. Unsubscribing closes the inbox, which
// unblocks a write pump waiting for the next event.
func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		c.server.broadcaster.Unsubscribe(c.sub)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.server.log.Warn("closing websocket connection", "addr", c.addr, "error", err)
		}
		c.server.log.Info("websocket client disconnected", "addr", c.addr,
			"subscribers", c.server.broadcaster.SubscriberCount())
	})
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError logs the error and reports whether the read loop should
// stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.server.log.Warn("message exceeded maximum size", "addr", c.addr, "max", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.server.log.Info("websocket closed", "addr", c.addr, "reason", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.server.log.Info("websocket connection closed", "addr", c.addr)
	default:
		c.server.log.Warn("websocket read error", "addr", c.addr, "error", err)
	}
	return true
}

// processMessage parses one inbound frame and hands it to the ingress API.
func (c *Client) processMessage(raw []byte) {
	var req publishRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.server.log.Warn("invalid message from websocket client", "addr", c.addr, "error", err)
		return
	}

	if err := c.server.ingress.PublishLocal(relay.Kind(req.Kind), req.Author, req.Payload); err != nil {
		var vErr *relay.ValidationError
		if errors.As(err, &vErr) {
			c.server.log.Warn("rejected websocket publish", "addr", c.addr, "error", vErr)
			return
		}
		c.server.log.Error("websocket publish failed", "addr", c.addr, "error", err)
	}
}

func (c *Client) readPump() {
	defer c.teardown()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			return
		}

		if !c.rateLimiter.allow() {
			c.server.log.Warn("rate limit exceeded, discarding message",
				"addr", c.addr, "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
			continue
		}

		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case ev, open := <-c.sub.Events():
			if !open {
				// Unsubscribed or broadcaster shut down.
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.writeEvent(ev) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeEvent frames one event for the client; a single write failure ends
// the session.
func (c *Client) writeEvent(ev relay.Event) bool {
	payload, err := relay.EncodeClient(ev)
	if err != nil {
		c.server.log.Error("encoding event for websocket client", "addr", c.addr, "error", err)
		return true
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			c.server.log.Warn("websocket write failed", "addr", c.addr, "error", err)
		}
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
