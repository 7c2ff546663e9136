// Package feed pushes newly recorded tips to the receiving creator's open
// dashboards over WebSocket. The hub is in-process: a creator connected to a
// different instance sees the tip on the next page load.
package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tipkoro/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// Message is one frame sent to a dashboard.
type Message struct {
	Type string    `json:"type"`
	Tip  types.Tip `json:"tip"`
}

type client struct {
	creatorID string
	conn      *websocket.Conn
	send      chan []byte
}

// Hub tracks connected dashboards per creator.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub creates a Hub. allowedOrigins limits the browser origins allowed to
// connect; "*" or an empty list allows any.
func NewHub(allowedOrigins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients: make(map[string]map[*client]struct{}),
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(allowed, u.Scheme+"://"+u.Host)
	}
}

// Publish implements payments.TipPublisher. Slow dashboards are dropped
// rather than blocking the caller.
func (h *Hub) Publish(creatorID string, tip types.Tip) {
	msg, err := json.Marshal(Message{Type: "tip", Tip: tip})
	if err != nil {
		h.logger.Error("failed to marshal tip message", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[creatorID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("tip feed client too slow; disconnecting", "creator_id", creatorID)
			h.removeLocked(c)
		}
	}
}

// Subscribers returns the number of open dashboards for creatorID.
func (h *Hub) Subscribers(creatorID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[creatorID])
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.creatorID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.creatorID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	set, ok := h.clients[c.creatorID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.creatorID)
	}
}

// Serve upgrades the request and streams tips for creatorID until the
// connection closes. Authorization is the caller's job.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, creatorID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("tip feed upgrade failed", "creator_id", creatorID, "error", err)
		return
	}

	c := &client{creatorID: creatorID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(c)
	h.logger.Debug("tip feed connected", "creator_id", creatorID)

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("tip feed read error", "creator_id", c.creatorID, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
