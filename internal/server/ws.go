package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hodlwarz/arena/internal/auth"
)

// WSMessage is the envelope for all WebSocket communication.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is one connected spectator or combatant owner.
type Client struct {
	Addr string
	conn *websocket.Conn
	send chan WSMessage
}

// MessageHandler processes inbound messages from a client.
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, msg WSMessage)
}

// Presence gets told when an address connects or fully disconnects, so
// the simulation can track the live population.
type Presence interface {
	Joined(addr string)
	Left(addr string)
}

// Hub manages WebSocket clients and snapshot broadcasting. Multiple
// connections per address are allowed; presence counts addresses, not
// sockets.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	byAddr   map[string]int
	handler  MessageHandler
	presence Presence
	secret   string
	logger   *slog.Logger
	metrics  *Metrics
}

func NewHub(secret string, handler MessageHandler, presence Presence, metrics *Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		byAddr:   make(map[string]int),
		handler:  handler,
		presence: presence,
		secret:   secret,
		metrics:  metrics,
		logger:   logger,
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	addr, err := auth.Validate(ticket, h.secret)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("ws accept", "err", err)
		return
	}

	client := &Client{
		Addr: addr,
		conn: conn,
		send: make(chan WSMessage, 64),
	}

	h.register(client)
	defer h.unregister(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writePump(ctx, client)
	h.readPump(ctx, client)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.byAddr[c.Addr]++
	first := h.byAddr[c.Addr] == 1
	h.mu.Unlock()

	h.metrics.IncrWSConn()
	if first && h.presence != nil {
		h.presence.Joined(c.Addr)
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	last := false
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.byAddr[c.Addr]--
		if h.byAddr[c.Addr] <= 0 {
			delete(h.byAddr, c.Addr)
			last = true
		}
	}
	h.mu.Unlock()

	h.metrics.DecrWSConn()
	if last && h.presence != nil {
		h.presence.Left(c.Addr)
	}
}

// Broadcast sends a message to every connected client. Slow consumers
// drop messages rather than stalling the broadcaster.
func (h *Hub) Broadcast(msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("client send buffer full", "addr", c.Addr)
		}
	}
}

// SendTo sends a message to every connection of one address.
func (h *Hub) SendTo(addr string, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.Addr != addr {
			continue
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Addresses lists currently connected addresses.
func (h *Hub) Addresses() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byAddr))
	for addr := range h.byAddr {
		out = append(out, addr)
	}
	return out
}

func (h *Hub) readPump(ctx context.Context, c *Client) {
	defer func() {
		if err := c.conn.CloseNow(); err != nil {
			h.logger.Error("close conn", "err", err)
		}
	}()
	for {
		var msg WSMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			return
		}
		if h.handler != nil {
			h.handler.HandleMessage(ctx, c, msg)
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, c.conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
