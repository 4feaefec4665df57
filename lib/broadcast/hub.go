// Package broadcast pushes pre-rendered HTML fragments to every connected
// websocket client.
//
// Delivery is best effort: each client gets one attempt with a write
// deadline, failures are logged and the client is dropped, and nobody else
// is affected. Messages go out as raw HTML text frames.
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/pthm/snapoff/lib/metrics"
)

var (
	// ErrEmptyFragment is returned when a message carries no HTML.
	ErrEmptyFragment = errors.New("broadcast: message has no html")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("broadcast: hub closed")
)

// Message is one broadcast payload.
type Message struct {
	HTML string `json:"html"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(data []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub is the process-wide registry of websocket clients.
type Hub struct {
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	metrics      *metrics.Recorder
	writeTimeout time.Duration
	parallelism  int

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// WithMetrics records client counts and broadcast failures.
func WithMetrics(m *metrics.Recorder) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithWriteTimeout bounds each per-client write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) { h.writeTimeout = d }
}

// WithParallelism caps concurrent writes during a broadcast.
func WithParallelism(n int) Option {
	return func(h *Hub) { h.parallelism = n }
}

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// NewHub creates a hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:       slog.Default(),
		writeTimeout: 5 * time.Second,
		parallelism:  32,
		clients:      make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and holds the connection until the client
// goes away. Incoming messages are read and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn}
	if !h.add(c) {
		conn.Close()
		return
	}
	h.logger.Info("websocket client connected", "remote", r.RemoteAddr, "clients", h.ClientCount())

	conn.SetReadLimit(4096)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(c)
	h.logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
}

// Broadcast sends msg.HTML verbatim to every client connected when the
// call starts. It returns how many clients received it.
func (h *Hub) Broadcast(ctx context.Context, msg Message) (int, error) {
	if strings.TrimSpace(msg.HTML) == "" {
		h.logger.Warn("broadcast rejected: message must carry html")
		return 0, ErrEmptyFragment
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0, ErrClosed
	}
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	data := []byte(msg.HTML)
	var sent, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(h.parallelism)
	for _, c := range clients {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := c.send(data, h.writeTimeout); err != nil {
				failed.Add(1)
				h.logger.Warn("broadcast to client failed", "remote", c.conn.RemoteAddr().String(), "error", err)
				h.remove(c)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	h.metrics.Broadcast(int(failed.Load()))
	h.logger.Info("broadcast html", "clients", sent.Load(), "failed", failed.Load())
	return int(sent.Load()), ctx.Err()
}

// BroadcastHTML is Broadcast for a bare fragment.
func (h *Hub) BroadcastHTML(ctx context.Context, html string) (int, error) {
	return h.Broadcast(ctx, Message{HTML: html})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects further connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		h.remove(c)
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.ClientConnected()
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		h.metrics.ClientDisconnected()
	}
	c.conn.Close()
}
