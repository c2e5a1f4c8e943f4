package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hostpulse/hostpulse/internal/metrics"
	"github.com/hostpulse/hostpulse/internal/monitor"
	"github.com/hostpulse/hostpulse/pkg/types"
)

const (
	writeWait         = 10 * time.Second
	heartbeatInterval = 30 * time.Second
	sendBuffer        = 8
)

// defaultOrigins are the dev frontend origins accepted when no explicit
// allow list is configured.
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

func newUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowed),
	}
}

// originChecker allows requests without an Origin header (non-browser
// clients), a "*" wildcard, and case-insensitive exact matches.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		allowed = defaultOrigins
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Hub fans tick updates out to connected dashboards. It implements
// monitor.Publisher.
type Hub struct {
	upgrader *websocket.Upgrader
	log      *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}
	once sync.Once
}

func newHub(allowedOrigins []string, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: newUpgrader(allowedOrigins),
		log:      log,
		clients:  make(map[*wsClient]struct{}),
	}
}

// handleLiveSocket upgrades the request and streams tick updates until
// the client goes away.
func (h *Hub) handleLiveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &wsClient{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		quit: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketConnections.Inc()
	h.log.Info("websocket client connected", zap.Int("clients", n))

	go h.writeLoop(c)
	h.readLoop(c)
}

// Publish implements monitor.Publisher: marshal once, hand to every
// client, and drop clients too slow to drain their buffer.
func (h *Hub) Publish(res *monitor.TickResult) {
	data, err := json.Marshal(toLiveUpdate(res))
	if err != nil {
		h.log.Error("live update marshal failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("websocket client too slow, dropping")
			h.drop(c)
		}
	}
}

// ClientCount reports how many dashboards are connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.quit:
			return
		case data := <-c.send:
			if !h.write(c, data) {
				return
			}
		case <-ticker.C:
			hb, _ := json.Marshal(types.LiveUpdate{
				Type:      types.MessageTypeHeartbeat,
				Timestamp: time.Now().UTC(),
			})
			if !h.write(c, hb) {
				return
			}
		}
	}
}

func (h *Hub) write(c *wsClient, data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.drop(c)
		return false
	}
	metrics.WebSocketMessagesTotal.WithLabelValues("out").Inc()
	return true
}

// readLoop drains client frames so close handshakes are processed.
func (h *Hub) readLoop(c *wsClient) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		metrics.WebSocketMessagesTotal.WithLabelValues("in").Inc()
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	_, registered := h.clients[c]
	if registered {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	c.once.Do(func() {
		close(c.quit)
		c.conn.Close()
	})
	if registered {
		metrics.WebSocketConnections.Dec()
		h.log.Info("websocket client disconnected")
	}
}

// closeAll disconnects every client during shutdown. New connections are
// refused afterwards.
func (h *Hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.once.Do(func() {
			close(c.quit)
			c.conn.Close()
		})
		metrics.WebSocketConnections.Dec()
	}
}
