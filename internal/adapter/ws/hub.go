package ws

import (
	"log/slog"
	"sync"
	"time"

	domain "github.com/npquoc/mallcore/internal/entity"
	"github.com/npquoc/mallcore/internal/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var liveConns = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "ws_live_connections",
	Help: "Currently open websocket connections",
})

// Conn is the slice of a websocket connection the hub needs. Satisfied by
// *websocket.Conn.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// client serializes writes: gorilla allows at most one concurrent writer
// per connection, and SendTo/Broadcast run from unrelated goroutines.
type client struct {
	mu   sync.Mutex
	conn Conn
}

func (c *client) write(p Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(p)
}

// Hub keeps at most one live channel per user. Registration is
// last-connect-wins; a stale close never evicts a newer connection.
// Delivery is best-effort throughout: failures are logged and swallowed.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	log     *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{clients: make(map[string]*client), log: log}
}

// Connect registers the channel for the user, closing any prior one.
func (h *Hub) Connect(userID string, conn Conn) {
	h.mu.Lock()
	old := h.clients[userID]
	h.clients[userID] = &client{conn: conn}
	n := len(h.clients)
	h.mu.Unlock()

	if old != nil {
		_ = old.conn.Close()
	}
	liveConns.Set(float64(n))
	h.log.Info("ws connected", "user", userID, "live", n)
}

// Disconnect removes the entry only while it still points at conn, so a
// superseded connection's late close callback cannot drop its replacement.
func (h *Hub) Disconnect(userID string, conn Conn) {
	h.mu.Lock()
	if c, ok := h.clients[userID]; ok && c.conn == conn {
		delete(h.clients, userID)
	}
	n := len(h.clients)
	h.mu.Unlock()

	liveConns.Set(float64(n))
	h.log.Info("ws disconnected", "user", userID, "live", n)
}

// SendTo delivers to the user's live channel. No channel means the user is
// offline: silent no-op, never an error.
func (h *Hub) SendTo(userID string, p Payload) {
	h.mu.RLock()
	c := h.clients[userID]
	h.mu.RUnlock()

	if c == nil {
		return
	}
	if err := c.write(p); err != nil {
		h.log.Warn("ws delivery failed", "user", userID, "err", err)
	}
}

// Broadcast delivers to every live channel, skipping failed writes.
func (h *Hub) Broadcast(p Payload) {
	h.mu.RLock()
	snapshot := make(map[string]*client, len(h.clients))
	for u, c := range h.clients {
		snapshot[u] = c
	}
	h.mu.RUnlock()

	for u, c := range snapshot {
		if err := c.write(p); err != nil {
			h.log.Warn("ws broadcast skip", "user", u, "err", err)
		}
	}
}

// LiveCount reports how many channels are currently open.
func (h *Hub) LiveCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifyOrderStatus implements usecase.Notifier.
func (h *Hub) NotifyOrderStatus(userID, orderID string, status domain.Status, title, content string) {
	h.SendTo(userID, Payload{
		Type:      TypeOrderStatus,
		OrderID:   orderID,
		Status:    string(status),
		Title:     title,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	})
}

var _ usecase.Notifier = (*Hub)(nil)
