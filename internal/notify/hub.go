// Package notify delivers events to connected parties over persistent
// connections. Delivery is two-tier: targeted at the exact identity
// first, best-effort broadcast to everyone when no targeted channel is
// usable.
package notify

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// TargetKind distinguishes the two party kinds a connection can
// identify as.
type TargetKind string

const (
	KindCustomer TargetKind = "customer"
	KindAgent    TargetKind = "agent"
)

// Conn is the subset of *websocket.Conn the hub writes to. Tests
// substitute fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type target struct {
	kind TargetKind
	id   string
}

// Hub maintains the identity→connection mapping. Safe against a
// connection being registered, used and unregistered concurrently.
type Hub struct {
	mu     sync.Mutex
	conns  map[target]Conn
	open   map[Conn]bool
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		conns:  make(map[target]Conn),
		open:   make(map[Conn]bool),
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Register binds a connection to an identity. A later registration for
// the same identity replaces the earlier one.
func (h *Hub) Register(kind TargetKind, id string, conn Conn) {
	h.mu.Lock()
	h.conns[target{kind, id}] = conn
	h.open[conn] = true
	h.mu.Unlock()

	h.logger.Debug().Str("kind", string(kind)).Str("id", id).Msg("Connection registered")
}

// Unregister removes a connection. Idempotent; a stale registration
// left by a replacement is not removed.
func (h *Hub) Unregister(kind TargetKind, id string, conn Conn) {
	h.mu.Lock()
	key := target{kind, id}
	if h.conns[key] == conn {
		delete(h.conns, key)
	}
	delete(h.open, conn)
	h.mu.Unlock()
}

// SendTo delivers message to the identified party. When no connection
// is registered for the identity, or the targeted write fails, the
// message falls back to a broadcast over all open connections.
func (h *Hub) SendTo(kind TargetKind, id string, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal notification")
		return
	}

	h.mu.Lock()
	conn, ok := h.conns[target{kind, id}]
	h.mu.Unlock()

	if ok {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err == nil {
			return
		}
		h.logger.Warn().
			Str("kind", string(kind)).
			Str("id", id).
			Msg("Targeted delivery failed, falling back to broadcast")
		h.drop(conn)
	} else {
		h.logger.Debug().
			Str("kind", string(kind)).
			Str("id", id).
			Msg("No targeted channel, broadcasting")
	}

	h.broadcast(payload)
}

// Broadcast delivers message to every open connection. Connections
// whose write fails are pruned without aborting delivery to the rest.
func (h *Hub) Broadcast(message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal broadcast")
		return
	}
	h.broadcast(payload)
}

// OpenCount returns the number of open connections.
func (h *Hub) OpenCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.open)
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.open))
	for c := range h.open {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(c)
		}
	}
}

// drop prunes a failed connection from both maps and closes it.
func (h *Hub) drop(conn Conn) {
	h.mu.Lock()
	delete(h.open, conn)
	for key, c := range h.conns {
		if c == conn {
			delete(h.conns, key)
		}
	}
	h.mu.Unlock()

	_ = conn.Close()
}
