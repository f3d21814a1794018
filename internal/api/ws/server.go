// Package ws carries the persistent client connections: notification
// delivery through the fan-out hub and inbound audio for live
// transcription.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"warm-transfer-service/internal/notify"
	"warm-transfer-service/internal/observability/metrics"
	"warm-transfer-service/internal/transcription"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from the web frontends' origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// inbound is the envelope of every text message a client sends.
type inbound struct {
	Type string `json:"type"`
	Kind string `json:"kind"` // identify: "customer" or "agent"
	ID   string `json:"id"`   // identify: party identity
	Room string `json:"room"` // conversation key for audio frames
}

type ack struct {
	Type  string `json:"type"`
	Of    string `json:"of,omitempty"`
	Error string `json:"error,omitempty"`
	Bytes int64  `json:"bytes,omitempty"` // cumulative audio bytes accepted
}

// conn serializes writes so the hub and the read loop never interleave
// a frame.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(messageType, data)
}

func (c *conn) Close() error { return c.ws.Close() }

func (c *conn) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, payload)
}

// Server upgrades HTTP requests and runs the per-connection read loop.
type Server struct {
	hub         *notify.Hub
	transcripts *transcription.Manager
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// NewServer creates the websocket server.
func NewServer(hub *notify.Hub, transcripts *transcription.Manager, logger zerolog.Logger) *Server {
	return &Server{
		hub:         hub,
		transcripts: transcripts,
		logger:      logger.With().Str("component", "ws").Logger(),
		metrics:     metrics.DefaultMetrics,
	}
}

// Handle is the HTTP entry point for websocket upgrades.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Upgrade failed")
		return
	}
	s.metrics.ConnectionsOpen.Inc()
	go s.readLoop(&conn{ws: raw})
}

// readLoop consumes a connection until it closes. Text frames are
// control messages; binary frames are raw audio for the identified
// conversation. Every message gets an ack, malformed ones a typed
// error ack, and the connection stays open either way.
func (s *Server) readLoop(c *conn) {
	var (
		kind       notify.TargetKind
		id         string
		room       string
		registered bool
		audioBytes int64
	)
	defer func() {
		if registered {
			s.hub.Unregister(kind, id, c)
		}
		s.metrics.ConnectionsOpen.Dec()
		_ = c.Close()
	}()

	for {
		messageType, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		if messageType == websocket.BinaryMessage {
			if room == "" {
				_ = c.writeJSON(ack{Type: "error", Of: "audio", Error: "no conversation identified for audio"})
				continue
			}
			s.metrics.AudioBytes.Add(float64(len(payload)))
			s.transcripts.Ingest(room, payload)
			audioBytes += int64(len(payload))
			_ = c.writeJSON(ack{Type: "ack", Of: "audio", Bytes: audioBytes})
			continue
		}

		var msg inbound
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = c.writeJSON(ack{Type: "error", Error: "malformed message"})
			continue
		}

		switch msg.Type {
		case "identify":
			k := notify.TargetKind(msg.Kind)
			if (k != notify.KindCustomer && k != notify.KindAgent) || msg.ID == "" {
				_ = c.writeJSON(ack{Type: "error", Of: "identify", Error: "kind must be customer or agent and id is required"})
				continue
			}
			if registered {
				s.hub.Unregister(kind, id, c)
			}
			kind, id = k, msg.ID
			if msg.Room != "" {
				room = msg.Room
			}
			s.hub.Register(kind, id, c)
			registered = true
			s.logger.Debug().Str("kind", string(kind)).Str("id", id).Msg("Connection identified")
			_ = c.writeJSON(ack{Type: "ack", Of: "identify"})
		case "join":
			if msg.Room == "" {
				_ = c.writeJSON(ack{Type: "error", Of: "join", Error: "room is required"})
				continue
			}
			room = msg.Room
			_ = c.writeJSON(ack{Type: "ack", Of: "join"})
		case "ping":
			_ = c.writeJSON(ack{Type: "ack", Of: "ping"})
		default:
			_ = c.writeJSON(ack{Type: "error", Of: msg.Type, Error: "unknown message type"})
		}
	}
}
