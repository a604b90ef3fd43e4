// Package notification pushes real-time state changes to connected clients
// over websockets. Delivery is fire-and-forget: the core never blocks on a
// slow or absent consumer.
package notification

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"splittab/internal/metrics"
	"splittab/pkg/logger"
)

// Event names emitted by the core.
const (
	EventPaymentReceived   = "payment_received"
	EventSplitUpdated      = "split_updated"
	EventSplitCompleted    = "split_completed"
	EventParticipantJoined = "participant_joined"
)

// Emitter is what the services see. Both methods return immediately.
type Emitter interface {
	EmitToSplit(splitID uuid.UUID, event string, data map[string]interface{})
	EmitToWallet(wallet string, event string, data map[string]interface{})
}

type envelope struct {
	Event     string                 `json:"event"`
	Room      string                 `json:"room"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced at the HTTP layer
	},
}

// Hub fans events out to clients subscribed to split- and wallet-scoped rooms.
type Hub struct {
	logger logger.Logger

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

type client struct {
	conn  *websocket.Conn
	send  chan []byte
	rooms []string
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		logger: log,
		rooms:  make(map[string]map[*client]struct{}),
	}
}

// EmitToSplit publishes an event to everyone watching the split.
func (h *Hub) EmitToSplit(splitID uuid.UUID, event string, data map[string]interface{}) {
	h.emit("split:"+splitID.String(), event, data)
}

// EmitToWallet publishes an event to the wallet owner's connections.
func (h *Hub) EmitToWallet(wallet string, event string, data map[string]interface{}) {
	h.emit("wallet:"+wallet, event, data)
}

func (h *Hub) emit(room, event string, data map[string]interface{}) {
	payload, err := json.Marshal(envelope{
		Event:     event,
		Room:      room,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("Failed to marshal notification", map[string]interface{}{
			"event": event,
			"error": err.Error(),
		})
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[room] {
		select {
		case c.send <- payload:
		default:
			// Slow consumer; drop rather than block the emitter.
		}
	}

	h.logger.Debug("Notification emitted", map[string]interface{}{
		"event": event,
		"room":  room,
	})
}

// ServeWS upgrades the connection and subscribes it to the requested rooms.
// Query params: split=<uuid> (repeatable), wallet=<address>.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	var rooms []string
	for _, raw := range r.URL.Query()["split"] {
		if id, err := uuid.Parse(raw); err == nil {
			rooms = append(rooms, "split:"+id.String())
		}
	}
	if wallet := r.URL.Query().Get("wallet"); wallet != "" {
		rooms = append(rooms, "wallet:"+wallet)
	}

	c := &client{
		conn:  conn,
		send:  make(chan []byte, 32),
		rooms: rooms,
	}
	h.subscribe(c)
	metrics.ActiveWebsocketConnections.Inc()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) subscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*client]struct{})
		}
		h.rooms[room][c] = struct{}{}
	}
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.rooms {
		delete(h.rooms[room], c)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ping := time.NewTicker(30 * time.Second)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; clients are listen-only. It exists to
// notice closed connections and clean up subscriptions.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unsubscribe(c)
		close(c.send)
		c.conn.Close()
		metrics.ActiveWebsocketConnections.Dec()
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// NopEmitter discards all events. Used in tests and tooling.
type NopEmitter struct{}

func (NopEmitter) EmitToSplit(uuid.UUID, string, map[string]interface{}) {}
func (NopEmitter) EmitToWallet(string, string, map[string]interface{})   {}
