package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/policyvoice/server/internal/logger"
)

// Hub tracks WebSocket subscribers per conversation and fans events out to
// them.
type Hub struct {
	// connections maps conversationID -> set of WebSocket connections
	connections map[string]map[*websocket.Conn]bool

	// userConnections maps userID -> set of WebSocket connections (for limits)
	userConnections map[string]map[*websocket.Conn]bool

	// connToConversation maps connection -> conversationID (for cleanup)
	connToConversation map[*websocket.Conn]string

	// connToUser maps connection -> userID (for cleanup)
	connToUser map[*websocket.Conn]string

	// writeLocks serializes writes per connection; gorilla/websocket allows
	// only one concurrent writer, and broadcasts race the keepalive pings.
	writeLocks map[*websocket.Conn]*sync.Mutex

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		connections:        make(map[string]map[*websocket.Conn]bool),
		userConnections:    make(map[string]map[*websocket.Conn]bool),
		connToConversation: make(map[*websocket.Conn]string),
		connToUser:         make(map[*websocket.Conn]string),
		writeLocks:         make(map[*websocket.Conn]*sync.Mutex),
		logger:             log.WithComponent("realtime_hub"),
	}
}

// Register adds a subscriber to a conversation.
func (h *Hub) Register(conversationID, userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conversationID] == nil {
		h.connections[conversationID] = make(map[*websocket.Conn]bool)
	}
	h.connections[conversationID][conn] = true

	if h.userConnections[userID] == nil {
		h.userConnections[userID] = make(map[*websocket.Conn]bool)
	}
	h.userConnections[userID][conn] = true

	h.connToConversation[conn] = conversationID
	h.connToUser[conn] = userID
	h.writeLocks[conn] = &sync.Mutex{}

	h.logger.Debug("subscriber registered",
		slog.String("conversation_id", conversationID),
		slog.String("user_id", userID),
		slog.Int("conversation_connections", len(h.connections[conversationID])))
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conversationID := h.connToConversation[conn]
	userID := h.connToUser[conn]

	if conns, ok := h.connections[conversationID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, conversationID)
		}
	}

	if conns, ok := h.userConnections[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.userConnections, userID)
		}
	}

	delete(h.connToConversation, conn)
	delete(h.connToUser, conn)
	delete(h.writeLocks, conn)

	h.logger.Debug("subscriber unregistered",
		slog.String("conversation_id", conversationID),
		slog.String("user_id", userID))
}

// Broadcast sends an event to every subscriber of a conversation. Send errors
// are logged and skipped so one dead connection does not block the rest.
func (h *Hub) Broadcast(conversationID string, event Event) error {
	h.mu.RLock()
	subscriberSet, ok := h.connections[conversationID]
	if !ok || len(subscriberSet) == 0 {
		h.mu.RUnlock()
		return nil
	}

	conns := make([]*websocket.Conn, 0, len(subscriberSet))
	for conn := range subscriberSet {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
		return err
	}

	for _, conn := range conns {
		if conn == nil {
			continue
		}
		if err := h.write(conn, websocket.TextMessage, payload); err != nil {
			h.logger.Error("failed to send event",
				slog.String("conversation_id", conversationID),
				slog.String("error", err.Error()))
			continue
		}
	}

	return nil
}

// Send writes a single event to one subscriber.
func (h *Hub) Send(conn *websocket.Conn, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.write(conn, websocket.TextMessage, payload)
}

// Ping writes a keepalive control frame to one subscriber.
func (h *Hub) Ping(conn *websocket.Conn) error {
	return h.write(conn, websocket.PingMessage, nil)
}

// write serializes all frames to a connection through its per-connection
// mutex; gorilla/websocket panics on concurrent writes.
func (h *Hub) write(conn *websocket.Conn, messageType int, payload []byte) error {
	h.mu.RLock()
	lock := h.writeLocks[conn]
	h.mu.RUnlock()

	// An unregistered connection has a single writer left, its own handler.
	if lock != nil {
		lock.Lock()
		defer lock.Unlock()
	}
	return conn.WriteMessage(messageType, payload)
}

// UserConnectionCount returns the number of active connections for a user.
func (h *Hub) UserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if conns, ok := h.userConnections[userID]; ok {
		return len(conns)
	}
	return 0
}
