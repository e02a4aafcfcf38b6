// Package hub provides connection management for WebSocket clients and fans
// run progress out to the connections of a session.
package hub

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/manimate/internal/domain"
)

// sendBuffer is the per-connection outbound queue length.
const sendBuffer = 256

// Connection represents a single WebSocket connection.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	hub       *Hub
	mu        sync.Mutex

	// closed is set, under the hub lock, when Send has been closed.
	closed bool
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Sessions maps session_id to set of connection IDs
	sessions map[string]map[string]bool

	// Channels for registration/unregistration
	register   chan *Connection
	unregister chan *Connection

	// onSessionEmpty is called when the last connection of a session leaves.
	onSessionEmpty func(sessionID string)

	mu sync.RWMutex
}

// NewHub creates a new Hub. onSessionEmpty may be nil.
func NewHub(onSessionEmpty func(sessionID string)) *Hub {
	return &Hub{
		connections:    make(map[string]*Connection),
		sessions:       make(map[string]map[string]bool),
		register:       make(chan *Connection),
		unregister:     make(chan *Connection),
		onSessionEmpty: onSessionEmpty,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if conn.SessionID != "" {
				h.join(conn, conn.SessionID)
			}
			h.mu.Unlock()
			log.Printf("Connection registered: %s (session: %s)", conn.ID, conn.SessionID)

		case conn := <-h.unregister:
			h.mu.Lock()
			var emptied string
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				emptied = h.leave(conn)
				conn.closed = true
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Printf("Connection unregistered: %s", conn.ID)
			h.sessionEmptied(emptied)
		}
	}
}

// NewConnection creates a new connection. It still has to be registered.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	conn := &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, sendBuffer),
		hub:  h,
	}
	return conn
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BindSession binds a connection to a session.
func (h *Hub) BindSession(conn *Connection, sessionID string) {
	h.mu.Lock()
	var emptied string
	if conn.SessionID != sessionID {
		emptied = h.leave(conn)
	}
	conn.SessionID = sessionID
	h.join(conn, sessionID)
	h.mu.Unlock()
	h.sessionEmptied(emptied)
}

// join and leave require h.mu held for writing.
func (h *Hub) join(conn *Connection, sessionID string) {
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]bool)
	}
	h.sessions[sessionID][conn.ID] = true
}

// leave removes conn from its session and returns the session id when conn
// was its last connection.
func (h *Hub) leave(conn *Connection) string {
	if conn.SessionID == "" || h.sessions[conn.SessionID] == nil {
		return ""
	}
	delete(h.sessions[conn.SessionID], conn.ID)
	if len(h.sessions[conn.SessionID]) == 0 {
		delete(h.sessions, conn.SessionID)
		return conn.SessionID
	}
	return ""
}

// sessionEmptied reports sessionID unless a connection has rebound to it in
// the meantime.
func (h *Hub) sessionEmptied(sessionID string) {
	if sessionID == "" || h.onSessionEmpty == nil {
		return
	}
	go func() {
		if h.HasActiveConnections(sessionID) {
			return
		}
		h.onSessionEmpty(sessionID)
	}()
}

// Broadcast sends a message to all connections of a session. It never
// blocks: a connection whose buffer is full is dropped.
func (h *Hub) Broadcast(sessionID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID := range h.sessions[sessionID] {
		conn, exists := h.connections[connID]
		if !exists || conn.closed {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			// Buffer full, close the connection
			log.Printf("Connection %s buffer full, closing", connID)
			go h.Unregister(conn)
		}
	}
}

// BroadcastJSON sends a JSON message to all connections of a session.
func (h *Hub) BroadcastJSON(sessionID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(sessionID, data)
	return nil
}

// Emit delivers a progress event to the session.
func (h *Hub) Emit(sessionID string, ev domain.ProgressEvent) {
	if err := h.BroadcastJSON(sessionID, ev); err != nil {
		log.Printf("ERROR: failed to marshal progress event for run %s: %v", ev.RunID, err)
	}
}

// SendToConnection sends a message to a specific connection. It fails with
// ErrConnectionClosed once the hub has dropped the connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if conn.closed {
		return ErrConnectionClosed
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// GetSessionCount returns the number of active sessions.
func (h *Hub) GetSessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HasActiveConnections checks if a session has any active connections.
func (h *Hub) HasActiveConnections(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	connIDs, ok := h.sessions[sessionID]
	return ok && len(connIDs) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &BufferFullError{}

// ErrConnectionClosed is returned for sends to a connection the hub has
// already unregistered.
var ErrConnectionClosed = errors.New("connection closed")

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}
