// Package ws provides WebSocket server functionality for client connections.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/manimate/internal/config"
	"github.com/xiaot623/manimate/internal/domain"
	"github.com/xiaot623/manimate/internal/hub"
	"github.com/xiaot623/manimate/internal/protocol"
)

// RunService is the part of the pipeline service the socket drives.
type RunService interface {
	Start(ctx context.Context, sessionID, topic string, opts domain.RunOptions) (*domain.RunSnapshot, error)
	CancelForSession(ctx context.Context, sessionID, runID string) error
	CancelSession(sessionID string) bool
}

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	service  RunService
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, svc RunService) *Server {
	return &Server{
		cfg:     cfg,
		hub:     h,
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
		// Any client traffic counts as liveness.
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, "", "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch baseMsg.Type {
	case protocol.TypeHello:
		s.handleHello(conn, data)
	case protocol.TypeStartRun, protocol.TypeStart:
		s.handleStartRun(conn, data)
	case protocol.TypeCancelRun:
		s.handleCancelRun(conn, data)
	default:
		s.sendError(conn, baseMsg.RequestID, "", protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleHello handles the hello handshake message.
func (s *Server) handleHello(conn *hub.Connection, data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", "", protocol.ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	// Validate API key if configured
	if s.cfg.APIKey != "" && msg.APIKey != s.cfg.APIKey {
		s.sendError(conn, msg.RequestID, "", protocol.ErrorCodeUnauthorized, "invalid api_key")
		return
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = "sess_" + uuid.New().String()[:8]
	}
	s.hub.BindSession(conn, sessionID)

	ack := protocol.HelloAckMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeHelloAck,
			Ts:        time.Now().UnixMilli(),
			RequestID: msg.RequestID,
			SessionID: sessionID,
		},
	}
	s.hub.SendJSONToConnection(conn, ack)

	log.Printf("Hello handshake completed for session: %s", sessionID)
}

// handleStartRun starts a pipeline run for the connection's session.
func (s *Server) handleStartRun(conn *hub.Connection, data []byte) {
	var msg protocol.StartRunMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", "", protocol.ErrorCodeInvalidMessage, "invalid start_run message")
		return
	}

	if conn.SessionID == "" {
		if s.cfg.APIKey != "" {
			s.sendError(conn, msg.RequestID, "", protocol.ErrorCodeSessionRequired, "must send hello first")
			return
		}
		// Open servers let a client start without a handshake.
		s.hub.BindSession(conn, "sess_"+uuid.New().String()[:8])
	}

	snap, err := s.service.Start(context.Background(), conn.SessionID, msg.Topic, msg.RunOptions())
	if err != nil {
		code := protocol.ErrorCodeInternalError
		switch {
		case errors.Is(err, domain.ErrAlreadyRunning):
			code = protocol.ErrorCodeAlreadyRunning
		case errors.Is(err, domain.ErrInvalidRequest):
			code = protocol.ErrorCodeInvalidMessage
		default:
			log.Printf("ERROR: start run for session %s: %v", conn.SessionID, err)
		}
		s.sendError(conn, msg.RequestID, "", code, err.Error())
		return
	}

	started := protocol.RunStartedMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeRunStarted,
			Ts:        time.Now().UnixMilli(),
			RequestID: msg.RequestID,
			SessionID: conn.SessionID,
			RunID:     snap.RunID,
		},
		Run: snap,
	}
	s.hub.SendJSONToConnection(conn, started)
}

// handleCancelRun handles run cancellation requests.
func (s *Server) handleCancelRun(conn *hub.Connection, data []byte) {
	var msg protocol.CancelRunMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", "", protocol.ErrorCodeInvalidMessage, "invalid cancel_run message")
		return
	}

	if conn.SessionID == "" {
		s.sendError(conn, msg.RequestID, msg.RunID, protocol.ErrorCodeSessionRequired, "must send hello first")
		return
	}

	if msg.RunID == "" {
		if !s.service.CancelSession(conn.SessionID) {
			s.sendError(conn, msg.RequestID, "", protocol.ErrorCodeRunNotFound, "no active run for session")
		}
		return
	}

	// Only runs of the connection's own session can be cancelled.
	if err := s.service.CancelForSession(context.Background(), conn.SessionID, msg.RunID); err != nil {
		code := protocol.ErrorCodeInternalError
		if errors.Is(err, domain.ErrRunNotFound) {
			code = protocol.ErrorCodeRunNotFound
		}
		s.sendError(conn, msg.RequestID, msg.RunID, code, err.Error())
		return
	}
	log.Printf("Run cancel requested: run_id=%s", msg.RunID)
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, requestID, runID, code, message string) {
	errMsg := protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeError,
			Ts:        time.Now().UnixMilli(),
			RequestID: requestID,
			RunID:     runID,
			SessionID: conn.SessionID,
		},
		Code:    code,
		Message: message,
	}
	s.hub.SendJSONToConnection(conn, errMsg)
}
