package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/manimate/internal/domain"
	"github.com/xiaot623/manimate/internal/protocol"
)

// Client is a WebSocket client of the manimate server.
type Client struct {
	conn      *websocket.Conn
	sessionID string
}

// NewClient creates a new client and connects to the server.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SessionID returns the session bound by the hello handshake.
func (c *Client) SessionID() string {
	return c.sessionID
}

// SendHello sends a hello message and waits for hello_ack.
func (c *Client) SendHello(apiKey string) error {
	msg := protocol.HelloMessage{
		BaseMessage: protocol.BaseMessage{
			Type: protocol.TypeHello,
			Ts:   time.Now().UnixMilli(),
		},
		APIKey: apiKey,
		ClientMeta: map[string]string{
			"client": "manimate-cli",
		},
	}

	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read hello_ack: %w", err)
	}

	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return fmt.Errorf("unmarshal hello_ack: %w", err)
	}

	if base.Type == protocol.TypeError {
		var errMsg protocol.ErrorMessage
		json.Unmarshal(data, &errMsg)
		return fmt.Errorf("hello failed: %s - %s", errMsg.Code, errMsg.Message)
	}

	if base.Type != protocol.TypeHelloAck {
		return fmt.Errorf("expected hello_ack, got: %s", base.Type)
	}

	c.sessionID = base.SessionID
	return nil
}

// StartRun asks the server to start a run and returns the request id.
func (c *Client) StartRun(topic string, opts domain.RunOptions) (string, error) {
	requestID := fmt.Sprintf("req_%d", time.Now().UnixNano())
	msg := protocol.StartRunMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeStartRun,
			Ts:        time.Now().UnixMilli(),
			SessionID: c.sessionID,
			RequestID: requestID,
		},
		Topic:   topic,
		Options: opts,
	}
	return requestID, c.conn.WriteJSON(msg)
}

// CancelRun cancels runID, or the session's active run when runID is empty.
func (c *Client) CancelRun(runID string) error {
	msg := protocol.CancelRunMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeCancelRun,
			Ts:        time.Now().UnixMilli(),
			SessionID: c.sessionID,
			RunID:     runID,
		},
	}
	return c.conn.WriteJSON(msg)
}

// incoming is one decoded server message.
type incoming struct {
	base  protocol.BaseMessage
	data  []byte
	event *domain.ProgressEvent
}

// readMessages decodes server messages onto the returned channel until the
// connection fails. The error channel receives that failure.
func (c *Client) readMessages() (<-chan incoming, <-chan error) {
	msgs := make(chan incoming, 64)
	errs := make(chan error, 1)
	go func() {
		defer close(msgs)
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			var base protocol.BaseMessage
			if err := json.Unmarshal(data, &base); err != nil {
				continue
			}
			msg := incoming{base: base, data: data}
			if base.Type == protocol.TypeProgress {
				var ev domain.ProgressEvent
				if err := json.Unmarshal(data, &ev); err == nil {
					msg.event = &ev
				}
			}
			msgs <- msg
		}
	}()
	return msgs, errs
}
