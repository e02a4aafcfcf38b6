// Package protocol defines the WebSocket message protocol between clients and
// the pipeline server.
package protocol

import "github.com/xiaot623/manimate/internal/domain"

// Message types from client to server
const (
	TypeHello     = "hello"
	TypeStartRun  = "start_run"
	TypeStart     = "start" // accepted alias of start_run
	TypeCancelRun = "cancel_run"
)

// Message types from server to client
const (
	TypeHelloAck   = "hello_ack"
	TypeRunStarted = "run_started"
	TypeProgress   = "progress"
	TypeError      = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// HelloMessage is sent by client to establish connection.
type HelloMessage struct {
	BaseMessage
	APIKey     string            `json:"api_key,omitempty"`
	ClientMeta map[string]string `json:"client_meta,omitempty"`
}

// HelloAckMessage is sent by the server after successful hello.
type HelloAckMessage struct {
	BaseMessage
}

// StartRunMessage asks the server to start a run for the connection's
// session. Options may be given flat or nested under "options".
type StartRunMessage struct {
	BaseMessage
	Topic       string            `json:"topic"`
	Quality     domain.Quality    `json:"quality,omitempty"`
	Voice       string            `json:"voice,omitempty"`
	Theme       domain.Theme      `json:"theme,omitempty"`
	MaxAttempts int               `json:"max_attempts,omitempty"`
	PDFPath     string            `json:"pdf_path,omitempty"`
	Options     domain.RunOptions `json:"options,omitempty"`
}

// RunOptions merges the flat fields over the nested options.
func (m *StartRunMessage) RunOptions() domain.RunOptions {
	opts := m.Options
	if m.Quality != "" {
		opts.Quality = m.Quality
	}
	if m.Voice != "" {
		opts.Voice = m.Voice
	}
	if m.Theme != "" {
		opts.Theme = m.Theme
	}
	if m.MaxAttempts > 0 {
		opts.MaxAttempts = m.MaxAttempts
	}
	if m.PDFPath != "" {
		opts.PDFPath = m.PDFPath
	}
	return opts
}

// RunStartedMessage acknowledges a start request.
type RunStartedMessage struct {
	BaseMessage
	Run *domain.RunSnapshot `json:"run"`
}

// CancelRunMessage is sent by client to cancel a run. Without a run_id the
// session's active run is cancelled.
type CancelRunMessage struct {
	BaseMessage
}

// ErrorMessage is sent by the server when a request fails.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeUnauthorized    = "unauthorized"
	ErrorCodeSessionRequired = "session_required"
	ErrorCodeAlreadyRunning  = "already_running"
	ErrorCodeRunNotFound     = "run_not_found"
	ErrorCodeInternalError   = "internal_error"
)
