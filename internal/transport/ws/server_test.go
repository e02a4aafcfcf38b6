package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/manimate/internal/config"
	"github.com/xiaot623/manimate/internal/domain"
	"github.com/xiaot623/manimate/internal/hub"
	"github.com/xiaot623/manimate/internal/protocol"
)

// fakeService emits one progress event per started run through the hub.
type fakeService struct {
	hub *hub.Hub

	mu        sync.Mutex
	active    map[string]string // session -> run
	cancelled []string
	lastOpts  domain.RunOptions
}

func (f *fakeService) Start(ctx context.Context, sessionID, topic string, opts domain.RunOptions) (*domain.RunSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(topic) == "" {
		return nil, domain.ErrInvalidRequest
	}
	if _, busy := f.active[sessionID]; busy {
		return nil, domain.ErrAlreadyRunning
	}
	runID := "run_" + sessionID
	f.active[sessionID] = runID
	f.lastOpts = opts
	f.hub.Emit(sessionID, domain.ProgressEvent{
		Type:      "progress",
		RunID:     runID,
		SessionID: sessionID,
		Stage:     domain.RunStateNarrating,
		Status:    domain.EventStatusProgress,
		Message:   "writing narration",
	})
	return &domain.RunSnapshot{RunID: runID, SessionID: sessionID, Topic: topic, State: domain.RunStateIdle}, nil
}

func (f *fakeService) CancelForSession(ctx context.Context, sessionID, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active[sessionID] != runID {
		return domain.ErrRunNotFound
	}
	delete(f.active, sessionID)
	f.cancelled = append(f.cancelled, runID)
	return nil
}

func (f *fakeService) CancelSession(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	runID, ok := f.active[sessionID]
	if ok {
		delete(f.active, sessionID)
		f.cancelled = append(f.cancelled, runID)
	}
	return ok
}

func (f *fakeService) cancelledRuns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func newTestServer(t *testing.T, apiKey string) (*fakeService, string) {
	t.Helper()
	cfg := &config.Config{
		APIKey:         apiKey,
		PingInterval:   time.Minute,
		WriteTimeout:   5 * time.Second,
		ReadTimeout:    time.Minute,
		MaxMessageSize: 65536,
	}
	h := hub.NewHub(nil)
	go h.Run()
	svc := &fakeService{hub: h, active: map[string]string{}}

	e := echo.New()
	e.GET("/ws", NewServer(cfg, h, svc).HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return svc, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// readType reads messages until one of the given type arrives.
func readType(t *testing.T, conn *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == msgType {
			return msg
		}
	}
}

func TestHelloAndStartRun(t *testing.T) {
	svc, url := newTestServer(t, "")
	conn := dial(t, url)

	send(t, conn, map[string]interface{}{"type": protocol.TypeHello, "request_id": "r1"})
	ack := readType(t, conn, protocol.TypeHelloAck)
	sessionID, _ := ack["session_id"].(string)
	assert.True(t, strings.HasPrefix(sessionID, "sess_"))
	assert.Equal(t, "r1", ack["request_id"])

	send(t, conn, map[string]interface{}{
		"type":    protocol.TypeStartRun,
		"topic":   "binary search",
		"quality": "high_quality",
		"options": map[string]interface{}{"voice": "Kore", "quality": "low_quality"},
	})
	progress := readType(t, conn, protocol.TypeProgress)
	assert.Equal(t, "run_"+sessionID, progress["run_id"])
	assert.Equal(t, string(domain.RunStateNarrating), progress["stage"])

	svc.mu.Lock()
	opts := svc.lastOpts
	svc.mu.Unlock()
	assert.Equal(t, domain.QualityHigh, opts.Quality)
	assert.Equal(t, "Kore", opts.Voice)
}

func TestRunStartedCarriesSnapshot(t *testing.T) {
	_, url := newTestServer(t, "")
	conn := dial(t, url)

	send(t, conn, map[string]interface{}{"type": protocol.TypeStart, "topic": "fourier series", "request_id": "r2"})
	started := readType(t, conn, protocol.TypeRunStarted)
	assert.Equal(t, "r2", started["request_id"])
	run, ok := started["run"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "fourier series", run["topic"])
	assert.Equal(t, started["run_id"], run["run_id"])
}

func TestStartErrors(t *testing.T) {
	_, url := newTestServer(t, "")
	conn := dial(t, url)

	send(t, conn, map[string]interface{}{"type": protocol.TypeStartRun, "topic": "  "})
	msg := readType(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeInvalidMessage, msg["code"])

	send(t, conn, map[string]interface{}{"type": protocol.TypeStartRun, "topic": "a"})
	readType(t, conn, protocol.TypeRunStarted)
	send(t, conn, map[string]interface{}{"type": protocol.TypeStartRun, "topic": "b"})
	msg = readType(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeAlreadyRunning, msg["code"])

	send(t, conn, map[string]interface{}{"type": "dance"})
	msg = readType(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeInvalidMessage, msg["code"])
	assert.Contains(t, msg["message"], "dance")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg = readType(t, conn, protocol.TypeError)
	assert.Equal(t, "invalid JSON message", msg["message"])
}

func TestAPIKeyIsEnforced(t *testing.T) {
	_, url := newTestServer(t, "secret")
	conn := dial(t, url)

	send(t, conn, map[string]interface{}{"type": protocol.TypeStartRun, "topic": "a"})
	msg := readType(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeSessionRequired, msg["code"])

	send(t, conn, map[string]interface{}{"type": protocol.TypeHello, "api_key": "wrong"})
	msg = readType(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeUnauthorized, msg["code"])

	send(t, conn, map[string]interface{}{"type": protocol.TypeHello, "api_key": "secret", "session_id": "sess_mine"})
	ack := readType(t, conn, protocol.TypeHelloAck)
	assert.Equal(t, "sess_mine", ack["session_id"])
}

func TestCancelRun(t *testing.T) {
	svc, url := newTestServer(t, "")
	conn := dial(t, url)

	send(t, conn, map[string]interface{}{"type": protocol.TypeHello, "session_id": "s1"})
	readType(t, conn, protocol.TypeHelloAck)

	send(t, conn, map[string]interface{}{"type": protocol.TypeCancelRun, "run_id": "run_missing"})
	msg := readType(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeRunNotFound, msg["code"])
	assert.Equal(t, "run_missing", msg["run_id"])

	send(t, conn, map[string]interface{}{"type": protocol.TypeStartRun, "topic": "a"})
	readType(t, conn, protocol.TypeRunStarted)
	send(t, conn, map[string]interface{}{"type": protocol.TypeCancelRun, "run_id": "run_s1"})

	// A session-wide cancel with nothing running reports run_not_found, which
	// also orders it after the cancel above.
	send(t, conn, map[string]interface{}{"type": protocol.TypeCancelRun})
	msg = readType(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeRunNotFound, msg["code"])
	assert.Equal(t, []string{"run_s1"}, svc.cancelledRuns())
}

func TestCancelRunOfAnotherSessionIsRejected(t *testing.T) {
	svc, url := newTestServer(t, "")
	owner, other := dial(t, url), dial(t, url)

	send(t, owner, map[string]interface{}{"type": protocol.TypeHello, "session_id": "s1"})
	readType(t, owner, protocol.TypeHelloAck)
	send(t, owner, map[string]interface{}{"type": protocol.TypeStartRun, "topic": "a"})
	readType(t, owner, protocol.TypeRunStarted)

	send(t, other, map[string]interface{}{"type": protocol.TypeHello, "session_id": "s2"})
	readType(t, other, protocol.TypeHelloAck)
	send(t, other, map[string]interface{}{"type": protocol.TypeCancelRun, "run_id": "run_s1", "request_id": "c1"})
	msg := readType(t, other, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeRunNotFound, msg["code"])
	assert.Equal(t, "c1", msg["request_id"])
	assert.Empty(t, svc.cancelledRuns())

	send(t, owner, map[string]interface{}{"type": protocol.TypeCancelRun, "run_id": "run_s1"})
	send(t, owner, map[string]interface{}{"type": protocol.TypeCancelRun})
	msg = readType(t, owner, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeRunNotFound, msg["code"])
	assert.Equal(t, []string{"run_s1"}, svc.cancelledRuns())
}
