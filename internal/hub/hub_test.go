package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/xiaot623/manimate/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEmitReachesEveryConnectionOfTheSession(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	a, b, other := h.NewConnection(nil), h.NewConnection(nil), h.NewConnection(nil)
	for _, c := range []*Connection{a, b, other} {
		h.Register(c)
	}
	h.BindSession(a, "s1")
	h.BindSession(b, "s1")
	h.BindSession(other, "s2")

	if h.GetConnectionCount() != 3 || h.GetSessionCount() != 2 {
		t.Fatalf("unexpected counts: %d connections, %d sessions", h.GetConnectionCount(), h.GetSessionCount())
	}

	h.Emit("s1", domain.ProgressEvent{Type: "progress", RunID: "run_1", Stage: domain.RunStateRendering, Message: "50%"})

	for _, c := range []*Connection{a, b} {
		select {
		case data := <-c.Send:
			var ev domain.ProgressEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if ev.RunID != "run_1" || ev.Stage != domain.RunStateRendering {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			t.Fatalf("connection %s got no event", c.ID)
		}
	}
	select {
	case <-other.Send:
		t.Fatalf("event leaked to another session")
	default:
	}
}

func TestLastDisconnectReportsEmptySession(t *testing.T) {
	emptied := make(chan string, 4)
	h := NewHub(func(sessionID string) { emptied <- sessionID })
	go h.Run()

	a, b := h.NewConnection(nil), h.NewConnection(nil)
	h.Register(a)
	h.Register(b)
	h.BindSession(a, "s1")
	h.BindSession(b, "s1")

	h.Unregister(a)
	if !h.HasActiveConnections("s1") {
		t.Fatalf("session should still have a connection")
	}
	h.Unregister(b)

	select {
	case got := <-emptied:
		if got != "s1" {
			t.Fatalf("expected s1, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("onSessionEmpty was not called")
	}
	select {
	case got := <-emptied:
		t.Fatalf("unexpected extra callback for %s", got)
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := <-a.Send; ok {
		t.Fatalf("send channel should be closed")
	}
}

func TestRebindingLeavesOldSession(t *testing.T) {
	emptied := make(chan string, 1)
	h := NewHub(func(sessionID string) { emptied <- sessionID })
	go h.Run()

	c := h.NewConnection(nil)
	h.Register(c)
	h.BindSession(c, "s1")
	h.BindSession(c, "s1")
	h.BindSession(c, "s2")

	select {
	case got := <-emptied:
		if got != "s1" {
			t.Fatalf("expected s1, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("onSessionEmpty was not called")
	}
	if h.HasActiveConnections("s1") || !h.HasActiveConnections("s2") {
		t.Fatalf("connection should have moved to s2")
	}
}

func TestFullBufferDropsConnection(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	c := h.NewConnection(nil)
	h.Register(c)
	h.BindSession(c, "s1")

	for i := 0; i < sendBuffer+1; i++ {
		h.Broadcast("s1", []byte("x"))
	}
	waitFor(t, func() bool { return h.GetConnectionCount() == 0 })

	// The reader side may still answer on a dropped connection.
	if err := h.SendToConnection(c, []byte("late reply")); err != ErrConnectionClosed {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
	h.Broadcast("s1", []byte("x"))

	if err := h.SendToConnection(&Connection{Send: make(chan []byte)}, []byte("x")); err != ErrBufferFull {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
}
