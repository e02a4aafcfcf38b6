package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xiaot623/manimate/internal/domain"
)

// maxFinishedRuns bounds how many completed runs stay queryable.
const maxFinishedRuns = 256

// maxRunEvents bounds the in-memory event history of a run.
const maxRunEvents = 1000

// RunHandle is the shared view of one run. The driving goroutine owns the
// PipelineRun; everyone else goes through the handle.
type RunHandle struct {
	ID        string
	SessionID string

	snapshot atomic.Pointer[domain.RunSnapshot]
	done     chan struct{}

	mu        sync.Mutex
	cancel    context.CancelFunc
	cancelled bool
	closed    bool
	events    []domain.ProgressEvent
}

func newRunHandle(run *domain.PipelineRun, cancel context.CancelFunc) *RunHandle {
	h := &RunHandle{
		ID:        run.ID,
		SessionID: run.SessionID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	h.snapshot.Store(run.Snapshot())
	return h
}

// Snapshot returns the latest published state of the run.
func (h *RunHandle) Snapshot() *domain.RunSnapshot {
	return h.snapshot.Load()
}

// Done is closed once the run has emitted its final event.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Cancel requests cancellation. Once it returns, the run emits no event other
// than its final Cancelled event.
func (h *RunHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.cancelled = true
	h.cancel()
}

// Cancelled reports whether cancellation was requested.
func (h *RunHandle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Events returns the recorded events with a timestamp after afterTs.
func (h *RunHandle) Events(afterTs int64) []domain.ProgressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.ProgressEvent, 0, len(h.events))
	for _, ev := range h.events {
		if ev.Ts > afterTs {
			out = append(out, ev)
		}
	}
	return out
}

// deliver records ev and hands it to send unless the run is closed or
// cancelled. Final events pass even after cancellation.
func (h *RunHandle) deliver(ev domain.ProgressEvent, run *domain.PipelineRun, send func(domain.ProgressEvent)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || (h.cancelled && ev.Stage != domain.RunStateCancelled) {
		return false
	}
	if run != nil {
		h.snapshot.Store(run.Snapshot())
	}
	if len(h.events) >= maxRunEvents {
		h.events = h.events[1:]
	}
	h.events = append(h.events, ev)
	send(ev)
	if ev.IsFinal() {
		h.closed = true
	}
	return true
}

// SessionRegistry tracks the active run of every session. It is shared by
// the service and the transports, and holds no lock across external calls.
type SessionRegistry struct {
	mu       sync.Mutex
	active   map[string]*RunHandle // session id -> active run
	runs     map[string]*RunHandle // run id -> run, active or recently finished
	finished []string
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		active: make(map[string]*RunHandle),
		runs:   make(map[string]*RunHandle),
	}
}

// Acquire binds h to its session, failing with ErrAlreadyRunning when the
// session already has an active run.
func (r *SessionRegistry) Acquire(h *RunHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[h.SessionID]; busy {
		return domain.ErrAlreadyRunning
	}
	r.active[h.SessionID] = h
	r.runs[h.ID] = h
	return nil
}

// Release unbinds a finished run from its session. The run stays available
// to Lookup until it ages out.
func (r *SessionRegistry) Release(h *RunHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[h.SessionID] == h {
		delete(r.active, h.SessionID)
	}
	r.finished = append(r.finished, h.ID)
	for len(r.finished) > maxFinishedRuns {
		delete(r.runs, r.finished[0])
		r.finished = r.finished[1:]
	}
}

// Lookup returns the run with the given id.
func (r *SessionRegistry) Lookup(runID string) (*RunHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.runs[runID]
	return h, ok
}

// Active returns the active run of a session.
func (r *SessionRegistry) Active(sessionID string) (*RunHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.active[sessionID]
	return h, ok
}

// CancelSession cancels the active run of a session, if any.
func (r *SessionRegistry) CancelSession(sessionID string) bool {
	h, ok := r.Active(sessionID)
	if !ok {
		return false
	}
	h.Cancel()
	return true
}
