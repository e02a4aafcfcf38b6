package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/manimate/internal/domain"
)

func newHandle(id, session string) (*RunHandle, *domain.PipelineRun, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	run := &domain.PipelineRun{ID: id, SessionID: session, State: domain.RunStateIdle}
	return newRunHandle(run, cancel), run, ctx
}

func TestRegistryOneActiveRunPerSession(t *testing.T) {
	reg := NewSessionRegistry()
	a, _, _ := newHandle("run_a", "s1")
	b, _, _ := newHandle("run_b", "s1")
	c, _, _ := newHandle("run_c", "s2")

	require.NoError(t, reg.Acquire(a))
	assert.ErrorIs(t, reg.Acquire(b), domain.ErrAlreadyRunning)
	require.NoError(t, reg.Acquire(c))

	reg.Release(a)
	require.NoError(t, reg.Acquire(b))

	got, ok := reg.Lookup("run_a")
	require.True(t, ok, "finished runs stay queryable")
	assert.Equal(t, a, got)

	active, ok := reg.Active("s1")
	require.True(t, ok)
	assert.Equal(t, b, active)
}

func TestRegistryForgetsOldRuns(t *testing.T) {
	reg := NewSessionRegistry()
	for i := 0; i < maxFinishedRuns+10; i++ {
		h, _, _ := newHandle(fmt.Sprintf("run_%d", i), "s1")
		require.NoError(t, reg.Acquire(h))
		reg.Release(h)
	}
	_, ok := reg.Lookup("run_0")
	assert.False(t, ok)
	_, ok = reg.Lookup(fmt.Sprintf("run_%d", maxFinishedRuns+9))
	assert.True(t, ok)
}

func TestHandleDropsEventsAfterCancel(t *testing.T) {
	h, run, ctx := newHandle("run_a", "s1")
	var sent []domain.ProgressEvent
	send := func(ev domain.ProgressEvent) { sent = append(sent, ev) }

	run.State = domain.RunStateRendering
	assert.True(t, h.deliver(domain.ProgressEvent{Stage: domain.RunStateRendering, Ts: 1}, run, send))

	h.Cancel()
	assert.Error(t, ctx.Err())
	assert.True(t, h.Cancelled())
	assert.False(t, h.deliver(domain.ProgressEvent{Stage: domain.RunStateRendering, Ts: 2}, run, send))
	assert.False(t, h.deliver(domain.ProgressEvent{Stage: domain.RunStateCompleted, Ts: 3}, run, send))

	run.State = domain.RunStateCancelled
	assert.True(t, h.deliver(domain.ProgressEvent{Stage: domain.RunStateCancelled, Ts: 4}, run, send))
	assert.False(t, h.deliver(domain.ProgressEvent{Stage: domain.RunStateCancelled, Ts: 5}, run, send), "only one final event")

	require.Len(t, sent, 2)
	assert.Equal(t, domain.RunStateCancelled, h.Snapshot().State)
	assert.Len(t, h.Events(1), 1)
}

func TestCancelAfterCloseIsNoop(t *testing.T) {
	h, run, ctx := newHandle("run_a", "s1")
	run.State = domain.RunStateCompleted
	h.deliver(domain.ProgressEvent{Stage: domain.RunStateCompleted}, run, func(domain.ProgressEvent) {})

	h.Cancel()
	assert.NoError(t, ctx.Err())
	assert.False(t, h.Cancelled())
}
