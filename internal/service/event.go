package service

import (
	"encoding/json"
	"log"
	"time"

	"github.com/xiaot623/manimate/internal/domain"
)

// emit publishes the run's current state and sends one event for it. It
// reports false when the event was dropped because the run is cancelled.
func (s *Service) emit(h *RunHandle, run *domain.PipelineRun, status domain.EventStatus, message string, payload interface{}) bool {
	ev := domain.ProgressEvent{
		Type:      "progress",
		RunID:     run.ID,
		SessionID: run.SessionID,
		Ts:        time.Now().UnixMilli(),
		Stage:     run.State,
		Message:   message,
		Status:    status,
		Attempt:   run.Attempt,
	}
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			log.Printf("WARN: [run %s] failed to marshal event payload: %v", run.ID, err)
		} else {
			ev.Payload = payloadBytes
		}
	}

	return h.deliver(ev, run, func(ev domain.ProgressEvent) {
		if s.channel != nil {
			s.channel.Emit(run.SessionID, ev)
		}
	})
}

// emitLine forwards a renderer progress line. It runs on the renderer's
// output goroutines and only reads fields the driver does not change while
// a render is in flight.
func (s *Service) emitLine(h *RunHandle, runID, sessionID string, attempt int, line string) {
	ev := domain.ProgressEvent{
		Type:      "progress",
		RunID:     runID,
		SessionID: sessionID,
		Ts:        time.Now().UnixMilli(),
		Stage:     domain.RunStateRendering,
		Message:   line,
		Status:    domain.EventStatusProgress,
		Attempt:   attempt,
	}
	h.deliver(ev, nil, func(ev domain.ProgressEvent) {
		if s.channel != nil {
			s.channel.Emit(sessionID, ev)
		}
	})
}
