package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning = errors.New("a run is already active for this session")
	ErrRunNotFound    = errors.New("run not found")
	ErrInvalidRequest = errors.New("invalid request")

	ErrGeneration = errors.New("generation failure")
	ErrValidation = errors.New("validation failure")
	ErrRender     = errors.New("render failure")
	ErrSync       = errors.New("sync failure")
	ErrMux        = errors.New("mux failure")
	ErrCancelled  = errors.New("run cancelled")
)

var kindSentinels = map[FailureKind]error{
	FailureGeneration: ErrGeneration,
	FailureValidation: ErrValidation,
	FailureRender:     ErrRender,
	FailureSync:       ErrSync,
	FailureMux:        ErrMux,
	FailureCancelled:  ErrCancelled,
}

// StageError is a typed pipeline failure. Log carries the text handed to the
// repairer: a static-analysis message for validation failures, the renderer's
// error output for render failures.
type StageError struct {
	Kind  FailureKind
	Stage RunState
	Log   string
	Err   error
}

// NewStageError builds a StageError.
func NewStageError(kind FailureKind, stage RunState, log string, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Log: log, Err: err}
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s in %s", e.Kind, e.Stage)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else if e.Log != "" {
		msg += ": " + firstLine(e.Log)
	}
	return msg
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind, so callers can write
// errors.Is(err, domain.ErrRender).
func (e *StageError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Message returns the text surfaced to clients.
func (e *StageError) Message() string {
	if e.Log != "" {
		return e.Log
	}
	return e.Error()
}

// AsStageError extracts a StageError from err.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
