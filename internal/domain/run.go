package domain

import (
	"encoding/json"
	"time"
)

// RunOptions configures a single pipeline run.
type RunOptions struct {
	Quality              Quality `json:"quality,omitempty"`
	Voice                string  `json:"voice,omitempty"`
	Theme                Theme   `json:"theme,omitempty"`
	SceneName            string  `json:"scene_name,omitempty"`
	MaxAttempts          int     `json:"max_attempts,omitempty"`
	MaxValidationRepairs int     `json:"max_validation_repairs,omitempty"`

	// PDFPath names an uploaded PDF whose text replaces the topic as the
	// source of the narration.
	PDFPath string `json:"pdf_path,omitempty"`
}

// PipelineRun is the mutable state of one run. It is owned by the goroutine
// driving the run; everyone else reads RunSnapshot copies.
type PipelineRun struct {
	ID          string
	SessionID   string
	Topic       string
	Options     RunOptions
	Attempt     int
	MaxAttempts int
	State       RunState

	NarrationText string
	CurrentScript string
	SyncedScript  string
	AudioArtifact string
	AudioDuration float64
	VideoArtifact string
	FinalArtifact string
	SyncPlan      *SyncPlan

	ValidationRepairs int
	LastError         *StageError

	StartedAt time.Time
	EndedAt   *time.Time
}

// Snapshot copies the run into an immutable view.
func (r *PipelineRun) Snapshot() *RunSnapshot {
	s := &RunSnapshot{
		RunID:             r.ID,
		SessionID:         r.SessionID,
		Topic:             r.Topic,
		Attempt:           r.Attempt,
		MaxAttempts:       r.MaxAttempts,
		State:             r.State,
		NarrationText:     r.NarrationText,
		CurrentScript:     r.CurrentScript,
		AudioArtifact:     r.AudioArtifact,
		AudioDuration:     r.AudioDuration,
		VideoArtifact:     r.VideoArtifact,
		FinalArtifact:     r.FinalArtifact,
		ValidationRepairs: r.ValidationRepairs,
		StartedAt:         r.StartedAt,
	}
	if r.SyncPlan != nil {
		plan := *r.SyncPlan
		s.SyncPlan = &plan
	}
	if r.LastError != nil {
		s.LastError = r.LastError.Message()
		s.LastErrorKind = r.LastError.Kind
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		s.EndedAt = &t
	}
	return s
}

// RunSnapshot is a point-in-time copy of a run, safe to share.
type RunSnapshot struct {
	RunID             string      `json:"run_id"`
	SessionID         string      `json:"session_id"`
	Topic             string      `json:"topic"`
	Attempt           int         `json:"attempt"`
	MaxAttempts       int         `json:"max_attempts"`
	State             RunState    `json:"state"`
	NarrationText     string      `json:"narration,omitempty"`
	CurrentScript     string      `json:"script,omitempty"`
	AudioArtifact     string      `json:"audio_artifact,omitempty"`
	AudioDuration     float64     `json:"audio_duration,omitempty"`
	VideoArtifact     string      `json:"video_artifact,omitempty"`
	FinalArtifact     string      `json:"final_artifact,omitempty"`
	SyncPlan          *SyncPlan   `json:"sync_plan,omitempty"`
	ValidationRepairs int         `json:"validation_repairs"`
	LastError         string      `json:"last_error,omitempty"`
	LastErrorKind     FailureKind `json:"last_error_kind,omitempty"`
	StartedAt         time.Time   `json:"started_at"`
	EndedAt           *time.Time  `json:"ended_at,omitempty"`
}

// SyncPlan describes how a script's timeline is stretched to an audio track.
type SyncPlan struct {
	DeclaredDuration float64 `json:"declared_duration"`
	AudioDuration    float64 `json:"audio_duration"`
	SpeedFactor      float64 `json:"speed_factor"`
	PaddingSeconds   float64 `json:"padding_seconds"`
}

// ProgressEvent is emitted at every observable transition of a run.
type ProgressEvent struct {
	Type      string          `json:"type"`
	RunID     string          `json:"run_id"`
	SessionID string          `json:"session_id,omitempty"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Stage     RunState        `json:"stage"`
	Message   string          `json:"message"`
	Status    EventStatus     `json:"status"`
	Attempt   int             `json:"attempt,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// IsFinal reports whether the event closes a run.
func (e ProgressEvent) IsFinal() bool {
	switch e.Stage {
	case RunStateCompleted, RunStateFailed, RunStateCancelled:
		return true
	}
	return false
}
