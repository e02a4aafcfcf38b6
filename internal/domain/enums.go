// Package domain defines the core domain models for the animation pipeline.
package domain

// RunState represents the state of a pipeline run.
type RunState string

const (
	RunStateIdle         RunState = "Idle"
	RunStateNarrating    RunState = "Narrating"
	RunStateScripting    RunState = "Scripting"
	RunStateSynthesizing RunState = "Synthesizing"
	RunStateValidating   RunState = "Validating"
	RunStateRepairing    RunState = "Repairing"
	RunStateSyncing      RunState = "Syncing"
	RunStateRendering    RunState = "Rendering"
	RunStateMuxing       RunState = "Muxing"
	RunStateCompleted    RunState = "Completed"
	RunStateFailed       RunState = "Failed"
	RunStateCancelled    RunState = "Cancelled"
)

// IsTerminal reports whether no further transitions are possible from s.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed, RunStateCancelled:
		return true
	}
	return false
}

// EventStatus represents the status carried by a progress event.
type EventStatus string

const (
	EventStatusProgress  EventStatus = "progress"
	EventStatusError     EventStatus = "error"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

// FailureKind classifies pipeline failures.
type FailureKind string

const (
	FailureGeneration FailureKind = "GenerationFailure"
	FailureValidation FailureKind = "ValidationFailure"
	FailureRender     FailureKind = "RenderFailure"
	FailureSync       FailureKind = "SyncFailure"
	FailureMux        FailureKind = "MuxFailure"
	FailureCancelled  FailureKind = "Cancelled"
)

// Recoverable reports whether a failure of this kind is repaired in place
// instead of terminating the run.
func (k FailureKind) Recoverable() bool {
	return k == FailureValidation || k == FailureRender
}

// Quality is a render quality preset.
type Quality string

const (
	QualityLow        Quality = "low_quality"
	QualityMedium     Quality = "medium_quality"
	QualityHigh       Quality = "high_quality"
	QualityProduction Quality = "production_quality"
)

// Theme is the visual theme requested from the script generator.
type Theme string

const (
	ThemeDefault Theme = "default"
	ThemeDark    Theme = "dark"
	ThemePlayful Theme = "playful"
)
