package domain

// StartRunRequest is the request to start a pipeline run.
type StartRunRequest struct {
	Topic   string     `json:"topic"`
	Options RunOptions `json:"options,omitempty"`
}

// NarrationRequest asks the generator for the narration of a run. Document,
// when set, is the text of an uploaded PDF the narration summarizes.
type NarrationRequest struct {
	Topic    string `json:"topic"`
	Document string `json:"document,omitempty"`
}

// ScriptRequest asks the generator for an animation script. PriorScript and
// PriorError are set when a failing script is being repaired.
type ScriptRequest struct {
	Topic       string      `json:"topic"`
	Narration   string      `json:"narration"`
	SceneName   string      `json:"scene_name"`
	Theme       Theme       `json:"theme,omitempty"`
	PriorScript string      `json:"prior_script,omitempty"`
	PriorError  string      `json:"prior_error,omitempty"`
	FailureKind FailureKind `json:"failure_kind,omitempty"`

	// Images lets a new script ask for generated pictures.
	Images bool `json:"images,omitempty"`
}

// IsRepair reports whether the request repairs an earlier script.
func (r ScriptRequest) IsRepair() bool {
	return r.PriorScript != ""
}

// ImagePrompt describes one picture a script needs. The script refers to the
// picture by PlaceholderID until it has been generated.
type ImagePrompt struct {
	PlaceholderID string `json:"placeholder_id"`
	Description   string `json:"description"`
}

// GeneratedScript is the generator's answer to a ScriptRequest.
type GeneratedScript struct {
	Script       string        `json:"script"`
	ImagePrompts []ImagePrompt `json:"image_prompts,omitempty"`
}

// AudioArtifact is a synthesized narration track.
type AudioArtifact struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"` // seconds
	Cached   bool    `json:"cached,omitempty"`
}

// RenderRequest asks the renderer to turn a script into a silent video.
type RenderRequest struct {
	RunID     string
	Attempt   int
	Script    string
	SceneName string
	Quality   Quality

	// OnProgress receives renderer output lines that report progress. It may
	// be called from several goroutines.
	OnProgress func(line string)
}
