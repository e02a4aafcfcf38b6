package service

import (
	"context"

	"github.com/xiaot623/manimate/internal/domain"
)

// Generator writes narration and animation scripts.
type Generator interface {
	GenerateNarration(ctx context.Context, req domain.NarrationRequest) (string, error)
	GenerateScript(ctx context.Context, req domain.ScriptRequest) (domain.GeneratedScript, error)
}

// DocumentReader extracts the text of an uploaded document used in place of
// a topic.
type DocumentReader interface {
	// Resolve checks that path names a readable document and returns its
	// absolute path.
	Resolve(path string) (string, error)
	ReadText(ctx context.Context, path string) (string, error)
}

// ImageGenerator draws a picture for a description and returns the path of
// the saved image.
type ImageGenerator interface {
	Generate(ctx context.Context, description string) (string, error)
}

// AudioSynthesizer turns narration text into an audio track.
type AudioSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (domain.AudioArtifact, error)
}

// Renderer turns a script into a silent video and returns its path. Failures
// carry the renderer's error output in a *domain.StageError.
type Renderer interface {
	Render(ctx context.Context, req domain.RenderRequest) (string, error)
}

// Muxer merges a video and an audio track and returns the final path.
type Muxer interface {
	Combine(ctx context.Context, video, audio string) (string, error)
}

// Channel delivers progress events to the clients of a session. Delivery is
// best-effort and must not block.
type Channel interface {
	Emit(sessionID string, ev domain.ProgressEvent)
}
