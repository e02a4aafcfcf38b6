// Package llm provides an abstraction for the language model back ends that
// write narration and animation scripts.
package llm

import "context"

// Request is a single-turn completion request.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature *float64

	// Metadata is opaque to real back ends. The mock client reads "task",
	// "scene" and "images" from it.
	Metadata map[string]string
}

// Client defines the interface for completion back ends.
type Client interface {
	// Complete sends a prompt and returns the model's text.
	Complete(ctx context.Context, req *Request) (string, error)
}

// Ensure implementations satisfy Client.
var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*GeminiClient)(nil)
	_ Client = (*MockClient)(nil)
)
