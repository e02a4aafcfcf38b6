package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MockClient is a mock implementation of Client for testing and offline runs.
// It answers narration requests with a fixed paragraph and script requests
// with a small, valid scene.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Complete returns a canned JSON response for the task named in the
// request metadata.
func (m *MockClient) Complete(ctx context.Context, req *Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var body map[string]any
	switch req.Metadata["task"] {
	case "narration":
		topic := req.Metadata["topic"]
		if topic == "" {
			topic = "this topic"
		}
		body = map[string]any{
			"narration": fmt.Sprintf("[MOCK] Let us take a short look at %s. We start with the core idea, then build on it step by step.", topic),
		}
	case "script":
		src := mockScene(req.Metadata["scene"])
		body = map[string]any{"script": src}
		if req.Metadata["images"] == "true" {
			body["script"] = strings.Replace(src, "        self.wait(1)\n", mockImageStep, 1)
			body["image_prompts"] = []map[string]string{
				{"placeholder_id": "MOCK_IMAGE_1", "description": "a flat illustration of the topic"},
			}
		}
	case "repair":
		body = map[string]any{"script": mockScene(req.Metadata["scene"])}
	default:
		return "[MOCK] This is a mock response from the LLM client.", nil
	}

	out, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return "```json\n" + string(out) + "\n```", nil
}

const mockImageStep = `        picture = ImageMobject("MOCK_IMAGE_1").scale(0.5)
        self.play(FadeIn(picture))
        self.wait(1)
`

func mockScene(scene string) string {
	if scene == "" {
		scene = "AnimationScene"
	}
	return strings.ReplaceAll(`from manim import *

class SCENE(Scene):
    def construct(self):
        title = Text("Mock animation")
        self.play(Write(title))
        self.wait(1)
        circle = Circle(color=BLUE)
        self.play(Transform(title, circle), run_time=1.5)
        self.wait(1)
`, "SCENE", scene)
}
