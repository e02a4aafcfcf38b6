package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/xiaot623/manimate/internal/domain"
)

// MockRenderer writes a placeholder video instead of running manim. It still
// reports progress lines so clients see a realistic event stream.
type MockRenderer struct {
	workDir string
	step    time.Duration
}

// NewMockRenderer creates a mock renderer.
func NewMockRenderer(workDir string) *MockRenderer {
	return &MockRenderer{workDir: workDir, step: 50 * time.Millisecond}
}

// Render pretends to render the script.
func (m *MockRenderer) Render(ctx context.Context, req domain.RenderRequest) (string, error) {
	for _, pct := range []int{25, 50, 75, 100} {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.step):
		}
		if req.OnProgress != nil {
			req.OnProgress(fmt.Sprintf("Animation 0: %d%%", pct))
		}
	}

	dir := filepath.Join(m.workDir, req.RunID, fmt.Sprintf("attempt_%d", req.Attempt))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "scene.py"), []byte(req.Script), 0o644); err != nil {
		return "", err
	}
	out := filepath.Join(dir, req.SceneName+".mp4")
	if err := os.WriteFile(out, []byte("[MOCK] video for "+req.SceneName), 0o644); err != nil {
		return "", err
	}
	if req.OnProgress != nil {
		req.OnProgress("File ready at " + out)
	}
	return out, nil
}

// MockMuxer copies the video to the output directory.
type MockMuxer struct {
	outputDir string
}

// NewMockMuxer creates a mock muxer.
func NewMockMuxer(outputDir string) *MockMuxer {
	return &MockMuxer{outputDir: outputDir}
}

// Combine copies video into the output directory, ignoring audio.
func (m *MockMuxer) Combine(ctx context.Context, video, audio string) (string, error) {
	if err := os.MkdirAll(m.outputDir, 0o755); err != nil {
		return "", err
	}
	src, err := os.Open(video)
	if err != nil {
		return "", err
	}
	defer src.Close()

	out := filepath.Join(m.outputDir, filepath.Base(video))
	dst, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return out, dst.Close()
}
