package tts

import (
	"context"
	"math"
	"strings"
)

// mockSecondsPerWord approximates a relaxed speaking pace.
const mockSecondsPerWord = 0.4

// MockBackend writes silent audio whose length follows the word count.
type MockBackend struct{}

// NewMockBackend creates a mock TTS backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Synthesize writes a silent WAV track for text.
func (m *MockBackend) Synthesize(ctx context.Context, text, voice, path string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	seconds := math.Max(1, float64(len(strings.Fields(text)))*mockSecondsPerWord)
	// Mock tracks are kept small with a low sample rate.
	const rate = 8000
	n := int(seconds*rate) * DefaultBitDepth / 8
	if err := writeWAVFile(path, make([]byte, n), rate); err != nil {
		return 0, err
	}
	return PCMDuration(n, rate, DefaultChannels, DefaultBitDepth), nil
}
