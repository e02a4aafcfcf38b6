package render

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/manimate/internal/domain"
)

// FFmpeg merges rendered video with narration audio.
type FFmpeg struct {
	bin       string
	outputDir string
}

// NewFFmpeg creates a muxer writing final videos to outputDir.
func NewFFmpeg(bin, outputDir string) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{bin: bin, outputDir: outputDir}
}

// Combine copies the video stream, encodes the audio as AAC and stops at the
// shorter input.
func (f *FFmpeg) Combine(ctx context.Context, video, audio string) (string, error) {
	if err := os.MkdirAll(f.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
	out := filepath.Join(f.outputDir, base+"_"+uuid.New().String()[:8]+".mp4")

	cmd := exec.CommandContext(ctx, f.bin,
		"-i", video,
		"-i", audio,
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		"-y", out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("ERROR: ffmpeg failed: %v", err)
		return "", domain.NewStageError(domain.FailureMux, domain.RunStateMuxing,
			strings.TrimSpace(stderr.String()), fmt.Errorf("ffmpeg: %w", err))
	}
	return out, nil
}

// FFprobe measures media files.
type FFprobe struct {
	bin string
}

// NewFFprobe creates a prober.
func NewFFprobe(bin string) *FFprobe {
	if bin == "" {
		bin = "ffprobe"
	}
	return &FFprobe{bin: bin}
}

// Duration returns the container duration of path in seconds.
func (p *FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, p.bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: parse duration: %w", path, err)
	}
	return d, nil
}
