package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MANIMATE_CONFIG", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("ENABLE_IMAGES", "")
	t.Setenv("PDF_DIR", "")

	cfg := Load()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 3, cfg.MaxRenderAttempts)
	assert.Equal(t, 3, cfg.MaxValidationRepairs)
	assert.Equal(t, time.Duration(0), cfg.RenderTimeout)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.False(t, cfg.IsMock())
	assert.False(t, cfg.ImagesEnabled)
	assert.Equal(t, "uploads", cfg.PDFDir)
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manimate.yaml")
	content := "http_port: 9000\nMAX_RENDER_ATTEMPTS: 5\nmanimate_mode: mock\nrender_timeout_ms: 1500\nenable_images: \"true\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("MANIMATE_CONFIG", path)
	t.Setenv("MAX_RENDER_ATTEMPTS", "2")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("MANIMATE_MODE", "")
	t.Setenv("ENABLE_IMAGES", "")

	cfg := Load()
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, 2, cfg.MaxRenderAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.RenderTimeout)
	assert.True(t, cfg.IsMock())
	assert.True(t, cfg.ImagesEnabled)
}

func TestLoadIgnoresBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("- not\n- a map\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("MANIMATE_CONFIG", path)
	t.Setenv("HTTP_PORT", "")

	cfg := Load()
	assert.Equal(t, 8080, cfg.HTTPPort)
}
