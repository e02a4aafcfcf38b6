// Package config provides configuration for the animation pipeline server.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort  int
	OutputDir string // final videos, served under /output
	WorkDir   string // scripts, audio and intermediate renders

	// Database
	DatabaseURL string

	// Back ends
	Mode             string // MOCK swaps every external integration for a local fake
	GeneratorBackend string // gemini, openai or mock

	GeminiAPIKey      string
	GeminiModel       string
	GeminiRepairModel string
	GeminiTTSModel    string
	ImageModel        string

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	ManimBin   string
	FFmpegBin  string
	FFprobeBin string

	// Pipeline defaults
	MaxRenderAttempts    int
	MaxValidationRepairs int
	DefaultQuality       string
	DefaultVoice         string
	DefaultTheme         string
	PolicyFile           string
	PDFDir               string // pdf_path inputs must resolve inside it
	ImagesEnabled        bool   // let scripts ask for generated pictures
	AudioCacheMaxAge     time.Duration // synthesized tracks unused for longer are pruned at startup

	// Timeouts
	LLMTimeout    time.Duration
	TTSTimeout    time.Duration
	RenderTimeout time.Duration
	MuxTimeout    time.Duration

	// Auth settings
	APIKey string // Static API key for hello.api_key validation

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Logging
	LogLevel string
}

// IsMock reports whether mock back ends are selected.
func (c *Config) IsMock() bool {
	return strings.EqualFold(c.Mode, "MOCK")
}

// Load loads configuration from a .env file, the optional YAML file named by
// MANIMATE_CONFIG and environment variables, in increasing precedence.
func Load() *Config {
	_ = godotenv.Load()

	var file map[string]string
	if path := os.Getenv("MANIMATE_CONFIG"); path != "" {
		var err error
		if file, err = readFile(path); err != nil {
			log.Printf("WARN: ignoring config file: %v", err)
		}
	}
	l := loader{file: file}

	return &Config{
		HTTPPort:             l.int("HTTP_PORT", 8080),
		OutputDir:            l.str("OUTPUT_DIR", "output"),
		WorkDir:              l.str("WORK_DIR", "work"),
		DatabaseURL:          l.str("DATABASE_URL", "file:manimate.db?cache=shared&mode=rwc"),
		Mode:                 l.str("MANIMATE_MODE", ""),
		GeneratorBackend:     l.str("GENERATOR_BACKEND", "gemini"),
		GeminiAPIKey:         l.str("GEMINI_API_KEY", ""),
		GeminiModel:          l.str("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiRepairModel:    l.str("GEMINI_REPAIR_MODEL", "gemini-2.5-pro"),
		GeminiTTSModel:       l.str("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		ImageModel:           l.str("IMAGE_MODEL", "imagen-4.0-generate-001"),
		LLMBaseURL:           l.str("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:            l.str("LLM_API_KEY", ""),
		LLMModel:             l.str("LLM_MODEL", "gpt-4o-mini"),
		ManimBin:             l.str("MANIM_BIN", "manim"),
		FFmpegBin:            l.str("FFMPEG_BIN", "ffmpeg"),
		FFprobeBin:           l.str("FFPROBE_BIN", "ffprobe"),
		MaxRenderAttempts:    l.int("MAX_RENDER_ATTEMPTS", 3),
		MaxValidationRepairs: l.int("MAX_VALIDATION_REPAIRS", 3),
		DefaultQuality:       l.str("DEFAULT_QUALITY", "low_quality"),
		DefaultVoice:         l.str("DEFAULT_VOICE", "Puck"),
		DefaultTheme:         l.str("DEFAULT_THEME", "default"),
		PolicyFile:           l.str("POLICY_FILE", ""),
		PDFDir:               l.str("PDF_DIR", "uploads"),
		ImagesEnabled:        l.bool("ENABLE_IMAGES", false),
		AudioCacheMaxAge:     time.Duration(l.int("AUDIO_CACHE_MAX_AGE_HOURS", 720)) * time.Hour,
		LLMTimeout:           l.ms("LLM_TIMEOUT_MS", 120000),
		TTSTimeout:           l.ms("TTS_TIMEOUT_MS", 120000),
		RenderTimeout:        l.ms("RENDER_TIMEOUT_MS", 0),
		MuxTimeout:           l.ms("MUX_TIMEOUT_MS", 0),
		APIKey:               l.str("API_KEY", ""),
		PingInterval:         l.ms("WS_PING_INTERVAL_MS", 30000),
		WriteTimeout:         l.ms("WS_WRITE_TIMEOUT_MS", 10000),
		ReadTimeout:          l.ms("WS_READ_TIMEOUT_MS", 60000),
		MaxMessageSize:       int64(l.int("WS_MAX_MESSAGE_SIZE", 65536)),
		LogLevel:             l.str("LOG_LEVEL", "info"),
	}
}

// readFile parses a flat YAML mapping of configuration keys. Keys use the
// environment variable names, case-insensitively.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[strings.ToUpper(k)] = v
	}
	return out, nil
}

type loader struct {
	file map[string]string
}

func (l loader) str(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if val := l.file[key]; val != "" {
		return val
	}
	return defaultVal
}

func (l loader) int(key string, defaultVal int) int {
	if val := l.str(key, ""); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func (l loader) bool(key string, defaultVal bool) bool {
	if val := l.str(key, ""); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func (l loader) ms(key string, defaultVal int) time.Duration {
	return time.Duration(l.int(key, defaultVal)) * time.Millisecond
}
