package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/xiaot623/manimate/internal/config"
)

const (
	// BackendGemini selects the Gemini API.
	BackendGemini = "gemini"
	// BackendOpenAI selects an OpenAI-compatible endpoint.
	BackendOpenAI = "openai"
	// BackendMock selects the mock client.
	BackendMock = "mock"
)

// NewGeneratorFromConfig builds the generator selected by the configuration.
// MANIMATE_MODE=MOCK overrides the backend choice.
func NewGeneratorFromConfig(ctx context.Context, cfg *config.Config) (*Generator, error) {
	backend := strings.ToLower(cfg.GeneratorBackend)
	if cfg.IsMock() {
		log.Println("MANIMATE_MODE=MOCK detected, using mock LLM client")
		backend = BackendMock
	}

	switch backend {
	case BackendMock:
		return NewGenerator(NewMockClient(), "mock", "mock"), nil
	case BackendOpenAI:
		if cfg.LLMBaseURL == "" {
			return nil, fmt.Errorf("LLM_BASE_URL is required for the %s backend", BackendOpenAI)
		}
		return NewGenerator(NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout), cfg.LLMModel, ""), nil
	case BackendGemini, "":
		client, err := NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return NewGenerator(client, cfg.GeminiModel, cfg.GeminiRepairModel), nil
	default:
		return nil, fmt.Errorf("unknown generator backend %q", cfg.GeneratorBackend)
	}
}
