// Package app wires the pipeline service to its back ends. The server and the
// CLI's in-process mode share it.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/xiaot623/manimate/internal/adapter/document"
	"github.com/xiaot623/manimate/internal/adapter/imagegen"
	"github.com/xiaot623/manimate/internal/adapter/llm"
	"github.com/xiaot623/manimate/internal/adapter/render"
	"github.com/xiaot623/manimate/internal/adapter/tts"
	"github.com/xiaot623/manimate/internal/config"
	"github.com/xiaot623/manimate/internal/repository"
	"github.com/xiaot623/manimate/internal/service"
	"github.com/xiaot623/manimate/policy"
)

// App holds the service and the resources that must be released with it.
type App struct {
	Service *service.Service
	store   *repository.SQLiteStore
}

// New builds the service described by cfg. Progress is delivered on channel.
func New(ctx context.Context, cfg *config.Config, channel service.Channel) (*App, error) {
	// Initialize policy engine
	policyContent := policy.DefaultPolicy
	if cfg.PolicyFile != "" {
		data, err := os.ReadFile(cfg.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		policyContent = string(data)
	}
	policyEngine, err := policy.NewEngine(ctx, policyContent)
	if err != nil {
		return nil, fmt.Errorf("initialize policy engine: %w", err)
	}

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	generator, err := llm.NewGeneratorFromConfig(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	synthesizer, renderer, muxer, err := backends(ctx, cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	if n, err := synthesizer.Prune(ctx, cfg.AudioCacheMaxAge); err != nil {
		log.Printf("WARN: audio cache prune failed: %v", err)
	} else if n > 0 {
		log.Printf("INFO: pruned %d cached audio tracks", n)
	}

	opts, err := extras(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	svc := service.New(cfg, service.NewSessionRegistry(), generator, synthesizer, renderer, muxer, channel, policyEngine, opts...)
	return &App{Service: svc, store: db}, nil
}

func backends(ctx context.Context, cfg *config.Config, db *repository.SQLiteStore) (*tts.Synthesizer, service.Renderer, service.Muxer, error) {
	audioDir := filepath.Join(cfg.WorkDir, "audio")
	renderDir := filepath.Join(cfg.WorkDir, "renders")

	if cfg.IsMock() {
		log.Println("MANIMATE_MODE=MOCK detected, using mock speech, renderer and muxer")
		synthesizer := tts.NewSynthesizer(tts.NewMockBackend(), db, audioDir, nil)
		return synthesizer, render.NewMockRenderer(renderDir), render.NewMockMuxer(cfg.OutputDir), nil
	}

	speech, err := tts.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiTTSModel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize speech backend: %w", err)
	}
	ffprobe := render.NewFFprobe(cfg.FFprobeBin)
	synthesizer := tts.NewSynthesizer(speech, db, audioDir, ffprobe.Duration)
	return synthesizer, render.NewManim(cfg.ManimBin, renderDir), render.NewFFmpeg(cfg.FFmpegBin, cfg.OutputDir), nil
}

// extras enables PDF input and, when configured, image generation.
func extras(ctx context.Context, cfg *config.Config) ([]service.Option, error) {
	documents, err := document.NewPDFReader(cfg.PDFDir)
	if err != nil {
		return nil, err
	}
	opts := []service.Option{service.WithDocuments(documents)}
	if !cfg.ImagesEnabled {
		return opts, nil
	}

	imageDir := filepath.Join(cfg.WorkDir, "images")
	if cfg.IsMock() {
		return append(opts, service.WithImages(imagegen.NewMock(imageDir))), nil
	}
	images, err := imagegen.NewImagen(ctx, cfg.GeminiAPIKey, cfg.ImageModel, imageDir)
	if err != nil {
		return nil, fmt.Errorf("initialize image generation: %w", err)
	}
	return append(opts, service.WithImages(images)), nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}
