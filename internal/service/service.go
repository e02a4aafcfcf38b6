package service

import (
	"github.com/xiaot623/manimate/internal/config"
	"github.com/xiaot623/manimate/policy"
)

type Service struct {
	generator    Generator
	synthesizer  AudioSynthesizer
	renderer     Renderer
	muxer        Muxer
	channel      Channel
	registry     *SessionRegistry
	config       *config.Config
	policyEngine *policy.Engine

	// Optional: nil disables PDF input and image generation.
	documents DocumentReader
	images    ImageGenerator
}

// Option configures optional collaborators of a Service.
type Option func(*Service)

// WithDocuments enables runs that start from a PDF.
func WithDocuments(r DocumentReader) Option {
	return func(s *Service) { s.documents = r }
}

// WithImages lets generated scripts show generated pictures.
func WithImages(g ImageGenerator) Option {
	return func(s *Service) { s.images = g }
}

func New(cfg *config.Config, registry *SessionRegistry, generator Generator, synthesizer AudioSynthesizer, renderer Renderer, muxer Muxer, channel Channel, policyEngine *policy.Engine, opts ...Option) *Service {
	s := &Service{
		generator:    generator,
		synthesizer:  synthesizer,
		renderer:     renderer,
		muxer:        muxer,
		channel:      channel,
		registry:     registry,
		config:       cfg,
		policyEngine: policyEngine,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the session registry the service binds runs to.
func (s *Service) Registry() *SessionRegistry {
	return s.registry
}
