package service

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/xiaot623/manimate/internal/domain"
)

// DefaultSceneName is used when a topic yields no usable class name.
const DefaultSceneName = "AnimationScene"

// Start begins a new run for the session and returns its initial snapshot.
// The run proceeds in the background; progress is delivered on the channel.
func (s *Service) Start(ctx context.Context, sessionID, topic string, opts domain.RunOptions) (*domain.RunSnapshot, error) {
	// Validate required fields
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", domain.ErrInvalidRequest)
	}
	topic = strings.TrimSpace(topic)
	if opts.PDFPath != "" {
		path, err := s.resolveDocument(opts.PDFPath)
		if err != nil {
			return nil, err
		}
		opts.PDFPath = path
		// The file name stands in for a missing topic and scene name.
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if topic == "" {
			topic = stem
		}
		if opts.SceneName == "" {
			opts.SceneName = SceneName(stem)
		}
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: topic or pdf_path is required", domain.ErrInvalidRequest)
	}
	if _, busy := s.registry.Active(sessionID); busy {
		return nil, domain.ErrAlreadyRunning
	}

	opts = s.withDefaults(topic, opts)
	run := &domain.PipelineRun{
		ID:          "run_" + uuid.New().String()[:8],
		SessionID:   sessionID,
		Topic:       topic,
		Options:     opts,
		MaxAttempts: opts.MaxAttempts,
		State:       domain.RunStateIdle,
		StartedAt:   time.Now(),
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := newRunHandle(run, cancel)
	if err := s.registry.Acquire(h); err != nil {
		cancel()
		return nil, err
	}

	log.Printf("INFO: [run %s] started for session %s: %q", run.ID, sessionID, topic)
	go s.drive(runCtx, h, run)

	return h.Snapshot(), nil
}

func (s *Service) resolveDocument(path string) (string, error) {
	if s.documents == nil {
		return "", fmt.Errorf("%w: pdf input is not enabled", domain.ErrInvalidRequest)
	}
	resolved, err := s.documents.Resolve(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return resolved, nil
}

// Cancel requests cooperative cancellation of a run. Cancelling a finished
// run is a no-op.
func (s *Service) Cancel(ctx context.Context, runID string) error {
	h, ok := s.registry.Lookup(runID)
	if !ok {
		return domain.ErrRunNotFound
	}
	if h.Snapshot().State.IsTerminal() {
		return nil // Already terminal
	}
	h.Cancel()
	log.Printf("INFO: [run %s] cancellation requested", runID)
	return nil
}

// CancelForSession is Cancel restricted to the runs of one session. A run
// owned by another session is reported as not found.
func (s *Service) CancelForSession(ctx context.Context, sessionID, runID string) error {
	h, ok := s.registry.Lookup(runID)
	if !ok || h.SessionID != sessionID {
		return domain.ErrRunNotFound
	}
	return s.Cancel(ctx, runID)
}

// CancelSession cancels whatever run is active on the session. It reports
// whether there was one.
func (s *Service) CancelSession(sessionID string) bool {
	if !s.registry.CancelSession(sessionID) {
		return false
	}
	log.Printf("INFO: cancelled active run of session %s", sessionID)
	return true
}

// GetRun returns the latest snapshot of a run.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.RunSnapshot, error) {
	h, ok := s.registry.Lookup(runID)
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return h.Snapshot(), nil
}

// GetRunEvents returns the events a run emitted after afterTs (Unix ms).
func (s *Service) GetRunEvents(ctx context.Context, runID string, afterTs int64) ([]domain.ProgressEvent, error) {
	h, ok := s.registry.Lookup(runID)
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return h.Events(afterTs), nil
}

// Wait blocks until the run has finished or ctx is done.
func (s *Service) Wait(ctx context.Context, runID string) (*domain.RunSnapshot, error) {
	h, ok := s.registry.Lookup(runID)
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	select {
	case <-h.Done():
		return h.Snapshot(), nil
	case <-ctx.Done():
		return h.Snapshot(), ctx.Err()
	}
}

func (s *Service) withDefaults(topic string, opts domain.RunOptions) domain.RunOptions {
	if opts.Quality == "" {
		opts.Quality = domain.Quality(s.config.DefaultQuality)
	}
	if opts.Voice == "" {
		opts.Voice = s.config.DefaultVoice
	}
	if opts.Theme == "" {
		opts.Theme = domain.Theme(s.config.DefaultTheme)
	}
	if opts.SceneName == "" || !isIdentifier(opts.SceneName) {
		opts.SceneName = SceneName(topic)
	}
	// Clients may lower the configured limits, never raise them.
	if opts.MaxAttempts <= 0 || (s.config.MaxRenderAttempts > 0 && opts.MaxAttempts > s.config.MaxRenderAttempts) {
		opts.MaxAttempts = s.config.MaxRenderAttempts
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.MaxValidationRepairs <= 0 || (s.config.MaxValidationRepairs > 0 && opts.MaxValidationRepairs > s.config.MaxValidationRepairs) {
		opts.MaxValidationRepairs = s.config.MaxValidationRepairs
	}
	return opts
}

// SceneName derives the scene class name from a topic: words are capitalized
// and joined, anything that cannot appear in an identifier is dropped.
func SceneName(topic string) string {
	var b strings.Builder
	for _, word := range strings.Fields(topic) {
		first := true
		for _, r := range word {
			if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
				continue
			}
			if first {
				r = unicode.ToUpper(r)
				first = false
			}
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" {
		return DefaultSceneName
	}
	if unicode.IsDigit(rune(name[0])) {
		name = "Scene" + name
	}
	return name
}

func isIdentifier(name string) bool {
	for i, r := range name {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || r == '_' || (i > 0 && unicode.IsDigit(r))) {
			return false
		}
	}
	return name != ""
}
