package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xiaot623/manimate/internal/domain"
	"github.com/xiaot623/manimate/internal/script"
	"github.com/xiaot623/manimate/internal/timing"
)

// drive runs the state machine until the run emits its final event. The
// session is freed before that event goes out, so a client reacting to it
// can start the next run.
func (s *Service) drive(ctx context.Context, h *RunHandle, run *domain.PipelineRun) {
	defer close(h.done)

	err := s.execute(ctx, h, run)
	s.registry.Release(h)
	s.finish(h, run, err)
}

func (s *Service) execute(ctx context.Context, h *RunHandle, run *domain.PipelineRun) error {
	opts := run.Options

	// Narration
	if err := s.enter(ctx, h, run, domain.RunStateNarrating, "writing narration"); err != nil {
		return err
	}
	req := domain.NarrationRequest{Topic: run.Topic}
	if opts.PDFPath != "" {
		s.emit(h, run, domain.EventStatusProgress, "reading text from "+filepath.Base(opts.PDFPath), nil)
		text, err := s.documents.ReadText(ctx, opts.PDFPath)
		if err := s.after(ctx, run, err, domain.FailureGeneration, "pdf text extraction failed"); err != nil {
			return err
		}
		req.Document = text
	}
	callCtx, cancel := withTimeout(ctx, s.config.LLMTimeout)
	narration, err := s.generator.GenerateNarration(callCtx, req)
	cancel()
	if err := s.after(ctx, run, err, domain.FailureGeneration, "narration generation failed"); err != nil {
		return err
	}
	run.NarrationText = strings.TrimSpace(narration)
	if run.NarrationText == "" {
		return domain.NewStageError(domain.FailureGeneration, run.State, "", errors.New("generator returned an empty narration"))
	}
	s.emit(h, run, domain.EventStatusProgress, "narration ready", map[string]interface{}{
		"narration": run.NarrationText,
	})

	// Script
	if err := s.enter(ctx, h, run, domain.RunStateScripting, "writing animation script"); err != nil {
		return err
	}
	callCtx, cancel = withTimeout(ctx, s.config.LLMTimeout)
	gen, err := s.generator.GenerateScript(callCtx, domain.ScriptRequest{
		Topic:     run.Topic,
		Narration: run.NarrationText,
		SceneName: opts.SceneName,
		Theme:     opts.Theme,
		Images:    s.images != nil,
	})
	cancel()
	if err := s.after(ctx, run, err, domain.FailureGeneration, "script generation failed"); err != nil {
		return err
	}
	if strings.TrimSpace(gen.Script) == "" {
		return domain.NewStageError(domain.FailureGeneration, run.State, "", errors.New("generator returned an empty script"))
	}
	run.CurrentScript = gen.Script
	s.emit(h, run, domain.EventStatusProgress, "script ready", nil)
	if len(gen.ImagePrompts) > 0 && s.images != nil {
		if err := s.placeImages(ctx, h, run, gen.ImagePrompts); err != nil {
			return err
		}
	}

	// Audio
	if err := s.enter(ctx, h, run, domain.RunStateSynthesizing, "synthesizing narration audio"); err != nil {
		return err
	}
	callCtx, cancel = withTimeout(ctx, s.config.TTSTimeout)
	audio, err := s.synthesizer.Synthesize(callCtx, run.NarrationText, opts.Voice)
	cancel()
	if err := s.after(ctx, run, err, domain.FailureGeneration, "speech synthesis failed"); err != nil {
		return err
	}
	run.AudioArtifact = audio.Path
	run.AudioDuration = audio.Duration
	s.emit(h, run, domain.EventStatusProgress, fmt.Sprintf("audio ready (%.2fs)", audio.Duration), audio)

	// Static validation, repaired in place without consuming render attempts.
	for {
		if err := s.enter(ctx, h, run, domain.RunStateValidating, "validating script"); err != nil {
			return err
		}
		verr := s.validateScript(ctx, run.CurrentScript, opts.SceneName)
		if ctx.Err() != nil {
			return cancelledError(run)
		}
		if verr == nil {
			s.emit(h, run, domain.EventStatusProgress, "script passed validation", nil)
			break
		}

		run.LastError = verr
		s.emit(h, run, domain.EventStatusError, "validation failed: "+verr.Message(), nil)
		if run.ValidationRepairs >= opts.MaxValidationRepairs {
			return verr
		}
		run.ValidationRepairs++
		if err := s.repair(ctx, h, run, verr, run.CurrentScript); err != nil {
			return err
		}
	}

	// Sync and render, repairing render failures while attempts remain.
	for attempt := 1; ; attempt++ {
		run.Attempt = attempt
		if err := s.sync(ctx, h, run); err != nil {
			return err
		}

		if err := s.enter(ctx, h, run, domain.RunStateRendering, fmt.Sprintf("starting render attempt %d/%d", attempt, run.MaxAttempts)); err != nil {
			return err
		}
		video, err := s.render(ctx, h, run)
		if ctx.Err() != nil {
			return cancelledError(run)
		}
		if err == nil {
			run.VideoArtifact = video
			s.emit(h, run, domain.EventStatusProgress, fmt.Sprintf("render attempt %d succeeded", attempt), map[string]interface{}{
				"video": video,
			})
			break
		}

		rerr := asStageError(err, domain.FailureRender, domain.RunStateRendering)
		run.LastError = rerr
		s.emit(h, run, domain.EventStatusError, fmt.Sprintf("render attempt %d failed: %s", attempt, firstLine(rerr.Message())), map[string]interface{}{
			"log": tail(rerr.Message(), 4000),
		})
		if attempt >= run.MaxAttempts {
			return rerr
		}
		if err := s.repair(ctx, h, run, rerr, run.SyncedScript); err != nil {
			return err
		}
	}

	// Mux
	if err := s.enter(ctx, h, run, domain.RunStateMuxing, "merging audio and video"); err != nil {
		return err
	}
	callCtx, cancel = withTimeout(ctx, s.config.MuxTimeout)
	final, err := s.muxer.Combine(callCtx, run.VideoArtifact, run.AudioArtifact)
	cancel()
	if err := s.after(ctx, run, err, domain.FailureMux, "merging failed"); err != nil {
		return err
	}
	run.FinalArtifact = final
	s.emit(h, run, domain.EventStatusProgress, "merge finished", nil)
	return nil
}

// repair asks the generator to fix the failing script. The same transition
// serves static validation failures and render failures; only the error text
// handed over differs.
func (s *Service) repair(ctx context.Context, h *RunHandle, run *domain.PipelineRun, cause *domain.StageError, failing string) error {
	msg := "repairing script after validation failure"
	if cause.Kind == domain.FailureRender {
		msg = fmt.Sprintf("repairing script after render attempt %d/%d failed", run.Attempt, run.MaxAttempts)
	}
	if err := s.enter(ctx, h, run, domain.RunStateRepairing, msg); err != nil {
		return err
	}

	callCtx, cancel := withTimeout(ctx, s.config.LLMTimeout)
	fixed, err := s.generator.GenerateScript(callCtx, domain.ScriptRequest{
		Topic:       run.Topic,
		Narration:   run.NarrationText,
		SceneName:   run.Options.SceneName,
		Theme:       run.Options.Theme,
		PriorScript: failing,
		PriorError:  cause.Message(),
		FailureKind: cause.Kind,
	})
	cancel()
	if err := s.after(ctx, run, err, domain.FailureGeneration, "script repair failed"); err != nil {
		return err
	}
	if strings.TrimSpace(fixed.Script) == "" {
		return domain.NewStageError(domain.FailureGeneration, run.State, "", errors.New("generator returned an empty repaired script"))
	}

	run.CurrentScript = fixed.Script
	run.SyncedScript = ""
	s.emit(h, run, domain.EventStatusProgress, "repaired script received", nil)
	return nil
}

// placeImages generates the pictures the script asks for and swaps each
// placeholder id for the image path. A picture that cannot be generated is
// skipped; its placeholder stays and the script is left to the repair loop.
func (s *Service) placeImages(ctx context.Context, h *RunHandle, run *domain.PipelineRun, prompts []domain.ImagePrompt) error {
	s.emit(h, run, domain.EventStatusProgress, fmt.Sprintf("generating %d image(s)", len(prompts)), nil)

	type placed struct {
		PlaceholderID string `json:"placeholder_id"`
		Path          string `json:"path"`
		Description   string `json:"description"`
	}
	var done []placed
	for _, p := range prompts {
		callCtx, cancel := withTimeout(ctx, s.config.LLMTimeout)
		path, err := s.images.Generate(callCtx, p.Description)
		cancel()
		if ctx.Err() != nil {
			return cancelledError(run)
		}
		if err != nil {
			log.Printf("WARN: [run %s] image %s: %v", run.ID, p.PlaceholderID, err)
			s.emit(h, run, domain.EventStatusError, fmt.Sprintf("image %s could not be generated: %v", p.PlaceholderID, err), nil)
			continue
		}
		run.CurrentScript = replacePlaceholder(run.CurrentScript, p.PlaceholderID, path)
		done = append(done, placed{PlaceholderID: p.PlaceholderID, Path: path, Description: p.Description})
	}
	if len(done) > 0 {
		s.emit(h, run, domain.EventStatusProgress, fmt.Sprintf("%d image(s) placed", len(done)), map[string]interface{}{
			"images": done,
		})
	}
	return nil
}

// replacePlaceholder swaps quoted occurrences of id for the quoted path.
func replacePlaceholder(src, id, path string) string {
	quoted := strconv.Quote(path)
	src = strings.ReplaceAll(src, `"`+id+`"`, quoted)
	return strings.ReplaceAll(src, "'"+id+"'", quoted)
}

// sync stretches the current script to the narration. A script that cannot
// be synchronized is rendered as is.
func (s *Service) sync(ctx context.Context, h *RunHandle, run *domain.PipelineRun) error {
	if err := s.enter(ctx, h, run, domain.RunStateSyncing, "synchronizing animation with narration"); err != nil {
		return err
	}

	analysis := timing.Analyze(run.CurrentScript)
	plan := timing.Plan(analysis.Duration, run.AudioDuration)
	run.SyncPlan = &plan

	synced, err := timing.Rewrite(run.CurrentScript, plan, run.AudioArtifact, run.Options.SceneName)
	run.SyncedScript = synced
	if err != nil {
		serr := asStageError(err, domain.FailureSync, domain.RunStateSyncing)
		log.Printf("WARN: [run %s] %v", run.ID, serr)
		s.emit(h, run, domain.EventStatusError, "synchronization failed, rendering script unchanged: "+serr.Message(), plan)
		return nil
	}

	s.emit(h, run, domain.EventStatusProgress, fmt.Sprintf("timeline %.2fs stretched to %.2fs (speed %.3f, padding %.2fs)",
		plan.DeclaredDuration, plan.AudioDuration, plan.SpeedFactor, plan.PaddingSeconds), map[string]interface{}{
		"plan":     plan,
		"fallback": analysis.Fallback,
	})
	return nil
}

func (s *Service) render(ctx context.Context, h *RunHandle, run *domain.PipelineRun) (string, error) {
	callCtx, cancel := withTimeout(ctx, s.config.RenderTimeout)
	defer cancel()

	runID, sessionID, attempt := run.ID, run.SessionID, run.Attempt
	video, err := s.renderer.Render(callCtx, domain.RenderRequest{
		RunID:     runID,
		Attempt:   attempt,
		Script:    script.WithLayoutHelpers(run.SyncedScript),
		SceneName: run.Options.SceneName,
		Quality:   run.Options.Quality,
		OnProgress: func(line string) {
			s.emitLine(h, runID, sessionID, attempt, line)
		},
	})
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", domain.NewStageError(domain.FailureRender, domain.RunStateRendering,
			fmt.Sprintf("render timed out after %s", s.config.RenderTimeout),
			fmt.Errorf("render: %w", context.DeadlineExceeded))
	}
	return video, err
}

// enter moves the run into state and announces it, unless the run has been
// cancelled.
func (s *Service) enter(ctx context.Context, h *RunHandle, run *domain.PipelineRun, state domain.RunState, message string) error {
	if ctx.Err() != nil {
		return cancelledError(run)
	}
	run.State = state
	if !s.emit(h, run, domain.EventStatusProgress, message, nil) {
		return cancelledError(run)
	}
	log.Printf("INFO: [run %s] %s: %s", run.ID, state, message)
	return nil
}

// after classifies the outcome of an external call.
func (s *Service) after(ctx context.Context, run *domain.PipelineRun, err error, kind domain.FailureKind, message string) error {
	if ctx.Err() != nil {
		return cancelledError(run)
	}
	if err == nil {
		return nil
	}
	if se, ok := domain.AsStageError(err); ok {
		return se
	}
	return domain.NewStageError(kind, run.State, "", fmt.Errorf("%s: %w", message, err))
}

// finish emits the run's single final event.
func (s *Service) finish(h *RunHandle, run *domain.PipelineRun, err error) {
	now := time.Now()
	run.EndedAt = &now

	if err == nil && !h.Cancelled() {
		run.State = domain.RunStateCompleted
		if s.emit(h, run, domain.EventStatusCompleted, "animation ready", map[string]interface{}{
			"final_artifact": run.FinalArtifact,
			"sync_plan":      run.SyncPlan,
		}) {
			log.Printf("INFO: [run %s] completed: %s", run.ID, run.FinalArtifact)
			return
		}
	}

	if err != nil && !h.Cancelled() && !errors.Is(err, domain.ErrCancelled) {
		se := asStageError(err, domain.FailureGeneration, run.State)
		run.LastError = se
		run.State = domain.RunStateFailed
		if s.emit(h, run, domain.EventStatusError, se.Message(), map[string]interface{}{
			"kind":  se.Kind,
			"stage": se.Stage,
		}) {
			log.Printf("ERROR: [run %s] failed: %v", run.ID, se)
			return
		}
	}

	stage := run.State
	run.LastError = domain.NewStageError(domain.FailureCancelled, stage, "", context.Canceled)
	run.State = domain.RunStateCancelled
	s.emit(h, run, domain.EventStatusCancelled, fmt.Sprintf("run cancelled during %s", stage), nil)
	log.Printf("INFO: [run %s] cancelled during %s", run.ID, stage)
}

func cancelledError(run *domain.PipelineRun) error {
	return domain.NewStageError(domain.FailureCancelled, run.State, "", context.Canceled)
}

func asStageError(err error, kind domain.FailureKind, stage domain.RunState) *domain.StageError {
	if se, ok := domain.AsStageError(err); ok {
		if se.Stage == "" {
			se.Stage = stage
		}
		return se
	}
	return domain.NewStageError(kind, stage, "", err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// tail keeps at most the last n bytes of s, cut on a rune boundary; renderer
// logs put the cause at the end.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
