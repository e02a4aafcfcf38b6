// Package tts turns narration into audio tracks, caching tracks by text and
// voice.
package tts

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xiaot623/manimate/internal/domain"
)

// Backend writes speech for text to path and returns its duration in seconds.
type Backend interface {
	Synthesize(ctx context.Context, text, voice, path string) (float64, error)
}

// Store indexes cached tracks. *repository.SQLiteStore implements it.
type Store interface {
	GetAudio(ctx context.Context, key string) (*domain.CachedAudio, error)
	PutAudio(ctx context.Context, entry *domain.CachedAudio) error
	TouchAudio(ctx context.Context, key string) error
	UpdateAudioDuration(ctx context.Context, key string, duration float64) error
	DeleteAudio(ctx context.Context, key string) error
	ListStaleAudio(ctx context.Context, before time.Time, limit int) ([]domain.CachedAudio, error)
}

// DurationFunc measures an audio file, e.g. with ffprobe.
type DurationFunc func(ctx context.Context, path string) (float64, error)

// Synthesizer serves narration audio from the cache and falls back to the
// backend on a miss.
type Synthesizer struct {
	backend Backend
	store   Store // may be nil
	dir     string
	probe   DurationFunc // may be nil
}

// NewSynthesizer creates a caching synthesizer writing tracks under dir.
// Track paths are absolute: the renderer reads them from its own working
// directory.
func NewSynthesizer(backend Backend, store Store, dir string, probe DurationFunc) *Synthesizer {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Synthesizer{backend: backend, store: store, dir: dir, probe: probe}
}

// CacheKey identifies a track by the hash of its text and the voice.
func CacheKey(text, voice string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:]) + "_" + sanitize(voice)
}

// Synthesize returns the audio track for text spoken by voice.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) (domain.AudioArtifact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.AudioArtifact{}, fmt.Errorf("tts: empty text")
	}
	key := CacheKey(text, voice)

	if art, ok := s.lookup(ctx, key); ok {
		return art, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return domain.AudioArtifact{}, fmt.Errorf("tts: create audio dir: %w", err)
	}
	path := filepath.Join(s.dir, key+".wav")
	duration, err := s.backend.Synthesize(ctx, text, voice, path)
	if err != nil {
		return domain.AudioArtifact{}, err
	}
	if duration <= 0 {
		duration = s.measure(ctx, path)
	}

	if s.store != nil {
		entry := &domain.CachedAudio{Key: key, Voice: voice, Path: path, Duration: duration}
		if fi, err := os.Stat(path); err == nil {
			entry.SizeBytes = fi.Size()
		}
		if err := s.store.PutAudio(ctx, entry); err != nil {
			log.Printf("WARN: failed to index audio %s: %v", key, err)
		}
	}
	return domain.AudioArtifact{Path: path, Duration: duration}, nil
}

// lookup returns a cached track whose file still exists.
func (s *Synthesizer) lookup(ctx context.Context, key string) (domain.AudioArtifact, bool) {
	if s.store == nil {
		path := filepath.Join(s.dir, key+".wav")
		if _, err := os.Stat(path); err != nil {
			return domain.AudioArtifact{}, false
		}
		d := s.measure(ctx, path)
		return domain.AudioArtifact{Path: path, Duration: d, Cached: true}, d > 0
	}

	entry, err := s.store.GetAudio(ctx, key)
	if err != nil {
		log.Printf("WARN: audio cache lookup failed for %s: %v", key, err)
		return domain.AudioArtifact{}, false
	}
	if entry == nil {
		return domain.AudioArtifact{}, false
	}
	// Rows written before paths were made absolute are relative to the
	// process working directory.
	if abs, err := filepath.Abs(entry.Path); err == nil {
		entry.Path = abs
	}
	if _, err := os.Stat(entry.Path); err != nil {
		_ = s.store.DeleteAudio(ctx, key)
		return domain.AudioArtifact{}, false
	}

	if entry.Duration <= 0 {
		entry.Duration = s.measure(ctx, entry.Path)
		if entry.Duration <= 0 {
			return domain.AudioArtifact{}, false
		}
		if err := s.store.UpdateAudioDuration(ctx, key, entry.Duration); err != nil {
			log.Printf("WARN: failed to store duration for %s: %v", key, err)
		}
	}
	if err := s.store.TouchAudio(ctx, key); err != nil {
		log.Printf("WARN: failed to touch audio %s: %v", key, err)
	}
	return domain.AudioArtifact{Path: entry.Path, Duration: entry.Duration, Cached: true}, true
}

func (s *Synthesizer) measure(ctx context.Context, path string) float64 {
	if d, err := WAVDuration(path); err == nil && d > 0 {
		return d
	}
	if s.probe == nil {
		return 0
	}
	d, err := s.probe(ctx, path)
	if err != nil {
		log.Printf("WARN: failed to measure %s: %v", path, err)
		return 0
	}
	return d
}

// Prune removes tracks unused for longer than maxAge. It returns how many
// were removed.
func (s *Synthesizer) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	stale, err := s.store.ListStaleAudio(ctx, time.Now().Add(-maxAge), 500)
	if err != nil {
		return 0, err
	}
	for _, e := range stale {
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("WARN: failed to remove cached audio %s: %v", e.Path, err)
			continue
		}
		if err := s.store.DeleteAudio(ctx, e.Key); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}
