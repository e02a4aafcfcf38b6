package domain

import "time"

// CachedAudio is an index entry for a synthesized narration track.
type CachedAudio struct {
	Key        string    `json:"key"`
	Voice      string    `json:"voice"`
	Path       string    `json:"path"`
	Duration   float64   `json:"duration"` // seconds, 0 when unknown
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}
