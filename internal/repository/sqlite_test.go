package repository

import (
	"context"
	"testing"
	"time"

	"github.com/xiaot623/manimate/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestSQLiteStoreAudioCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	got, err := store.GetAudio(ctx, "missing")
	if err != nil {
		t.Fatalf("GetAudio failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil entry, got %+v", got)
	}

	entry := &domain.CachedAudio{
		Key:       "abc_Puck",
		Voice:     "Puck",
		Path:      "/work/audio/abc_Puck.wav",
		SizeBytes: 1024,
	}
	if err := store.PutAudio(ctx, entry); err != nil {
		t.Fatalf("PutAudio failed: %v", err)
	}

	got, err = store.GetAudio(ctx, "abc_Puck")
	if err != nil {
		t.Fatalf("GetAudio failed: %v", err)
	}
	if got == nil || got.Path != entry.Path || got.Duration != 0 {
		t.Fatalf("unexpected entry: %+v", got)
	}

	if err := store.UpdateAudioDuration(ctx, "abc_Puck", 7.25); err != nil {
		t.Fatalf("UpdateAudioDuration failed: %v", err)
	}
	got, _ = store.GetAudio(ctx, "abc_Puck")
	if got.Duration != 7.25 {
		t.Fatalf("expected duration 7.25, got %v", got.Duration)
	}

	// Upsert replaces the path.
	entry.Path = "/work/audio/other.wav"
	if err := store.PutAudio(ctx, entry); err != nil {
		t.Fatalf("PutAudio upsert failed: %v", err)
	}
	got, _ = store.GetAudio(ctx, "abc_Puck")
	if got.Path != "/work/audio/other.wav" {
		t.Fatalf("expected upserted path, got %s", got.Path)
	}

	if err := store.DeleteAudio(ctx, "abc_Puck"); err != nil {
		t.Fatalf("DeleteAudio failed: %v", err)
	}
	got, _ = store.GetAudio(ctx, "abc_Puck")
	if got != nil {
		t.Fatalf("expected entry to be deleted")
	}
}

func TestSQLiteStoreListStaleAudio(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	old := time.Now().Add(-48 * time.Hour)
	entries := []*domain.CachedAudio{
		{Key: "old", Voice: "Puck", Path: "old.wav", CreatedAt: old, LastUsedAt: old},
		{Key: "fresh", Voice: "Puck", Path: "fresh.wav"},
	}
	for _, e := range entries {
		if err := store.PutAudio(ctx, e); err != nil {
			t.Fatalf("PutAudio failed: %v", err)
		}
	}

	stale, err := store.ListStaleAudio(ctx, time.Now().Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("ListStaleAudio failed: %v", err)
	}
	if len(stale) != 1 || stale[0].Key != "old" {
		t.Fatalf("unexpected stale entries: %+v", stale)
	}

	if err := store.TouchAudio(ctx, "old"); err != nil {
		t.Fatalf("TouchAudio failed: %v", err)
	}
	stale, _ = store.ListStaleAudio(ctx, time.Now().Add(-24*time.Hour), 10)
	if len(stale) != 0 {
		t.Fatalf("expected no stale entries after touch, got %d", len(stale))
	}
}

func TestEnsureColumnIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.migrate(); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}
