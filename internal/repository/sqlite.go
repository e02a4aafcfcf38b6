// Package repository indexes synthesized audio in SQLite so identical
// narrations are not synthesized twice.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xiaot623/manimate/internal/domain"
)

// SQLiteStore implements the audio cache index using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS audio_cache (
			cache_key TEXT PRIMARY KEY,
			voice TEXT NOT NULL,
			path TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audio_cache_voice ON audio_cache(voice)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Add new columns for existing DBs (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("audio_cache", "duration", "ALTER TABLE audio_cache ADD COLUMN duration REAL NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	if err := s.ensureColumn("audio_cache", "size_bytes", "ALTER TABLE audio_cache ADD COLUMN size_bytes INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	if err := s.ensureColumn("audio_cache", "last_used_at", "ALTER TABLE audio_cache ADD COLUMN last_used_at DATETIME"); err != nil {
		return err
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_audio_cache_last_used ON audio_cache(last_used_at)`); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PutAudio inserts or replaces a cache entry.
func (s *SQLiteStore) PutAudio(ctx context.Context, entry *domain.CachedAudio) error {
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.LastUsedAt.IsZero() {
		entry.LastUsedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audio_cache (cache_key, voice, path, duration, size_bytes, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			voice = excluded.voice,
			path = excluded.path,
			duration = excluded.duration,
			size_bytes = excluded.size_bytes,
			last_used_at = excluded.last_used_at`,
		entry.Key, entry.Voice, entry.Path, entry.Duration, entry.SizeBytes, entry.CreatedAt, entry.LastUsedAt)
	return err
}

// GetAudio retrieves a cache entry by key. It returns nil when absent.
func (s *SQLiteStore) GetAudio(ctx context.Context, key string) (*domain.CachedAudio, error) {
	var entry domain.CachedAudio
	var lastUsed sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT cache_key, voice, path, duration, size_bytes, created_at, last_used_at FROM audio_cache WHERE cache_key = ?`,
		key).Scan(&entry.Key, &entry.Voice, &entry.Path, &entry.Duration, &entry.SizeBytes, &entry.CreatedAt, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		entry.LastUsedAt = lastUsed.Time
	}
	return &entry, nil
}

// TouchAudio records a cache hit.
func (s *SQLiteStore) TouchAudio(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE audio_cache SET last_used_at = ? WHERE cache_key = ?`,
		time.Now(), key)
	return err
}

// UpdateAudioDuration stores a duration measured after the entry was written.
func (s *SQLiteStore) UpdateAudioDuration(ctx context.Context, key string, duration float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE audio_cache SET duration = ? WHERE cache_key = ?`,
		duration, key)
	return err
}

// DeleteAudio removes a cache entry.
func (s *SQLiteStore) DeleteAudio(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM audio_cache WHERE cache_key = ?`, key)
	return err
}

// ListStaleAudio returns entries not used since before, oldest first.
func (s *SQLiteStore) ListStaleAudio(ctx context.Context, before time.Time, limit int) ([]domain.CachedAudio, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key, voice, path, duration, size_bytes, created_at, last_used_at FROM audio_cache
		WHERE COALESCE(last_used_at, created_at) < ?
		ORDER BY COALESCE(last_used_at, created_at) ASC LIMIT ?`,
		before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CachedAudio
	for rows.Next() {
		var entry domain.CachedAudio
		var lastUsed sql.NullTime
		if err := rows.Scan(&entry.Key, &entry.Voice, &entry.Path, &entry.Duration, &entry.SizeBytes, &entry.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			entry.LastUsedAt = lastUsed.Time
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
