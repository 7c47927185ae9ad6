// Package history persists a record of finished downloads to SQLite,
// independent of the per-directory resume state.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ytsnap/ytsnap/internal/domain"
)

// Entry is one finished download, successful or not.
type Entry struct {
	VideoID    domain.VideoID `json:"video_id"`
	PlaylistID string         `json:"playlist_id"`
	Title      string         `json:"title"`
	Path       string         `json:"path"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Store is a SQLite-backed download history. A nil *Store is a valid no-op
// recorder, so callers never branch on whether history is enabled.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and if needed creates) the history database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS downloads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			video_id TEXT NOT NULL,
			playlist_id TEXT,
			title TEXT,
			path TEXT,
			status TEXT NOT NULL,
			error TEXT,
			finished_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_downloads_video_id ON downloads(video_id);
		CREATE INDEX IF NOT EXISTS idx_downloads_finished_at ON downloads(finished_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create downloads table: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one finished download. Failures are logged, not returned:
// history is best-effort and must never fail a download.
func (s *Store) Record(ctx context.Context, e Entry) {
	if s == nil || s.db == nil {
		return
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (video_id, playlist_id, title, path, status, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.VideoID), e.PlaylistID, e.Title, e.Path, e.Status, e.Error, e.FinishedAt,
	)
	if err != nil {
		s.logger.Warn("record download history", "video_id", e.VideoID, "error", err)
	}
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT video_id, playlist_id, title, path, status, error, finished_at
		FROM downloads ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query download history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var videoID string
		if err := rows.Scan(&videoID, &e.PlaylistID, &e.Title, &e.Path, &e.Status, &e.Error, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan download history: %w", err)
		}
		e.VideoID = domain.VideoID(videoID)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
