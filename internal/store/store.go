// Package store provides the SQLite-backed chunk store: videos with their
// processing status, transcript chunks in index order, and a log of answered
// queries. The retrieval core reads it through rag.ChunkSource.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/tubeqa-go/internal/transcript"
)

// ErrNotFound is returned when a video does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrChunkOrder is returned by ReplaceChunks when chunk indexes are not
// strictly increasing.
var ErrChunkOrder = errors.New("store: chunk indexes must be strictly increasing")

// VideoSummary is a video with its chunk count and last processing error.
type VideoSummary struct {
	transcript.Video
	// ChunkCount is the number of stored chunks.
	ChunkCount int `json:"chunkCount"`
	// LastError is the message recorded when the video entered StatusError.
	LastError string `json:"lastError,omitempty"`
}

// QueryRecord is one answered question.
type QueryRecord struct {
	// ID is the store-assigned row identifier.
	ID int64 `json:"id"`
	// Question is the question as asked.
	Question string `json:"question"`
	// Response is the answer text returned to the caller.
	Response string `json:"response"`
	// Confidence is the overall 0–100 confidence of the answer.
	Confidence int `json:"confidence"`
	// Sources is the JSON-encoded citation list.
	Sources json.RawMessage `json:"sources"`
	// ResponseTimeMs is the wall-clock time taken to answer.
	ResponseTimeMs int64 `json:"responseTimeMs"`
	// CreatedAt is when the record was persisted.
	CreatedAt time.Time `json:"createdAt"`
}

// QueryLog persists and lists answered queries.
// Implementations must be safe for concurrent use.
type QueryLog interface {
	// RecordQuery persists rec; rec.ID and rec.CreatedAt are ignored.
	RecordQuery(ctx context.Context, rec QueryRecord) error
	// RecentQueries returns up to n records, newest first.
	RecentQueries(ctx context.Context, n int) ([]QueryRecord, error)
}

// SQLiteStore is the chunk store and query log backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default database path, ~/.tubeqa/tubeqa.db,
// creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".tubeqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "tubeqa.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single connection: serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
PRAGMA foreign_keys = ON;
CREATE TABLE IF NOT EXISTS videos (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    youtube_id    TEXT    NOT NULL UNIQUE,
    title         TEXT    NOT NULL,
    status        TEXT    NOT NULL CHECK(status IN ('pending','processing','indexed','error')),
    error_message TEXT    NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
    video_id    INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
    chunk_index INTEGER NOT NULL,
    start_time  TEXT    NOT NULL,
    end_time    TEXT    NOT NULL,
    text        TEXT    NOT NULL,
    PRIMARY KEY (video_id, chunk_index)
);
CREATE TABLE IF NOT EXISTS queries (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    question         TEXT    NOT NULL,
    response         TEXT    NOT NULL,
    confidence       INTEGER NOT NULL,
    sources          TEXT    NOT NULL,
    response_time_ms INTEGER NOT NULL,
    created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_videos_status ON videos (status);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// UpsertVideo registers youtubeID as a pending video, or updates the title of
// an existing one. An empty title leaves an existing title untouched.
func (s *SQLiteStore) UpsertVideo(ctx context.Context, youtubeID, title string) (transcript.Video, error) {
	now := time.Now().Unix()
	const q = `
INSERT INTO videos (youtube_id, title, status, created_at, updated_at)
VALUES (?, ?, 'pending', ?, ?)
ON CONFLICT (youtube_id) DO UPDATE SET
    title      = CASE WHEN excluded.title = '' THEN videos.title ELSE excluded.title END,
    updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, youtubeID, title, now, now); err != nil {
		return transcript.Video{}, fmt.Errorf("store: upsert video %s: %w", youtubeID, err)
	}
	v, err := s.GetVideo(ctx, youtubeID)
	if err != nil {
		return transcript.Video{}, err
	}
	return v.Video, nil
}

// GetVideo returns the video with the given YouTube ID, or ErrNotFound.
func (s *SQLiteStore) GetVideo(ctx context.Context, youtubeID string) (VideoSummary, error) {
	const q = `
SELECT v.id, v.youtube_id, v.title, v.status, v.error_message, v.created_at, v.updated_at,
       (SELECT COUNT(*) FROM chunks c WHERE c.video_id = v.id)
FROM videos v WHERE v.youtube_id = ?`
	row := s.db.QueryRowContext(ctx, q, youtubeID)
	v, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return VideoSummary{}, fmt.Errorf("%w: video %s", ErrNotFound, youtubeID)
	}
	if err != nil {
		return VideoSummary{}, fmt.Errorf("store: get video %s: %w", youtubeID, err)
	}
	return v, nil
}

// SetStatus moves a video to status. errMsg is stored only for StatusError
// and cleared otherwise.
func (s *SQLiteStore) SetStatus(ctx context.Context, youtubeID string, status transcript.Status, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("store: invalid status %q", status)
	}
	if status != transcript.StatusError {
		errMsg = ""
	}
	const q = `UPDATE videos SET status = ?, error_message = ?, updated_at = ? WHERE youtube_id = ?`
	res, err := s.db.ExecContext(ctx, q, string(status), errMsg, time.Now().Unix(), youtubeID)
	if err != nil {
		return fmt.Errorf("store: set status %s: %w", youtubeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: video %s", ErrNotFound, youtubeID)
	}
	return nil
}

// ReplaceChunks atomically replaces every chunk of a video.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, youtubeID string, chunks []transcript.Chunk) error {
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Index <= chunks[i-1].Index {
			return fmt.Errorf("%w: %d after %d", ErrChunkOrder, chunks[i].Index, chunks[i-1].Index)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var videoID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM videos WHERE youtube_id = ?`, youtubeID).Scan(&videoID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: video %s", ErrNotFound, youtubeID)
		}
		return fmt.Errorf("store: lookup video %s: %w", youtubeID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("store: clear chunks %s: %w", youtubeID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (video_id, chunk_index, start_time, end_time, text) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, videoID, c.Index, c.StartTime, c.EndTime, c.Text); err != nil {
			return fmt.Errorf("store: insert chunk %s/%d: %w", youtubeID, c.Index, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE videos SET updated_at = ? WHERE id = ?`, time.Now().Unix(), videoID); err != nil {
		return fmt.Errorf("store: touch video %s: %w", youtubeID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit chunks %s: %w", youtubeID, err)
	}
	return nil
}

// ListVideos returns every video, oldest first, with chunk counts.
func (s *SQLiteStore) ListVideos(ctx context.Context) ([]VideoSummary, error) {
	const q = `
SELECT v.id, v.youtube_id, v.title, v.status, v.error_message, v.created_at, v.updated_at,
       (SELECT COUNT(*) FROM chunks c WHERE c.video_id = v.id)
FROM videos v ORDER BY v.id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list videos: %w", err)
	}
	defer rows.Close()

	var out []VideoSummary
	for rows.Next() {
		v, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list videos scan: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list videos rows: %w", err)
	}
	return out, nil
}

// ListIndexedVideosWithChunks returns every indexed video with its chunks in
// index order. Videos are ordered by registration. It satisfies rag.ChunkSource.
func (s *SQLiteStore) ListIndexedVideosWithChunks(ctx context.Context) ([]transcript.VideoChunks, error) {
	const q = `
SELECT v.id, v.youtube_id, v.title, v.status, v.created_at, v.updated_at,
       c.chunk_index, c.start_time, c.end_time, c.text
FROM videos v
LEFT JOIN chunks c ON c.video_id = v.id
WHERE v.status = 'indexed'
ORDER BY v.id, c.chunk_index`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list indexed: %w", err)
	}
	defer rows.Close()

	var out []transcript.VideoChunks
	for rows.Next() {
		var (
			v              transcript.Video
			status         string
			created, upd   int64
			idx            sql.NullInt64
			start, end, tx sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.YouTubeID, &v.Title, &status, &created, &upd, &idx, &start, &end, &tx); err != nil {
			return nil, fmt.Errorf("store: list indexed scan: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].Video.ID != v.ID {
			v.Status = transcript.Status(status)
			v.CreatedAt = time.Unix(created, 0)
			v.UpdatedAt = time.Unix(upd, 0)
			out = append(out, transcript.VideoChunks{Video: v})
		}
		if idx.Valid {
			last := &out[len(out)-1]
			last.Chunks = append(last.Chunks, transcript.Chunk{
				Index:     int(idx.Int64),
				StartTime: start.String,
				EndTime:   end.String,
				Text:      tx.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list indexed rows: %w", err)
	}
	return out, nil
}

// RecordQuery persists an answered query.
func (s *SQLiteStore) RecordQuery(ctx context.Context, rec QueryRecord) error {
	sources := rec.Sources
	if len(sources) == 0 {
		sources = json.RawMessage("[]")
	}
	const q = `INSERT INTO queries (question, response, confidence, sources, response_time_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, rec.Question, rec.Response, rec.Confidence, string(sources), rec.ResponseTimeMs, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: record query: %w", err)
	}
	return nil
}

// RecentQueries returns up to n records, newest first.
func (s *SQLiteStore) RecentQueries(ctx context.Context, n int) ([]QueryRecord, error) {
	const q = `
SELECT id, question, response, confidence, sources, response_time_ms, created_at
FROM queries ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent queries: %w", err)
	}
	defer rows.Close()

	var out []QueryRecord
	for rows.Next() {
		var (
			r       QueryRecord
			sources string
			ts      int64
		)
		if err := rows.Scan(&r.ID, &r.Question, &r.Response, &r.Confidence, &sources, &r.ResponseTimeMs, &ts); err != nil {
			return nil, fmt.Errorf("store: recent queries scan: %w", err)
		}
		r.Sources = json.RawMessage(sources)
		r.CreatedAt = time.Unix(ts, 0)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent queries rows: %w", err)
	}
	return out, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(r rowScanner) (VideoSummary, error) {
	var (
		v            VideoSummary
		status       string
		created, upd int64
	)
	if err := r.Scan(&v.ID, &v.YouTubeID, &v.Title, &status, &v.LastError, &created, &upd, &v.ChunkCount); err != nil {
		return VideoSummary{}, err
	}
	v.Status = transcript.Status(status)
	v.CreatedAt = time.Unix(created, 0)
	v.UpdatedAt = time.Unix(upd, 0)
	return v, nil
}
