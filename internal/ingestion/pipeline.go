// Package ingestion turns a video transcript into stored, timestamped chunks.
// It parses WebVTT or plain "m:ss text" transcripts, chunks them, marks the
// video's status as it goes, and optionally embeds the chunks into a vector
// store. It is invoked by the `tubeqa index` CLI command.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"github.com/54b3r/tubeqa-go/internal/logging"
	"github.com/54b3r/tubeqa-go/internal/rag"
	"github.com/54b3r/tubeqa-go/internal/store"
	"github.com/54b3r/tubeqa-go/internal/transcript"
)

// ErrLocked is returned when another index run holds the lock.
var ErrLocked = errors.New("ingestion: another index run is in progress")

// VideoStore is the subset of the chunk store the pipeline writes to.
type VideoStore interface {
	UpsertVideo(ctx context.Context, youtubeID, title string) (transcript.Video, error)
	GetVideo(ctx context.Context, youtubeID string) (store.VideoSummary, error)
	SetStatus(ctx context.Context, youtubeID string, status transcript.Status, errMsg string) error
	ReplaceChunks(ctx context.Context, youtubeID string, chunks []transcript.Chunk) error
}

// Source describes one transcript to index.
type Source struct {
	// Video is a YouTube URL or bare video ID.
	Video string

	// Title is the display title. Defaults to the video ID.
	Title string

	// Transcript is the raw WebVTT or plain-text transcript.
	Transcript string
}

// Result summarises a completed index run for one video.
type Result struct {
	// VideoID is the extracted YouTube video ID.
	VideoID string
	// Chunks is the number of chunks stored.
	Chunks int
	// Embedded reports whether the chunks were upserted to a vector store.
	Embedded bool
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to DefaultChunkSize if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive chunks.
	// Defaults to DefaultChunkOverlap if zero.
	ChunkOverlap int

	// LockPath is the file lock serialising index runs. Empty disables locking.
	LockPath string

	// LockTimeout bounds the wait for LockPath. Defaults to 10s if zero.
	LockTimeout time.Duration
}

// Pipeline orchestrates the parse → chunk → store → embed flow.
type Pipeline struct {
	// videos persists video rows and chunk text.
	videos VideoStore

	// embedder and vectors are both set or both nil.
	embedder rag.Embedder
	vectors  rag.VectorStore

	// chunker splits transcript text.
	chunker *Chunker

	// lock is nil when locking is disabled.
	lock        *flock.Flock
	lockTimeout time.Duration
}

// NewPipeline constructs a Pipeline. embedder and vectors are optional but
// must be supplied together.
func NewPipeline(videos VideoStore, embedder rag.Embedder, vectors rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if videos == nil {
		return nil, fmt.Errorf("ingestion: video store must not be nil")
	}
	if (embedder == nil) != (vectors == nil) {
		return nil, fmt.Errorf("ingestion: embedder and vector store must be configured together")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	overlap := cfg.ChunkOverlap
	if overlap == 0 {
		overlap = DefaultChunkOverlap
	}
	p := &Pipeline{
		videos:      videos,
		embedder:    embedder,
		vectors:     vectors,
		chunker:     NewChunker(cfg.ChunkSize, overlap),
		lockTimeout: cfg.LockTimeout,
	}
	if p.lockTimeout <= 0 {
		p.lockTimeout = 10 * time.Second
	}
	if cfg.LockPath != "" {
		p.lock = flock.New(cfg.LockPath)
	}
	return p, nil
}

// Index processes one source. The video moves to processing, then indexed
// once its chunks are stored, or error with the failure message. A parse
// failure still records the video so the failure is visible in listings.
func (p *Pipeline) Index(ctx context.Context, src Source) (*Result, error) {
	log := logging.FromContext(ctx)

	id, err := ExtractVideoID(src.Video)
	if err != nil {
		return nil, err
	}
	title := src.Title
	if title == "" {
		title = id
	}

	unlock, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	prev, err := p.videos.GetVideo(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("ingestion: look up %s: %w", id, err)
	}
	if _, err := p.videos.UpsertVideo(ctx, id, title); err != nil {
		return nil, fmt.Errorf("ingestion: register %s: %w", id, err)
	}
	if err := p.videos.SetStatus(ctx, id, transcript.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("ingestion: mark %s processing: %w", id, err)
	}

	res, err := p.process(ctx, id, title, src.Transcript, prev.ChunkCount)
	if err != nil {
		log.Error("ingestion: index failed", slog.String("video_id", id), slog.String("error", err.Error()))
		if serr := p.videos.SetStatus(context.WithoutCancel(ctx), id, transcript.StatusError, err.Error()); serr != nil {
			log.Warn("ingestion: failed to record error status", slog.String("video_id", id), slog.String("error", serr.Error()))
		}
		return nil, err
	}
	if err := p.videos.SetStatus(ctx, id, transcript.StatusIndexed, ""); err != nil {
		return nil, fmt.Errorf("ingestion: mark %s indexed: %w", id, err)
	}
	log.Info("ingestion: video indexed",
		slog.String("video_id", id),
		slog.Int("chunks", res.Chunks),
		slog.Bool("embedded", res.Embedded),
	)
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, id, title, raw string, prevChunks int) (*Result, error) {
	cues, err := ParseTranscript(raw)
	if err != nil {
		return nil, err
	}
	chunks := p.chunker.ChunkCues(cues)
	if len(chunks) == 0 {
		return nil, ErrNoCues
	}
	if err := p.videos.ReplaceChunks(ctx, id, chunks); err != nil {
		return nil, fmt.Errorf("ingestion: store chunks: %w", err)
	}

	res := &Result{VideoID: id, Chunks: len(chunks)}
	if p.embedder == nil {
		return res, nil
	}
	if err := p.embed(ctx, id, title, chunks); err != nil {
		return nil, err
	}
	if prevChunks > len(chunks) {
		stale := make([]string, 0, prevChunks-len(chunks))
		for i := len(chunks); i < prevChunks; i++ {
			stale = append(stale, rag.PointID(id, i))
		}
		if err := p.vectors.Delete(ctx, stale); err != nil {
			return nil, fmt.Errorf("ingestion: delete stale vectors: %w", err)
		}
	}
	res.Embedded = true
	return res, nil
}

// embedBatch bounds texts per Embed call.
const embedBatch = 32

func (p *Pipeline) embed(ctx context.Context, id, title string, chunks []transcript.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatch {
		batch := chunks[start:min(start+embedBatch, len(chunks))]
		texts := make([]string, len(batch))
		docs := make([]rag.Document, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
			docs[i] = rag.Document{
				ID:      rag.PointID(id, c.Index),
				Content: c.Text,
				Source:  transcript.WatchURL(id, transcript.SecondsOrZero(c.StartTime)),
				Metadata: map[string]string{
					"video_id":    id,
					"video_title": title,
					"chunk_index": strconv.Itoa(c.Index),
					"start_time":  c.StartTime,
					"end_time":    c.EndTime,
				},
			}
		}
		vecs, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("ingestion: embedding failed: %w", err)
		}
		if err := p.vectors.Upsert(ctx, docs, vecs); err != nil {
			return fmt.Errorf("ingestion: upsert failed: %w", err)
		}
	}
	return nil
}

// acquire takes the index lock, returning a release func.
func (p *Pipeline) acquire(ctx context.Context) (func(), error) {
	if p.lock == nil {
		return func() {}, nil
	}
	lctx, cancel := context.WithTimeout(ctx, p.lockTimeout)
	defer cancel()
	ok, err := p.lock.TryLockContext(lctx, 100*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("ingestion: acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		if err := p.lock.Unlock(); err != nil {
			logging.FromContext(ctx).Warn("ingestion: failed to release lock", slog.String("error", err.Error()))
		}
	}, nil
}
