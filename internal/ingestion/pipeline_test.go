package ingestion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/54b3r/tubeqa-go/internal/rag"
	"github.com/54b3r/tubeqa-go/internal/store"
	"github.com/54b3r/tubeqa-go/internal/transcript"
)

type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type memVectors struct {
	mu   sync.Mutex
	docs map[string]rag.Document
}

func newMemVectors() *memVectors { return &memVectors{docs: map[string]rag.Document{}} }

func (m *memVectors) Upsert(_ context.Context, docs []rag.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return nil
}

func (m *memVectors) Search(context.Context, []float32, int) ([]rag.Document, error) {
	return nil, nil
}

func (m *memVectors) SearchIDs(context.Context, []float32, []string) ([]rag.Document, error) {
	return nil, nil
}

func (m *memVectors) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}

func (m *memVectors) Close() error { return nil }

func openStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func plainTranscript(lines int) string {
	var b strings.Builder
	for i := range lines {
		fmt.Fprintf(&b, "%d:%02d line %03d about goroutines and channels in Go\n", i/60, i%60, i)
	}
	return b.String()
}

func TestPipeline_IndexStoresChunks(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	p, err := NewPipeline(s, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	ctx := context.Background()

	res, err := p.Index(ctx, Source{
		Video:      "https://youtu.be/abcdefghijk",
		Title:      "Go Concurrency",
		Transcript: plainTranscript(80),
	})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if res.VideoID != "abcdefghijk" || res.Chunks < 2 || res.Embedded {
		t.Errorf("result = %+v", res)
	}

	v, err := s.GetVideo(ctx, "abcdefghijk")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if v.Status != transcript.StatusIndexed || v.ChunkCount != res.Chunks || v.Title != "Go Concurrency" {
		t.Errorf("video = %+v", v)
	}

	indexed, err := s.ListIndexedVideosWithChunks(ctx)
	if err != nil {
		t.Fatalf("ListIndexedVideosWithChunks: %v", err)
	}
	if len(indexed) != 1 || len(indexed[0].Chunks) != res.Chunks {
		t.Fatalf("indexed = %+v", indexed)
	}
	if indexed[0].Chunks[0].StartTime != "00:00" {
		t.Errorf("first chunk starts at %q", indexed[0].Chunks[0].StartTime)
	}
}

func TestPipeline_DefaultsTitleToID(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	p, _ := NewPipeline(s, nil, nil, nil)
	if _, err := p.Index(context.Background(), Source{Video: "abcdefghijk", Transcript: "0:01 hi"}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	v, _ := s.GetVideo(context.Background(), "abcdefghijk")
	if v.Title != "abcdefghijk" {
		t.Errorf("title = %q", v.Title)
	}
}

func TestPipeline_ParseFailureMarksError(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	p, _ := NewPipeline(s, nil, nil, nil)
	ctx := context.Background()

	_, err := p.Index(ctx, Source{Video: "abcdefghijk", Transcript: "WEBVTT\n\n00:00:01 --> bad\nx"})
	if err == nil {
		t.Fatal("expected parse error")
	}
	v, gerr := s.GetVideo(ctx, "abcdefghijk")
	if gerr != nil {
		t.Fatalf("GetVideo: %v", gerr)
	}
	if v.Status != transcript.StatusError || v.LastError == "" {
		t.Errorf("video = %+v, want error status with message", v)
	}
}

func TestPipeline_InvalidVideo(t *testing.T) {
	t.Parallel()

	p, _ := NewPipeline(openStore(t), nil, nil, nil)
	_, err := p.Index(context.Background(), Source{Video: "https://vimeo.com/1", Transcript: "0:01 hi"})
	if !errors.Is(err, ErrInvalidVideoURL) {
		t.Fatalf("err = %v, want ErrInvalidVideoURL", err)
	}
}

func TestPipeline_EmbedsAndPrunesStaleVectors(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	vecs := newMemVectors()
	p, err := NewPipeline(s, constEmbedder{}, vecs, &Config{ChunkSize: 200, ChunkOverlap: 20})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	ctx := context.Background()

	long, err := p.Index(ctx, Source{Video: "abcdefghijk", Title: "T", Transcript: plainTranscript(60)})
	if err != nil {
		t.Fatalf("Index long: %v", err)
	}
	if !long.Embedded || len(vecs.docs) != long.Chunks {
		t.Fatalf("embedded %d docs for %d chunks", len(vecs.docs), long.Chunks)
	}
	d, ok := vecs.docs[rag.PointID("abcdefghijk", 0)]
	if !ok {
		t.Fatal("chunk 0 not stored under its point ID")
	}
	if d.Metadata["video_title"] != "T" || !strings.HasPrefix(d.Source, "https://www.youtube.com/watch?v=abcdefghijk") {
		t.Errorf("doc = %+v", d)
	}

	short, err := p.Index(ctx, Source{Video: "abcdefghijk", Title: "T", Transcript: plainTranscript(5)})
	if err != nil {
		t.Fatalf("Index short: %v", err)
	}
	if len(vecs.docs) != short.Chunks {
		t.Errorf("%d vectors remain after re-index to %d chunks", len(vecs.docs), short.Chunks)
	}
}

func TestNewPipeline_RequiresEmbedderAndVectorsTogether(t *testing.T) {
	t.Parallel()

	if _, err := NewPipeline(openStore(t), constEmbedder{}, nil, nil); err == nil {
		t.Error("expected error for embedder without vector store")
	}
	if _, err := NewPipeline(nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestPipeline_LockHeld(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "tubeqa.db.lock")
	holder := flock.New(lockPath)
	ok, err := holder.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer func() { _ = holder.Unlock() }()

	p, _ := NewPipeline(openStore(t), nil, nil, &Config{LockPath: lockPath, LockTimeout: 200 * time.Millisecond})
	_, err = p.Index(context.Background(), Source{Video: "abcdefghijk", Transcript: "0:01 hi"})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("err = %v, want ErrLocked", err)
	}
}
