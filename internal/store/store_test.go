package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/54b3r/tubeqa-go/internal/transcript"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func chunks(texts ...string) []transcript.Chunk {
	out := make([]transcript.Chunk, len(texts))
	for i, txt := range texts {
		out[i] = transcript.Chunk{Index: i, StartTime: "0:00", EndTime: "0:30", Text: txt}
	}
	return out
}

func Test_Store_UpsertVideo(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	v, err := s.UpsertVideo(ctx, "dQw4w9WgXcQ", "First title")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if v.Status != transcript.StatusPending || v.Title != "First title" || v.ID == 0 {
		t.Errorf("unexpected video %+v", v)
	}

	again, err := s.UpsertVideo(ctx, "dQw4w9WgXcQ", "")
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if again.ID != v.ID || again.Title != "First title" {
		t.Errorf("empty title should keep existing row, got %+v", again)
	}

	renamed, err := s.UpsertVideo(ctx, "dQw4w9WgXcQ", "Second title")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Title != "Second title" {
		t.Errorf("title = %q, want Second title", renamed.Title)
	}
}

func Test_Store_SetStatus(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertVideo(ctx, "vid", "T"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.SetStatus(ctx, "vid", transcript.StatusError, "no captions"); err != nil {
		t.Fatalf("set error: %v", err)
	}
	got, err := s.GetVideo(ctx, "vid")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != transcript.StatusError || got.LastError != "no captions" {
		t.Errorf("got %+v", got)
	}

	if err := s.SetStatus(ctx, "vid", transcript.StatusIndexed, "ignored"); err != nil {
		t.Fatalf("set indexed: %v", err)
	}
	got, _ = s.GetVideo(ctx, "vid")
	if got.LastError != "" {
		t.Errorf("error message should be cleared, got %q", got.LastError)
	}

	if err := s.SetStatus(ctx, "missing", transcript.StatusIndexed, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing video: err = %v, want ErrNotFound", err)
	}
	if err := s.SetStatus(ctx, "vid", transcript.Status("bogus"), ""); err == nil {
		t.Error("want error for invalid status")
	}
}

func Test_Store_ReplaceChunks(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertVideo(ctx, "vid", "T"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.ReplaceChunks(ctx, "vid", chunks("a", "b", "c")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := s.ReplaceChunks(ctx, "vid", chunks("x", "y")); err != nil {
		t.Fatalf("replace again: %v", err)
	}
	got, _ := s.GetVideo(ctx, "vid")
	if got.ChunkCount != 2 {
		t.Errorf("chunk count = %d, want 2", got.ChunkCount)
	}

	bad := []transcript.Chunk{{Index: 1}, {Index: 1}}
	if err := s.ReplaceChunks(ctx, "vid", bad); !errors.Is(err, ErrChunkOrder) {
		t.Errorf("err = %v, want ErrChunkOrder", err)
	}
	if err := s.ReplaceChunks(ctx, "missing", chunks("a")); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func Test_Store_ListIndexedVideosWithChunks(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"first", "pending", "second", "empty"} {
		if _, err := s.UpsertVideo(ctx, id, "Title "+id); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	_ = s.ReplaceChunks(ctx, "first", chunks("f0", "f1"))
	_ = s.ReplaceChunks(ctx, "pending", chunks("p0"))
	_ = s.ReplaceChunks(ctx, "second", []transcript.Chunk{
		{Index: 0, StartTime: "0:00", EndTime: "0:10", Text: "s0"},
		{Index: 5, StartTime: "1:00", EndTime: "1:10", Text: "s5"},
	})
	for _, id := range []string{"first", "second", "empty"} {
		if err := s.SetStatus(ctx, id, transcript.StatusIndexed, ""); err != nil {
			t.Fatalf("index %s: %v", id, err)
		}
	}

	got, err := s.ListIndexedVideosWithChunks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 indexed videos, got %d", len(got))
	}
	if got[0].Video.YouTubeID != "first" || got[1].Video.YouTubeID != "second" || got[2].Video.YouTubeID != "empty" {
		t.Errorf("unexpected order: %s, %s, %s", got[0].Video.YouTubeID, got[1].Video.YouTubeID, got[2].Video.YouTubeID)
	}
	if len(got[0].Chunks) != 2 || got[0].Chunks[1].Text != "f1" {
		t.Errorf("first chunks = %+v", got[0].Chunks)
	}
	if len(got[1].Chunks) != 2 || got[1].Chunks[1].Index != 5 || got[1].Chunks[1].StartTime != "1:00" {
		t.Errorf("second chunks = %+v", got[1].Chunks)
	}
	if len(got[2].Chunks) != 0 {
		t.Errorf("empty video has %d chunks", len(got[2].Chunks))
	}
	for _, vc := range got {
		if vc.Video.Status != transcript.StatusIndexed {
			t.Errorf("%s status = %s", vc.Video.YouTubeID, vc.Video.Status)
		}
	}
}

func Test_Store_ListIndexed_EmptyDatabase(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	got, err := s.ListIndexedVideosWithChunks(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want no videos, got %d", len(got))
	}
}

func Test_Store_ListVideos(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_, _ = s.UpsertVideo(ctx, "a", "A")
	_, _ = s.UpsertVideo(ctx, "b", "B")
	_ = s.ReplaceChunks(ctx, "b", chunks("x", "y", "z"))

	got, err := s.ListVideos(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[1].ChunkCount != 3 || got[0].Status != transcript.StatusPending {
		t.Errorf("unexpected summaries %+v", got)
	}
}

func Test_Store_Queries(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i, q := range []string{"first?", "second?", "third?"} {
		rec := QueryRecord{
			Question:       q,
			Response:       "answer",
			Confidence:     80 + i,
			Sources:        json.RawMessage(`[{"videoId":"abc"}]`),
			ResponseTimeMs: int64(10 * i),
		}
		if err := s.RecordQuery(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := s.RecordQuery(ctx, QueryRecord{Question: "no sources"}); err != nil {
		t.Fatalf("record without sources: %v", err)
	}

	got, err := s.RecentQueries(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 records, got %d", len(got))
	}
	if got[0].Question != "no sources" || string(got[0].Sources) != "[]" {
		t.Errorf("newest = %+v", got[0])
	}
	if got[1].Question != "third?" || got[1].Confidence != 82 {
		t.Errorf("second newest = %+v", got[1])
	}
}

func Test_Store_Ping(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}
