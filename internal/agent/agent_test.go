package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/54b3r/tubeqa-go/internal/rag"
	"github.com/54b3r/tubeqa-go/internal/store"
	"github.com/54b3r/tubeqa-go/internal/transcript"
)

type fakeSource struct {
	videos []transcript.VideoChunks
}

func (f *fakeSource) ListIndexedVideosWithChunks(context.Context) ([]transcript.VideoChunks, error) {
	return f.videos, nil
}

type fakeRetriever struct {
	ctx *rag.Context
	err error
}

func (f *fakeRetriever) Retrieve(context.Context, string) (*rag.Context, error) {
	return f.ctx, f.err
}

type fakeCompleter struct {
	answer     string
	err        error
	gotSystem  string
	gotUser    string
	callsCount int
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.callsCount++
	f.gotSystem, f.gotUser = system, user
	return f.answer, f.err
}

type fakeLog struct {
	records []store.QueryRecord
	err     error
}

func (f *fakeLog) RecordQuery(_ context.Context, rec store.QueryRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLog) RecentQueries(context.Context, int) ([]store.QueryRecord, error) {
	return f.records, nil
}

func realRetriever(t *testing.T, videos ...transcript.VideoChunks) rag.Retriever {
	t.Helper()
	a, err := rag.NewAssembler(rag.NewHeuristicScorer(nil, nil), 0)
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	r, err := rag.NewRetriever(&fakeSource{videos: videos}, a)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	return r
}

func newAgent(t *testing.T, cfg *Config) *Agent {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func vibeVideo() transcript.VideoChunks {
	return transcript.VideoChunks{
		Video: transcript.Video{YouTubeID: "dQw4w9WgXcQ", Title: "Vibe Coding 101", Status: transcript.StatusIndexed},
		Chunks: []transcript.Chunk{
			{Index: 0, StartTime: "0:00", EndTime: "0:45", Text: "welcome to the channel"},
			{Index: 1, StartTime: "0:45", EndTime: "1:30", Text: "vibe coding is a technique where you describe intent"},
			{Index: 2, StartTime: "1:30", EndTime: "2:10", Text: "karpathy coined the phrase"},
			{Index: 3, StartTime: "2:10", EndTime: "3:00", Text: "thanks for watching"},
		},
	}
}

func TestAnswer_Success(t *testing.T) {
	t.Parallel()
	comp := &fakeCompleter{answer: "Vibe coding means describing intent [Vibe Coding 101 @ 0:45]."}
	log := &fakeLog{}
	a := newAgent(t, &Config{Retriever: realRetriever(t, vibeVideo()), Completer: comp, History: log})

	resp, err := a.Answer(context.Background(), "  what is vibe coding  ")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.Response != comp.answer {
		t.Errorf("response = %q", resp.Response)
	}
	if len(resp.SourceContexts) != 3 {
		t.Fatalf("want 3 sources, got %d", len(resp.SourceContexts))
	}
	top := resp.SourceContexts[0]
	if top.Timestamp != "0:45" || top.YouTubeURL != "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=45s" {
		t.Errorf("top source = %+v", top)
	}
	if resp.Confidence != top.Confidence {
		t.Errorf("max confidence = %d, want top source %d", resp.Confidence, top.Confidence)
	}
	if !strings.Contains(comp.gotSystem, "[Vibe Coding 101 @ 0:45]") {
		t.Errorf("system prompt missing context block:\n%s", comp.gotSystem)
	}
	if !strings.Contains(comp.gotUser, "what is vibe coding") || !strings.Contains(comp.gotUser, "timestamp") {
		t.Errorf("user prompt = %q", comp.gotUser)
	}
	if resp.Fallback {
		t.Error("Fallback should be false")
	}
	if len(log.records) != 1 || log.records[0].Question != "what is vibe coding" {
		t.Fatalf("query log = %+v", log.records)
	}
	var logged []rag.SourceContext
	if err := json.Unmarshal(log.records[0].Sources, &logged); err != nil || len(logged) != 3 {
		t.Errorf("logged sources = %s (%v)", log.records[0].Sources, err)
	}
}

func TestAnswer_EmptyIndex(t *testing.T) {
	t.Parallel()
	comp := &fakeCompleter{answer: "I could not find transcripts for that."}
	a := newAgent(t, &Config{Retriever: realRetriever(t), Completer: comp})

	resp, err := a.Answer(context.Background(), "anything at all")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(resp.SourceContexts) != 1 {
		t.Fatalf("want 1 placeholder source, got %d", len(resp.SourceContexts))
	}
	ph := resp.SourceContexts[0]
	if ph.Confidence != 0 || ph.VideoTitle != "No sources available" {
		t.Errorf("placeholder = %+v", ph)
	}
	if resp.Confidence != 0 {
		t.Errorf("overall confidence = %d, want 0", resp.Confidence)
	}
	if !strings.Contains(comp.gotSystem, "No transcript context is available") {
		t.Errorf("system prompt should use the no-context instruction:\n%s", comp.gotSystem)
	}
}

func TestAnswer_GatewayUnavailable(t *testing.T) {
	t.Parallel()
	ret := &fakeRetriever{err: errors.New("must not be called")}
	log := &fakeLog{}
	a := newAgent(t, &Config{Retriever: ret, History: log})

	if a.Available() {
		t.Fatal("Available should be false without a completer")
	}
	resp, err := a.Answer(context.Background(), "what is vibe coding")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.Confidence != 75 || !resp.Fallback {
		t.Errorf("confidence = %d fallback = %v, want 75 true", resp.Confidence, resp.Fallback)
	}
	if len(resp.SourceContexts) != 1 || resp.SourceContexts[0].Relevance != rag.RelevanceMedium {
		t.Errorf("sources = %+v, want one Medium placeholder", resp.SourceContexts)
	}
	if !strings.Contains(resp.Response, "what is vibe coding") {
		t.Errorf("fallback should acknowledge the question, got %q", resp.Response)
	}
	if len(log.records) != 1 {
		t.Errorf("fallback answer should be logged, got %d records", len(log.records))
	}
}

func TestAnswer_GatewayError(t *testing.T) {
	t.Parallel()
	cause := errors.New("quota exceeded")
	comp := &fakeCompleter{err: &GatewayError{Backend: "openai", Err: cause}}
	log := &fakeLog{}
	a := newAgent(t, &Config{Retriever: realRetriever(t, vibeVideo()), Completer: comp, History: log})

	resp, err := a.Answer(context.Background(), "what is vibe coding")
	if resp != nil {
		t.Errorf("want nil response on gateway failure, got %+v", resp)
	}
	if !errors.Is(err, ErrCompletionFailed) {
		t.Fatalf("err = %v, want ErrCompletionFailed", err)
	}
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Backend != "openai" || !errors.Is(err, cause) {
		t.Errorf("err chain = %v, want GatewayError wrapping cause", err)
	}
	if comp.callsCount != 1 {
		t.Errorf("completer called %d times, want 1 (no retry)", comp.callsCount)
	}
	if len(log.records) != 0 {
		t.Error("failed queries must not be logged")
	}
}

func TestAnswer_RetrievalError(t *testing.T) {
	t.Parallel()
	boom := errors.New("db gone")
	a := newAgent(t, &Config{Retriever: &fakeRetriever{err: boom}, Completer: &fakeCompleter{answer: "x"}})
	if _, err := a.Answer(context.Background(), "q?"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapping %v", err, boom)
	}
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	t.Parallel()
	a := newAgent(t, &Config{Retriever: &fakeRetriever{}})
	if _, err := a.Answer(context.Background(), "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("err = %v, want ErrEmptyQuestion", err)
	}
}

func TestAnswer_HistoryFailureIsNonFatal(t *testing.T) {
	t.Parallel()
	a := newAgent(t, &Config{
		Retriever: realRetriever(t, vibeVideo()),
		Completer: &fakeCompleter{answer: "ok"},
		History:   &fakeLog{err: errors.New("disk full")},
	})
	if _, err := a.Answer(context.Background(), "what is vibe coding"); err != nil {
		t.Errorf("history failure should not fail the answer: %v", err)
	}
}

func TestAnswer_ResponseTime(t *testing.T) {
	t.Parallel()
	a := newAgent(t, &Config{Retriever: realRetriever(t, vibeVideo()), Completer: &fakeCompleter{answer: "ok"}})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	a.now = func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(1234 * time.Millisecond)
	}
	resp, err := a.Answer(context.Background(), "what is vibe coding")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.ResponseTimeMs != 1234 {
		t.Errorf("ResponseTimeMs = %d, want 1234", resp.ResponseTimeMs)
	}
}

func TestOverallConfidence(t *testing.T) {
	t.Parallel()
	sources := []rag.SourceContext{{Confidence: 90}, {Confidence: 61}, {Confidence: 40}}
	cases := []struct {
		mode ConfidenceMode
		want int
	}{
		{ConfidenceMax, 90},
		{ConfidenceMean, 64},
		{ConfidenceStatic, 90},
	}
	for _, tc := range cases {
		if got := overallConfidence(tc.mode, sources); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.mode, got, tc.want)
		}
	}
}

func TestAnswer_ConfidenceModes(t *testing.T) {
	t.Parallel()
	rc := &rag.Context{
		Block:    "[T @ 0:00]\ntext",
		Sources:  []rag.SourceContext{{Confidence: 80}, {Confidence: 50}},
		Selected: make([]rag.ScoredChunk, 2),
	}
	for mode, want := range map[ConfidenceMode]int{ConfidenceMax: 80, ConfidenceMean: 65, ConfidenceStatic: 90} {
		a := newAgent(t, &Config{Retriever: &fakeRetriever{ctx: rc}, Completer: &fakeCompleter{answer: "ok"}, ConfidenceMode: mode})
		resp, err := a.Answer(context.Background(), "q")
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if resp.Confidence != want {
			t.Errorf("%s: confidence = %d, want %d", mode, resp.Confidence, want)
		}
	}
}

func TestParseConfidenceMode(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]ConfidenceMode{"": ConfidenceMax, "MAX": ConfidenceMax, "mean": ConfidenceMean, " static ": ConfidenceStatic} {
		got, err := ParseConfidenceMode(in)
		if err != nil || got != want {
			t.Errorf("ParseConfidenceMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseConfidenceMode("median"); err == nil {
		t.Error("want error for unknown mode")
	}
	if _, err := New(&Config{Retriever: &fakeRetriever{}, ConfidenceMode: "median"}); err == nil {
		t.Error("New should reject unknown mode")
	}
}

func TestNew_RequiresRetriever(t *testing.T) {
	t.Parallel()
	if _, err := New(&Config{}); err == nil {
		t.Error("want error for nil retriever")
	}
}
