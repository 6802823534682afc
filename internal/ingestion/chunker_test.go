package ingestion

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/54b3r/tubeqa-go/internal/transcript"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%03d", i)
	}
	return strings.Join(w, " ")
}

func TestChunker_ShortTextIsOneChunk(t *testing.T) {
	t.Parallel()

	got := NewChunker(0, 0).Split("  just a short line  ")
	if len(got) != 1 || got[0] != "just a short line" {
		t.Fatalf("Split = %q", got)
	}
	if got := NewChunker(0, 0).Split(" \n "); got != nil {
		t.Fatalf("blank text gave %q", got)
	}
}

func TestChunker_RespectsSizeAndOverlaps(t *testing.T) {
	t.Parallel()

	c := NewChunker(100, 20)
	text := words(300)
	chunks := c.Split(text)
	if len(chunks) < 10 {
		t.Fatalf("got %d chunks, want many", len(chunks))
	}
	for i, ch := range chunks {
		if n := utf8.RuneCountInString(ch); n > 100 {
			t.Errorf("chunk %d has %d chars", i, n)
		}
		if i == 0 {
			continue
		}
		first := strings.Fields(ch)[0]
		if !strings.Contains(chunks[i-1], first) {
			t.Errorf("chunk %d starts with %q, not carried from chunk %d", i, first, i-1)
		}
	}
	for _, w := range strings.Fields(text) {
		found := false
		for _, ch := range chunks {
			if strings.Contains(ch, w) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("word %q missing from every chunk", w)
		}
	}
}

func TestChunker_PrefersSentenceBoundaries(t *testing.T) {
	t.Parallel()

	sentence := strings.Repeat("a", 40)
	text := strings.Join([]string{sentence, sentence, sentence, sentence}, ". ")
	for i, ch := range NewChunker(90, 0).Split(text) {
		if strings.Contains(strings.TrimSuffix(ch, "."), "a a") {
			t.Errorf("chunk %d split mid-sentence: %q", i, ch)
		}
		if utf8.RuneCountInString(ch) > 90 {
			t.Errorf("chunk %d too long", i)
		}
	}
}

func TestChunker_HardSplitWithoutSeparators(t *testing.T) {
	t.Parallel()

	got := NewChunker(10, 0).Split(strings.Repeat("é", 30))
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	for _, ch := range got {
		if !utf8.ValidString(ch) || utf8.RuneCountInString(ch) != 10 {
			t.Errorf("bad chunk %q", ch)
		}
	}
}

func TestNewChunker_ClampsOverlap(t *testing.T) {
	t.Parallel()

	c := NewChunker(100, 500)
	if c.Overlap != 20 {
		t.Errorf("Overlap = %d, want 20", c.Overlap)
	}
	if c := NewChunker(-1, -1); c.Size != DefaultChunkSize || c.Overlap != 0 {
		t.Errorf("defaults = %d/%d", c.Size, c.Overlap)
	}
}

func TestChunkCues_Timestamps(t *testing.T) {
	t.Parallel()

	var cues []Cue
	for i := range 20 {
		cues = append(cues, Cue{
			Start: time.Duration(i*5) * time.Second,
			End:   time.Duration(i*5+5) * time.Second,
			Text:  fmt.Sprintf("line %02d %s", i, strings.Repeat("x", 40)),
		})
	}
	chunks := NewChunker(120, 20).ChunkCues(cues)
	if len(chunks) < 5 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	if chunks[0].StartTime != "00:00" {
		t.Errorf("first StartTime = %q", chunks[0].StartTime)
	}
	if last := chunks[len(chunks)-1]; last.EndTime != "01:40" {
		t.Errorf("last EndTime = %q, want 01:40", last.EndTime)
	}
	prev := -1
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has Index %d", i, c.Index)
		}
		start := transcript.SecondsOrZero(c.StartTime)
		if start < prev {
			t.Errorf("chunk %d starts at %d, before previous %d", i, start, prev)
		}
		if transcript.SecondsOrZero(c.EndTime) < start {
			t.Errorf("chunk %d ends before it starts", i)
		}
		prev = start
	}
}
