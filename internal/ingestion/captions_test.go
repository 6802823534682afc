package ingestion

import (
	"errors"
	"testing"
	"time"
)

const sampleVTT = `WEBVTT
Kind: captions
Language: en

00:00:01.000 --> 00:00:04.500 align:start position:0%
<c>Hello</c> world

2
00:01:05.250 --> 00:01:08.000
second cue
line two

00:01:08.000 --> 00:01:09.000
line two
`

func TestParseVTT(t *testing.T) {
	t.Parallel()

	cues, err := ParseVTT(sampleVTT)
	if err != nil {
		t.Fatalf("ParseVTT: %v", err)
	}
	// The third block repeats the previous line and is dropped.
	if len(cues) != 2 {
		t.Fatalf("got %d cues, want 2: %+v", len(cues), cues)
	}
	want := []Cue{
		{Start: time.Second, End: 4500 * time.Millisecond, Text: "Hello world"},
		{Start: 65250 * time.Millisecond, End: 68 * time.Second, Text: "second cue line two"},
	}
	for i := range want {
		if cues[i] != want[i] {
			t.Errorf("cue %d = %+v, want %+v", i, cues[i], want[i])
		}
	}
}

func TestParseVTT_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"missing header", "00:00:01.000 --> 00:00:02.000\nhi"},
		{"no milliseconds", "WEBVTT\n\n00:00:01 --> 00:00:02.000\nhi"},
		{"bad end", "WEBVTT\n\n00:00:01.000 --> soon\nhi"},
		{"no cues", "WEBVTT\n\nNOTE nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseVTT(tt.content); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParsePlain(t *testing.T) {
	t.Parallel()

	cues, err := ParsePlain("0:00 Intro\n\n1:05 Next topic\ncontinued here\n[1:02:03] Late section\n")
	if err != nil {
		t.Fatalf("ParsePlain: %v", err)
	}
	if len(cues) != 3 {
		t.Fatalf("got %d cues, want 3", len(cues))
	}
	if cues[0].End != 65*time.Second {
		t.Errorf("cue 0 end = %v, want next cue start", cues[0].End)
	}
	if cues[1].Text != "Next topic continued here" {
		t.Errorf("cue 1 text = %q", cues[1].Text)
	}
	if cues[2].Start != 3723*time.Second || cues[2].End != cues[2].Start {
		t.Errorf("cue 2 = %+v", cues[2])
	}
}

func TestParsePlain_RejectsBadClock(t *testing.T) {
	t.Parallel()

	if _, err := ParsePlain("1:75 impossible"); err == nil {
		t.Fatal("expected error for seconds > 59")
	}
}

func TestParseTranscript_DetectsFormat(t *testing.T) {
	t.Parallel()

	if cues, err := ParseTranscript("\ufeff" + sampleVTT); err != nil || len(cues) != 2 {
		t.Errorf("VTT with BOM: %d cues, err %v", len(cues), err)
	}
	if cues, err := ParseTranscript("0:01 plain"); err != nil || len(cues) != 1 {
		t.Errorf("plain: %d cues, err %v", len(cues), err)
	}
	if _, err := ParseTranscript("   \n"); !errors.Is(err, ErrNoCues) {
		t.Errorf("empty: err = %v, want ErrNoCues", err)
	}
}
