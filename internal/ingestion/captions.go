package ingestion

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNoCues is returned when a transcript yields no usable cues.
var ErrNoCues = errors.New("ingestion: transcript contains no cues")

// Cue is one timed caption line.
type Cue struct {
	// Start is the offset at which the cue begins.
	Start time.Duration
	// End is the offset at which the cue ends. For plain transcripts it is
	// the next cue's start, or Start for the last cue.
	End time.Duration
	// Text is the caption text with markup removed.
	Text string
}

// tagPattern matches inline WebVTT markup such as <c>, </c>, <00:00:01.000>.
var tagPattern = regexp.MustCompile(`<[^>]*>`)

// plainLinePattern matches "m:ss text", "h:mm:ss text", and "[m:ss] text".
var plainLinePattern = regexp.MustCompile(`^\[?(\d{1,2}(?::\d{2}){1,2})\]?\s+(.+)$`)

// ParseTranscript detects the transcript format and returns its cues.
// Content starting with a WEBVTT header is parsed as WebVTT; anything else
// as plain "m:ss text" lines.
func ParseTranscript(content string) ([]Cue, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	if strings.HasPrefix(strings.TrimSpace(content), "WEBVTT") {
		return ParseVTT(content)
	}
	return ParsePlain(content)
}

// ParseVTT parses WebVTT content into cues. Cue identifiers, cue settings,
// NOTE/STYLE blocks, and inline tags are ignored. Consecutive duplicate
// lines, which auto-generated captions repeat as they scroll, are dropped.
func ParseVTT(content string) ([]Cue, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(strings.TrimSpace(content), "WEBVTT") {
		return nil, fmt.Errorf("ingestion: invalid VTT: missing WEBVTT header")
	}

	var cues []Cue
	var last string
	for _, block := range strings.Split(content, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		timing := -1
		for i, l := range lines {
			if strings.Contains(l, "-->") {
				timing = i
				break
			}
		}
		if timing < 0 {
			continue
		}

		fields := strings.SplitN(lines[timing], "-->", 2)
		start, err := parseVTTTimestamp(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("ingestion: invalid start timestamp: %w", err)
		}
		endField := strings.Fields(fields[1])
		if len(endField) == 0 {
			return nil, fmt.Errorf("ingestion: missing end timestamp in %q", lines[timing])
		}
		end, err := parseVTTTimestamp(endField[0])
		if err != nil {
			return nil, fmt.Errorf("ingestion: invalid end timestamp: %w", err)
		}

		var parts []string
		for _, l := range lines[timing+1:] {
			l = strings.TrimSpace(tagPattern.ReplaceAllString(l, ""))
			if l == "" || l == last {
				continue
			}
			parts = append(parts, l)
			last = l
		}
		if len(parts) == 0 {
			continue
		}
		cues = append(cues, Cue{Start: start, End: end, Text: strings.Join(parts, " ")})
	}
	if len(cues) == 0 {
		return nil, ErrNoCues
	}
	return cues, nil
}

// parseVTTTimestamp parses "HH:MM:SS.mmm" or "MM:SS.mmm".
func parseVTTTimestamp(ts string) (time.Duration, error) {
	main, frac, ok := strings.Cut(ts, ".")
	if !ok {
		return 0, fmt.Errorf("invalid timestamp %q: missing milliseconds", ts)
	}
	parts := strings.Split(main, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q: expected [HH:]MM:SS.mmm", ts)
	}

	var d time.Duration
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		d = d*60 + time.Duration(n)
	}
	ms, err := strconv.Atoi(frac)
	if err != nil || len(frac) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q: bad milliseconds", ts)
	}
	return d*time.Second + time.Duration(ms)*time.Millisecond, nil
}

// ParsePlain parses one cue per line in "m:ss text" or "[h:mm:ss] text"
// form. Lines without a leading timestamp are appended to the previous cue.
func ParsePlain(content string) ([]Cue, error) {
	var cues []Cue
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		m := plainLinePattern.FindStringSubmatch(line)
		if m == nil {
			if len(cues) > 0 {
				cues[len(cues)-1].Text += " " + line
			}
			continue
		}
		secs, err := parseClock(m[1])
		if err != nil {
			return nil, fmt.Errorf("ingestion: line %q: %w", line, err)
		}
		cues = append(cues, Cue{Start: secs, End: secs, Text: m[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ingestion: read transcript: %w", err)
	}
	if len(cues) == 0 {
		return nil, ErrNoCues
	}
	for i := 0; i < len(cues)-1; i++ {
		if cues[i+1].Start > cues[i].Start {
			cues[i].End = cues[i+1].Start
		}
	}
	return cues, nil
}

// parseClock parses "m:ss" or "h:mm:ss" into a duration.
func parseClock(s string) (time.Duration, error) {
	var d time.Duration
	for i, p := range strings.Split(s, ":") {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		if i > 0 && n > 59 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		d = d*60 + time.Duration(n)
	}
	return d * time.Second, nil
}
