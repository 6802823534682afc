package ingestion

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidVideoURL is returned when no YouTube video ID can be extracted.
var ErrInvalidVideoURL = errors.New("ingestion: not a YouTube video URL")

// videoIDPattern matches a bare 11-character YouTube video ID.
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID returns the YouTube video ID referenced by raw. It accepts
// a bare ID or any of these URL forms:
//
//	youtube.com/watch?v={id}
//	youtu.be/{id}
//	youtube.com/embed/{id}
//	youtube.com/v/{id}
//	youtube.com/shorts/{id}
//	youtube.com/...?...&v={id}
func ExtractVideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if videoIDPattern.MatchString(raw) {
		return raw, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidVideoURL, err)
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	segments := trimSegments(parsed.Path)

	var id string
	switch host {
	case "youtu.be":
		if len(segments) > 0 {
			id = segments[0]
		}
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := parsed.Query().Get("v"); v != "" {
			id = v
		} else if len(segments) >= 2 {
			switch segments[0] {
			case "embed", "v", "shorts", "live":
				id = segments[1]
			}
		}
	}

	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVideoURL, raw)
	}
	return id, nil
}

// trimSegments splits a URL path into its non-empty segments.
func trimSegments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
