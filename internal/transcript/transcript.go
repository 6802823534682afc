// Package transcript defines the video and transcript-chunk types shared by
// the chunk store, the ingestion pipeline, and the retrieval core.
package transcript

import (
	"fmt"
	"net/url"
	"time"
)

// Status is the processing state of a video.
type Status string

const (
	// StatusPending is a video that has been registered but not yet processed.
	StatusPending Status = "pending"
	// StatusProcessing is a video whose transcript is being fetched or chunked.
	StatusProcessing Status = "processing"
	// StatusIndexed is a video whose chunks are complete and eligible for retrieval.
	StatusIndexed Status = "indexed"
	// StatusError is a video whose processing failed.
	StatusError Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusIndexed, StatusError:
		return true
	}
	return false
}

// Video is a YouTube video known to the system.
type Video struct {
	// ID is the store-assigned row identifier.
	ID int64 `json:"id"`
	// YouTubeID is the external 11-character YouTube video identifier.
	YouTubeID string `json:"youtubeId"`
	// Title is the display title.
	Title string `json:"title"`
	// Status is the processing state. Only StatusIndexed videos are retrieved.
	Status Status `json:"status"`
	// CreatedAt is when the video was first registered.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is when the video row was last modified.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Chunk is a contiguous, timestamped segment of a video transcript.
// Index is strictly increasing within a video and chunks are never mutated
// after they are stored.
type Chunk struct {
	// Index is the zero-based sequence number within the owning video.
	Index int `json:"index"`
	// StartTime is the start offset formatted as "m:ss" or "h:mm:ss".
	StartTime string `json:"startTime"`
	// EndTime is the end offset formatted as "m:ss" or "h:mm:ss".
	EndTime string `json:"endTime"`
	// Text is the transcript text covered by the chunk.
	Text string `json:"text"`
}

// VideoChunks pairs a video with its chunks in sequence order.
type VideoChunks struct {
	Video  Video
	Chunks []Chunk
}

// WatchURL returns the YouTube deep link for youtubeID starting at the given
// offset in seconds. Offsets ≤ 0 produce a link without a time parameter.
func WatchURL(youtubeID string, seconds int) string {
	q := url.Values{}
	q.Set("v", youtubeID)
	u := "https://www.youtube.com/watch?" + q.Encode()
	if seconds > 0 {
		u += fmt.Sprintf("&t=%ds", seconds)
	}
	return u
}

// ThumbnailURL returns the high-quality thumbnail URL for youtubeID.
func ThumbnailURL(youtubeID string) string {
	return "https://img.youtube.com/vi/" + url.PathEscape(youtubeID) + "/hqdefault.jpg"
}
