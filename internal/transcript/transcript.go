// Package transcript acquires YouTube video transcripts. The primary
// source is the public timedtext captions endpoint; when a video has no
// track there, a watch-page scrape locates the player's caption tracks.
package transcript

import (
	"context"
	"errors"
	"strings"
)

// ErrNoTranscript is returned when no caption track exists for a video
// in any of the accepted languages.
var ErrNoTranscript = errors.New("no transcript available")

// Segment is a single timed caption line.
type Segment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// Result is a fetched transcript. Text is the segments joined with
// single spaces, ready for chunking.
type Result struct {
	VideoID  string    `json:"video_id"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
	Method   string    `json:"method"`
}

// Fetcher obtains the transcript for a single video.
type Fetcher interface {
	Fetch(ctx context.Context, videoID string) (Result, error)
}

// joinSegments flattens caption lines into one space-separated text.
func joinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
