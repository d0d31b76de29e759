package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Transcript acquisition methods, recorded per document so rebuilds can
// tell which fetch path produced each transcript.
const (
	MethodTimedText = "timedtext"
	MethodWatchPage = "watchpage"
)

// Transcript document statuses. Error documents keep the video listed so
// a later fetch run can retry it; they carry no transcript text.
const (
	StatusFetched = "fetched"
	StatusIndexed = "indexed"
	StatusError   = "error"
)

type TranscriptDoc struct {
	VideoID     string
	Title       string
	PublishedAt time.Time
	Transcript  string
	Language    string
	Method      string // "timedtext" or "watchpage"
	Status      string // "fetched", "indexed", or "error"
	FetchedAt   time.Time
}
