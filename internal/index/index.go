// Package index stores transcript chunk embeddings and answers cosine
// similarity queries. Backed by SQLite; brute-force search is fine at the
// scale of one channel's transcripts (a few thousand chunks).
package index

import (
	"errors"
	"time"
)

// ErrEmptyIndex is returned by Query when no entries have been ingested.
// Callers use it to distinguish "not ready" from "no matches".
var ErrEmptyIndex = errors.New("index is empty")

// ErrDimensionMismatch is returned when an embedding's length disagrees with
// the dimensionality established by the first entry in the index.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Entry is one indexed chunk with its embedding and source metadata.
// ChunkID is "<video_id>_<ordinal>" and unique across the index.
type Entry struct {
	ChunkID     string
	VideoID     string
	Title       string
	PublishedAt time.Time
	Ordinal     int
	Text        string
	Embedding   []float32
}

// ScoredEntry is an Entry with its cosine similarity to a query vector.
type ScoredEntry struct {
	Entry
	Score float32
}
