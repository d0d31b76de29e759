// Package retrieval finds the transcript chunks most relevant to a question.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/ttyv/internal/index"
	"github.com/kalambet/ttyv/internal/provider"
)

// ContextChunk is a retrieved transcript fragment with its similarity score.
type ContextChunk struct {
	ChunkID     string
	VideoID     string
	Title       string
	PublishedAt time.Time
	Ordinal     int
	Text        string
	Score       float32
}

// Index is the slice of the embedding index the Retriever needs.
type Index interface {
	Query(vector []float32, k int) ([]index.ScoredEntry, error)
	Count() (int, error)
}

// Retriever combines query embedding and vector search.
type Retriever struct {
	embedder provider.Embedder
	index    Index
}

// NewRetriever creates a Retriever backed by the given Embedder and Index.
func NewRetriever(embedder provider.Embedder, idx Index) *Retriever {
	return &Retriever{embedder: embedder, index: idx}
}

// Retrieve embeds the query and returns the top-K most similar chunks in
// ranked order. index.ErrEmptyIndex propagates so the caller can tell "not
// ready" apart from "no matches".
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]ContextChunk, error) {
	if topK <= 0 {
		topK = 5
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored, err := r.index.Query(vec, topK)
	if err != nil {
		return nil, err
	}

	chunks := make([]ContextChunk, len(scored))
	for i, s := range scored {
		chunks[i] = ContextChunk{
			ChunkID:     s.ChunkID,
			VideoID:     s.VideoID,
			Title:       s.Title,
			PublishedAt: s.PublishedAt,
			Ordinal:     s.Ordinal,
			Text:        s.Text,
			Score:       s.Score,
		}
	}
	return chunks, nil
}

// Ready reports whether the index holds at least one entry.
func (r *Retriever) Ready() bool {
	count, err := r.index.Count()
	return err == nil && count > 0
}
