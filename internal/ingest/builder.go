// Package ingest drives the two offline pipelines: fetching channel
// transcripts into storage, and rebuilding the vector index from them.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kalambet/ttyv/internal/blob"
	"github.com/kalambet/ttyv/internal/chunker"
	"github.com/kalambet/ttyv/internal/index"
	"github.com/kalambet/ttyv/internal/storage"
	"github.com/kalambet/ttyv/internal/transcript"
	"github.com/kalambet/ttyv/internal/youtube"
)

// DocStore abstracts the transcript document operations used here.
type DocStore interface {
	SaveTranscript(doc storage.TranscriptDoc) error
	ListTranscripts() ([]storage.TranscriptDoc, error)
	HasTranscript(videoID string) (bool, error)
	MarkIndexed() error
}

// BatchEmbedder generates embeddings for batches of chunks.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex receives the rebuilt chunk vectors.
type VectorIndex interface {
	Rebuild(entries []index.Entry) error
	Count() (int, error)
}

const (
	defaultBatchSize   = 100
	defaultConcurrency = 4
)

// Builder runs transcript fetching and index building.
type Builder struct {
	store    DocStore
	lister   youtube.Lister
	fetcher  transcript.Fetcher
	embedder BatchEmbedder
	idx      VectorIndex
	blobs    blob.Store
	splitter *chunker.Chunker
	limiter  *rate.Limiter

	batchSize   int
	concurrency int
	logger      *slog.Logger
}

// NewBuilder wires a Builder. blobs may be nil when raw transcript
// archiving is not configured.
func NewBuilder(store DocStore, lister youtube.Lister, fetcher transcript.Fetcher, embedder BatchEmbedder, idx VectorIndex, blobs blob.Store, splitter *chunker.Chunker, limiter *rate.Limiter) *Builder {
	if splitter == nil {
		splitter = chunker.New(chunker.DefaultSize, chunker.DefaultOverlap)
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Builder{
		store:       store,
		lister:      lister,
		fetcher:     fetcher,
		embedder:    embedder,
		idx:         idx,
		blobs:       blobs,
		splitter:    splitter,
		limiter:     limiter,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
}

// FetchStats summarizes a fetch run.
type FetchStats struct {
	Listed  int
	Fetched int
	Failed  int
}

// FetchChannel lists the channel's videos and fetches a transcript for
// each, persisting successful documents. Individual video failures are
// logged and counted, never aborting the run.
func (b *Builder) FetchChannel(ctx context.Context, channelID string, maxVideos int) (FetchStats, error) {
	videos, err := b.lister.ListVideos(ctx, channelID, maxVideos)
	if err != nil {
		return FetchStats{}, fmt.Errorf("listing channel videos: %w", err)
	}

	stats := FetchStats{Listed: len(videos)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, video := range videos {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := b.fetchOne(ctx, video)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				b.logger.Warn("transcript fetch failed", "video_id", video.VideoID, "title", video.Title, "error", err)
				b.recordFailure(video)
				return nil
			}
			stats.Fetched++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	b.logger.Info("fetch run complete", "listed", stats.Listed, "fetched", stats.Fetched, "failed", stats.Failed)
	return stats, nil
}

func (b *Builder) fetchOne(ctx context.Context, video youtube.Video) error {
	result, err := b.fetcher.Fetch(ctx, video.VideoID)
	if err != nil {
		return err
	}

	doc := storage.TranscriptDoc{
		VideoID:     video.VideoID,
		Title:       video.Title,
		PublishedAt: video.PublishedAt,
		Transcript:  result.Text,
		Language:    result.Language,
		Method:      result.Method,
		Status:      storage.StatusFetched,
	}
	if err := b.store.SaveTranscript(doc); err != nil {
		return fmt.Errorf("saving transcript: %w", err)
	}

	if b.blobs != nil {
		if err := b.archiveRaw(ctx, video, result); err != nil {
			// The document is saved; losing the raw archive is not fatal.
			b.logger.Warn("raw transcript archive failed", "video_id", video.VideoID, "error", err)
		}
	}
	return nil
}

// recordFailure stores an error-status document for a video whose fetch
// failed, unless a document for it already exists: a stale transcript beats
// an empty error record.
func (b *Builder) recordFailure(video youtube.Video) {
	exists, err := b.store.HasTranscript(video.VideoID)
	if err != nil || exists {
		return
	}
	doc := storage.TranscriptDoc{
		VideoID:     video.VideoID,
		Title:       video.Title,
		PublishedAt: video.PublishedAt,
		Status:      storage.StatusError,
	}
	if err := b.store.SaveTranscript(doc); err != nil {
		b.logger.Warn("recording failed fetch", "video_id", video.VideoID, "error", err)
	}
}

func (b *Builder) archiveRaw(ctx context.Context, video youtube.Video, result transcript.Result) error {
	payload := struct {
		transcript.Result
		Title       string `json:"title"`
		PublishedAt string `json:"published_at"`
	}{
		Result:      result,
		Title:       video.Title,
		PublishedAt: video.PublishedAt.Format("2006-01-02T15:04:05Z07:00"),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding raw transcript: %w", err)
	}
	return b.blobs.Put(ctx, "transcript-"+video.VideoID+".json", bytes.NewReader(data))
}

// BuildStats summarizes an index build.
type BuildStats struct {
	Videos         int
	Chunks         int
	Embedded       int
	SkippedBatches int
}

// BuildIndex chunks every stored transcript, embeds the chunks in
// batches behind the rate limiter, and atomically swaps the rebuilt
// index in. A failed batch is logged and skipped; its chunks are simply
// absent from the new index.
func (b *Builder) BuildIndex(ctx context.Context) (BuildStats, error) {
	docs, err := b.store.ListTranscripts()
	if err != nil {
		return BuildStats{}, fmt.Errorf("loading transcripts: %w", err)
	}

	var stats BuildStats
	var entries []index.Entry
	for _, doc := range docs {
		if doc.Transcript == "" {
			continue
		}
		stats.Videos++
		for i, chunk := range b.splitter.Split(doc.Transcript) {
			entries = append(entries, index.Entry{
				ChunkID:     fmt.Sprintf("%s_%d", doc.VideoID, i),
				VideoID:     doc.VideoID,
				Title:       doc.Title,
				PublishedAt: doc.PublishedAt,
				Ordinal:     i,
				Text:        chunk,
			})
		}
	}
	stats.Chunks = len(entries)

	var embedded []index.Entry
	for start := 0; start < len(entries); start += b.batchSize {
		end := min(start+b.batchSize, len(entries))
		batch := entries[start:end]

		if err := b.limiter.Wait(ctx); err != nil {
			return stats, err
		}

		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = e.Text
		}
		vectors, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			stats.SkippedBatches++
			b.logger.Warn("embedding batch failed, skipping", "start", start, "size", len(batch), "error", err)
			continue
		}
		if len(vectors) != len(batch) {
			stats.SkippedBatches++
			b.logger.Warn("embedding batch returned wrong count, skipping", "start", start, "want", len(batch), "got", len(vectors))
			continue
		}

		for i := range batch {
			batch[i].Embedding = vectors[i]
			embedded = append(embedded, batch[i])
		}
	}
	stats.Embedded = len(embedded)

	if err := b.idx.Rebuild(embedded); err != nil {
		return stats, fmt.Errorf("rebuilding index: %w", err)
	}
	if err := b.store.MarkIndexed(); err != nil {
		return stats, fmt.Errorf("marking documents indexed: %w", err)
	}

	b.logger.Info("index build complete",
		"videos", stats.Videos, "chunks", stats.Chunks,
		"embedded", stats.Embedded, "skipped_batches", stats.SkippedBatches)
	return stats, nil
}
