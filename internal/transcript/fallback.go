package transcript

import (
	"context"
	"fmt"
	"log/slog"
)

// FallbackFetcher tries the primary source and falls back to the
// secondary when the primary fails or finds no track. Only when both
// fail does Fetch return an error.
type FallbackFetcher struct {
	Primary   Fetcher
	Secondary Fetcher
	Logger    *slog.Logger
}

func NewFallbackFetcher(primary, secondary Fetcher, logger *slog.Logger) *FallbackFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackFetcher{Primary: primary, Secondary: secondary, Logger: logger}
}

func (f *FallbackFetcher) Fetch(ctx context.Context, videoID string) (Result, error) {
	result, primaryErr := f.Primary.Fetch(ctx, videoID)
	if primaryErr == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return Result{}, primaryErr
	}

	f.Logger.Warn("primary transcript source failed, trying fallback",
		"video_id", videoID, "error", primaryErr)

	result, secondaryErr := f.Secondary.Fetch(ctx, videoID)
	if secondaryErr == nil {
		return result, nil
	}
	return Result{}, fmt.Errorf("all transcript sources failed for %s: %w (fallback: %v)",
		videoID, primaryErr, secondaryErr)
}
