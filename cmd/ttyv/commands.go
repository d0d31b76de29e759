package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/ttyv/internal/blob"
	"github.com/kalambet/ttyv/internal/chatbot"
	"github.com/kalambet/ttyv/internal/chunker"
	"github.com/kalambet/ttyv/internal/composer"
	"github.com/kalambet/ttyv/internal/config"
	"github.com/kalambet/ttyv/internal/index"
	"github.com/kalambet/ttyv/internal/ingest"
	"github.com/kalambet/ttyv/internal/provider"
	"github.com/kalambet/ttyv/internal/retrieval"
	"github.com/kalambet/ttyv/internal/storage"
	"github.com/kalambet/ttyv/internal/youtube"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// --- fetch ---

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch transcripts for a YouTube channel's videos",
	Long: `Fetch transcripts for a YouTube channel's videos.

Lists the channel's most recent videos via the YouTube Data API and
fetches a transcript for each, storing them locally. Run 'ttyv build'
afterwards to index them.

Examples:
  ttyv fetch --channel UCECJDeK0MNapZbpaOzxrUPA
  ttyv fetch --channel UCECJDeK0MNapZbpaOzxrUPA --max 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		channel, _ := cmd.Flags().GetString("channel")
		if channel == "" {
			channel = cfg.YouTube.ChannelID
		}
		if channel == "" {
			return fmt.Errorf("--channel or TTYV_YOUTUBE_CHANNEL_ID is required")
		}
		maxVideos, _ := cmd.Flags().GetInt("max")
		if maxVideos <= 0 {
			maxVideos = cfg.YouTube.MaxVideos
		}
		if cfg.YouTube.APIKey == "" {
			return fmt.Errorf("TTYV_YOUTUBE_API_KEY is required to list channel videos")
		}

		ctx, stop := signalContext()
		defer stop()

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		lister, err := youtube.NewClient(ctx, cfg.YouTube.APIKey)
		if err != nil {
			return fmt.Errorf("creating YouTube client: %w", err)
		}
		blobs, err := blob.NewFSStore(cfg.Storage.BlobDir)
		if err != nil {
			return fmt.Errorf("opening blob store: %w", err)
		}

		printStep("Fetching up to %d videos from channel %s...", maxVideos, channel)
		builder := ingest.NewBuilder(store, lister, newTranscriptFetcher(cfg), nil, nil, blobs, nil, nil)
		stats, err := builder.FetchChannel(ctx, channel, maxVideos)
		if err != nil {
			return err
		}

		if stats.Failed > 0 {
			printWarning("%d of %d videos had no usable transcript", stats.Failed, stats.Listed)
		}
		printSuccess("Fetched %d transcripts (%d videos listed)", stats.Fetched, stats.Listed)
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("channel", "", "YouTube channel ID (default: TTYV_YOUTUBE_CHANNEL_ID)")
	fetchCmd.Flags().Int("max", 0, "maximum number of videos to fetch (default: TTYV_MAX_VIDEOS)")
}

// --- build ---

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Chunk, embed, and index the stored transcripts",
	Long: `Chunk, embed, and index the stored transcripts.

Splits every stored transcript into overlapping chunks, embeds them in
batches via Azure OpenAI, and atomically replaces the vector index. A
running server picks up the new index on its next query.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		ctx, stop := signalContext()
		defer stop()

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		docs, err := store.CountTranscripts()
		if err != nil {
			return err
		}
		if docs == 0 {
			printWarning("No transcripts stored. Run 'ttyv fetch' first.")
			return nil
		}

		idx := index.NewSQLiteIndex(store.DB())
		azure := provider.NewAzureClient(cfg.Azure)
		splitter := chunker.New(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)

		printStep("Indexing %d transcripts...", docs)
		builder := ingest.NewBuilder(store, nil, nil, azure, idx, nil, splitter, nil)
		stats, err := builder.BuildIndex(ctx)
		if err != nil {
			return err
		}

		if stats.SkippedBatches > 0 {
			printWarning("%d embedding batches failed and were skipped", stats.SkippedBatches)
		}
		printSuccess("Indexed %d chunks from %d videos", stats.Embedded, stats.Videos)
		return nil
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a one-shot question against the local index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		ctx, stop := signalContext()
		defer stop()

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		idx := index.NewSQLiteIndex(store.DB())
		azure := provider.NewAzureClient(cfg.Azure)
		bot := chatbot.New(
			retrieval.NewRetriever(azure, idx),
			composer.New(azure, cfg.Retrieval.TopK),
			cfg.Retrieval.TopK,
		)
		bot.MarkReady()

		answer, err := bot.Ask(ctx, question, nil)
		if err != nil {
			if errors.Is(err, index.ErrEmptyIndex) {
				printError("The index is empty. Run 'ttyv fetch' and 'ttyv build' first.")
				return fmt.Errorf("empty index")
			}
			return err
		}

		fmt.Println(answer.ResponseText)
		if len(answer.Sources) > 0 {
			fmt.Println()
			fmt.Println(colorize(colorBold, "Sources:"))
			for _, s := range answer.Sources {
				fmt.Printf("  %s\n    %s\n", s.Title, colorize(colorCyan, s.URL))
			}
		}
		return nil
	},
}

// --- snapshot ---

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Snapshot the database to the blob store, or restore it",
	Long: `Snapshot the database to the blob store, or restore it.

Packs the SQLite database (transcripts and vector index) into a tar.gz
archive in the configured blob directory. With --restore, downloads the
archive and unpacks it into the data directory instead. Do not restore
while the server is running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)
		restore, _ := cmd.Flags().GetBool("restore")

		ctx, stop := signalContext()
		defer stop()

		blobs, err := blob.NewFSStore(cfg.Storage.BlobDir)
		if err != nil {
			return fmt.Errorf("opening blob store: %w", err)
		}

		if restore {
			if err := blob.Restore(ctx, blobs, cfg.Storage.DataDir); err != nil {
				return err
			}
			printSuccess("Restored %s into %s", blob.SnapshotName, cfg.Storage.DataDir)
			return nil
		}

		dbPath := filepath.Join(cfg.Storage.DataDir, "ttyv.db")
		if err := blob.Snapshot(ctx, blobs, []string{dbPath}); err != nil {
			return err
		}
		printSuccess("Snapshot written to %s", filepath.Join(cfg.Storage.BlobDir, blob.SnapshotName))
		return nil
	},
}

func init() {
	snapshotCmd.Flags().Bool("restore", false, "restore the latest snapshot into the data directory")
}
