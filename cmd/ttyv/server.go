package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/ttyv/internal/api"
	"github.com/kalambet/ttyv/internal/chatbot"
	"github.com/kalambet/ttyv/internal/composer"
	"github.com/kalambet/ttyv/internal/config"
	"github.com/kalambet/ttyv/internal/index"
	"github.com/kalambet/ttyv/internal/provider"
	"github.com/kalambet/ttyv/internal/retrieval"
	"github.com/kalambet/ttyv/internal/storage"
	"github.com/kalambet/ttyv/internal/transcript"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ttyv server (foreground)",
	Long: `Start the HTTP API and MCP server over the locally built index.

The HTTP API listens on 127.0.0.1 (port from TTYV_PORT, default 8000);
the MCP server speaks stdio. Answers require a built index: until
'ttyv build' has populated the vector store, /chat returns 503.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ttyv system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "ttyv.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func setupLogging(cfg config.Config) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// newTranscriptFetcher builds the two-tier transcript source: the
// captions endpoint first, the watch-page scrape when no track exists.
func newTranscriptFetcher(cfg config.Config) transcript.Fetcher {
	return transcript.NewFallbackFetcher(
		transcript.NewTimedTextFetcher(cfg.YouTube.Languages),
		transcript.NewWatchPageFetcher(cfg.YouTube.Languages),
		slog.Default(),
	)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "ttyv version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("ttyv is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("ttyv is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage. The vector index lives in the same database file.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()
	idx := index.NewSQLiteIndex(store.DB())

	// Wire the answering pipeline.
	azure := provider.NewAzureClient(cfg.Azure)
	retriever := retrieval.NewRetriever(azure, idx)
	comp := composer.New(azure, cfg.Retrieval.TopK)
	bot := chatbot.New(retriever, comp, cfg.Retrieval.TopK)
	bot.MarkReady()
	defer bot.Shutdown()

	if count, err := idx.Count(); err == nil && count == 0 {
		printWarning("vector index is empty; run 'ttyv fetch' and 'ttyv build' first")
	}

	// Build HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Bot:   bot,
		Index: idx,
		Docs:  store,
		Token: cfg.Server.APIToken,
	})
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Bot:     bot,
		Fetcher: newTranscriptFetcher(cfg),
		Index:   idx,
		Docs:    store,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "ttyv listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var health struct {
			Status string `json:"status"`
			Ready  bool   `json:"vector_store_ready"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&health)
		resp.Body.Close()
		switch {
		case resp.StatusCode != 200:
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		case decodeErr == nil && !health.Ready:
			printStatus("Server", "running on port %d (index not ready)", cfg.Server.Port)
		default:
			printStatus("Server", "running on port %d", cfg.Server.Port)
		}
	}

	// Show index stats if the server is up.
	if err == nil && resp.StatusCode == 200 {
		statsResp, statsErr := client.Get(serverURL + "/stats")
		if statsErr == nil {
			var stats struct {
				TotalChunks int    `json:"total_chunks"`
				TotalVideos int    `json:"total_videos"`
				Status      string `json:"status"`
			}
			if json.NewDecoder(statsResp.Body).Decode(&stats) == nil {
				printStatus("Index", "%s (%d chunks from %d videos)", stats.Status, stats.TotalChunks, stats.TotalVideos)
			}
			statsResp.Body.Close()
		}
	}

	printStatus("Chat model", "%s", cfg.Azure.ChatDeployment)
	printStatus("Embed model", "%s", cfg.Azure.EmbedDeployment)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
