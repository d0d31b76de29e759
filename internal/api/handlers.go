// Package api serves the chatbot over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/ttyv/internal/chatbot"
	"github.com/kalambet/ttyv/internal/composer"
	"github.com/kalambet/ttyv/internal/index"
	"github.com/kalambet/ttyv/internal/provider"
)

const maxRequestBodySize = 1 << 20 // 1MB

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message string        `json:"message"`
	History []ChatMessage `json:"history,omitempty"`
}

type SourceResponse struct {
	Title   string `json:"title"`
	VideoID string `json:"video_id"`
	URL     string `json:"url"`
}

type ChatResponse struct {
	Response        string           `json:"response"`
	Sources         []SourceResponse `json:"sources"`
	TotalChunksUsed int              `json:"total_chunks_used"`
	ConversationID  string           `json:"conversation_id"`
}

// Asker answers questions; the chatbot satisfies it.
type Asker interface {
	Ask(ctx context.Context, message string, history []composer.ChatTurn) (composer.Answer, error)
	Ready() bool
}

// ChunkCounter reports the vector index size.
type ChunkCounter interface {
	Count() (int, error)
}

// DocCounter reports the number of stored transcripts.
type DocCounter interface {
	CountTranscripts() (int, error)
}

// Deps holds everything the HTTP layer needs.
type Deps struct {
	Bot   Asker
	Index ChunkCounter
	Docs  DocCounter
	Token string // optional; when set, POST /chat requires bearer auth
}

// NewHandler builds the HTTP API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/", handleRoot(deps))
	r.Get("/health", handleHealth(deps))
	r.Get("/stats", handleStats(deps))

	chat := handleChat(deps)
	if deps.Token != "" {
		r.With(BearerAuth(deps.Token)).Post("/chat", chat)
	} else {
		r.Post("/chat", chat)
	}

	return r
}

func handleRoot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":             "running",
			"message":            "ttyv chatbot API",
			"vector_store_ready": deps.Bot.Ready(),
		})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":             "healthy",
			"vector_store_ready": deps.Bot.Ready(),
		})
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chunks, err := deps.Index.Count()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count chunks: %v", err)
			return
		}
		videos, err := deps.Docs.CountTranscripts()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count videos: %v", err)
			return
		}

		status := "ready"
		if chunks == 0 {
			status = "empty"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"total_chunks": chunks,
			"total_videos": videos,
			"status":       status,
		})
	}
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		history := make([]composer.ChatTurn, len(req.History))
		for i, m := range req.History {
			history[i] = composer.ChatTurn{Role: m.Role, Content: m.Content}
		}

		answer, err := deps.Bot.Ask(r.Context(), req.Message, history)
		switch {
		case errors.Is(err, chatbot.ErrInvalidInput):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message must not be empty")
			return
		case errors.Is(err, chatbot.ErrNotReady), errors.Is(err, index.ErrEmptyIndex):
			httpError(w, http.StatusServiceUnavailable, "api_error", "chatbot is not initialized")
			return
		case errors.Is(err, provider.ErrUnavailable):
			httpError(w, http.StatusServiceUnavailable, "api_error", "upstream provider unavailable: %v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to answer: %v", err)
			return
		}

		sources := make([]SourceResponse, len(answer.Sources))
		for i, s := range answer.Sources {
			sources[i] = SourceResponse{Title: s.Title, VideoID: s.VideoID, URL: s.URL}
		}
		writeJSON(w, http.StatusOK, ChatResponse{
			Response:        answer.ResponseText,
			Sources:         sources,
			TotalChunksUsed: answer.ChunksUsed,
			ConversationID:  uuid.New().String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
