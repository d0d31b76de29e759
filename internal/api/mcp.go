package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/ttyv/internal/transcript"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Bot     Asker
	Fetcher transcript.Fetcher
	Index   ChunkCounter
	Docs    DocCounter
}

// NewMCPServer creates an MCP server exposing the chatbot and the
// transcript fetcher as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"ttyv",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("ttyv answers questions about a YouTube channel's videos using their indexed transcripts."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a question about the indexed videos and get an answer with source citations."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("transcribe",
			mcp.WithDescription("Fetch the transcript of a YouTube video by URL or video ID."),
			mcp.WithString("video", mcp.Description("YouTube video URL or 11-character video ID"), mcp.Required()),
		),
		mcpTranscribe(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"ttyv://stats",
			"Index Statistics",
			mcp.WithResourceDescription("Chunk and video counts for the current index"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		answer, err := deps.Bot.Ask(ctx, question, nil)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		type askResult struct {
			Response string           `json:"response"`
			Sources  []composerSource `json:"sources"`
		}
		result := askResult{Response: answer.ResponseText}
		for _, s := range answer.Sources {
			result.Sources = append(result.Sources, composerSource{Title: s.Title, VideoID: s.VideoID, URL: s.URL})
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

type composerSource struct {
	Title   string `json:"title"`
	VideoID string `json:"video_id"`
	URL     string `json:"url"`
}

func mcpTranscribe(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		video, err := req.RequireString("video")
		if err != nil {
			return mcpError("video is required"), nil
		}

		videoID, err := ParseVideoID(video)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		result, err := deps.Fetcher.Fetch(ctx, videoID)
		if err != nil {
			return mcpError(fmt.Sprintf("transcription failed: %v", err)), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal transcript: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		chunks, err := deps.Index.Count()
		if err != nil {
			return nil, fmt.Errorf("failed to count chunks: %w", err)
		}
		videos, err := deps.Docs.CountTranscripts()
		if err != nil {
			return nil, fmt.Errorf("failed to count videos: %w", err)
		}

		b, err := json.Marshal(map[string]int{
			"total_chunks": chunks,
			"total_videos": videos,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// ParseVideoID accepts a watch URL, a youtu.be short link, or a bare
// 11-character video ID.
func ParseVideoID(video string) (string, error) {
	video = strings.TrimSpace(video)
	if video == "" {
		return "", fmt.Errorf("video is empty")
	}

	if !strings.Contains(video, "/") && !strings.Contains(video, ".") {
		return video, nil
	}

	u, err := url.Parse(video)
	if err != nil {
		return "", fmt.Errorf("invalid video URL %q", video)
	}
	switch {
	case strings.HasSuffix(u.Host, "youtu.be"):
		id := strings.Trim(u.Path, "/")
		if id == "" {
			return "", fmt.Errorf("no video ID in %q", video)
		}
		return id, nil
	case u.Query().Get("v") != "":
		return u.Query().Get("v"), nil
	case strings.Contains(u.Path, "/shorts/"):
		return strings.Trim(strings.TrimPrefix(u.Path, "/shorts/"), "/"), nil
	}
	return "", fmt.Errorf("could not extract a video ID from %q", video)
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
