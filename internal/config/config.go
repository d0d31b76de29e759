package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Azure     AzureConfig
	YouTube   YouTubeConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string // optional; when set, POST /chat requires bearer auth
}

// AzureConfig holds Azure OpenAI connection settings. Endpoint and APIKey
// are required; deployments default to the ones the index was built with.
type AzureConfig struct {
	Endpoint        string
	APIKey          string
	APIVersion      string
	ChatDeployment  string
	EmbedDeployment string
}

type YouTubeConfig struct {
	APIKey    string
	ChannelID string
	MaxVideos int
	Languages []string // transcript language preference order
}

type StorageConfig struct {
	DataDir string
	BlobDir string
}

type RetrievalConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Azure: AzureConfig{
			APIVersion:      "2024-12-01-preview",
			ChatDeployment:  "gpt-4o-mini",
			EmbedDeployment: "text-embedding-ada-002",
		},
		YouTube: YouTubeConfig{
			MaxVideos: 200,
			Languages: []string{"es", "en"},
		},
		Storage: StorageConfig{
			DataDir: dataDir,
			BlobDir: filepath.Join(dataDir, "blobs"),
		},
		Retrieval: RetrievalConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			TopK:         5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ttyv"
	}
	return filepath.Join(home, ".ttyv")
}

// Load builds configuration from defaults and TTYV_* environment variables.
// The Azure OpenAI endpoint and API key are required: without them the
// service cannot embed or answer, so Load fails instead of letting the
// process come up half-configured.
func Load() (Config, error) {
	return loadWith(os.Getenv)
}

func loadWith(getenv func(string) string) (Config, error) {
	cfg := defaults()

	setString(getenv, "TTYV_AZURE_OPENAI_ENDPOINT", &cfg.Azure.Endpoint)
	setString(getenv, "TTYV_AZURE_OPENAI_API_KEY", &cfg.Azure.APIKey)
	setString(getenv, "TTYV_AZURE_OPENAI_API_VERSION", &cfg.Azure.APIVersion)
	setString(getenv, "TTYV_AZURE_OPENAI_CHAT_DEPLOYMENT", &cfg.Azure.ChatDeployment)
	setString(getenv, "TTYV_AZURE_OPENAI_EMBEDDING_DEPLOYMENT", &cfg.Azure.EmbedDeployment)
	setString(getenv, "TTYV_API_TOKEN", &cfg.Server.APIToken)
	setString(getenv, "TTYV_YOUTUBE_API_KEY", &cfg.YouTube.APIKey)
	setString(getenv, "TTYV_YOUTUBE_CHANNEL_ID", &cfg.YouTube.ChannelID)
	setInt(getenv, "TTYV_MAX_VIDEOS", &cfg.YouTube.MaxVideos)
	if v := getenv("TTYV_TRANSCRIPT_LANGS"); v != "" {
		var langs []string
		for _, lang := range strings.Split(v, ",") {
			if lang = strings.TrimSpace(lang); lang != "" {
				langs = append(langs, lang)
			}
		}
		if len(langs) > 0 {
			cfg.YouTube.Languages = langs
		}
	}
	setString(getenv, "TTYV_DATA_DIR", &cfg.Storage.DataDir)
	setString(getenv, "TTYV_BLOB_DIR", &cfg.Storage.BlobDir)
	setString(getenv, "TTYV_LOG_LEVEL", &cfg.Log.Level)
	setInt(getenv, "TTYV_PORT", &cfg.Server.Port)
	setInt(getenv, "TTYV_CHUNK_SIZE", &cfg.Retrieval.ChunkSize)
	setInt(getenv, "TTYV_CHUNK_OVERLAP", &cfg.Retrieval.ChunkOverlap)
	setInt(getenv, "TTYV_TOP_K", &cfg.Retrieval.TopK)

	if cfg.Azure.Endpoint == "" {
		return Config{}, fmt.Errorf("missing required config: set TTYV_AZURE_OPENAI_ENDPOINT")
	}
	if cfg.Azure.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: set TTYV_AZURE_OPENAI_API_KEY")
	}
	if cfg.Retrieval.ChunkOverlap >= cfg.Retrieval.ChunkSize {
		return Config{}, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			cfg.Retrieval.ChunkOverlap, cfg.Retrieval.ChunkSize)
	}

	return cfg, nil
}

func setString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setInt(getenv func(string) string, key string, dst *int) {
	v := getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
