// Package config loads the newsdesk configuration from YAML with
// environment overrides for deployment-specific values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port       string  `yaml:"port"`
	CORSOrigin string  `yaml:"cors_origin"`
	RateRPS    float64 `yaml:"rate_rps"`
	RateBurst  int     `yaml:"rate_burst"`
}

// QdrantConfig contains connection details for the vector store.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider        string `yaml:"provider"` // "ollama" or "openai"
	Model           string `yaml:"model"`
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	Dimension       int    `yaml:"dimension"`
	BatchSize       int    `yaml:"batch_size"`
	MaxTokens       int    `yaml:"max_tokens"`
	BatchIntervalMS int    `yaml:"batch_interval_ms"`
}

// BatchInterval returns the pacing between embedding batches.
func (c EmbeddingConfig) BatchInterval() time.Duration {
	return time.Duration(c.BatchIntervalMS) * time.Millisecond
}

// LLMConfig selects and tunes the answer generator.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "ollama" or "openai"
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// CacheConfig configures the session and query cache.
type CacheConfig struct {
	Path           string `yaml:"path"` // empty means in-memory
	KeyPrefix      string `yaml:"key_prefix"`
	SessionTTLSecs int    `yaml:"session_ttl_secs"`
	QueryTTLSecs   int    `yaml:"query_ttl_secs"`
}

// SessionTTL returns the session expiry as a duration.
func (c CacheConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSecs) * time.Second
}

// QueryTTL returns the cached-answer expiry as a duration.
func (c CacheConfig) QueryTTL() time.Duration {
	return time.Duration(c.QueryTTLSecs) * time.Second
}

// ChunkerConfig tunes document splitting.
type ChunkerConfig struct {
	MaxSize  int `yaml:"max_size"`
	MinSize  int `yaml:"min_size"`
	Overlap  int `yaml:"overlap"`
	Lookback int `yaml:"lookback"`
}

// RAGConfig tunes retrieval.
type RAGConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float32 `yaml:"score_threshold"`
	SystemPrompt   string  `yaml:"system_prompt"`
}

// NATSConfig configures the optional message-bus ingest consumer.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// SinkConfig configures durable chat history.
type SinkConfig struct {
	Path string `yaml:"path"` // empty disables the sink
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Cache     CacheConfig     `yaml:"cache"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	RAG       RAGConfig       `yaml:"rag"`
	NATS      NATSConfig      `yaml:"nats"`
	Sink      SinkConfig      `yaml:"sink"`
}

// Load reads the config at path, falling back to defaults when the file does
// not exist, then applies environment overrides. A .env file in the working
// directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults plus env overrides
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       "8080",
			CORSOrigin: "*",
			RateRPS:    20,
			RateBurst:  40,
		},
		Qdrant: QdrantConfig{
			URL:        "localhost:6334",
			Collection: "newsdesk",
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BaseURL:   "http://localhost:11434",
			Dimension: 768,
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "llama3.1",
			BaseURL:     "http://localhost:11434",
			Temperature: 0.2,
		},
		Cache: CacheConfig{
			SessionTTLSecs: 1800,
			QueryTTLSecs:   3600,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = envOr("PORT", cfg.Server.Port)
	cfg.Server.CORSOrigin = envOr("CORS_ORIGIN", cfg.Server.CORSOrigin)
	cfg.Qdrant.URL = envOr("QDRANT_URL", cfg.Qdrant.URL)
	cfg.Qdrant.Collection = envOr("QDRANT_COLLECTION", cfg.Qdrant.Collection)
	cfg.Embedding.Provider = envOr("EMBED_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.Model = envOr("EMBED_MODEL", cfg.Embedding.Model)
	cfg.Embedding.BaseURL = envOr("EMBED_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.APIKey = envOr("EMBED_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.Dimension = envIntOr("EMBED_DIMENSION", cfg.Embedding.Dimension)
	cfg.LLM.Provider = envOr("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = envOr("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.BaseURL = envOr("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = envOr("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.Cache.Path = envOr("CACHE_PATH", cfg.Cache.Path)
	cfg.NATS.URL = envOr("NATS_URL", cfg.NATS.URL)
	cfg.Sink.Path = envOr("HISTORY_DB", cfg.Sink.Path)
	if v := os.Getenv("NATS_ENABLED"); v != "" {
		cfg.NATS.Enabled = v == "1" || v == "true"
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
