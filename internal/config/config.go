package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"webrag/internal/chunker"
	"webrag/internal/domain"
	"webrag/internal/logging"
)

// ChunkerConfig configures how documents are split into passages.
// Type "window" splits on characters, "sentence" on sentence boundaries.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	ChunkSize         int    `yaml:"chunk_size"`
	Overlap           int    `yaml:"overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string                `yaml:"type"`
	Dimension   int                   `yaml:"dimension"`
	TimeoutSecs int                   `yaml:"timeout_secs"`
	RateLimit   float64               `yaml:"rate_limit"`
	Burst       int                   `yaml:"burst"`
	OpenAI      *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig points at a database with the pgvector extension available.
type PostgresConfig struct {
	DSN    string `yaml:"dsn"`
	DSNEnv string `yaml:"dsn_env"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// GeneratorConfig selects the answer generator. "openai" talks to a chat
// completions endpoint, "frequency" is an offline extractive summarizer and
// "none" disables answering.
type GeneratorConfig struct {
	Type         string                 `yaml:"type"`
	MaxSentences int                    `yaml:"max_sentences"`
	OpenAI       *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
}

type OpenAIGeneratorConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
	TopP        float64 `yaml:"top_p"`
}

// ScraperConfig selects the page scraper and its decorators.
type ScraperConfig struct {
	Type        string           `yaml:"type"`
	TimeoutSecs int              `yaml:"timeout_secs"`
	UserAgent   string           `yaml:"user_agent"`
	RateLimit   float64          `yaml:"rate_limit"`
	Burst       int              `yaml:"burst"`
	Firecrawl   *FirecrawlConfig `yaml:"firecrawl,omitempty"`
	Cache       CacheConfig      `yaml:"cache"`
}

type FirecrawlConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// CacheConfig enables the scrape cache. Type is "none", "memory" or "redis".
type CacheConfig struct {
	Type    string       `yaml:"type"`
	TTLSecs int          `yaml:"ttl_secs"`
	Redis   *RedisConfig `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// IngestConfig bounds the ingestion fan-out and its retry policy.
type IngestConfig struct {
	Concurrency       int `yaml:"concurrency"`
	MaxRetries        int `yaml:"max_retries"`
	InitialBackoffMS  int `yaml:"initial_backoff_ms"`
	StoreTimeoutSecs  int `yaml:"store_timeout_secs"`
	ScrapeTimeoutSecs int `yaml:"scrape_timeout_secs"`
}

type RetrievalConfig struct {
	DefaultK int `yaml:"default_k"`
}

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Scraper     ScraperConfig     `yaml:"scraper"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Server      ServerConfig      `yaml:"server"`
	Log         logging.Config    `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/webrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/webrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings no component could be built from. Chunk
// parameter errors carry the offending field.
func (c *AppConfig) Validate() error {
	switch c.Chunker.Type {
	case "window":
		if err := chunker.Validate(c.Chunker.ChunkSize, c.Chunker.Overlap); err != nil {
			return err
		}
	case "sentence":
		if _, err := chunker.NewSentenceChunker(c.Chunker.SentencesPerChunk, c.Chunker.OverlapSentences); err != nil {
			return err
		}
	default:
		return domain.InvalidInput("chunker.type", "unknown chunker %q", c.Chunker.Type)
	}

	switch c.Embedder.Type {
	case "hashing", "openai":
	default:
		return domain.InvalidInput("embedder.type", "unknown embedder %q", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "memory", "sqlite", "postgres", "qdrant":
	default:
		return domain.InvalidInput("vector_store.type", "unknown vector store %q", c.VectorStore.Type)
	}
	switch c.Generator.Type {
	case "openai", "frequency", "none":
	default:
		return domain.InvalidInput("generator.type", "unknown generator %q", c.Generator.Type)
	}
	switch c.Scraper.Type {
	case "firecrawl", "readability":
	default:
		return domain.InvalidInput("scraper.type", "unknown scraper %q", c.Scraper.Type)
	}
	switch c.Scraper.Cache.Type {
	case "none", "memory", "redis":
	default:
		return domain.InvalidInput("scraper.cache.type", "unknown cache %q", c.Scraper.Cache.Type)
	}
	if c.Ingest.MaxRetries < 0 {
		return domain.InvalidInput("ingest.max_retries", "must not be negative")
	}
	if c.Retrieval.DefaultK < 1 {
		return domain.InvalidInput("retrieval.default_k", "must be at least 1")
	}
	return nil
}

// StoreTimeout converts store_timeout_secs.
func (c IngestConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSecs) * time.Second
}

func (c IngestConfig) ScrapeTimeout() time.Duration {
	return time.Duration(c.ScrapeTimeoutSecs) * time.Second
}

func (c IngestConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "webrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Chunker:     ChunkerConfig{Type: "window", ChunkSize: chunker.DefaultChunkSize, Overlap: chunker.DefaultOverlap},
		Embedder:    EmbedderConfig{Type: "hashing", Dimension: 512, TimeoutSecs: 30},
		VectorStore: VectorStoreConfig{Type: "sqlite", SQLite: &SQLiteConfig{Path: "webrag.db"}},
		Generator:   GeneratorConfig{Type: "openai", MaxSentences: 5},
		Scraper:     ScraperConfig{Type: "firecrawl", TimeoutSecs: 30, Cache: CacheConfig{Type: "memory", TTLSecs: 3600}},
		Archive:     ArchiveConfig{Enabled: true, Dir: "scraped_data"},
		Ingest: IngestConfig{
			Concurrency:       4,
			MaxRetries:        3,
			InitialBackoffMS:  200,
			StoreTimeoutSecs:  30,
			ScrapeTimeoutSecs: 60,
		},
		Retrieval: RetrievalConfig{DefaultK: 5},
		Server:    ServerConfig{Addr: ":8000", AllowOrigins: []string{"*"}},
		Log:       logging.Config{Level: "info", Format: "text"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.Type == "sentence" && cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI == nil {
		cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
	}
	if o := cfg.Embedder.OpenAI; o != nil {
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
	}
	switch cfg.VectorStore.Type {
	case "sqlite":
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{Path: "webrag.db"}
		}
	case "postgres":
		if cfg.VectorStore.Postgres == nil {
			cfg.VectorStore.Postgres = &PostgresConfig{}
		}
		if cfg.VectorStore.Postgres.DSN == "" && cfg.VectorStore.Postgres.DSNEnv == "" {
			cfg.VectorStore.Postgres.DSNEnv = "DATABASE_URL"
		}
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "scraped_content"
		}
	}
	if cfg.Generator.Type == "openai" && cfg.Generator.OpenAI == nil {
		cfg.Generator.OpenAI = &OpenAIGeneratorConfig{}
	}
	if cfg.Scraper.Type == "firecrawl" && cfg.Scraper.Firecrawl == nil {
		cfg.Scraper.Firecrawl = &FirecrawlConfig{}
	}
	if cfg.Scraper.Cache.Type == "" {
		cfg.Scraper.Cache.Type = "none"
	}
	if cfg.Scraper.Cache.Type == "redis" && cfg.Scraper.Cache.Redis == nil {
		cfg.Scraper.Cache.Redis = &RedisConfig{Addr: "localhost:6379"}
	}
}
