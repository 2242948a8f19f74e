package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"webrag/internal/archive"
	"webrag/internal/chunker"
	"webrag/internal/config"
	"webrag/internal/domain"
	"webrag/internal/embedding"
	"webrag/internal/embedding/hashing"
	embopenai "webrag/internal/embedding/openai"
	genopenai "webrag/internal/generation/openai"
	"webrag/internal/logging"
	"webrag/internal/metrics"
	"webrag/internal/scraper"
	"webrag/internal/scraper/cache"
	"webrag/internal/scraper/firecrawl"
	"webrag/internal/scraper/readability"
	"webrag/internal/service"
	"webrag/internal/summarizer"
	"webrag/internal/vectorstore"
	"webrag/internal/vectorstore/memory"
	"webrag/internal/vectorstore/postgres"
	"webrag/internal/vectorstore/qdrant"
	"webrag/internal/vectorstore/sqlite"
)

// app holds the assembled components for one command run.
type app struct {
	cfg     *config.AppConfig
	log     *logrus.Logger
	metrics *metrics.Metrics
	svc     *service.Service
	closers []func() error
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{cfg: cfg, log: logging.New(cfg.Log), metrics: metrics.New()}

	ch, err := buildChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	emb, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	st, info, err := buildStore(ctx, cfg.VectorStore, emb)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	// generation and scraping are optional; commands that need them report
	// them as not configured
	gen, err := buildGenerator(cfg.Generator)
	if err != nil {
		a.log.WithError(err).Debug("generator disabled")
	}
	scr, err := a.buildScraper(ctx, cfg.Scraper)
	if err != nil {
		a.log.WithError(err).Debug("scraper disabled")
	}
	var arch domain.Archiver
	if cfg.Archive.Enabled {
		arch = archive.New(nil, cfg.Archive.Dir)
	}

	a.svc = service.New(service.Deps{
		Chunker:   ch,
		Store:     st,
		StoreInfo: info,
		Generator: gen,
		Scraper:   scr,
		Archiver:  arch,
		Metrics:   a.metrics,
		Logger:    a.log,
	}, service.Options{
		Concurrency:    cfg.Ingest.Concurrency,
		MaxRetries:     cfg.Ingest.MaxRetries,
		InitialBackoff: cfg.Ingest.InitialBackoff(),
		StoreTimeout:   cfg.Ingest.StoreTimeout(),
		ScrapeTimeout:  cfg.Ingest.ScrapeTimeout(),
		DefaultK:       cfg.Retrieval.DefaultK,
	})
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
}

func buildChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "sentence":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences)
	case "window", "":
		return chunker.New(chunker.WithChunkSize(cfg.ChunkSize), chunker.WithOverlap(cfg.Overlap))
	}
	return nil, fmt.Errorf("unknown chunker: %s", cfg.Type)
}

func buildEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	var inner domain.Embedder
	switch cfg.Type {
	case "hashing", "":
		inner = hashing.New(cfg.Dimension)
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   secs(cfg.OpenAI.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		inner = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
	return embedding.NewGuard(inner,
		embedding.WithTimeout(secs(cfg.TimeoutSecs)),
		embedding.WithRateLimit(cfg.RateLimit, cfg.Burst),
	), nil
}

func buildStore(ctx context.Context, cfg config.VectorStoreConfig, emb domain.Embedder) (vectorstore.Storage, service.StoreInfo, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(emb), service.StoreInfo{Backend: "memory", Collection: "scraped_content"}, nil
	case "sqlite":
		path := "webrag.db"
		if cfg.SQLite != nil && cfg.SQLite.Path != "" {
			path = cfg.SQLite.Path
		}
		st, err := sqlite.Open(ctx, path, emb)
		if err != nil {
			return nil, service.StoreInfo{}, err
		}
		return st, service.StoreInfo{Backend: "sqlite", Collection: "passages", Location: st.Path()}, nil
	case "postgres":
		if cfg.Postgres == nil {
			return nil, service.StoreInfo{}, fmt.Errorf("postgres config missing")
		}
		dsn := postgresDSN(cfg.Postgres)
		if dsn == "" {
			return nil, service.StoreInfo{}, fmt.Errorf("postgres dsn missing (set vector_store.postgres.dsn or $%s)", cfg.Postgres.DSNEnv)
		}
		st, err := postgres.Open(ctx, dsn, emb)
		if err != nil {
			return nil, service.StoreInfo{}, err
		}
		return st, service.StoreInfo{Backend: "postgres", Collection: "passages"}, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, service.StoreInfo{}, fmt.Errorf("qdrant config missing")
		}
		st := qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    secs(cfg.Qdrant.TimeoutSecs),
		}, emb)
		return st, service.StoreInfo{Backend: "qdrant", Collection: st.Collection(), Location: st.URL()}, nil
	}
	return nil, service.StoreInfo{}, fmt.Errorf("unknown vector store: %s", cfg.Type)
}

func postgresDSN(cfg *config.PostgresConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	if cfg.DSNEnv != "" {
		return os.Getenv(cfg.DSNEnv)
	}
	return ""
}

func buildGenerator(cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "frequency":
		return summarizer.NewFrequencySummarizer(cfg.MaxSentences), nil
	case "none", "":
		return nil, nil
	case "openai":
		o := cfg.OpenAI
		if o == nil {
			o = &config.OpenAIGeneratorConfig{}
		}
		client, err := genopenai.NewClient(genopenai.Config{
			BaseURL:     o.BaseURL,
			APIKeyEnv:   o.APIKeyEnv,
			Model:       o.Model,
			Timeout:     secs(o.TimeoutSecs),
			Temperature: o.Temperature,
			MaxTokens:   o.MaxTokens,
			TopP:        o.TopP,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
}

func (a *app) buildScraper(ctx context.Context, cfg config.ScraperConfig) (domain.Scraper, error) {
	var s domain.Scraper
	switch cfg.Type {
	case "readability":
		s = readability.New(readability.Config{UserAgent: cfg.UserAgent, Timeout: secs(cfg.TimeoutSecs)})
	case "firecrawl", "":
		fc := cfg.Firecrawl
		if fc == nil {
			fc = &config.FirecrawlConfig{}
		}
		client, err := firecrawl.NewClient(firecrawl.Config{
			BaseURL:   fc.BaseURL,
			APIKeyEnv: fc.APIKeyEnv,
			Timeout:   secs(cfg.TimeoutSecs),
		})
		if err != nil {
			return nil, err
		}
		s = client
	default:
		return nil, fmt.Errorf("unknown scraper: %s", cfg.Type)
	}
	s = scraper.NewLimited(s, cfg.RateLimit, cfg.Burst)

	switch cfg.Cache.Type {
	case "memory":
		s = cache.Wrap(s, cache.NewMemory(), cfg.Cache.TTL(), a.log)
	case "redis":
		rc := cfg.Cache.Redis
		if rc == nil {
			rc = &config.RedisConfig{Addr: "localhost:6379"}
		}
		store, err := cache.NewRedis(ctx, cache.RedisConfig{Addr: rc.Addr, Password: rc.Password, DB: rc.DB, Prefix: rc.Prefix})
		if err != nil {
			a.log.WithError(err).Warn("redis scrape cache unavailable, scraping uncached")
			return s, nil
		}
		a.closers = append(a.closers, store.Close)
		s = cache.Wrap(s, store, cfg.Cache.TTL(), a.log)
	}
	return s, nil
}
