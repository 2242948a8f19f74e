package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"webrag/internal/domain"
)

// DefaultPrefix namespaces cache keys.
const DefaultPrefix = "webrag:scrape:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Redis shares the scrape cache between processes.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisWithClient(client, cfg.Prefix), nil
}

func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// Key hashes url so arbitrary URLs make bounded keys.
func (r *Redis) Key(url string) string {
	return fmt.Sprintf("%s%016x", r.prefix, xxhash.Sum64String(url))
}

func (r *Redis) Get(ctx context.Context, url string) (domain.ScrapedPage, bool, error) {
	val, err := r.client.Get(ctx, r.Key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ScrapedPage{}, false, nil
	}
	if err != nil {
		return domain.ScrapedPage{}, false, err
	}
	var page domain.ScrapedPage
	if err := json.Unmarshal(val, &page); err != nil {
		return domain.ScrapedPage{}, false, fmt.Errorf("decode cached page: %w", err)
	}
	// a hash collision must not serve another URL's page
	if page.URL != url {
		return domain.ScrapedPage{}, false, nil
	}
	return page, true, nil
}

// Set stores page. A non-positive ttl never expires.
func (r *Redis) Set(ctx context.Context, url string, page domain.ScrapedPage, ttl time.Duration) error {
	page.URL = url
	data, err := json.Marshal(page)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.Key(url), data, ttl).Err()
}

func (r *Redis) Close() error { return r.client.Close() }

var _ Store = (*Redis)(nil)
