package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"webrag/internal/domain"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() || os.Getenv("WEBRAG_INTEGRATION") == "" {
		t.Skip("set WEBRAG_INTEGRATION=1 to run container tests")
	}
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedis_Key(t *testing.T) {
	r := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	defer r.Close()

	k := r.Key("https://go.dev")
	assert.Regexp(t, `^webrag:scrape:[0-9a-f]{16}$`, k)
	assert.Equal(t, k, r.Key("https://go.dev"))
	assert.NotEqual(t, k, r.Key("https://go.dev/doc"))
}

func TestRedis_RoundTrip(t *testing.T) {
	client := startRedis(t)
	r := NewRedisWithClient(client, "test:")
	ctx := context.Background()

	_, ok, err := r.Get(ctx, "https://go.dev")
	require.NoError(t, err)
	assert.False(t, ok)

	want := domain.ScrapedPage{URL: "https://go.dev", Title: "Go", Markdown: "# Go"}
	require.NoError(t, r.Set(ctx, want.URL, want, time.Minute))

	got, ok, err := r.Get(ctx, want.URL)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	ttl, err := client.TTL(ctx, r.Key(want.URL)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedis_BehindScraper(t *testing.T) {
	client := startRedis(t)
	inner := &countingScraper{}
	s := Wrap(inner, NewRedisWithClient(client, ""), time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := s.Scrape(context.Background(), "https://go.dev/blog")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, inner.calls)
}
