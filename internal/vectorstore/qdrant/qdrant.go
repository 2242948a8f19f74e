// Package qdrant is a minimal REST client to Qdrant implementing
// domain.VectorStore.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"webrag/internal/domain"
	"webrag/internal/vectorstore"
)

// Storage assumes cosine distance and creates the collection on first write,
// sized by the first embedding it sees. Ordering of equal scores is decided
// by Qdrant.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
	embedder   domain.Embedder

	mu    sync.Mutex
	ready bool
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config, embedder domain.Embedder) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "scraped_content"
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
		embedder:   embedder,
	}
}

// Collection returns the collection name.
func (s *Storage) Collection() string { return s.collection }

// URL returns the server base URL.
func (s *Storage) URL() string { return s.url }

// PointID maps a passage id onto the UUID Qdrant requires as a point id.
func PointID(passageID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(passageID)).String()
}

type payload struct {
	PassageID     string    `json:"passage_id"`
	Text          string    `json:"text"`
	Origin        string    `json:"origin"`
	Position      int       `json:"position"`
	TotalPassages int       `json:"total_passages"`
	IngestedAt    time.Time `json:"ingested_at"`
}

func (s *Storage) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	var info struct {
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &info)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	if status == http.StatusNotFound {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

// Upsert embeds the passage and writes it as a single point. Qdrant replaces
// the whole point, payload included.
func (s *Storage) Upsert(ctx context.Context, p domain.Passage) error {
	if err := vectorstore.ValidatePassage(p); err != nil {
		return err
	}
	vec, err := s.embedder.Embed(ctx, p.Text)
	if err != nil {
		return domain.EmbeddingFailure("qdrant.upsert", err)
	}
	if err := s.ensureCollection(ctx, len(vec)); err != nil {
		return domain.StoreUnavailable("qdrant.collection", err)
	}
	m := p.Metadata
	body := map[string]any{"points": []map[string]any{{
		"id":     PointID(p.ID),
		"vector": vec,
		"payload": payload{
			PassageID:     p.ID,
			Text:          p.Text,
			Origin:        m.Origin,
			Position:      m.Position,
			TotalPassages: m.TotalPassages,
			IngestedAt:    m.IngestedAt.UTC(),
		},
	}}}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
		return domain.StoreUnavailable("qdrant.upsert", err)
	}
	return nil
}

// Query searches for the k nearest points. Distance is 1 - score.
func (s *Storage) Query(ctx context.Context, text string, k int) ([]domain.QueryResult, error) {
	if err := vectorstore.ValidateQuery(k); err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, domain.EmbeddingFailure("qdrant.query", err)
	}
	req := map[string]any{
		"vector":       vec,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp)
	if status == http.StatusNotFound {
		// nothing has been written yet
		return []domain.QueryResult{}, nil
	}
	if err != nil {
		return nil, domain.StoreUnavailable("qdrant.query", err)
	}
	results := make([]domain.QueryResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		pl := r.Payload
		results = append(results, domain.QueryResult{
			PassageID: pl.PassageID,
			Text:      pl.Text,
			Metadata: domain.PassageMetadata{
				Origin:        pl.Origin,
				Position:      pl.Position,
				TotalPassages: pl.TotalPassages,
				IngestedAt:    pl.IngestedAt,
			},
			Distance: 1 - r.Score,
		})
	}
	return results, nil
}

// Count returns the exact number of points in the collection.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp)
	if status == http.StatusNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, domain.StoreUnavailable("qdrant.count", err)
	}
	return resp.Result.Count, nil
}

// Clear drops the collection. It is recreated on the next write.
func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return domain.StoreUnavailable("qdrant.clear", err)
	}
	s.ready = false
	return nil
}

// Close releases idle connections.
func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// do sends a JSON request and decodes the response into out. The status code
// is returned even when err is set so callers can special-case 404.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

var _ domain.VectorStore = (*Storage)(nil)
