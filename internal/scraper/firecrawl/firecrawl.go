// Package firecrawl scrapes pages to markdown through the Firecrawl API.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"webrag/internal/domain"
	"webrag/internal/scraper"
)

// DefaultBaseURL is Firecrawl's hosted v1 API.
const DefaultBaseURL = "https://api.firecrawl.dev/v1"

type Config struct {
	BaseURL   string
	APIKeyEnv string
	Timeout   time.Duration
}

// Client implements domain.Scraper.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "FIRECRAWL_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  key,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title string `json:"title"`
		} `json:"metadata"`
	} `json:"data"`
}

// Scrape asks Firecrawl for the markdown rendering of url.
func (c *Client) Scrape(ctx context.Context, url string) (domain.ScrapedPage, error) {
	body, _ := json.Marshal(map[string]any{
		"url":     url,
		"formats": []string{"markdown"},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return domain.ScrapedPage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.ScrapedPage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.ScrapedPage{}, fmt.Errorf("firecrawl scrape failed: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var out scrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ScrapedPage{}, fmt.Errorf("firecrawl: decode response: %w", err)
	}
	if strings.TrimSpace(out.Data.Markdown) == "" {
		if out.Error != "" {
			return domain.ScrapedPage{}, fmt.Errorf("firecrawl: %s", out.Error)
		}
		return domain.ScrapedPage{}, scraper.ErrNoContent
	}
	return domain.ScrapedPage{URL: url, Title: out.Data.Metadata.Title, Markdown: out.Data.Markdown}, nil
}

var _ domain.Scraper = (*Client)(nil)
