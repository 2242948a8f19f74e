// Package readability scrapes pages directly and extracts the main article
// text, for deployments without a Firecrawl key.
package readability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"webrag/internal/domain"
	"webrag/internal/scraper"
)

const maxBody = 8 << 20

type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Scraper implements domain.Scraper on plain HTTP GETs.
type Scraper struct {
	userAgent string
	client    *http.Client
}

func New(cfg Config) *Scraper {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "webrag/1.0 (+https://github.com/go-shiori/go-readability)"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Scraper{userAgent: cfg.UserAgent, client: &http.Client{Timeout: cfg.Timeout}}
}

// Scrape downloads rawURL and returns its readable text. The title, when
// present, becomes a leading markdown heading.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (domain.ScrapedPage, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.ScrapedPage{}, fmt.Errorf("parse url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.ScrapedPage{}, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.ScrapedPage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.ScrapedPage{}, fmt.Errorf("fetch %s: %s", rawURL, resp.Status)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxBody), u)
	if err != nil {
		return domain.ScrapedPage{}, fmt.Errorf("extract article: %w", err)
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return domain.ScrapedPage{}, scraper.ErrNoContent
	}
	title := strings.TrimSpace(article.Title)
	md := text
	if title != "" {
		md = "# " + title + "\n\n" + text
	}
	return domain.ScrapedPage{URL: rawURL, Title: title, Markdown: md}, nil
}

var _ domain.Scraper = (*Scraper)(nil)
