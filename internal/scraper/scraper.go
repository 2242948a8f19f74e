// Package scraper holds the decorators shared by the scraping backends.
package scraper

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"webrag/internal/domain"
)

// ErrNoContent is returned when a page yields no text.
var ErrNoContent = errors.New("no markdown content found")

// Limited throttles an inner scraper to respect the upstream's rate limit.
type Limited struct {
	inner   domain.Scraper
	limiter *rate.Limiter
}

// NewLimited wraps inner. A non-positive rps returns inner unchanged.
func NewLimited(inner domain.Scraper, rps float64, burst int) domain.Scraper {
	if rps <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Scrape waits for a token, then delegates.
func (l *Limited) Scrape(ctx context.Context, url string) (domain.ScrapedPage, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return domain.ScrapedPage{}, &domain.Error{Kind: domain.ErrTimeout, Op: "scrape", Err: err}
	}
	return l.inner.Scrape(ctx, url)
}
