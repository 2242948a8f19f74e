// Package cache memoizes scraped pages so repeated scrape requests for the
// same URL within a TTL do not hit the upstream again.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"webrag/internal/domain"
	"webrag/internal/logging"
)

// Store is a TTL key/value store for scraped pages.
type Store interface {
	Get(ctx context.Context, url string) (domain.ScrapedPage, bool, error)
	Set(ctx context.Context, url string, page domain.ScrapedPage, ttl time.Duration) error
}

// Scraper serves pages from a Store and falls through to inner on a miss.
// Cache errors are logged and never fail a scrape.
type Scraper struct {
	inner domain.Scraper
	store Store
	ttl   time.Duration
	log   logrus.FieldLogger
}

func Wrap(inner domain.Scraper, store Store, ttl time.Duration, log logrus.FieldLogger) *Scraper {
	return &Scraper{inner: inner, store: store, ttl: ttl, log: logging.Component(log, "scrape-cache")}
}

func (s *Scraper) Scrape(ctx context.Context, url string) (domain.ScrapedPage, error) {
	page, ok, err := s.store.Get(ctx, url)
	switch {
	case err != nil:
		s.log.WithError(err).WithField("url", url).Warn("cache lookup failed")
	case ok:
		s.log.WithField("url", url).Debug("cache hit")
		return page, nil
	}

	page, err = s.inner.Scrape(ctx, url)
	if err != nil {
		return page, err
	}
	if err := s.store.Set(ctx, url, page, s.ttl); err != nil {
		s.log.WithError(err).WithField("url", url).Warn("cache write failed")
	}
	return page, nil
}

// Memory is a process-local Store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	page    domain.ScrapedPage
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, url string) (domain.ScrapedPage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[url]
	if !ok {
		return domain.ScrapedPage{}, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, url)
		return domain.ScrapedPage{}, false, nil
	}
	return e.page, true, nil
}

// Set stores page. A non-positive ttl never expires.
func (m *Memory) Set(_ context.Context, url string, page domain.ScrapedPage, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{page: page}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[url] = e
	return nil
}

var (
	_ domain.Scraper = (*Scraper)(nil)
	_ Store          = (*Memory)(nil)
)
