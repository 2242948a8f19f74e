package service

import (
	"context"
	"fmt"
	"time"

	"webrag/internal/domain"
)

// ScrapeResult is the outcome of scraping one URL without storing it.
type ScrapeResult struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Markdown string `json:"markdown,omitempty"`
	Error    string `json:"error,omitempty"`

	Err error `json:"-"`
}

// Scrape fetches every URL concurrently and returns the content in input
// order.
func (s *Service) Scrape(ctx context.Context, urls []string) ([]ScrapeResult, error) {
	if err := s.checkScrape(urls); err != nil {
		return nil, err
	}
	defer s.metrics.Since("scrape", time.Now())

	results := make([]ScrapeResult, len(urls))
	s.fanOut(len(urls), func(i int) {
		page, err := s.scrapeOne(ctx, urls[i])
		results[i] = ScrapeResult{URL: urls[i], Title: page.Title, Markdown: page.Markdown}
		if err != nil {
			results[i].Error = err.Error()
			results[i].Err = err
		}
	})
	return results, nil
}

// ScrapeAndStore scrapes each URL, archives the raw markdown when an archiver
// is configured, and ingests the content under the URL as origin.
func (s *Service) ScrapeAndStore(ctx context.Context, urls []string) (domain.IngestReport, error) {
	if err := s.checkScrape(urls); err != nil {
		return domain.IngestReport{}, err
	}
	defer s.metrics.Since("scrape_and_store", time.Now())

	report := domain.IngestReport{Results: make([]domain.DocumentReport, len(urls))}
	s.fanOut(len(urls), func(i int) {
		report.Results[i] = s.scrapeAndStoreOne(ctx, urls[i])
	})
	report.Summarize()
	return report, nil
}

func (s *Service) scrapeAndStoreOne(ctx context.Context, rawURL string) domain.DocumentReport {
	page, err := s.scrapeOne(ctx, rawURL)
	if err != nil {
		s.metrics.DocumentDone(domain.StatusFailed)
		s.log.WithError(err).WithField("url", rawURL).Warn("scrape failed")
		return domain.DocumentReport{
			Origin: rawURL,
			Status: domain.StatusFailed,
			Error:  err.Error(),
			Field:  domain.FieldOf(err),
			Err:    err,
		}
	}

	at := s.now().UTC()
	var archivePath string
	if s.archiver != nil {
		archivePath, err = s.archiver.Save(ctx, rawURL, page.Markdown, at)
		if err != nil {
			// the content is still worth storing
			s.log.WithError(err).WithField("url", rawURL).Warn("archive failed")
		}
	}

	rep := s.ingestDocument(ctx, domain.Document{Origin: rawURL, Text: page.Markdown, IngestedAt: at})
	rep.ArchivePath = archivePath
	return rep
}

func (s *Service) scrapeOne(ctx context.Context, rawURL string) (domain.ScrapedPage, error) {
	if err := checkURL(rawURL); err != nil {
		return domain.ScrapedPage{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.ScrapeTimeout)
	defer cancel()
	page, err := s.scraper.Scrape(ctx, rawURL)
	if err != nil {
		return domain.ScrapedPage{}, fmt.Errorf("scrape %s: %w", rawURL, err)
	}
	return page, nil
}

func (s *Service) checkScrape(urls []string) error {
	if len(urls) == 0 {
		return domain.InvalidInput("urls", "at least one url is required")
	}
	if s.scraper == nil {
		return fmt.Errorf("scrape: scraper %w", ErrNotConfigured)
	}
	return nil
}
