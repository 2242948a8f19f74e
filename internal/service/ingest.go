package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"webrag/internal/domain"
	"webrag/internal/identity"
)

// Ingest chunks, identifies and stores every document. Documents run
// concurrently; a failed document is reported in its slot and never stops
// its siblings. The returned error is only set when the batch itself is
// malformed.
func (s *Service) Ingest(ctx context.Context, docs []domain.Document) (domain.IngestReport, error) {
	if len(docs) == 0 {
		return domain.IngestReport{}, domain.InvalidInput("documents", "at least one document is required")
	}
	defer s.metrics.Since("ingest", time.Now())

	report := domain.IngestReport{Results: make([]domain.DocumentReport, len(docs))}
	s.fanOut(len(docs), func(i int) {
		report.Results[i] = s.ingestDocument(ctx, docs[i])
	})
	report.Summarize()
	s.log.WithFields(logrus.Fields{
		"documents": report.Summary.Total,
		"failed":    report.Summary.Failed,
		"passages":  report.Summary.PassagesStored,
	}).Info("ingest finished")
	return report, nil
}

func (s *Service) ingestDocument(ctx context.Context, doc domain.Document) domain.DocumentReport {
	rep := domain.DocumentReport{Origin: doc.Origin}
	err := s.storeDocument(ctx, doc, &rep.Passages)
	if err != nil {
		rep.Status = domain.StatusFailed
		rep.Error = err.Error()
		rep.Field = domain.FieldOf(err)
		rep.Err = err
		s.log.WithError(err).WithField("origin", doc.Origin).Warn("document failed")
	} else {
		rep.Status = domain.StatusSuccess
		s.log.WithField("origin", doc.Origin).WithField("passages", rep.Passages).Debug("document stored")
	}
	s.metrics.DocumentDone(rep.Status)
	return rep
}

// storeDocument upserts every passage of doc, counting successes into stored.
// Each passage is attempted independently; failures are aggregated.
func (s *Service) storeDocument(ctx context.Context, doc domain.Document, stored *int) error {
	if strings.TrimSpace(doc.Origin) == "" {
		return domain.InvalidInput("origin", "origin must be provided")
	}
	if strings.TrimSpace(doc.Text) == "" {
		return domain.InvalidInput("text", "text of %s is empty", doc.Origin)
	}
	chunks, err := s.chunker.Chunk(doc.Text)
	if err != nil {
		return err
	}
	at := doc.IngestedAt
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	var merr *multierror.Error
	for position, text := range chunks {
		p := domain.Passage{
			ID:   identity.Assign(doc.Origin, position),
			Text: text,
			Metadata: domain.PassageMetadata{
				Origin:        doc.Origin,
				Position:      position,
				TotalPassages: len(chunks),
				IngestedAt:    at,
			},
		}
		if err := s.upsert(ctx, p); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("passage %d: %w", position, err))
			continue
		}
		*stored++
		s.metrics.PassageStored()
	}
	return merr.ErrorOrNil()
}

// upsert writes one passage, retrying retryable failures with exponential
// backoff. Every attempt gets its own time bound.
func (s *Service) upsert(ctx context.Context, p domain.Passage) error {
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
		defer cancel()
		err := domain.StoreUnavailable("upsert", s.store.Upsert(callCtx, p))
		if err != nil && !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.MaxRetries)), ctx)

	return backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
		s.log.WithError(err).WithField("passage", p.ID).WithField("wait", wait).Warn("upsert failed, retrying")
	})
}
