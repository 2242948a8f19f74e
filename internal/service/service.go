// Package service wires chunking, identity, storage, retrieval and generation
// into the operations exposed by the CLI and the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"webrag/internal/domain"
	"webrag/internal/logging"
	"webrag/internal/metrics"
	"webrag/internal/retriever"
)

// NoContextResponse is returned by Answer when retrieval finds nothing.
const NoContextResponse = "I don't have any relevant information in my database to answer your question. Please try scraping some relevant content first using the /scrape-and-store endpoint."

// ErrGeneration wraps failures of the generation collaborator.
var ErrGeneration = errors.New("generation failed")

// ErrNotConfigured is returned when an operation needs a collaborator that
// was not wired.
var ErrNotConfigured = errors.New("not configured")

// Options tunes concurrency, retries and time bounds.
type Options struct {
	Concurrency    int
	MaxRetries     int
	InitialBackoff time.Duration
	StoreTimeout   time.Duration
	ScrapeTimeout  time.Duration
	DefaultK       int
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 200 * time.Millisecond
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 30 * time.Second
	}
	if o.ScrapeTimeout <= 0 {
		o.ScrapeTimeout = 60 * time.Second
	}
	if o.DefaultK <= 0 {
		o.DefaultK = 5
	}
	return o
}

// StoreInfo describes the configured backend for Info.
type StoreInfo struct {
	Backend    string
	Collection string
	Location   string
}

// Info is the introspection result of the store.
type Info struct {
	Collection    string `json:"collection_name"`
	TotalPassages int    `json:"total_documents"`
	Backend       string `json:"backend"`
	Location      string `json:"location"`
}

// Deps are the collaborators of a Service. Chunker and Store are required;
// the rest enable the operations that need them.
type Deps struct {
	Chunker   domain.Chunker
	Store     domain.VectorStore
	StoreInfo StoreInfo
	Generator domain.Generator
	Scraper   domain.Scraper
	Archiver  domain.Archiver
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger
}

// Service implements ingestion, retrieval and answering.
type Service struct {
	chunker   domain.Chunker
	store     domain.VectorStore
	storeInfo StoreInfo
	retriever *retriever.Retriever
	generator domain.Generator
	scraper   domain.Scraper
	archiver  domain.Archiver
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
	opts      Options
	now       func() time.Time
}

// New builds a Service.
func New(deps Deps, opts Options) *Service {
	return &Service{
		chunker:   deps.Chunker,
		store:     deps.Store,
		storeInfo: deps.StoreInfo,
		retriever: retriever.New(deps.Store),
		generator: deps.Generator,
		scraper:   deps.Scraper,
		archiver:  deps.Archiver,
		metrics:   deps.Metrics,
		log:       logging.Component(deps.Logger, "service"),
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

// Retrieve validates the query and returns the assembled context. The read
// path is bounded by the store timeout and never retried.
func (s *Service) Retrieve(ctx context.Context, query string, k int) (domain.Retrieval, error) {
	k, err := s.checkQuery(query, k)
	if err != nil {
		return domain.Retrieval{}, err
	}
	defer s.metrics.Since("retrieve", time.Now())

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	r, err := s.retriever.Retrieve(ctx, query, k)
	if err != nil {
		s.log.WithError(err).Warn("retrieve failed")
		return domain.Retrieval{}, domain.StoreUnavailable("retrieve", err)
	}
	s.metrics.Retrieved(r.Found)
	return r, nil
}

// Search returns the raw nearest passages for query.
func (s *Service) Search(ctx context.Context, query string, k int) ([]domain.QueryResult, error) {
	k, err := s.checkQuery(query, k)
	if err != nil {
		return nil, err
	}
	defer s.metrics.Since("search", time.Now())

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	res, err := s.store.Query(ctx, query, k)
	if err != nil {
		return nil, domain.StoreUnavailable("search", err)
	}
	if res == nil {
		res = []domain.QueryResult{}
	}
	return res, nil
}

// Answer retrieves context for query and hands it, unmodified, to the
// generator. When nothing is retrieved the generator is not called.
func (s *Service) Answer(ctx context.Context, query string, k int) (domain.Answer, error) {
	r, err := s.Retrieve(ctx, query, k)
	if err != nil {
		return domain.Answer{}, err
	}
	if !r.Found {
		return domain.Answer{
			Query:       query,
			Response:    NoContextResponse,
			Citations:   []domain.Citation{},
			ContextUsed: false,
		}, nil
	}
	if s.generator == nil {
		return domain.Answer{}, fmt.Errorf("answer: generator %w", ErrNotConfigured)
	}
	defer s.metrics.Since("generate", time.Now())

	text, err := s.generator.Generate(ctx, query, r.Context)
	if err != nil {
		s.log.WithError(err).Warn("generation failed")
		return domain.Answer{}, fmt.Errorf("answer: %w: %w", ErrGeneration, err)
	}
	return domain.Answer{
		Query:       query,
		Response:    text,
		Citations:   r.Citations,
		ContextUsed: true,
	}, nil
}

// Info reports the backend and its passage count.
func (s *Service) Info(ctx context.Context) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	n, err := s.store.Count(ctx)
	if err != nil {
		return Info{}, domain.StoreUnavailable("count", err)
	}
	return Info{
		Collection:    s.storeInfo.Collection,
		TotalPassages: n,
		Backend:       s.storeInfo.Backend,
		Location:      s.storeInfo.Location,
	}, nil
}

func (s *Service) checkQuery(query string, k int) (int, error) {
	if strings.TrimSpace(query) == "" {
		return 0, domain.InvalidInput("query", "query text must be provided")
	}
	if k == 0 {
		k = s.opts.DefaultK
	}
	if k < 0 {
		return 0, domain.InvalidInput("limit", "must be positive, got %d", k)
	}
	return k, nil
}

// fanOut runs fn for every index with at most Concurrency in flight. fn
// reports into its own slot, so one failure never stops the others.
func (s *Service) fanOut(n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

func checkURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return domain.InvalidInput("url", "url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return domain.InvalidInput("url", "%v", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.InvalidInput("url", "%q is not an http(s) url", raw)
	}
	return nil
}
