package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrag/internal/chunker"
	"webrag/internal/domain"
	"webrag/internal/identity"
	"webrag/internal/metrics"
	"webrag/internal/vectorstore/memory"
	"webrag/internal/vectorstore/storetest"
)

// scriptedStore fails Upsert according to fail and delegates otherwise.
type scriptedStore struct {
	*memory.Storage
	mu    sync.Mutex
	calls map[string]int
	fail  func(p domain.Passage, call int) error

	inFlight, maxInFlight int32
}

func newScriptedStore(fail func(p domain.Passage, call int) error) *scriptedStore {
	return &scriptedStore{
		Storage: memory.NewStorage(&storetest.Keywords{}),
		calls:   map[string]int{},
		fail:    fail,
	}
}

func (s *scriptedStore) Upsert(ctx context.Context, p domain.Passage) error {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		m := atomic.LoadInt32(&s.maxInFlight)
		if n <= m || atomic.CompareAndSwapInt32(&s.maxInFlight, m, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	s.mu.Lock()
	s.calls[p.ID]++
	call := s.calls[p.ID]
	s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(p, call); err != nil {
			return err
		}
	}
	return s.Storage.Upsert(ctx, p)
}

func (s *scriptedStore) callsFor(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

type spyGenerator struct {
	calls   int
	query   string
	context string
	reply   string
	err     error
}

func (g *spyGenerator) Generate(_ context.Context, query, contextBlock string) (string, error) {
	g.calls++
	g.query, g.context = query, contextBlock
	return g.reply, g.err
}

func newService(t *testing.T, store domain.VectorStore, size, overlap int, opts Options) *Service {
	t.Helper()
	ch, err := chunker.New(chunker.WithChunkSize(size), chunker.WithOverlap(overlap))
	require.NoError(t, err)
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = time.Millisecond
	}
	return New(Deps{Chunker: ch, Store: store, Metrics: metrics.New()}, opts)
}

func TestIngest_Scenario2500(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage(&storetest.Keywords{})
	svc := newService(t, store, 1000, 200, Options{})

	report, err := svc.Ingest(ctx, []domain.Document{{Origin: "doc-a", Text: strings.Repeat("a", 2500)}})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	res := report.Results[0]
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Equal(t, 3, res.Passages)
	assert.Equal(t, domain.IngestSummary{Total: 1, Successful: 1, PassagesStored: 3}, report.Summary)

	for pos := 0; pos < 3; pos++ {
		p, ok := store.Get(identity.Assign("doc-a", pos))
		require.True(t, ok, "position %d", pos)
		assert.Equal(t, pos, p.Metadata.Position)
		assert.Equal(t, 3, p.Metadata.TotalPassages)
		assert.Equal(t, "doc-a", p.Metadata.Origin)
		assert.False(t, p.Metadata.IngestedAt.IsZero())
	}
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestIngest_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage(&storetest.Keywords{})
	svc := newService(t, store, 10, 2, Options{})
	doc := domain.Document{Origin: "https://example.com/a", Text: "alpha beta gamma alpha beta gamma"}

	_, err := svc.Ingest(ctx, []domain.Document{doc})
	require.NoError(t, err)
	first, err := store.Count(ctx)
	require.NoError(t, err)

	_, err = svc.Ingest(ctx, []domain.Document{doc})
	require.NoError(t, err)
	second, err := store.Count(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	p, ok := store.Get(identity.Assign(doc.Origin, 0))
	require.True(t, ok)
	assert.Equal(t, doc.Text[:10], p.Text)
}

func TestIngest_SiblingsSurviveFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage(&storetest.Keywords{})
	svc := newService(t, store, 100, 10, Options{Concurrency: 2})

	report, err := svc.Ingest(ctx, []domain.Document{
		{Origin: "ok-1", Text: "alpha"},
		{Origin: "empty", Text: "   "},
		{Origin: "", Text: "beta"},
		{Origin: "ok-2", Text: "gamma"},
	})
	require.NoError(t, err)

	statuses := make([]string, len(report.Results))
	for i, r := range report.Results {
		statuses[i] = r.Status
	}
	assert.Equal(t, []string{"success", "failed", "failed", "success"}, statuses)
	assert.Equal(t, "text", report.Results[1].Field)
	assert.ErrorIs(t, report.Results[1].Err, domain.ErrInvalidInput)
	assert.Equal(t, "origin", report.Results[2].Field)
	assert.Equal(t, domain.IngestSummary{Total: 4, Successful: 2, Failed: 2, PassagesStored: 2}, report.Summary)
}

func TestIngest_EmptyBatch(t *testing.T) {
	svc := newService(t, memory.NewStorage(&storetest.Keywords{}), 100, 10, Options{})
	_, err := svc.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, "documents", domain.FieldOf(err))
}

func TestIngest_RetriesTransientFailures(t *testing.T) {
	store := newScriptedStore(func(_ domain.Passage, call int) error {
		if call <= 2 {
			return domain.StoreUnavailable("upsert", errors.New("connection reset"))
		}
		return nil
	})
	svc := newService(t, store, 100, 10, Options{MaxRetries: 3})

	report, err := svc.Ingest(context.Background(), []domain.Document{{Origin: "doc", Text: "alpha"}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, report.Results[0].Status)
	assert.Equal(t, 3, store.callsFor(identity.Assign("doc", 0)))
}

func TestIngest_GivesUpAfterMaxRetries(t *testing.T) {
	store := newScriptedStore(func(domain.Passage, int) error {
		return domain.EmbeddingFailure("embed", errors.New("model offline"))
	})
	svc := newService(t, store, 100, 10, Options{MaxRetries: 2})

	report, err := svc.Ingest(context.Background(), []domain.Document{{Origin: "doc", Text: "alpha"}})
	require.NoError(t, err)
	res := report.Results[0]
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, domain.ErrEmbeddingFailure)
	assert.Equal(t, 3, store.callsFor(identity.Assign("doc", 0)), "one attempt plus two retries")
}

func TestIngest_InvalidInputIsNotRetried(t *testing.T) {
	store := newScriptedStore(func(domain.Passage, int) error {
		return domain.InvalidInput("id", "rejected")
	})
	svc := newService(t, store, 100, 10, Options{MaxRetries: 5})

	report, err := svc.Ingest(context.Background(), []domain.Document{{Origin: "doc", Text: "alpha"}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, report.Results[0].Status)
	assert.Equal(t, "id", report.Results[0].Field)
	assert.Equal(t, 1, store.callsFor(identity.Assign("doc", 0)))
}

func TestIngest_PartialDocumentAggregatesFailures(t *testing.T) {
	store := newScriptedStore(func(p domain.Passage, _ int) error {
		if p.Metadata.Position == 1 {
			return domain.InvalidInput("text", "too spicy")
		}
		return nil
	})
	svc := newService(t, store, 4, 2, Options{})

	report, err := svc.Ingest(context.Background(), []domain.Document{{Origin: "doc", Text: "abcdefghij"}})
	require.NoError(t, err)
	res := report.Results[0]
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, 3, res.Passages)
	assert.Contains(t, res.Error, "passage 1")
	assert.Equal(t, 3, report.Summary.PassagesStored)
}

func TestIngest_StoreTimeout(t *testing.T) {
	blocking := &blockingStore{VectorStore: memory.NewStorage(&storetest.Keywords{})}
	svc := newService(t, blocking, 100, 10, Options{StoreTimeout: 10 * time.Millisecond, MaxRetries: 0})

	report, err := svc.Ingest(context.Background(), []domain.Document{{Origin: "doc", Text: "alpha"}})
	require.NoError(t, err)
	assert.ErrorIs(t, report.Results[0].Err, domain.ErrTimeout)
}

type blockingStore struct{ domain.VectorStore }

func (b *blockingStore) Upsert(ctx context.Context, _ domain.Passage) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestIngest_BoundedFanOut(t *testing.T) {
	store := newScriptedStore(nil)
	svc := newService(t, store, 100, 10, Options{Concurrency: 2})

	docs := make([]domain.Document, 8)
	for i := range docs {
		docs[i] = domain.Document{Origin: "doc-" + string(rune('a'+i)), Text: "alpha beta"}
	}
	report, err := svc.Ingest(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 8, report.Summary.Successful)
	assert.LessOrEqual(t, atomic.LoadInt32(&store.maxInFlight), int32(2))
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage(&storetest.Keywords{})
	svc := newService(t, store, 100, 10, Options{DefaultK: 2})
	_, err := svc.Ingest(ctx, []domain.Document{
		{Origin: "a", Text: "alpha"},
		{Origin: "b", Text: "beta"},
		{Origin: "c", Text: "alpha beta"},
	})
	require.NoError(t, err)

	r, err := svc.Retrieve(ctx, "alpha", 0)
	require.NoError(t, err)
	require.True(t, r.Found)
	require.Len(t, r.Citations, 2, "default k applies")
	assert.Equal(t, "a", r.Citations[0].Origin)
	assert.Equal(t, "c", r.Citations[1].Origin)
	assert.Equal(t, "Source 1:\nalpha\n\nSource 2:\nalpha beta\n\n", r.Context)

	_, err = svc.Retrieve(ctx, "  ", 3)
	assert.Equal(t, "query", domain.FieldOf(err))
	_, err = svc.Retrieve(ctx, "alpha", -1)
	assert.Equal(t, "limit", domain.FieldOf(err))
}

func TestRetrieve_StoreFailureIsSurfaced(t *testing.T) {
	emb := &storetest.Keywords{}
	svc := newService(t, memory.NewStorage(emb), 100, 10, Options{})
	emb.SetFail(errors.New("down"))

	_, err := svc.Retrieve(context.Background(), "alpha", 3)
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailure)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, memory.NewStorage(&storetest.Keywords{}), 100, 10, Options{})

	res, err := svc.Search(ctx, "alpha", 3)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)

	_, err = svc.Ingest(ctx, []domain.Document{{Origin: "a", Text: "alpha"}})
	require.NoError(t, err)
	res, err = svc.Search(ctx, "alpha", 3)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, identity.Assign("a", 0), res[0].PassageID)
}

func TestAnswer_NoContextSkipsGenerator(t *testing.T) {
	gen := &spyGenerator{reply: "should not be used"}
	svc := newService(t, memory.NewStorage(&storetest.Keywords{}), 100, 10, Options{})
	svc.generator = gen

	ans, err := svc.Answer(context.Background(), "unrelated query", 5)
	require.NoError(t, err)
	assert.Zero(t, gen.calls)
	assert.False(t, ans.ContextUsed)
	assert.Equal(t, NoContextResponse, ans.Response)
	require.NotNil(t, ans.Citations)
	assert.Empty(t, ans.Citations)
}

func TestAnswer_PassesExactContext(t *testing.T) {
	ctx := context.Background()
	gen := &spyGenerator{reply: "Alpha is the first letter."}
	svc := newService(t, memory.NewStorage(&storetest.Keywords{}), 100, 10, Options{})
	svc.generator = gen
	_, err := svc.Ingest(ctx, []domain.Document{{Origin: "a", Text: "alpha"}, {Origin: "b", Text: "beta"}})
	require.NoError(t, err)

	want, err := svc.Retrieve(ctx, "what is alpha", 2)
	require.NoError(t, err)

	ans, err := svc.Answer(ctx, "what is alpha", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "what is alpha", gen.query)
	assert.Equal(t, want.Context, gen.context)
	assert.True(t, ans.ContextUsed)
	assert.Equal(t, "Alpha is the first letter.", ans.Response)
	assert.Equal(t, want.Citations, ans.Citations)
}

func TestAnswer_GeneratorFailure(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, memory.NewStorage(&storetest.Keywords{}), 100, 10, Options{})
	_, err := svc.Ingest(ctx, []domain.Document{{Origin: "a", Text: "alpha"}})
	require.NoError(t, err)

	_, err = svc.Answer(ctx, "alpha", 1)
	assert.ErrorIs(t, err, ErrNotConfigured)

	svc.generator = &spyGenerator{err: errors.New("rate limited")}
	_, err = svc.Answer(ctx, "alpha", 1)
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestInfo(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage(&storetest.Keywords{})
	ch, err := chunker.New()
	require.NoError(t, err)
	svc := New(Deps{
		Chunker:   ch,
		Store:     store,
		StoreInfo: StoreInfo{Backend: "memory", Collection: "scraped_content", Location: "in-process"},
	}, Options{})
	_, err = svc.Ingest(ctx, []domain.Document{{Origin: "a", Text: "alpha"}})
	require.NoError(t, err)

	info, err := svc.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, Info{Collection: "scraped_content", TotalPassages: 1, Backend: "memory", Location: "in-process"}, info)
}
