package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrag/internal/chunker"
	"webrag/internal/domain"
	"webrag/internal/embedding/hashing"
	"webrag/internal/logging"
	"webrag/internal/metrics"
	"webrag/internal/service"
	"webrag/internal/vectorstore/memory"
)

type echoGenerator struct{ calls int }

func (g *echoGenerator) Generate(_ context.Context, query, contextBlock string) (string, error) {
	g.calls++
	return fmt.Sprintf("answer to %q from %d bytes", query, len(contextBlock)), nil
}

type mapScraper map[string]string

func (m mapScraper) Scrape(_ context.Context, url string) (domain.ScrapedPage, error) {
	md, ok := m[url]
	if !ok {
		return domain.ScrapedPage{}, errors.New("404 not found")
	}
	return domain.ScrapedPage{URL: url, Markdown: md}, nil
}

type fixture struct {
	handler http.Handler
	gen     *echoGenerator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ch, err := chunker.New(chunker.WithChunkSize(200), chunker.WithOverlap(20))
	require.NoError(t, err)
	gen := &echoGenerator{}
	m := metrics.New()
	svc := service.New(service.Deps{
		Chunker:   ch,
		Store:     memory.NewStorage(hashing.New(256)),
		StoreInfo: service.StoreInfo{Backend: "memory", Collection: "scraped_content"},
		Generator: gen,
		Scraper: mapScraper{
			"https://go.dev/doc": "Go is an open source programming language that makes it simple to build secure, scalable systems.",
		},
		Metrics: m,
		Logger:  logging.Discard(),
	}, service.Options{})
	return fixture{handler: New(svc, Options{Metrics: m, Logger: logging.Discard()}).Handler(), gen: gen}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestIngestThenSearchAndChat(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/ingest", `{"documents":[
		{"origin":"notes/go.txt","text":"Goroutines are lightweight threads managed by the Go runtime."},
		{"origin":"notes/rust.txt","text":"Rust guarantees memory safety through ownership and borrowing."}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[domain.IngestReport](t, rec)
	assert.Equal(t, domain.IngestSummary{Total: 2, Successful: 2, PassagesStored: 2}, report.Summary)

	rec = f.do(t, http.MethodPost, "/search-vector", `{"query":"goroutines runtime","limit":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	search := decode[searchResponse](t, rec)
	assert.Equal(t, 1, search.TotalFound)
	require.Len(t, search.Results, 1)
	assert.Equal(t, "notes/go.txt", search.Results[0].Metadata.Origin)

	rec = f.do(t, http.MethodPost, "/retrieve", `{"query":"goroutines runtime","limit":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	r := decode[domain.Retrieval](t, rec)
	assert.True(t, r.Found)
	assert.True(t, strings.HasPrefix(r.Context, "Source 1:\n"))
	assert.Len(t, r.Citations, 2)

	rec = f.do(t, http.MethodPost, "/chatbot", `{"query":"what are goroutines?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var chat map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))
	assert.Equal(t, true, chat["context_used"])
	assert.EqualValues(t, 2, chat["num_sources"])
	assert.Contains(t, chat["response"], "what are goroutines?")
	assert.Equal(t, 1, f.gen.calls)

	rec = f.do(t, http.MethodGet, "/database-info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[service.Info](t, rec)
	assert.Equal(t, service.Info{Collection: "scraped_content", TotalPassages: 2, Backend: "memory"}, info)
}

func TestChatbot_EmptyStore(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/chatbot", `{"query":"anything","limit":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	chat := decode[chatbotResponse](t, rec)
	assert.False(t, chat.ContextUsed)
	assert.Equal(t, service.NoContextResponse, chat.Response)
	assert.Equal(t, 0, chat.NumSources)
	assert.NotNil(t, chat.Citations)
	assert.Zero(t, f.gen.calls)
}

func TestScrapeEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/scrape", `{"urls":["https://go.dev/doc","https://missing.example"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var scraped struct {
		Results []map[string]string `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scraped))
	require.Len(t, scraped.Results, 2)
	assert.Contains(t, scraped.Results[0]["markdown"], "open source")
	assert.Contains(t, scraped.Results[1]["error"], "404")

	rec = f.do(t, http.MethodPost, "/scrape-and-store", `{"urls":["https://go.dev/doc","https://missing.example"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[domain.IngestReport](t, rec)
	assert.Equal(t, domain.IngestSummary{Total: 2, Successful: 1, Failed: 1, PassagesStored: 1}, report.Summary)
	assert.Equal(t, domain.StatusSuccess, report.Results[0].Status)
	assert.Equal(t, 1, report.Results[0].Passages)
}

func TestValidationErrors(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		path, body, field string
	}{
		{"/search-vector", `{"query":"  "}`, "query"},
		{"/retrieve", `{"query":"go","limit":-1}`, "limit"},
		{"/chatbot", `{}`, "query"},
		{"/ingest", `{"documents":[]}`, "documents"},
		{"/scrape", `{"urls":[]}`, "urls"},
		{"/scrape-and-store", `{}`, "urls"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode[errorResponse](t, rec)
			assert.Equal(t, tc.field, body.Field)
			assert.NotEmpty(t, body.Error)
		})
	}

	rec := f.do(t, http.MethodPost, "/retrieve", `{"query":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "malformed request body", decode[errorResponse](t, rec).Error)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.InvalidInput("query", "empty"), http.StatusBadRequest},
		{domain.StoreUnavailable("query", errors.New("refused")), http.StatusServiceUnavailable},
		{domain.EmbeddingFailure("embed", errors.New("quota")), http.StatusServiceUnavailable},
		{domain.StoreUnavailable("query", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("answer: %w: %w", service.ErrGeneration, errors.New("500")), http.StatusBadGateway},
		{fmt.Errorf("answer: generator %w", service.ErrNotConfigured), http.StatusNotImplemented},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusOf(tc.err), tc.err.Error())
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/chatbot", nil)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := New(newFixtureBackend(t), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}

func newFixtureBackend(t *testing.T) Backend {
	ch, err := chunker.New()
	require.NoError(t, err)
	return service.New(service.Deps{Chunker: ch, Store: memory.NewStorage(hashing.New(0))}, service.Options{})
}
