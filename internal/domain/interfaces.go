package domain

import (
	"context"
	"time"
)

// Document is a unit of source text together with where it came from.
type Document struct {
	Origin     string
	Text       string
	IngestedAt time.Time
}

// PassageMetadata is the provenance stored next to every passage. It is enough
// to build a citation without consulting any other system.
type PassageMetadata struct {
	Origin        string    `json:"origin"`
	Position      int       `json:"position"`
	TotalPassages int       `json:"total_passages"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// Passage is a stored chunk of a document, the atomic unit of retrieval.
type Passage struct {
	ID       string
	Text     string
	Metadata PassageMetadata
}

// QueryResult is a passage returned by a nearest-neighbour query.
type QueryResult struct {
	PassageID string          `json:"id"`
	Text      string          `json:"content"`
	Metadata  PassageMetadata `json:"metadata"`
	Distance  float64         `json:"distance"`
}

// Citation points back at the passage behind one "Source N" block.
type Citation struct {
	Origin   string  `json:"url"`
	Position int     `json:"chunk_index"`
	Distance float64 `json:"distance"`
}

// Retrieval is the assembled context for a query. Citations[i] describes the
// block labelled "Source i+1" in Context.
type Retrieval struct {
	Context   string     `json:"context"`
	Citations []Citation `json:"citations"`
	Found     bool       `json:"context_found"`
}

// Answer is a generated response grounded on a Retrieval.
type Answer struct {
	Query       string     `json:"query"`
	Response    string     `json:"response"`
	Citations   []Citation `json:"sources"`
	ContextUsed bool       `json:"context_used"`
}

// ScrapedPage is what a scraper hands back for a single URL.
type ScrapedPage struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Markdown string `json:"markdown"`
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits document text into ordered, overlapping passages.
type Chunker interface {
	Chunk(text string) ([]string, error)
}

// VectorStore persists passages and supports similarity search. Embeddings
// are computed by the store from the passage text at write time.
type VectorStore interface {
	Upsert(ctx context.Context, passage Passage) error
	Query(ctx context.Context, text string, k int) ([]QueryResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Generator produces natural-language text from a query and a context block.
type Generator interface {
	Generate(ctx context.Context, query, contextBlock string) (string, error)
}

// Scraper fetches a URL and returns its content as markdown or plain text.
type Scraper interface {
	Scrape(ctx context.Context, url string) (ScrapedPage, error)
}

// Archiver keeps a copy of raw scraped content and returns where it went.
type Archiver interface {
	Save(ctx context.Context, origin, markdown string, at time.Time) (string, error)
}
