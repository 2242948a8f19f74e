// Package postgres is a vector store on PostgreSQL with the pgvector
// extension. Ranking happens in the database with the cosine distance
// operator.
package postgres

import (
	"context"
	"database/sql"
	"math"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"webrag/internal/domain"
	"webrag/internal/vectorstore"
)

const upsertSQL = `
INSERT INTO passages (id, text, origin, position, total_passages, ingested_at, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  text = EXCLUDED.text,
  origin = EXCLUDED.origin,
  position = EXCLUDED.position,
  total_passages = EXCLUDED.total_passages,
  ingested_at = EXCLUDED.ingested_at,
  embedding = EXCLUDED.embedding
`

const querySQL = `
SELECT id, text, origin, position, total_passages, ingested_at, embedding <=> $1 AS distance
FROM passages
ORDER BY distance, seq
LIMIT $2
`

// Storage is a domain.VectorStore backed by a pgvector table.
type Storage struct {
	DB       *sql.DB
	embedder domain.Embedder
}

// New wraps an open database whose schema is already migrated.
func New(db *sql.DB, embedder domain.Embedder) *Storage {
	return &Storage{DB: db, embedder: embedder}
}

// Open connects to dsn, applies migrations and returns the store.
func Open(ctx context.Context, dsn string, embedder domain.Embedder) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, domain.StoreUnavailable("postgres.open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, domain.StoreUnavailable("postgres.ping", err)
	}
	if err := Migrate(dsn, "up", 0); err != nil {
		_ = db.Close()
		return nil, domain.StoreUnavailable("postgres.migrate", err)
	}
	return New(db, embedder), nil
}

// Upsert embeds the passage and inserts or fully replaces its row. The row
// keeps its original seq on conflict.
func (s *Storage) Upsert(ctx context.Context, p domain.Passage) error {
	if err := vectorstore.ValidatePassage(p); err != nil {
		return err
	}
	vec, err := s.embedder.Embed(ctx, p.Text)
	if err != nil {
		return domain.EmbeddingFailure("postgres.upsert", err)
	}
	m := p.Metadata
	_, err = s.DB.ExecContext(ctx, upsertSQL,
		p.ID, p.Text, m.Origin, m.Position, m.TotalPassages, m.IngestedAt.UTC(), pgvector.NewVector(vec))
	if err != nil {
		return domain.StoreUnavailable("postgres.upsert", err)
	}
	return nil
}

// Query returns up to k passages ordered by cosine distance, then by seq.
func (s *Storage) Query(ctx context.Context, text string, k int) ([]domain.QueryResult, error) {
	if err := vectorstore.ValidateQuery(k); err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, domain.EmbeddingFailure("postgres.query", err)
	}
	rows, err := s.DB.QueryContext(ctx, querySQL, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, domain.StoreUnavailable("postgres.query", err)
	}
	defer rows.Close()

	results := make([]domain.QueryResult, 0, k)
	for rows.Next() {
		var r domain.QueryResult
		if err := rows.Scan(&r.PassageID, &r.Text, &r.Metadata.Origin, &r.Metadata.Position,
			&r.Metadata.TotalPassages, &r.Metadata.IngestedAt, &r.Distance); err != nil {
			return nil, domain.StoreUnavailable("postgres.query", err)
		}
		// pgvector yields NaN against a zero vector
		if math.IsNaN(r.Distance) {
			r.Distance = 1
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreUnavailable("postgres.query", err)
	}
	return results, nil
}

// Count returns the number of stored passages.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n); err != nil {
		return 0, domain.StoreUnavailable("postgres.count", err)
	}
	return n, nil
}

// Close closes the connection pool.
func (s *Storage) Close() error { return s.DB.Close() }

var _ domain.VectorStore = (*Storage)(nil)
