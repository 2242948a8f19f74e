// Package sqlite is a single-file vector store on modernc.org/sqlite.
// Embeddings are kept as little-endian float32 BLOBs and ranked in Go.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"webrag/internal/domain"
	"webrag/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS passages (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT    NOT NULL UNIQUE,
	text           TEXT    NOT NULL,
	origin         TEXT    NOT NULL,
	position       INTEGER NOT NULL,
	total_passages INTEGER NOT NULL,
	ingested_at    TEXT    NOT NULL,
	embedding      BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS passages_origin ON passages(origin);
`

// seq survives the conflict branch, so a replaced passage keeps its slot.
const upsertSQL = `
INSERT INTO passages (id, text, origin, position, total_passages, ingested_at, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	text = excluded.text,
	origin = excluded.origin,
	position = excluded.position,
	total_passages = excluded.total_passages,
	ingested_at = excluded.ingested_at,
	embedding = excluded.embedding`

// Storage is a domain.VectorStore backed by a SQLite database file.
type Storage struct {
	db       *sql.DB
	embedder domain.Embedder
	path     string
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database on a single connection.
func Open(ctx context.Context, path string, embedder domain.Embedder) (*Storage, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, domain.StoreUnavailable("sqlite.open", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, domain.StoreUnavailable("sqlite.schema", err)
	}
	return &Storage{db: db, embedder: embedder, path: path}, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Path returns the database location.
func (s *Storage) Path() string { return s.path }

// Upsert embeds the passage and inserts or fully replaces its row.
func (s *Storage) Upsert(ctx context.Context, p domain.Passage) error {
	if err := vectorstore.ValidatePassage(p); err != nil {
		return err
	}
	vec, err := s.embedder.Embed(ctx, p.Text)
	if err != nil {
		return domain.EmbeddingFailure("sqlite.upsert", err)
	}
	m := p.Metadata
	_, err = s.db.ExecContext(ctx, upsertSQL,
		p.ID, p.Text, m.Origin, m.Position, m.TotalPassages,
		m.IngestedAt.UTC().Format(time.RFC3339Nano),
		vectorstore.EncodeEmbedding(vec),
	)
	if err != nil {
		return domain.StoreUnavailable("sqlite.upsert", err)
	}
	return nil
}

// Query ranks every stored passage by cosine distance to text.
func (s *Storage) Query(ctx context.Context, text string, k int) ([]domain.QueryResult, error) {
	if err := vectorstore.ValidateQuery(k); err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, domain.EmbeddingFailure("sqlite.query", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, text, origin, position, total_passages, ingested_at, embedding FROM passages`)
	if err != nil {
		return nil, domain.StoreUnavailable("sqlite.query", err)
	}
	defer rows.Close()

	var cands []vectorstore.Candidate
	for rows.Next() {
		var (
			c        vectorstore.Candidate
			r        = &c.Result
			ingested string
			blob     []byte
		)
		if err := rows.Scan(&c.Seq, &r.PassageID, &r.Text, &r.Metadata.Origin,
			&r.Metadata.Position, &r.Metadata.TotalPassages, &ingested, &blob); err != nil {
			return nil, domain.StoreUnavailable("sqlite.query", err)
		}
		if r.Metadata.IngestedAt, err = time.Parse(time.RFC3339Nano, ingested); err != nil {
			return nil, domain.StoreUnavailable("sqlite.query", fmt.Errorf("passage %s: %w", r.PassageID, err))
		}
		stored, err := vectorstore.DecodeEmbedding(blob)
		if err != nil {
			return nil, domain.StoreUnavailable("sqlite.query", fmt.Errorf("passage %s: %w", r.PassageID, err))
		}
		r.Distance = vectorstore.CosineDistance(vec, stored)
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreUnavailable("sqlite.query", err)
	}
	return vectorstore.TopK(cands, k), nil
}

// Count returns the number of stored passages.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n); err != nil {
		return 0, domain.StoreUnavailable("sqlite.count", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Storage) Close() error { return s.db.Close() }

var _ domain.VectorStore = (*Storage)(nil)
