// Package memory is an in-process vector store using brute-force cosine
// distance.
package memory

import (
	"context"
	"sync"

	"webrag/internal/domain"
	"webrag/internal/vectorstore"
)

type entry struct {
	passage domain.Passage
	vector  []float32
	seq     int64
}

// Storage keeps passages in a map keyed by id. A replaced passage keeps the
// sequence number of its first insert, which breaks distance ties.
type Storage struct {
	embedder domain.Embedder

	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq int64
}

// NewStorage creates an empty store embedding through embedder.
func NewStorage(embedder domain.Embedder) *Storage {
	return &Storage{embedder: embedder, entries: make(map[string]*entry)}
}

// Upsert embeds the passage text and replaces any entry with the same id.
// The embedding is computed outside the lock; the swap itself is atomic.
func (s *Storage) Upsert(ctx context.Context, p domain.Passage) error {
	if err := vectorstore.ValidatePassage(p); err != nil {
		return err
	}
	vec, err := s.embedder.Embed(ctx, p.Text)
	if err != nil {
		return domain.EmbeddingFailure("memory.upsert", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[p.ID]; ok {
		s.entries[p.ID] = &entry{passage: p, vector: vec, seq: old.seq}
		return nil
	}
	s.entries[p.ID] = &entry{passage: p, vector: vec, seq: s.nextSeq}
	s.nextSeq++
	return nil
}

// Query returns up to k passages closest to text.
func (s *Storage) Query(ctx context.Context, text string, k int) ([]domain.QueryResult, error) {
	if err := vectorstore.ValidateQuery(k); err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, domain.EmbeddingFailure("memory.query", err)
	}

	s.mu.RLock()
	cands := make([]vectorstore.Candidate, 0, len(s.entries))
	for _, e := range s.entries {
		cands = append(cands, vectorstore.Candidate{
			Result: domain.QueryResult{
				PassageID: e.passage.ID,
				Text:      e.passage.Text,
				Metadata:  e.passage.Metadata,
				Distance:  vectorstore.CosineDistance(vec, e.vector),
			},
			Seq: e.seq,
		})
	}
	s.mu.RUnlock()
	return vectorstore.TopK(cands, k), nil
}

// Count returns the number of stored passages.
func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Get returns the passage stored under id.
func (s *Storage) Get(id string) (domain.Passage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return domain.Passage{}, false
	}
	return e.passage, true
}

// Clear drops every passage.
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	s.nextSeq = 0
}

// Close is a no-op.
func (s *Storage) Close() error { return nil }

var _ domain.VectorStore = (*Storage)(nil)
