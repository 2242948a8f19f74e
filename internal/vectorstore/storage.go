// Package vectorstore holds what the store backends share: argument checks,
// cosine distance, the float32 wire encoding and stable ranking.
package vectorstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"webrag/internal/domain"
	"webrag/internal/identity"
)

// Storage persists passages and supports similarity search.
type Storage = domain.VectorStore

// ValidatePassage rejects passages a backend must never persist.
func ValidatePassage(p domain.Passage) error {
	if p.ID == "" {
		return domain.InvalidInput("id", "passage id is empty")
	}
	if _, _, err := identity.Parse(p.ID); err != nil {
		return domain.InvalidInput("id", "%v", err)
	}
	if p.Metadata.Origin == "" {
		return domain.InvalidInput("origin", "passage %s has no origin", p.ID)
	}
	if p.Metadata.Position < 0 || p.Metadata.Position >= max(p.Metadata.TotalPassages, 1) {
		return domain.InvalidInput("position", "position %d outside [0, %d)", p.Metadata.Position, p.Metadata.TotalPassages)
	}
	return nil
}

// ValidateQuery rejects a non-positive k.
func ValidateQuery(k int) error {
	if k <= 0 {
		return domain.InvalidInput("k", "must be positive, got %d", k)
	}
	return nil
}

// CosineDistance returns 1 - cos(a, b). A zero vector is at distance 1 from
// everything, and vectors of different length are compared on their common
// prefix.
func CosineDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// EncodeEmbedding packs a vector as little-endian float32s.
func EncodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding reverses EncodeEmbedding.
func DecodeEmbedding(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has %d bytes, not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// Candidate is a scored passage plus the sequence number of its first insert.
type Candidate struct {
	Result domain.QueryResult
	Seq    int64
}

// TopK orders candidates by ascending distance, breaking ties by Seq, and
// returns at most k results.
func TopK(cands []Candidate, k int) []domain.QueryResult {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Result.Distance != cands[j].Result.Distance {
			return cands[i].Result.Distance < cands[j].Result.Distance
		}
		return cands[i].Seq < cands[j].Seq
	})
	if k > len(cands) {
		k = len(cands)
	}
	out := make([]domain.QueryResult, k)
	for i := 0; i < k; i++ {
		out[i] = cands[i].Result
	}
	return out
}
