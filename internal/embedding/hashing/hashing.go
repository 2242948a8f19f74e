// Package hashing implements a local embedder based on feature hashing of
// word unigrams and bigrams. It needs no corpus preparation, so passages can
// be embedded one at a time as they are upserted.
package hashing

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"

	"webrag/internal/domain"
	"webrag/internal/textutil"
)

// DefaultDimension is used when New is given a non-positive dimension.
const DefaultDimension = 512

// Embedder maps tokens onto a fixed number of buckets with a signed hash.
type Embedder struct {
	dimension int
}

// New creates a hashing embedder producing vectors of the given size.
func New(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns the L2-normalized hashed term vector of text. Text without
// any tokens maps to the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc := make([]float64, e.dimension)
	tokens := textutil.Tokenize(text)
	for i, tok := range tokens {
		e.add(acc, tok, 1)
		if i > 0 {
			e.add(acc, tokens[i-1]+" "+tok, 0.5)
		}
	}

	// sublinear term frequency, then L2 normalize
	norm := 0.0
	for i, v := range acc {
		if v != 0 {
			s := math.Copysign(1+math.Log(math.Abs(v)+1), v)
			acc[i] = s
			norm += s * s
		}
	}
	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

func (e *Embedder) add(acc []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := int(h % uint64(e.dimension))
	if h>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}

var _ domain.Embedder = (*Embedder)(nil)
