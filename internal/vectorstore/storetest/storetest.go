// Package storetest is a behavioural test suite shared by the vector store
// backends.
package storetest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrag/internal/domain"
	"webrag/internal/identity"
)

// Keywords is a deterministic embedder whose axes count the words alpha, beta
// and gamma. Text with none of them embeds to the zero vector.
type Keywords struct {
	mu   sync.Mutex
	Fail error
}

// Name implements domain.Embedder.
func (k *Keywords) Name() string { return "keywords" }

// Dimension implements embedding.Dimensioned.
func (k *Keywords) Dimension() int { return 3 }

// Embed implements domain.Embedder.
func (k *Keywords) Embed(_ context.Context, text string) ([]float32, error) {
	k.mu.Lock()
	fail := k.Fail
	k.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	vec := make([]float32, 3)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		switch strings.Trim(w, ".,") {
		case "alpha":
			vec[0]++
		case "beta":
			vec[1]++
		case "gamma":
			vec[2]++
		}
	}
	return vec, nil
}

// SetFail makes every later Embed call return err.
func (k *Keywords) SetFail(err error) {
	k.mu.Lock()
	k.Fail = err
	k.mu.Unlock()
}

// Factory builds an empty store that embeds through emb.
type Factory func(t *testing.T, emb domain.Embedder) domain.VectorStore

// Passage builds a valid passage for origin/position.
func Passage(origin string, position, total int, text string) domain.Passage {
	return domain.Passage{
		ID:   identity.Assign(origin, position),
		Text: text,
		Metadata: domain.PassageMetadata{
			Origin:        origin,
			Position:      position,
			TotalPassages: total,
			IngestedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

// Run exercises the VectorStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		s := newStore(t, &Keywords{})
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		res, err := s.Query(ctx, "alpha", 5)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		s := newStore(t, &Keywords{})
		require.NoError(t, s.Upsert(ctx, Passage("doc-a", 0, 2, "alpha one")))
		require.NoError(t, s.Upsert(ctx, Passage("doc-a", 1, 2, "beta two")))
		require.NoError(t, s.Upsert(ctx, Passage("doc-a", 0, 2, "gamma replaced")))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		res, err := s.Query(ctx, "gamma", 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, identity.Assign("doc-a", 0), res[0].PassageID)
		assert.Equal(t, "gamma replaced", res[0].Text)
		assert.Equal(t, "doc-a", res[0].Metadata.Origin)
		assert.Equal(t, 0, res[0].Metadata.Position)
		assert.Equal(t, 2, res[0].Metadata.TotalPassages)
		assert.True(t, res[0].Metadata.IngestedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
		assert.InDelta(t, 0, res[0].Distance, 1e-6)
	})

	t.Run("ascending distance", func(t *testing.T) {
		s := newStore(t, &Keywords{})
		require.NoError(t, s.Upsert(ctx, Passage("doc-b", 0, 1, "beta")))
		require.NoError(t, s.Upsert(ctx, Passage("doc-ab", 0, 1, "alpha beta")))
		require.NoError(t, s.Upsert(ctx, Passage("doc-a", 0, 1, "alpha")))

		res, err := s.Query(ctx, "alpha", 5)
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, []string{"alpha", "alpha beta", "beta"}, []string{res[0].Text, res[1].Text, res[2].Text})
		for i := 1; i < len(res); i++ {
			assert.LessOrEqual(t, res[i-1].Distance, res[i].Distance)
		}
		assert.InDelta(t, 0, res[0].Distance, 1e-6)
		assert.InDelta(t, 1, res[2].Distance, 1e-6)
	})

	t.Run("k bounds the result", func(t *testing.T) {
		s := newStore(t, &Keywords{})
		for i := 0; i < 4; i++ {
			require.NoError(t, s.Upsert(ctx, Passage("doc-k", i, 4, "alpha")))
		}
		res, err := s.Query(ctx, "alpha", 2)
		require.NoError(t, err)
		assert.Len(t, res, 2)

		_, err = s.Query(ctx, "alpha", 0)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("ties keep first insertion order", func(t *testing.T) {
		s := newStore(t, &Keywords{})
		for _, origin := range []string{"t1", "t2", "t3"} {
			require.NoError(t, s.Upsert(ctx, Passage(origin, 0, 1, "gamma "+origin)))
		}
		// replacing t1 must not move it behind t2 and t3
		require.NoError(t, s.Upsert(ctx, Passage("t1", 0, 1, "gamma t1 again")))

		res, err := s.Query(ctx, "gamma", 3)
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, "t1", res[0].Metadata.Origin)
		assert.Equal(t, "t2", res[1].Metadata.Origin)
		assert.Equal(t, "t3", res[2].Metadata.Origin)
	})

	t.Run("invalid passage", func(t *testing.T) {
		s := newStore(t, &Keywords{})
		p := Passage("doc", 0, 1, "alpha")
		p.ID = "bad id"
		err := s.Upsert(ctx, p)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Equal(t, "id", domain.FieldOf(err))
	})

	t.Run("embedding failure", func(t *testing.T) {
		emb := &Keywords{}
		s := newStore(t, emb)
		emb.SetFail(errors.New("model down"))

		err := s.Upsert(ctx, Passage("doc", 0, 1, "alpha"))
		require.ErrorIs(t, err, domain.ErrEmbeddingFailure)

		_, err = s.Query(ctx, "alpha", 1)
		require.ErrorIs(t, err, domain.ErrEmbeddingFailure)

		emb.SetFail(nil)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("concurrent upserts on one id", func(t *testing.T) {
		s := newStore(t, &Keywords{})
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				text, total := "alpha", 1
				if i%2 == 1 {
					text, total = "beta", 2
				}
				assert.NoError(t, s.Upsert(ctx, Passage("race", 0, total, text)))
			}(i)
		}
		wg.Wait()

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		res, err := s.Query(ctx, "alpha", 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		// text, metadata and vector all come from the same write
		switch res[0].Text {
		case "alpha":
			assert.Equal(t, 1, res[0].Metadata.TotalPassages)
			assert.InDelta(t, 0, res[0].Distance, 1e-6)
		case "beta":
			assert.Equal(t, 2, res[0].Metadata.TotalPassages)
			assert.InDelta(t, 1, res[0].Distance, 1e-6)
		default:
			t.Fatalf("unexpected text %q", res[0].Text)
		}
	})
}
