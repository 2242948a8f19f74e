package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrag/internal/domain"
	"webrag/internal/vectorstore/storetest"
)

func TestStorage(t *testing.T) {
	storetest.Run(t, func(t *testing.T, emb domain.Embedder) domain.VectorStore {
		s, err := Open(context.Background(), filepath.Join(t.TempDir(), "passages.db"), emb)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStorage_InMemory(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:", &storetest.Keywords{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, storetest.Passage("doc", 0, 1, "alpha")))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, ":memory:", s.Path())
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "passages.db")

	s, err := Open(ctx, path, &storetest.Keywords{})
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, storetest.Passage("doc", 0, 2, "alpha")))
	require.NoError(t, s.Upsert(ctx, storetest.Passage("doc", 1, 2, "beta")))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, &storetest.Keywords{})
	require.NoError(t, err)
	defer s.Close()

	res, err := s.Query(ctx, "beta", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 1, res[0].Metadata.Position)
	assert.Equal(t, 2, res[0].Metadata.TotalPassages)
}

func TestStorage_ClosedDatabaseIsUnavailable(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "passages.db"), &storetest.Keywords{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Upsert(ctx, storetest.Passage("doc", 0, 1, "alpha"))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = s.Count(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
