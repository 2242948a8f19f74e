package retriever

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrag/internal/domain"
	"webrag/internal/vectorstore/memory"
	"webrag/internal/vectorstore/storetest"
)

type failingStore struct {
	domain.VectorStore
	calls int
}

func (f *failingStore) Query(context.Context, string, int) ([]domain.QueryResult, error) {
	f.calls++
	return nil, domain.StoreUnavailable("query", errors.New("down"))
}

func TestAssemble_Format(t *testing.T) {
	got := Assemble([]domain.QueryResult{
		{Text: "first text", Metadata: domain.PassageMetadata{Origin: "https://a", Position: 2}, Distance: 0.1},
		{Text: "second text", Metadata: domain.PassageMetadata{Origin: "https://b", Position: 0}, Distance: 0.4},
	})
	assert.True(t, got.Found)
	assert.Equal(t, "Source 1:\nfirst text\n\nSource 2:\nsecond text\n\n", got.Context)
	assert.Equal(t, []domain.Citation{
		{Origin: "https://a", Position: 2, Distance: 0.1},
		{Origin: "https://b", Position: 0, Distance: 0.4},
	}, got.Citations)
}

func TestAssemble_Empty(t *testing.T) {
	got := Assemble(nil)
	assert.False(t, got.Found)
	assert.Empty(t, got.Context)
	require.NotNil(t, got.Citations)
	assert.Empty(t, got.Citations)
}

func TestRetrieve_CitationsMatchBlocks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage(&storetest.Keywords{})
	texts := map[string]string{
		"doc-a": "alpha alpha",
		"doc-b": "alpha beta",
		"doc-c": "beta gamma",
		"doc-d": "gamma",
	}
	for origin, text := range texts {
		require.NoError(t, store.Upsert(ctx, storetest.Passage(origin, 0, 1, text)))
	}

	got, err := New(store).Retrieve(ctx, "alpha", 3)
	require.NoError(t, err)
	require.True(t, got.Found)

	labels := regexp.MustCompile(`(?m)^Source (\d+):$`).FindAllStringSubmatch(got.Context, -1)
	require.Len(t, got.Citations, len(labels))

	blocks := strings.Split(strings.TrimSuffix(got.Context, "\n\n"), "\n\n")
	require.Len(t, blocks, len(got.Citations))
	for i, block := range blocks {
		c := got.Citations[i]
		assert.Equal(t, labels[i][1], string(rune('1'+i)))
		assert.Equal(t, texts[c.Origin], strings.SplitN(block, "\n", 2)[1], "Source %d", i+1)
	}
	assert.Equal(t, "doc-a", got.Citations[0].Origin)
	for i := 1; i < len(got.Citations); i++ {
		assert.LessOrEqual(t, got.Citations[i-1].Distance, got.Citations[i].Distance)
	}
}

func TestRetrieve_EmptyStore(t *testing.T) {
	got, err := New(memory.NewStorage(&storetest.Keywords{})).Retrieve(context.Background(), "unrelated query", 5)
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.Empty(t, got.Citations)
}

func TestRetrieve_FailsFast(t *testing.T) {
	store := &failingStore{}
	_, err := New(store).Retrieve(context.Background(), "alpha", 5)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 1, store.calls)
}
