package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("origin", "must not be empty")

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "origin", FieldOf(err))
	assert.Contains(t, err.Error(), "(origin)")
	assert.False(t, IsRetryable(err))
}

func TestClassify(t *testing.T) {
	cause := errors.New("connection refused")

	t.Run("store failure", func(t *testing.T) {
		err := StoreUnavailable("upsert", cause)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.ErrorIs(t, err, cause)
		assert.True(t, IsRetryable(err))
	})

	t.Run("deadline becomes timeout", func(t *testing.T) {
		err := EmbeddingFailure("embed", fmt.Errorf("post: %w", context.DeadlineExceeded))
		assert.ErrorIs(t, err, ErrTimeout)
		assert.NotErrorIs(t, err, ErrEmbeddingFailure)
		assert.True(t, IsRetryable(err))
	})

	t.Run("domain errors pass through", func(t *testing.T) {
		inner := EmbeddingFailure("embed", cause)
		err := StoreUnavailable("upsert", inner)
		assert.Same(t, inner, err)
		assert.ErrorIs(t, err, ErrEmbeddingFailure)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, StoreUnavailable("query", nil))
	})
}

func TestIsRetryable_PlainError(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(nil))
}

func TestIngestReport_Summarize(t *testing.T) {
	r := IngestReport{Results: []DocumentReport{
		{Origin: "a", Status: StatusSuccess, Passages: 3},
		{Origin: "b", Status: StatusFailed, Passages: 2, Error: "boom"},
		{Origin: "c", Status: StatusSuccess, Passages: 1},
	}}
	r.Summarize()

	assert.Equal(t, IngestSummary{Total: 3, Successful: 2, Failed: 1, PassagesStored: 6}, r.Summary)
}
