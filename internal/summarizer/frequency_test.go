package summarizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const block = "Source 1:\nGo has goroutines. Goroutines are cheap threads. The sky is blue.\n\n" +
	"Source 2:\nChannels connect goroutines. Bread needs flour.\n\n"

func TestGenerate_PrefersQueryTerms(t *testing.T) {
	s := NewFrequencySummarizer(2)
	got, err := s.Generate(context.Background(), "how do channels connect goroutines", block)
	require.NoError(t, err)
	assert.Contains(t, got, "Channels connect goroutines.")
	assert.NotContains(t, got, "Source")
	assert.NotContains(t, got, "Bread")
}

func TestGenerate_KeepsOriginalOrder(t *testing.T) {
	s := NewFrequencySummarizer(10)
	got, err := s.Generate(context.Background(), "anything", "One. Two. Three.")
	require.NoError(t, err)
	assert.Equal(t, "One. Two. Three.", got)
}

func TestSummarize_NoSentences(t *testing.T) {
	s := NewFrequencySummarizer(0)
	got, err := s.Summarize("  no terminator here ", 0)
	require.NoError(t, err)
	assert.Equal(t, "no terminator here", got)
}

func TestGenerate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFrequencySummarizer(1).Generate(ctx, "q", block)
	assert.ErrorIs(t, err, context.Canceled)
}
